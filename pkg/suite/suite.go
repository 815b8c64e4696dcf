// File: pkg/suite/suite.go

// Package suite prepares a browser page with request interception for Go
// tests. A Suite resets the interceptor before every test and fails a test
// that left console errors or resolver failures behind.
package suite

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/netstub/internal/config"
	"github.com/xkilldash9x/netstub/pkg/browser"
	"github.com/xkilldash9x/netstub/pkg/intercept"
)

// settleTimeout bounds how long AfterEach waits for in-flight requests.
const settleTimeout = 5 * time.Second

// Suite is one browser page plus the harness answering its requests.
// Harness is nil when interception is disabled by e2e mode.
type Suite struct {
	cfg     config.Interface
	logger  *zap.Logger
	manager *browser.Manager
	page    *browser.Page
	harness *intercept.Harness
	console *browser.ConsoleMonitor
}

// New launches a browser, builds the harness described by cfg and opens a page
// wired to it. The browser launch and fixture loading run concurrently.
func New(ctx context.Context, cfg config.Interface, logger *zap.Logger, opts ...Option) (*Suite, error) {
	s := &Suite{cfg: cfg, logger: logger.Named("suite")}

	var g errgroup.Group
	g.Go(func() error {
		m, err := browser.NewManager(context.Background(), logger, cfg.Browser())
		if err != nil {
			return err
		}
		s.manager = m
		return nil
	})
	g.Go(func() error {
		h, err := NewHarness(cfg, logger, opts...)
		if err != nil {
			return err
		}
		s.harness = h
		return nil
	})
	if err := g.Wait(); err != nil {
		s.shutdownManager()
		return nil, err
	}

	var handler intercept.Handler
	if s.harness != nil {
		handler = s.harness
	}
	page, err := s.manager.NewPage(ctx, handler)
	if err != nil {
		s.shutdownManager()
		return nil, err
	}
	s.page = page
	s.console = page.Console()

	s.logger.Info("Test suite ready.",
		zap.String("server_host", cfg.Server().Origin()),
		zap.Bool("intercepting", page.Intercepting()),
	)
	return s, nil
}

// NewHarness builds the interception harness for cfg: external policy,
// timeouts and, when configured, the fixture file. It returns nil, nil in e2e
// mode, where requests reach the real server.
func NewHarness(cfg config.Interface, logger *zap.Logger, opts ...Option) (*intercept.Harness, error) {
	if cfg.E2EMode() {
		return nil, nil
	}
	o := newOptions(opts)

	ic := cfg.Intercept()
	policy, err := intercept.PolicyByName(ic.ExternalPolicy)
	if err != nil {
		return nil, err
	}

	host := cfg.Server().Origin()
	resolvers := []intercept.Resolver{o.resolver}
	if ic.Fixtures != "" {
		fixtures, err := intercept.LoadFixtures(ic.Fixtures, host)
		if err != nil {
			return nil, err
		}
		logger.Debug("Loaded fixtures.", zap.String("path", ic.Fixtures), zap.Int("count", fixtures.Len()))
		resolvers = append(resolvers, fixtures)
	}

	interceptOpts := []intercept.Option{
		intercept.WithLogger(logger),
		intercept.WithExternalPolicy(policy),
		intercept.WithWaitTimeout(ic.WaitTimeout),
		intercept.WithPollInterval(ic.PollInterval),
		intercept.WithResolveTimeout(ic.ResolveTimeout),
		intercept.WithResolver(intercept.Chain(resolvers...)),
	}
	return intercept.New(host, append(interceptOpts, o.intercept...)...), nil
}

// Configure is New for a test binary: configuration comes from defaults and
// the environment (HOST, PORT, E2EMODE, NETSTUB_*), logs go to t and the
// browser is shut down when t finishes. It stops the test on failure.
func Configure(t testing.TB, opts ...Option) *Suite {
	t.Helper()

	o := newOptions(opts)
	cfg := o.cfg
	if cfg == nil {
		loaded, err := LoadConfig()
		if err != nil {
			t.Fatalf("failed to load configuration: %v", err)
		}
		cfg = loaded
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	s, err := New(ctx, cfg, zaptest.NewLogger(t), opts...)
	if err != nil {
		t.Fatalf("failed to configure test suite: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.Close(ctx); err != nil {
			t.Errorf("failed to close test suite: %v", err)
		}
	})
	return s
}

// LoadConfig reads configuration from defaults and the environment only.
func LoadConfig() (*config.Config, error) {
	v := viper.New()
	config.SetDefaults(v)
	v.SetEnvPrefix("NETSTUB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return config.NewConfigFromViper(v)
}

func (s *Suite) Page() *browser.Page         { return s.page }
func (s *Suite) Harness() *intercept.Harness { return s.harness }
func (s *Suite) Config() config.Interface    { return s.cfg }

// URL joins path onto the configured server host.
func (s *Suite) URL(path string) string {
	return strings.TrimSuffix(s.cfg.Server().Origin(), "/") + "/" + strings.TrimPrefix(path, "/")
}

// Run runs fn as a subtest between BeforeEach and AfterEach.
func (s *Suite) Run(t *testing.T, name string, fn func(t *testing.T)) bool {
	t.Helper()
	return t.Run(name, func(t *testing.T) {
		s.BeforeEach()
		t.Cleanup(func() { s.AfterEach(t) })
		fn(t)
	})
}

// BeforeEach clears the request log, injected responses and console errors.
func (s *Suite) BeforeEach() {
	if s.harness != nil {
		s.harness.Reset()
	}
	if s.console != nil {
		s.console.Reset()
	}
}

// AfterEach reports console errors, resolver failures and requests that were
// never answered as errors on t.
func (s *Suite) AfterEach(t testing.TB) {
	t.Helper()
	if s.harness != nil {
		if !s.harness.WaitTimeout(settleTimeout) {
			t.Errorf("intercepted requests still unanswered after %s", settleTimeout)
		}
		if err := s.harness.Err(); err != nil {
			t.Errorf("request interception failed: %v", err)
		}
	}
	if s.console != nil {
		if err := s.console.Check(); err != nil {
			t.Error(err)
		}
	}
}

// ExpectLastBody compares the JSON body of the most recent request with want.
// Numbers decode as float64.
func (s *Suite) ExpectLastBody(t testing.TB, want interface{}) bool {
	t.Helper()
	if s.harness == nil {
		t.Errorf("request interception is disabled")
		return false
	}
	got, err := s.harness.LastRequestBody()
	if err != nil {
		t.Errorf("failed to read last request body: %v", err)
		return false
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("last request body mismatch (-want +got):\n%s", diff)
		return false
	}
	return true
}

// Close closes the page and shuts the browser down.
func (s *Suite) Close(ctx context.Context) error {
	if s.page != nil {
		if err := s.page.Close(); err != nil {
			return fmt.Errorf("failed to close page: %w", err)
		}
	}
	if s.manager != nil {
		return s.manager.Shutdown(ctx)
	}
	return nil
}

func (s *Suite) shutdownManager() {
	if s.manager == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = s.manager.Shutdown(ctx)
}
