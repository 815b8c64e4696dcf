// File: cmd/run.go
package cmd

import (
	"context"
	"fmt"
	"io"
	"time"

	json "github.com/json-iterator/go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/netstub/internal/config"
	"github.com/xkilldash9x/netstub/internal/observability"
	"github.com/xkilldash9x/netstub/pkg/browser"
	"github.com/xkilldash9x/netstub/pkg/intercept"
	"github.com/xkilldash9x/netstub/pkg/suite"
)

type runOptions struct {
	fixtures string
	policy   string
	waitFor  string
	timeout  time.Duration
	settle   time.Duration
}

// runReport is what `netstub run` prints.
type runReport struct {
	URL           string                         `json:"url"`
	Intercepting  bool                           `json:"intercepting"`
	Stats         intercept.Stats                `json:"stats"`
	Requests      []intercept.InterceptedRequest `json:"requests"`
	ConsoleErrors []browser.ConsoleMessage       `json:"console_errors,omitempty"`
}

func newRunCmd() *cobra.Command {
	opts := runOptions{}
	runCmd := &cobra.Command{
		Use:   "run <url>",
		Short: "Open a page with request interception and print the observed requests as JSON",
		Long: `Opens url in a browser page. Requests to the configured server host are
answered from the fixture file (404 when none matches); all other requests are
handled by the external policy. When the page settles, the request log is
printed as JSON.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := getConfigFromContext(cmd.Context())
			if err != nil {
				return err
			}
			applyRunOptions(cfg, opts)

			// Fail on a bad policy before paying for a browser launch.
			if _, err := intercept.PolicyByName(cfg.Intercept().ExternalPolicy); err != nil {
				return err
			}
			return runPage(cmd.Context(), cfg, args[0], opts, cmd.OutOrStdout())
		},
	}

	runCmd.Flags().StringVarP(&opts.fixtures, "fixtures", "f", "", "fixture file answering internal requests")
	runCmd.Flags().StringVar(&opts.policy, "policy", "", "external request policy: no_content, passthrough or block")
	runCmd.Flags().StringVar(&opts.waitFor, "wait-for", "", "URL that must be requested before the log is printed")
	runCmd.Flags().DurationVar(&opts.timeout, "timeout", 0, "how long to wait for --wait-for (default intercept.wait_timeout)")
	runCmd.Flags().DurationVar(&opts.settle, "settle", time.Second, "time to let the page issue requests after loading")
	return runCmd
}

func applyRunOptions(cfg config.Interface, opts runOptions) {
	if opts.fixtures != "" {
		cfg.SetInterceptFixtures(opts.fixtures)
	}
	if opts.policy != "" {
		cfg.SetInterceptExternalPolicy(opts.policy)
	}
}

func runPage(ctx context.Context, cfg config.Interface, url string, opts runOptions, out io.Writer) error {
	logger := observability.GetLogger().Named("run")

	s, err := suite.New(ctx, cfg, logger, suite.WithInterceptOptions(intercept.WithLogger(logger)))
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.Close(shutdownCtx); err != nil {
			logger.Warn("Failed to close browser.", zap.Error(err))
		}
	}()

	s.BeforeEach()
	if err := s.Page().Navigate(url); err != nil {
		return fmt.Errorf("failed to navigate to %s: %w", url, err)
	}

	h := s.Harness()
	if opts.waitFor != "" && h != nil {
		if err := h.WaitForURL(ctx, opts.waitFor, opts.timeout); err != nil {
			return err
		}
	}

	timer := time.NewTimer(opts.settle)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
		return ctx.Err()
	}

	report := runReport{
		URL:           url,
		Intercepting:  h != nil,
		ConsoleErrors: s.Page().Console().Errors(),
	}
	if h != nil {
		if !h.WaitTimeout(opts.settle) {
			logger.Warn("Some intercepted requests were still unanswered.")
		}
		report.Stats = h.Stats()
		report.Requests = h.Requests()
		if err := h.Err(); err != nil {
			logger.Error("Resolver failures during run.", zap.Error(err))
		}
	}
	return writeJSON(out, report)
}

func writeJSON(out io.Writer, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	_, err = fmt.Fprintln(out, string(data))
	return err
}
