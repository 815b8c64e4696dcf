// pkg/browser/page.go
package browser

import (
	"context"
	"fmt"
	"sync"
	"time"

	cdpruntime "github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/netstub/internal/config"
	"github.com/xkilldash9x/netstub/pkg/intercept"
)

// Page is one browser tab prepared for testing.
type Page struct {
	id      string
	ctx     context.Context
	cancel  context.CancelFunc
	cfg     config.BrowserConfig
	logger  *zap.Logger
	console *ConsoleMonitor

	intercepting bool

	closeOnce sync.Once
	done      func()
}

// NewPage opens a tab, applies PageSetup and starts the console monitor.
// When handler is non-nil every request of the tab is paused and passed to
// it; a nil handler leaves the network untouched.
func (m *Manager) NewPage(ctx context.Context, handler intercept.Handler) (*Page, error) {
	tabCtx, cancel := chromedp.NewContext(m.browserCtx)
	id := uuid.NewString()
	p := &Page{
		id:           id,
		ctx:          tabCtx,
		cancel:       cancel,
		cfg:          m.cfg,
		logger:       m.logger.Named("page").With(zap.String("page_id", id)),
		intercepting: handler != nil,
	}
	p.console = NewConsoleMonitor(p.logger, m.cfg.EchoConsole)

	chromedp.ListenTarget(tabCtx, func(ev interface{}) {
		if e, ok := ev.(*cdpruntime.EventConsoleAPICalled); ok {
			p.console.Observe(e)
		}
	})

	actions := chromedp.Tasks{cdpruntime.Enable(), PageSetup(m.cfg)}
	if handler != nil {
		interceptor := NewInterceptor(handler, p.logger)
		interceptor.Listen(tabCtx)
		actions = append(actions, interceptor.Enable())
	}

	// The first Run creates the tab and binds its lifetime to the context it
	// is given, so it must be tabCtx itself. ctx only bounds the setup.
	if err := chromedp.Run(tabCtx); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to open page: %w", err)
	}
	setupCtx, stop := context.WithCancel(tabCtx)
	defer stop()
	stopOnDone := context.AfterFunc(ctx, stop)
	defer stopOnDone()

	if err := chromedp.Run(setupCtx, actions); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to prepare page: %w", err)
	}

	m.pages.Add(1)
	p.done = m.pages.Done
	p.logger.Debug("Page ready.", zap.Bool("intercepting", p.intercepting))
	return p, nil
}

func (p *Page) ID() string { return p.id }

// Context returns the chromedp context of the tab for use with chromedp.Run.
func (p *Page) Context() context.Context { return p.ctx }

func (p *Page) Console() *ConsoleMonitor { return p.console }

// Intercepting reports whether requests of this page are being paused.
func (p *Page) Intercepting() bool { return p.intercepting }

// Navigate loads url, bounded by the configured navigation timeout.
func (p *Page) Navigate(url string) error {
	return p.Run(chromedp.Navigate(url))
}

// Run executes actions in the tab, bounded by the navigation timeout.
func (p *Page) Run(actions ...chromedp.Action) error {
	ctx := p.ctx
	if p.cfg.NavigationTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(p.ctx, p.cfg.NavigationTimeout)
		defer cancel()
	}
	return chromedp.Run(ctx, actions...)
}

// RunFor is Run with an explicit timeout.
func (p *Page) RunFor(timeout time.Duration, actions ...chromedp.Action) error {
	ctx, cancel := context.WithTimeout(p.ctx, timeout)
	defer cancel()
	return chromedp.Run(ctx, actions...)
}

// Close closes the tab. It is safe to call more than once.
func (p *Page) Close() error {
	p.closeOnce.Do(func() {
		p.cancel()
		if p.done != nil {
			p.done()
		}
	})
	return nil
}
