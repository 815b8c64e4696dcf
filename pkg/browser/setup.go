// pkg/browser/setup.go
package browser

import (
	"context"
	"fmt"
	"strconv"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"

	"github.com/xkilldash9x/netstub/internal/config"
)

// localeScript pins navigator.language to %s in every new document.
const localeScript = `Object.defineProperty(navigator, 'language', {
  get: function () {
    return %s
  }
})`

// PageSetup returns the actions that give every test page the same
// environment: fixed device metrics and a fixed navigator.language.
func PageSetup(cfg config.BrowserConfig) chromedp.Tasks {
	tasks := chromedp.Tasks{
		emulation.SetDeviceMetricsOverride(cfg.Viewport.Width, cfg.Viewport.Height, cfg.Viewport.Scale, false),
	}
	if cfg.Locale != "" {
		tasks = append(tasks, chromedp.ActionFunc(func(ctx context.Context) error {
			if _, err := page.AddScriptToEvaluateOnNewDocument(LocaleScript(cfg.Locale)).Do(ctx); err != nil {
				return fmt.Errorf("failed to install locale script: %w", err)
			}
			return nil
		}))
	}
	return tasks
}

// LocaleScript renders the navigator.language override for locale.
func LocaleScript(locale string) string {
	return fmt.Sprintf(localeScript, strconv.Quote(locale))
}
