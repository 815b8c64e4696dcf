// pkg/browser/console.go
package browser

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/runtime"
	json "github.com/json-iterator/go"
	"go.uber.org/zap"
)

// ConsoleMessage is one console API call made by the page.
type ConsoleMessage struct {
	Type      string    `json:"type"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// String renders the message as "[type] text".
func (m ConsoleMessage) String() string {
	return fmt.Sprintf("[%s] %s", m.Type, m.Text)
}

// ConsoleErrorsError is returned by ConsoleMonitor.Check when the page logged errors.
type ConsoleErrorsError struct {
	Messages []ConsoleMessage
}

func (e *ConsoleErrorsError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Found %d errors in the console", len(e.Messages))
	for _, m := range e.Messages {
		b.WriteString("\n  ")
		b.WriteString(m.String())
	}
	return b.String()
}

// ConsoleMonitor collects console errors of a page between resets. When echo
// is on, console.log output is forwarded to the logger.
type ConsoleMonitor struct {
	logger *zap.Logger
	echo   bool

	mu     sync.Mutex
	errors []ConsoleMessage
	total  int
}

func NewConsoleMonitor(logger *zap.Logger, echo bool) *ConsoleMonitor {
	return &ConsoleMonitor{logger: logger.Named("console"), echo: echo}
}

// Observe consumes a Runtime.consoleAPICalled event.
func (c *ConsoleMonitor) Observe(ev *runtime.EventConsoleAPICalled) {
	if ev == nil {
		return
	}
	ts := time.Now()
	if ev.Timestamp != nil {
		ts = ev.Timestamp.Time()
	}
	c.Record(ConsoleMessage{Type: string(ev.Type), Text: formatArgs(ev.Args), Timestamp: ts})
}

// Record adds msg as if the page had logged it.
func (c *ConsoleMonitor) Record(msg ConsoleMessage) {
	switch msg.Type {
	case string(runtime.APITypeError):
		c.mu.Lock()
		c.errors = append(c.errors, msg)
		c.total++
		c.mu.Unlock()
		c.logger.Error(msg.String())
	case string(runtime.APITypeLog):
		if c.echo {
			c.logger.Info("[browser log] " + msg.Text)
		}
	}
}

// Errors returns the error messages seen since the last Reset.
func (c *ConsoleMonitor) Errors() []ConsoleMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]ConsoleMessage(nil), c.errors...)
}

// Total counts every error seen over the monitor's lifetime.
func (c *ConsoleMonitor) Total() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.total
}

func (c *ConsoleMonitor) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errors = nil
}

// Check fails with a *ConsoleErrorsError when errors were logged since the last Reset.
func (c *ConsoleMonitor) Check() error {
	errs := c.Errors()
	if len(errs) == 0 {
		return nil
	}
	return &ConsoleErrorsError{Messages: errs}
}

// formatArgs renders console arguments roughly the way DevTools prints them.
func formatArgs(args []*runtime.RemoteObject) string {
	parts := make([]string, 0, len(args))
	for _, arg := range args {
		if arg == nil {
			continue
		}
		var val interface{}
		switch {
		case len(arg.Value) > 0 && json.Unmarshal(arg.Value, &val) == nil:
			if s, ok := val.(string); ok {
				parts = append(parts, s)
			} else {
				parts = append(parts, fmt.Sprintf("%v", val))
			}
		case arg.Description != "":
			parts = append(parts, arg.Description)
		default:
			parts = append(parts, fmt.Sprintf("[%s]", arg.Type))
		}
	}
	return strings.Join(parts, " ")
}
