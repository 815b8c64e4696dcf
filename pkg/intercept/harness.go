// File: pkg/intercept/harness.go
package intercept

import (
	"context"
	"strings"
	"time"
)

// Harness is the test-facing surface over a Router, its Registry and its
// RequestLog.
type Harness struct {
	router   *Router
	registry *Registry
	log      *RequestLog
}

// New builds a harness whose internal requests are those matching serverHost,
// typically "http://HOST:PORT".
func New(serverHost string, opts ...Option) *Harness {
	registry := NewRegistry()
	log := NewRequestLog()
	return &Harness{
		router:   NewRouter(serverHost, registry, log, opts...),
		registry: registry,
		log:      log,
	}
}

// Handle implements Handler.
func (h *Harness) Handle(ctx context.Context, req Request) {
	h.router.Handle(ctx, req)
}

// URL joins path onto the server host.
func (h *Harness) URL(path string) string {
	return strings.TrimSuffix(h.router.Host(), "/") + "/" + strings.TrimPrefix(path, "/")
}

// Inject overrides the response for the exact url until the next Reset.
func (h *Harness) Inject(url string, resp Response) {
	h.registry.Inject(url, resp)
}

// InjectJSON overrides url with a 200 application/json response carrying body.
func (h *Harness) InjectJSON(url string, body []byte) {
	h.registry.Inject(url, Response{Status: 200, ContentType: "application/json", Body: body})
}

// Requests returns a snapshot of the request log.
func (h *Harness) Requests() []InterceptedRequest {
	return h.log.All()
}

// LastRequestBody returns the JSON-decoded payload of the most recent request,
// or nil when it had none.
func (h *Harness) LastRequestBody() (interface{}, error) {
	return h.log.LastBody()
}

// DecodeLastRequestBody decodes the most recent payload into v.
func (h *Harness) DecodeLastRequestBody(v interface{}) (bool, error) {
	return h.log.DecodeLastBody(v)
}

// WaitForURL waits up to timeout for url to be requested. A zero timeout
// uses the harness wait timeout.
func (h *Harness) WaitForURL(ctx context.Context, url string, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = h.router.settings.waitTimeout
	}
	return h.log.WaitForURL(ctx, url, timeout, h.router.settings.pollInterval)
}

// ExpectURLCalled waits for url with the harness wait timeout.
func (h *Harness) ExpectURLCalled(ctx context.Context, url string) error {
	return h.WaitForURL(ctx, url, 0)
}

// Reset clears the log, every injected override and recorded failures.
func (h *Harness) Reset() {
	h.router.Reset()
}

func (h *Harness) Err() error          { return h.router.Err() }
func (h *Harness) Stats() Stats        { return h.router.Stats() }
func (h *Harness) Wait()               { h.router.Wait() }
func (h *Harness) Host() string        { return h.router.Host() }
func (h *Harness) Log() *RequestLog    { return h.log }
func (h *Harness) Registry() *Registry { return h.registry }

// WaitTimeout reports whether every handled request was answered within d.
func (h *Harness) WaitTimeout(d time.Duration) bool { return h.router.WaitTimeout(d) }
