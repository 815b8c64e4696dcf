// File: pkg/intercept/router.go
package intercept

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

const missingInterceptorMsg = "Failed to find interceptor for internal request. Please provide an interceptor for this request."

// Stats counts router outcomes since the last reset.
type Stats struct {
	Observed   int64 `json:"observed"`
	Internal   int64 `json:"internal"`
	External   int64 `json:"external"`
	Overridden int64 `json:"overridden"`
	Resolved   int64 `json:"resolved"`
	Fallback   int64 `json:"fallback"`
	Failed     int64 `json:"failed"`
}

type counters struct {
	observed, internal, external, overridden, resolved, fallback, failed atomic.Int64
}

func (c *counters) snapshot() Stats {
	return Stats{
		Observed:   c.observed.Load(),
		Internal:   c.internal.Load(),
		External:   c.external.Load(),
		Overridden: c.overridden.Load(),
		Resolved:   c.resolved.Load(),
		Fallback:   c.fallback.Load(),
		Failed:     c.failed.Load(),
	}
}

func (c *counters) reset() {
	for _, n := range []*atomic.Int64{&c.observed, &c.internal, &c.external, &c.overridden, &c.resolved, &c.fallback, &c.failed} {
		n.Store(0)
	}
}

// Router logs every request, classifies it against the server host and
// answers it exactly once.
type Router struct {
	host     string
	registry *Registry
	log      *RequestLog
	settings settings
	logger   *zap.Logger

	// mu is held for reading while a request is recorded and classified or
	// its outcome is counted, and for writing by Reset.
	mu       sync.RWMutex
	gen      atomic.Uint64
	inflight *tracker
	stats    counters

	failMu   sync.Mutex
	failures []error
}

// NewRouter wires a router over an existing registry and log.
func NewRouter(serverHost string, registry *Registry, log *RequestLog, opts ...Option) *Router {
	s := defaultSettings()
	for _, opt := range opts {
		opt(&s)
	}
	if registry == nil {
		registry = NewRegistry()
	}
	if log == nil {
		log = NewRequestLog()
	}
	return &Router{
		host:     serverHost,
		registry: registry,
		log:      log,
		settings: s,
		logger:   s.logger.Named("intercept.router"),
		inflight: newTracker(),
	}
}

// tracker counts requests that have not been answered yet. idle is closed
// whenever the count is zero.
type tracker struct {
	mu   sync.Mutex
	n    int
	idle chan struct{}
}

func newTracker() *tracker {
	t := &tracker{idle: make(chan struct{})}
	close(t.idle)
	return t
}

func (t *tracker) add() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.n == 0 {
		t.idle = make(chan struct{})
	}
	t.n++
}

func (t *tracker) done() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.n--
	if t.n == 0 {
		close(t.idle)
	}
}

func (t *tracker) idleC() <-chan struct{} {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.idle
}

// Handle records req and answers it in the background. It never blocks on
// the resolver or the driver.
func (r *Router) Handle(ctx context.Context, req Request) {
	r.mu.RLock()
	gen := r.gen.Load()
	entry := r.log.Record(req)
	r.stats.observed.Add(1)
	class := Classify(r.host, entry.URL)
	override, found := Response{}, false
	if class == Internal {
		override, found = r.registry.Lookup(entry.URL)
	}
	r.inflight.add()
	r.mu.RUnlock()

	go func() {
		defer r.inflight.done()
		r.dispatch(ctx, req, gen, entry, class, override, found)
	}()
}

func (r *Router) dispatch(ctx context.Context, req Request, gen uint64, entry InterceptedRequest, class Classification, override Response, found bool) {
	logger := r.logger.With(zap.String("url", entry.URL), zap.String("method", entry.Method))

	if class == External {
		r.count(gen, &r.stats.external)
		r.handleExternal(ctx, req, logger)
		return
	}

	r.count(gen, &r.stats.internal)
	if found {
		r.count(gen, &r.stats.overridden)
		r.respond(ctx, req, override, logger)
		return
	}

	resp, err := r.resolve(ctx, entry.URL)
	switch {
	case err != nil:
		rerr := &ResolveError{URL: entry.URL, Err: err}
		r.recordFailure(gen, rerr)
		logger.Error("Resolver failed for internal request.", zap.Error(err))
		r.respond(ctx, req, Response{
			Status:      500,
			ContentType: "text/plain; charset=utf-8",
			Body:        []byte(rerr.Error()),
		}, logger)
	case resp == nil:
		r.count(gen, &r.stats.fallback)
		logger.Warn(missingInterceptorMsg)
		r.respond(ctx, req, r.settings.fallback.Clone(), logger)
	default:
		r.count(gen, &r.stats.resolved)
		r.respond(ctx, req, *resp, logger)
	}
}

func (r *Router) handleExternal(ctx context.Context, req Request, logger *zap.Logger) {
	err := r.settings.external.HandleExternal(ctx, req)
	if err == nil {
		return
	}
	if errors.Is(err, ErrNotContinuable) || errors.Is(err, ErrNotAbortable) {
		// The driver cannot apply the policy; answer rather than stall the page.
		logger.Debug("External policy unsupported by request, answering with 204.", zap.Error(err))
		r.respond(ctx, req, Response{Status: 204}, logger)
		return
	}
	logger.Warn("Failed to apply external request policy.", zap.Error(err))
}

func (r *Router) resolve(ctx context.Context, url string) (*Response, error) {
	timeout := r.settings.resolveTimeout
	if timeout <= 0 {
		return r.settings.resolver.Resolve(ctx, url)
	}

	rctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		resp *Response
		err  error
	}
	done := make(chan result, 1)
	go func() {
		resp, err := r.settings.resolver.Resolve(rctx, url)
		done <- result{resp, err}
	}()

	select {
	case res := <-done:
		if res.err != nil && ctx.Err() == nil && errors.Is(rctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w after %s: %v", ErrResolveTimeout, timeout, res.err)
		}
		return res.resp, res.err
	case <-rctx.Done():
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w after %s", ErrResolveTimeout, timeout)
	}
}

func (r *Router) respond(ctx context.Context, req Request, resp Response, logger *zap.Logger) {
	if err := req.Respond(ctx, resp); err != nil {
		logger.Warn("Failed to answer intercepted request.", zap.Int("status", resp.StatusCode()), zap.Error(err))
	}
}

func (r *Router) recordFailure(gen uint64, err error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.gen.Load() != gen {
		return
	}
	r.stats.failed.Add(1)
	r.failMu.Lock()
	r.failures = append(r.failures, err)
	r.failMu.Unlock()
}

// count bumps c unless a Reset happened since the request was handled.
func (r *Router) count(gen uint64, c *atomic.Int64) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.gen.Load() == gen {
		c.Add(1)
	}
}

// Err joins every resolver failure since the last reset.
func (r *Router) Err() error {
	r.failMu.Lock()
	defer r.failMu.Unlock()
	return errors.Join(r.failures...)
}

// Wait blocks until every request handled before the call has been answered.
// Requests arriving while it waits may extend the wait but never break it.
func (r *Router) Wait() {
	<-r.inflight.idleC()
}

// WaitTimeout is Wait bounded by d. It reports whether everything settled.
func (r *Router) WaitTimeout(d time.Duration) bool {
	idle := r.inflight.idleC()
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-idle:
		return true
	case <-timer.C:
		return false
	}
}

// Reset clears the request log, the registry, counters and failures in one
// step with respect to Handle. Requests handled before the reset are still
// answered but leave no trace in Stats or Err.
func (r *Router) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	// Requests still in flight finish under the old generation and are no
	// longer counted.
	r.gen.Add(1)
	r.log.Reset()
	r.registry.Clear()
	r.stats.reset()
	r.failMu.Lock()
	r.failures = nil
	r.failMu.Unlock()
	if f, ok := r.settings.resolver.(Forgetter); ok {
		f.Forget()
	}
}

func (r *Router) Stats() Stats { return r.stats.snapshot() }

// Host returns the server host requests are classified against.
func (r *Router) Host() string { return r.host }
