// File: pkg/intercept/helpers_test.go
package intercept

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

const testHost = "http://localhost:3000"

// fakeRequest records how it was answered. It implements neither Continuer
// nor Aborter.
type fakeRequest struct {
	url     string
	method  string
	body    []byte
	hasBody bool

	respondErr error

	mu        sync.Mutex
	responses []Response
	continued int
	aborted   int
	answered  chan struct{}
	once      sync.Once
}

func newFakeRequest(url string) *fakeRequest {
	return &fakeRequest{url: url, method: "GET", answered: make(chan struct{})}
}

func newPostRequest(url, body string) *fakeRequest {
	r := newFakeRequest(url)
	r.method = "POST"
	r.body = []byte(body)
	r.hasBody = true
	return r
}

func (r *fakeRequest) URL() string          { return r.url }
func (r *fakeRequest) Method() string       { return r.method }
func (r *fakeRequest) Body() ([]byte, bool) { return r.body, r.hasBody }

func (r *fakeRequest) Respond(_ context.Context, resp Response) error {
	r.mu.Lock()
	r.responses = append(r.responses, resp)
	r.mu.Unlock()
	r.markAnswered()
	return r.respondErr
}

func (r *fakeRequest) markAnswered() {
	r.once.Do(func() { close(r.answered) })
}

// wait blocks until the request has been answered in any way.
func (r *fakeRequest) wait(t *testing.T) {
	t.Helper()
	select {
	case <-r.answered:
	case <-time.After(2 * time.Second):
		t.Fatalf("request %s was never answered", r.url)
	}
}

// outcome returns the single answer given to the request.
func (r *fakeRequest) outcome(t *testing.T) (responses []Response, continued, aborted int) {
	t.Helper()
	r.wait(t)
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Response(nil), r.responses...), r.continued, r.aborted
}

func (r *fakeRequest) response(t *testing.T) Response {
	t.Helper()
	responses, continued, aborted := r.outcome(t)
	require.Len(t, responses, 1, "request must be answered exactly once")
	require.Zero(t, continued)
	require.Zero(t, aborted)
	return responses[0]
}

// driverRequest supports every answering mode.
type driverRequest struct {
	*fakeRequest
}

func newDriverRequest(url string) *driverRequest {
	return &driverRequest{fakeRequest: newFakeRequest(url)}
}

func (r *driverRequest) Continue(context.Context) error {
	r.mu.Lock()
	r.continued++
	r.mu.Unlock()
	r.markAnswered()
	return nil
}

func (r *driverRequest) Abort(context.Context) error {
	r.mu.Lock()
	r.aborted++
	r.mu.Unlock()
	r.markAnswered()
	return nil
}

// observedLogger returns a logger whose entries can be asserted on.
func observedLogger() (*zap.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zap.DebugLevel)
	return zap.New(core), logs
}

// failingResolver fails the test if it is ever consulted.
func failingResolver(t *testing.T) Resolver {
	return ResolverFunc(func(_ context.Context, url string) (*Response, error) {
		t.Errorf("resolver must not be called for %s", url)
		return nil, nil
	})
}
