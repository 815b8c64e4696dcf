// File: pkg/intercept/request.go

// Package intercept decides, for every network request a browser under test
// makes, whether it is served from an injected override, from a resolver, from
// a 404 fallback, or handed to an external policy. It records each request so
// tests can assert on what the page sent.
package intercept

import (
	"context"
	"time"
)

// Request is a single paused browser request. Implementations are supplied by
// the browser driver adapter. Respond must be called at most once.
type Request interface {
	URL() string
	Method() string
	// Body returns the request payload and whether one was sent.
	Body() ([]byte, bool)
	Respond(ctx context.Context, resp Response) error
}

// Continuer is implemented by requests that can be released to the real network.
type Continuer interface {
	Continue(ctx context.Context) error
}

// Aborter is implemented by requests that can be failed outright.
type Aborter interface {
	Abort(ctx context.Context) error
}

// Handler consumes paused requests. Harness and Router satisfy it.
type Handler interface {
	Handle(ctx context.Context, req Request)
}

// Response is a synthesized HTTP response. A zero Status is sent as 200.
type Response struct {
	Status      int               `json:"status" yaml:"status"`
	Headers     map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
	ContentType string            `json:"content_type,omitempty" yaml:"content_type,omitempty"`
	Body        []byte            `json:"body,omitempty" yaml:"body,omitempty"`
}

// StatusCode returns the status to put on the wire.
func (r Response) StatusCode() int {
	if r.Status == 0 {
		return 200
	}
	return r.Status
}

// Clone returns a deep copy so stored overrides cannot be mutated by callers.
func (r Response) Clone() Response {
	out := r
	if r.Headers != nil {
		out.Headers = make(map[string]string, len(r.Headers))
		for k, v := range r.Headers {
			out.Headers[k] = v
		}
	}
	if r.Body != nil {
		out.Body = append([]byte(nil), r.Body...)
	}
	return out
}

// InterceptedRequest is the immutable log record of one observed request.
type InterceptedRequest struct {
	ID         string    `json:"id"`
	Seq        uint64    `json:"seq"`
	URL        string    `json:"url"`
	Method     string    `json:"method"`
	Body       []byte    `json:"-"`
	HasBody    bool      `json:"has_body"`
	ObservedAt time.Time `json:"observed_at"`
}

// BodyString returns the payload as text, or "" when there is none.
func (r InterceptedRequest) BodyString() string {
	return string(r.Body)
}
