// File: pkg/intercept/log.go
package intercept

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	json "github.com/json-iterator/go"
)

const (
	// DefaultWaitTimeout bounds WaitForURL when no timeout is given.
	DefaultWaitTimeout = 3 * time.Second
	// DefaultPollInterval is how often WaitForURL re-checks the log.
	DefaultPollInterval = 20 * time.Millisecond
)

// RequestLog is the ordered, append-only record of intercepted requests.
type RequestLog struct {
	mu      sync.RWMutex
	entries []InterceptedRequest
	seq     uint64
	now     func() time.Time
}

func NewRequestLog() *RequestLog {
	return &RequestLog{now: time.Now}
}

// Record appends req and returns its log entry. The body is copied.
func (l *RequestLog) Record(req Request) InterceptedRequest {
	body, hasBody := req.Body()
	if hasBody {
		body = append([]byte(nil), body...)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.seq++
	entry := InterceptedRequest{
		ID:         uuid.NewString(),
		Seq:        l.seq,
		URL:        req.URL(),
		Method:     req.Method(),
		Body:       body,
		HasBody:    hasBody,
		ObservedAt: l.now(),
	}
	l.entries = append(l.entries, entry)
	return entry
}

// All returns a snapshot of every entry in arrival order.
func (l *RequestLog) All() []InterceptedRequest {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]InterceptedRequest, len(l.entries))
	copy(out, l.entries)
	return out
}

func (l *RequestLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// Last returns the most recently recorded entry.
func (l *RequestLog) Last() (InterceptedRequest, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if len(l.entries) == 0 {
		return InterceptedRequest{}, false
	}
	return l.entries[len(l.entries)-1], true
}

// URLs returns the URL of every entry in arrival order.
func (l *RequestLog) URLs() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	urls := make([]string, len(l.entries))
	for i, e := range l.entries {
		urls[i] = e.URL
	}
	return urls
}

// Count reports how many times url was observed.
func (l *RequestLog) Count(url string) int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	n := 0
	for _, e := range l.entries {
		if e.URL == url {
			n++
		}
	}
	return n
}

func (l *RequestLog) Contains(url string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, e := range l.entries {
		if e.URL == url {
			return true
		}
	}
	return false
}

// LastBody parses the payload of the most recent request as JSON. It returns
// (nil, nil) when the log is empty or the last request carried no body.
func (l *RequestLog) LastBody() (interface{}, error) {
	var v interface{}
	if _, err := l.DecodeLastBody(&v); err != nil {
		return nil, err
	}
	return v, nil
}

// DecodeLastBody unmarshals the payload of the most recent request into v.
// found is false when there was nothing to decode.
func (l *RequestLog) DecodeLastBody(v interface{}) (found bool, err error) {
	last, ok := l.Last()
	if !ok || !last.HasBody || len(last.Body) == 0 {
		return false, nil
	}
	if err := json.ConfigCompatibleWithStandardLibrary.Unmarshal(last.Body, v); err != nil {
		return false, &BodyError{URL: last.URL, Err: err}
	}
	return true, nil
}

// WaitForURL blocks until url appears in the log, timeout elapses, or ctx is
// done. Zero values for timeout and interval select the package defaults.
// On timeout the error is a *WaitTimeoutError.
func (l *RequestLog) WaitForURL(ctx context.Context, url string, timeout, interval time.Duration) error {
	if timeout <= 0 {
		timeout = DefaultWaitTimeout
	}
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if l.Contains(url) {
		return nil
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			if l.Contains(url) {
				return nil
			}
			return &WaitTimeoutError{URL: url, Timeout: timeout}
		case <-ticker.C:
			if l.Contains(url) {
				return nil
			}
		}
	}
}

// Reset discards every entry and restarts sequence numbering.
func (l *RequestLog) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = nil
	l.seq = 0
}
