// File: pkg/intercept/errors.go
package intercept

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrWaitTimeout matches every *WaitTimeoutError via errors.Is.
	ErrWaitTimeout = errors.New("intercept: wait for url timed out")
	// ErrNotContinuable is returned by the passthrough policy for requests
	// that do not implement Continuer.
	ErrNotContinuable = errors.New("intercept: request cannot be continued")
	// ErrNotAbortable is returned by the block policy for requests that do
	// not implement Aborter.
	ErrNotAbortable = errors.New("intercept: request cannot be aborted")
	// ErrResolveTimeout is the cause recorded when a resolver exceeds the
	// configured resolve timeout.
	ErrResolveTimeout = errors.New("intercept: resolver timed out")
)

// WaitTimeoutError reports that a URL was not observed before the deadline.
type WaitTimeoutError struct {
	URL     string
	Timeout time.Duration
}

func (e *WaitTimeoutError) Error() string {
	return fmt.Sprintf("url %s was not called within the timeout of %dms", e.URL, e.Timeout.Milliseconds())
}

// Is lets errors.Is(err, ErrWaitTimeout) succeed.
func (e *WaitTimeoutError) Is(target error) bool {
	return target == ErrWaitTimeout
}

// BodyError reports a captured request body that is not valid JSON.
type BodyError struct {
	URL string
	Err error
}

func (e *BodyError) Error() string {
	return fmt.Sprintf("request body of %s is not valid JSON: %v", e.URL, e.Err)
}

func (e *BodyError) Unwrap() error { return e.Err }

// ResolveError reports a resolver failure for an internal request.
type ResolveError struct {
	URL string
	Err error
}

func (e *ResolveError) Error() string {
	return fmt.Sprintf("resolver failed for %s: %v", e.URL, e.Err)
}

func (e *ResolveError) Unwrap() error { return e.Err }
