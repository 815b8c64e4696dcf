// File: pkg/intercept/options.go
package intercept

import (
	"time"

	"go.uber.org/zap"
)

type settings struct {
	resolver       Resolver
	external       ExternalPolicy
	fallback       Response
	resolveTimeout time.Duration
	waitTimeout    time.Duration
	pollInterval   time.Duration
	logger         *zap.Logger
}

func defaultSettings() settings {
	return settings{
		resolver:     NopResolver,
		external:     NoContent(),
		fallback:     Response{Status: 404},
		waitTimeout:  DefaultWaitTimeout,
		pollInterval: DefaultPollInterval,
		logger:       zap.NewNop(),
	}
}

// Option configures a Router or Harness.
type Option func(*settings)

// WithResolver sets the resolver consulted for internal requests with no
// injected override. A nil resolver restores NopResolver.
func WithResolver(r Resolver) Option {
	return func(s *settings) {
		if r == nil {
			r = NopResolver
		}
		s.resolver = r
	}
}

// WithExternalPolicy replaces the default NoContent policy.
func WithExternalPolicy(p ExternalPolicy) Option {
	return func(s *settings) {
		if p != nil {
			s.external = p
		}
	}
}

// WithFallback sets the response sent when no override or resolver matches.
func WithFallback(resp Response) Option {
	return func(s *settings) { s.fallback = resp.Clone() }
}

// WithResolveTimeout bounds each resolver call. Zero disables the bound.
func WithResolveTimeout(d time.Duration) Option {
	return func(s *settings) {
		if d >= 0 {
			s.resolveTimeout = d
		}
	}
}

// WithWaitTimeout sets the timeout ExpectURLCalled uses.
func WithWaitTimeout(d time.Duration) Option {
	return func(s *settings) {
		if d > 0 {
			s.waitTimeout = d
		}
	}
}

// WithPollInterval sets how often waits re-check the request log.
func WithPollInterval(d time.Duration) Option {
	return func(s *settings) {
		if d > 0 {
			s.pollInterval = d
		}
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(s *settings) {
		if l != nil {
			s.logger = l
		}
	}
}
