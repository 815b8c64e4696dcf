// File: pkg/suite/options.go
package suite

import (
	"github.com/xkilldash9x/netstub/internal/config"
	"github.com/xkilldash9x/netstub/pkg/intercept"
)

type options struct {
	cfg       config.Interface
	resolver  intercept.Resolver
	intercept []intercept.Option
}

// Option configures a Suite.
type Option func(*options)

func newOptions(opts []Option) options {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithConfig makes Configure use cfg instead of the environment.
func WithConfig(cfg config.Interface) Option {
	return func(o *options) { o.cfg = cfg }
}

// WithResolver registers the resolver for internal requests without an
// injected response. It is asked before any fixtures.
func WithResolver(r intercept.Resolver) Option {
	return func(o *options) { o.resolver = r }
}

// WithInterceptOptions passes options straight to the harness. They are
// applied after the ones derived from configuration.
func WithInterceptOptions(opts ...intercept.Option) Option {
	return func(o *options) { o.intercept = append(o.intercept, opts...) }
}
