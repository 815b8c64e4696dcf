// File: pkg/intercept/policy.go
package intercept

import (
	"context"
	"fmt"
)

// ExternalPolicy answers requests that leave the server under test.
type ExternalPolicy interface {
	HandleExternal(ctx context.Context, req Request) error
}

// ExternalPolicyFunc adapts a function to ExternalPolicy.
type ExternalPolicyFunc func(ctx context.Context, req Request) error

func (f ExternalPolicyFunc) HandleExternal(ctx context.Context, req Request) error {
	return f(ctx, req)
}

// Names accepted by PolicyByName.
const (
	PolicyNoContent   = "no_content"
	PolicyPassthrough = "passthrough"
	PolicyBlock       = "block"
)

// NoContent answers every external request with an empty 204.
func NoContent() ExternalPolicy {
	return ExternalPolicyFunc(func(ctx context.Context, req Request) error {
		return req.Respond(ctx, Response{Status: 204})
	})
}

// Passthrough lets external requests reach the network.
func Passthrough() ExternalPolicy {
	return ExternalPolicyFunc(func(ctx context.Context, req Request) error {
		c, ok := req.(Continuer)
		if !ok {
			return ErrNotContinuable
		}
		return c.Continue(ctx)
	})
}

// Block fails external requests as if the client refused them.
func Block() ExternalPolicy {
	return ExternalPolicyFunc(func(ctx context.Context, req Request) error {
		a, ok := req.(Aborter)
		if !ok {
			return ErrNotAbortable
		}
		return a.Abort(ctx)
	})
}

// PolicyByName maps a configuration value to a policy. The empty string
// selects NoContent.
func PolicyByName(name string) (ExternalPolicy, error) {
	switch name {
	case "", PolicyNoContent:
		return NoContent(), nil
	case PolicyPassthrough:
		return Passthrough(), nil
	case PolicyBlock:
		return Block(), nil
	default:
		return nil, fmt.Errorf("unknown external policy %q", name)
	}
}
