// File: pkg/intercept/resolver.go
package intercept

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Resolver supplies dynamic responses for internal requests that have no
// injected override. Returning (nil, nil) declines the request, which then
// receives the 404 fallback. A non-nil error is treated as a harness failure.
type Resolver interface {
	Resolve(ctx context.Context, url string) (*Response, error)
}

// ResolverFunc adapts an ordinary function to Resolver.
type ResolverFunc func(ctx context.Context, url string) (*Response, error)

func (f ResolverFunc) Resolve(ctx context.Context, url string) (*Response, error) {
	return f(ctx, url)
}

// NopResolver declines every request.
var NopResolver Resolver = ResolverFunc(func(context.Context, string) (*Response, error) {
	return nil, nil
})

// Chain returns a Resolver that asks each resolver in turn and returns the
// first response. An error stops the chain.
func Chain(resolvers ...Resolver) Resolver {
	return ResolverFunc(func(ctx context.Context, url string) (*Response, error) {
		for _, r := range resolvers {
			if r == nil {
				continue
			}
			resp, err := r.Resolve(ctx, url)
			if err != nil || resp != nil {
				return resp, err
			}
		}
		return nil, nil
	})
}

// Forgetter is implemented by resolvers holding per-test state. The harness
// calls Forget on reset.
type Forgetter interface {
	Forget()
}

// CachingResolver memoizes the responses of another resolver per URL and
// collapses concurrent lookups of the same URL into one call. Declines and
// errors are not cached.
type CachingResolver struct {
	next  Resolver
	group singleflight.Group

	mu    sync.RWMutex
	cache map[string]Response
}

func NewCachingResolver(next Resolver) *CachingResolver {
	if next == nil {
		next = NopResolver
	}
	return &CachingResolver{next: next, cache: make(map[string]Response)}
}

func (c *CachingResolver) Resolve(ctx context.Context, url string) (*Response, error) {
	c.mu.RLock()
	cached, ok := c.cache[url]
	c.mu.RUnlock()
	if ok {
		resp := cached.Clone()
		return &resp, nil
	}

	v, err, _ := c.group.Do(url, func() (interface{}, error) {
		c.mu.RLock()
		cached, ok := c.cache[url]
		c.mu.RUnlock()
		if ok {
			return cached, nil
		}
		resp, err := c.next.Resolve(ctx, url)
		if err != nil || resp == nil {
			return nil, err
		}
		c.mu.Lock()
		c.cache[url] = resp.Clone()
		c.mu.Unlock()
		return *resp, nil
	})
	if err != nil || v == nil {
		return nil, err
	}
	resp := v.(Response).Clone()
	return &resp, nil
}

// Forget drops every memoized response.
func (c *CachingResolver) Forget() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache = make(map[string]Response)
}
