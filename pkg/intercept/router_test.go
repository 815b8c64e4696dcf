// File: pkg/intercept/router_test.go
package intercept

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

func TestRouter_ServesInjectedOverride(t *testing.T) {
	h := New(testHost, WithLogger(zaptest.NewLogger(t)), WithResolver(failingResolver(t)))
	h.Inject(testHost+"/ping", Response{Status: 200, Body: []byte("pong")})

	req := newFakeRequest(testHost + "/ping")
	h.Handle(context.Background(), req)

	resp := req.response(t)
	assert.Equal(t, 200, resp.StatusCode())
	assert.Equal(t, "pong", string(resp.Body))

	requests := h.Requests()
	require.Len(t, requests, 1)
	assert.Equal(t, testHost+"/ping", requests[0].URL)
	assert.Equal(t, int64(1), h.Stats().Overridden)
}

func TestRouter_UnmatchedInternalRequestFallsBackTo404(t *testing.T) {
	logger, logs := observedLogger()
	h := New(testHost, WithLogger(logger))

	req := newFakeRequest(testHost + "/missing")
	h.Handle(context.Background(), req)

	assert.Equal(t, 404, req.response(t).StatusCode())
	h.Wait()

	warnings := logs.FilterLevelExact(zap.WarnLevel).FilterMessage(missingInterceptorMsg).All()
	require.Len(t, warnings, 1)
	assert.Equal(t, testHost+"/missing", warnings[0].ContextMap()["url"])
	assert.NoError(t, h.Err())
	assert.Equal(t, int64(1), h.Stats().Fallback)
}

func TestRouter_ExternalRequestGetsNoContent(t *testing.T) {
	h := New(testHost, WithLogger(zaptest.NewLogger(t)), WithResolver(failingResolver(t)))
	// An override for the external URL must be ignored.
	h.Inject("https://thirdparty.example/track", Response{Status: 200, Body: []byte("nope")})

	req := newFakeRequest("https://thirdparty.example/track")
	h.Handle(context.Background(), req)

	resp := req.response(t)
	assert.Equal(t, 204, resp.StatusCode())
	assert.Empty(t, resp.Body)
	assert.Len(t, h.Requests(), 1)

	stats := h.Stats()
	assert.Equal(t, int64(1), stats.External)
	assert.Zero(t, stats.Internal)
}

func TestRouter_OverrideWinsOverResolver(t *testing.T) {
	var calls atomic.Int32
	resolver := ResolverFunc(func(context.Context, string) (*Response, error) {
		calls.Add(1)
		return &Response{Status: 200, Body: []byte("resolved")}, nil
	})
	h := New(testHost, WithLogger(zaptest.NewLogger(t)), WithResolver(resolver))
	h.Inject(h.URL("/thing"), Response{Status: 201, Body: []byte("injected")})

	overridden := newFakeRequest(h.URL("/thing"))
	h.Handle(context.Background(), overridden)
	resolved := newFakeRequest(h.URL("/other"))
	h.Handle(context.Background(), resolved)

	assert.Equal(t, "injected", string(overridden.response(t).Body))
	assert.Equal(t, "resolved", string(resolved.response(t).Body))
	assert.Equal(t, int32(1), calls.Load())
}

func TestRouter_LastInjectionWins(t *testing.T) {
	h := New(testHost, WithLogger(zaptest.NewLogger(t)))
	h.Inject(h.URL("/v"), Response{Body: []byte("one")})
	h.Inject(h.URL("/v"), Response{Body: []byte("two")})

	req := newFakeRequest(h.URL("/v"))
	h.Handle(context.Background(), req)
	assert.Equal(t, "two", string(req.response(t).Body))
}

func TestRouter_ResolverErrorIsSurfaced(t *testing.T) {
	logger, logs := observedLogger()
	boom := errors.New("backend exploded")
	h := New(testHost, WithLogger(logger), WithResolver(ResolverFunc(func(context.Context, string) (*Response, error) {
		return nil, boom
	})))

	req := newFakeRequest(h.URL("/api/data"))
	h.Handle(context.Background(), req)

	resp := req.response(t)
	assert.Equal(t, 500, resp.StatusCode())
	assert.Contains(t, string(resp.Body), "backend exploded")
	h.Wait()

	err := h.Err()
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	var rerr *ResolveError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, h.URL("/api/data"), rerr.URL)
	assert.Equal(t, 1, logs.FilterLevelExact(zap.ErrorLevel).Len())
	assert.Equal(t, int64(1), h.Stats().Failed)
}

func TestRouter_ResolveTimeout(t *testing.T) {
	h := New(testHost,
		WithLogger(zaptest.NewLogger(t)),
		WithResolveTimeout(30*time.Millisecond),
		WithResolver(ResolverFunc(func(ctx context.Context, _ string) (*Response, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		})),
	)

	req := newFakeRequest(h.URL("/slow"))
	h.Handle(context.Background(), req)

	assert.Equal(t, 500, req.response(t).StatusCode())
	h.Wait()
	assert.ErrorIs(t, h.Err(), ErrResolveTimeout)
}

func TestRouter_ResolverDeclines(t *testing.T) {
	h := New(testHost, WithLogger(zaptest.NewLogger(t)), WithFallback(Response{Status: 410}))
	req := newFakeRequest(h.URL("/gone"))
	h.Handle(context.Background(), req)
	assert.Equal(t, 410, req.response(t).StatusCode())
}

func TestRouter_ExternalPolicies(t *testing.T) {
	t.Run("passthrough continues", func(t *testing.T) {
		h := New(testHost, WithLogger(zaptest.NewLogger(t)), WithExternalPolicy(Passthrough()))
		req := newDriverRequest("https://cdn.example/lib.js")
		h.Handle(context.Background(), req)

		responses, continued, aborted := req.outcome(t)
		assert.Empty(t, responses)
		assert.Equal(t, 1, continued)
		assert.Zero(t, aborted)
	})

	t.Run("block aborts", func(t *testing.T) {
		h := New(testHost, WithLogger(zaptest.NewLogger(t)), WithExternalPolicy(Block()))
		req := newDriverRequest("https://ads.example/pixel")
		h.Handle(context.Background(), req)

		responses, continued, aborted := req.outcome(t)
		assert.Empty(t, responses)
		assert.Zero(t, continued)
		assert.Equal(t, 1, aborted)
	})

	t.Run("unsupported passthrough still answers", func(t *testing.T) {
		h := New(testHost, WithLogger(zaptest.NewLogger(t)), WithExternalPolicy(Passthrough()))
		req := newFakeRequest("https://cdn.example/lib.js")
		h.Handle(context.Background(), req)
		assert.Equal(t, 204, req.response(t).StatusCode())
	})

	t.Run("internal requests never reach the policy", func(t *testing.T) {
		policy := ExternalPolicyFunc(func(_ context.Context, req Request) error {
			t.Errorf("external policy called for %s", req.URL())
			return nil
		})
		h := New(testHost, WithLogger(zaptest.NewLogger(t)), WithExternalPolicy(policy))
		req := newFakeRequest(h.URL("/internal"))
		h.Handle(context.Background(), req)
		assert.Equal(t, 404, req.response(t).StatusCode())
	})
}

func TestRouter_DriverFailureIsNotAResolverFailure(t *testing.T) {
	logger, logs := observedLogger()
	h := New(testHost, WithLogger(logger))
	h.Inject(h.URL("/ping"), Response{Body: []byte("pong")})

	req := newFakeRequest(h.URL("/ping"))
	req.respondErr = errors.New("target closed")
	h.Handle(context.Background(), req)
	req.wait(t)
	h.Wait()

	assert.NoError(t, h.Err())
	assert.Equal(t, 1, logs.FilterMessage("Failed to answer intercepted request.").Len())
}

func TestRouter_ConcurrentRequestsAnsweredOnce(t *testing.T) {
	h := New(testHost, WithLogger(zaptest.NewLogger(t)), WithResolver(ResolverFunc(func(_ context.Context, url string) (*Response, error) {
		return &Response{Body: []byte(url)}, nil
	})))

	const n = 50
	reqs := make([]*fakeRequest, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		reqs[i] = newFakeRequest(h.URL(fmt.Sprintf("/item/%d", i)))
		wg.Add(1)
		go func(r *fakeRequest) {
			defer wg.Done()
			h.Handle(context.Background(), r)
		}(reqs[i])
	}
	wg.Wait()
	h.Wait()

	for _, r := range reqs {
		assert.Equal(t, r.url, string(r.response(t).Body))
	}

	requests := h.Requests()
	require.Len(t, requests, n)
	for i, rec := range requests {
		assert.Equal(t, uint64(i+1), rec.Seq)
	}
}

func TestRouter_ResetClearsState(t *testing.T) {
	h := New(testHost, WithLogger(zaptest.NewLogger(t)), WithResolver(ResolverFunc(func(context.Context, string) (*Response, error) {
		return nil, errors.New("fail")
	})))
	h.Inject(h.URL("/ping"), Response{Body: []byte("pong")})

	req := newFakeRequest(h.URL("/broken"))
	h.Handle(context.Background(), req)
	req.wait(t)
	h.Wait()
	require.Error(t, h.Err())

	h.Reset()

	assert.Empty(t, h.Requests())
	assert.Zero(t, h.Registry().Len())
	assert.NoError(t, h.Err())
	assert.Equal(t, Stats{}, h.Stats())

	// The override is gone, so the same URL now reaches the resolver.
	again := newFakeRequest(h.URL("/ping"))
	h.Handle(context.Background(), again)
	assert.Equal(t, 500, again.response(t).StatusCode())
	h.Wait()
}

func TestRouter_ResetForgetsCachingResolver(t *testing.T) {
	var calls atomic.Int32
	caching := NewCachingResolver(ResolverFunc(func(context.Context, string) (*Response, error) {
		calls.Add(1)
		return &Response{Body: []byte("x")}, nil
	}))
	h := New(testHost, WithLogger(zaptest.NewLogger(t)), WithResolver(caching))

	first := newFakeRequest(h.URL("/cached"))
	h.Handle(context.Background(), first)
	first.wait(t)
	h.Wait()

	h.Reset()

	second := newFakeRequest(h.URL("/cached"))
	h.Handle(context.Background(), second)
	second.wait(t)
	h.Wait()
	assert.Equal(t, int32(2), calls.Load())
}

func TestRouter_WaitWhileRequestsKeepArriving(t *testing.T) {
	h := New(testHost)

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
				h.Handle(context.Background(), newFakeRequest("https://cdn.example/x"))
			}
		}
	}()

	for i := 0; i < 500; i++ {
		h.WaitTimeout(time.Second)
	}
	close(stop)
	wg.Wait()

	h.Wait()
	assert.True(t, h.WaitTimeout(time.Second))
	assert.Equal(t, h.Stats().Observed, h.Stats().External)
}

func TestRouter_WaitTimeoutWithStalledResolver(t *testing.T) {
	release := make(chan struct{})
	h := New(testHost, WithResolver(ResolverFunc(func(context.Context, string) (*Response, error) {
		<-release
		return &Response{Body: []byte("late")}, nil
	})))

	req := newFakeRequest(h.URL("/stalled"))
	h.Handle(context.Background(), req)
	assert.False(t, h.WaitTimeout(20*time.Millisecond))

	close(release)
	assert.Equal(t, "late", string(req.response(t).Body))
	assert.True(t, h.WaitTimeout(time.Second))
}

func TestRouter_ResetDiscardsOutcomesOfEarlierRequests(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	h := New(testHost, WithLogger(zaptest.NewLogger(t)), WithResolver(ResolverFunc(func(context.Context, string) (*Response, error) {
		close(entered)
		<-release
		return nil, errors.New("backend down")
	})))

	req := newFakeRequest(h.URL("/slow"))
	h.Handle(context.Background(), req)
	<-entered

	h.Reset()
	close(release)

	// The request is still answered, but its failure belongs to nobody.
	assert.Equal(t, 500, req.response(t).StatusCode())
	h.Wait()
	assert.NoError(t, h.Err())
	assert.Equal(t, Stats{}, h.Stats())
	assert.Empty(t, h.Requests())
}
