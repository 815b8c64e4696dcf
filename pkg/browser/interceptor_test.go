// pkg/browser/interceptor_test.go
package browser

import (
	"context"
	"encoding/base64"
	"sync"
	"testing"

	"github.com/chromedp/cdproto/fetch"
	"github.com/chromedp/cdproto/network"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/netstub/pkg/intercept"
)

// recordingExecutor captures the CDP commands a paused request issues.
type recordingExecutor struct {
	mu      sync.Mutex
	methods []string
	params  []interface{}
}

func (r *recordingExecutor) Execute(_ context.Context, method string, params, _ interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.methods = append(r.methods, method)
	r.params = append(r.params, params)
	return nil
}

func pausedEvent(req *network.Request) *fetch.EventRequestPaused {
	return &fetch.EventRequestPaused{RequestID: fetch.RequestID("interception-1"), Request: req}
}

func TestPausedRequest_Accessors(t *testing.T) {
	body := `{"a":2}`
	ev := pausedEvent(&network.Request{
		URL:         "http://localhost:3000/submit",
		URLFragment: "#frag",
		Method:      "POST",
		HasPostData: true,
		PostDataEntries: []*network.PostDataEntry{
			{Bytes: base64.StdEncoding.EncodeToString([]byte(body[:3]))},
			nil,
			{Bytes: base64.StdEncoding.EncodeToString([]byte(body[3:]))},
		},
	})
	req := newPausedRequest(ev, &recordingExecutor{})

	assert.Equal(t, "http://localhost:3000/submit#frag", req.URL())
	assert.Equal(t, "POST", req.Method())
	got, ok := req.Body()
	require.True(t, ok)
	assert.Equal(t, body, string(got))
}

func TestPausedRequest_NoBody(t *testing.T) {
	req := newPausedRequest(pausedEvent(&network.Request{URL: "http://x/", Method: "GET"}), &recordingExecutor{})
	body, ok := req.Body()
	assert.False(t, ok)
	assert.Nil(t, body)

	empty := newPausedRequest(&fetch.EventRequestPaused{}, &recordingExecutor{})
	assert.Empty(t, empty.URL())
	assert.Empty(t, empty.Method())
}

func TestPausedRequest_AnswersOnce(t *testing.T) {
	exec := &recordingExecutor{}
	req := newPausedRequest(pausedEvent(&network.Request{URL: "http://localhost:3000/ping"}), exec)

	require.NoError(t, req.Respond(context.Background(), intercept.Response{Body: []byte("pong"), ContentType: "text/plain"}))
	assert.ErrorIs(t, req.Respond(context.Background(), intercept.Response{}), ErrAlreadyAnswered)
	assert.ErrorIs(t, req.Continue(context.Background()), ErrAlreadyAnswered)
	assert.ErrorIs(t, req.Abort(context.Background()), ErrAlreadyAnswered)

	require.Equal(t, []string{fetch.CommandFulfillRequest}, exec.methods)
	params, ok := exec.params[0].(*fetch.FulfillRequestParams)
	require.True(t, ok)
	assert.Equal(t, fetch.RequestID("interception-1"), params.RequestID)
	assert.Equal(t, int64(200), params.ResponseCode)
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte("pong")), params.Body)
}

func TestPausedRequest_ContinueAndAbort(t *testing.T) {
	exec := &recordingExecutor{}
	cont := newPausedRequest(pausedEvent(&network.Request{URL: "https://cdn.example/a.js"}), exec)
	require.NoError(t, cont.Continue(context.Background()))

	abort := newPausedRequest(pausedEvent(&network.Request{URL: "https://ads.example/p"}), exec)
	require.NoError(t, abort.Abort(context.Background()))

	assert.Equal(t, []string{fetch.CommandContinueRequest, fetch.CommandFailRequest}, exec.methods)
	fail, ok := exec.params[1].(*fetch.FailRequestParams)
	require.True(t, ok)
	assert.Equal(t, network.ErrorReasonBlockedByClient, fail.ErrorReason)
}

func TestResponseHeaders(t *testing.T) {
	t.Run("adds content headers", func(t *testing.T) {
		entries := responseHeaders(intercept.Response{
			ContentType: "application/json",
			Headers:     map[string]string{"X-Trace": "abc"},
			Body:        []byte(`{}`),
		})
		assert.Equal(t, []*fetch.HeaderEntry{
			{Name: "Content-Length", Value: "2"},
			{Name: "Content-Type", Value: "application/json"},
			{Name: "X-Trace", Value: "abc"},
		}, entries)
	})

	t.Run("explicit headers win", func(t *testing.T) {
		entries := responseHeaders(intercept.Response{
			ContentType: "application/json",
			Headers:     map[string]string{"content-type": "text/html"},
		})
		assert.Equal(t, []*fetch.HeaderEntry{{Name: "content-type", Value: "text/html"}}, entries)
	})

	t.Run("empty response", func(t *testing.T) {
		assert.Empty(t, responseHeaders(intercept.Response{Status: 204}))
	})
}

func TestDecodeBinary(t *testing.T) {
	assert.Equal(t, []byte("hello"), decodeBinary(base64.StdEncoding.EncodeToString([]byte("hello"))))
	assert.Equal(t, []byte("{not base64}"), decodeBinary("{not base64}"))
}
