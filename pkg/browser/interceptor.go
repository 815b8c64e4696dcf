// pkg/browser/interceptor.go
package browser

import (
	"context"
	"encoding/base64"
	"errors"
	"sort"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/fetch"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/netstub/pkg/intercept"
)

// ErrAlreadyAnswered is returned when a paused request is answered twice.
var ErrAlreadyAnswered = errors.New("browser: paused request already answered")

// Interceptor pauses every request of a page through the Fetch domain and hands
// it to an intercept.Handler.
type Interceptor struct {
	handler intercept.Handler
	logger  *zap.Logger
}

func NewInterceptor(handler intercept.Handler, logger *zap.Logger) *Interceptor {
	return &Interceptor{handler: handler, logger: logger.Named("interceptor")}
}

// Enable returns the action that turns on request-stage interception for all URLs.
func (i *Interceptor) Enable() chromedp.Action {
	return fetch.Enable().WithPatterns([]*fetch.RequestPattern{
		{URLPattern: "*", RequestStage: fetch.RequestStageRequest},
	})
}

// Disable turns interception off again. Paused requests are released by Chrome.
func (i *Interceptor) Disable() chromedp.Action {
	return fetch.Disable()
}

// Listen subscribes to paused requests on the chromedp context ctx. It must be
// called before Enable runs so no request is missed.
func (i *Interceptor) Listen(ctx context.Context) {
	chromedp.ListenTarget(ctx, func(ev interface{}) {
		e, ok := ev.(*fetch.EventRequestPaused)
		if !ok {
			return
		}
		req := newPausedRequest(e, chromedp.FromContext(ctx).Target)
		i.logger.Debug("Request paused.", zap.String("url", req.URL()), zap.String("method", req.Method()))
		// The handler answers asynchronously; commands cannot be sent from
		// inside the listener itself.
		i.handler.Handle(ctx, req)
	})
}

// pausedRequest adapts a Fetch.requestPaused event to intercept.Request.
type pausedRequest struct {
	ev       *fetch.EventRequestPaused
	target   cdp.Executor
	answered atomic.Bool
}

var (
	_ intercept.Request   = (*pausedRequest)(nil)
	_ intercept.Continuer = (*pausedRequest)(nil)
	_ intercept.Aborter   = (*pausedRequest)(nil)
)

func newPausedRequest(ev *fetch.EventRequestPaused, target cdp.Executor) *pausedRequest {
	return &pausedRequest{ev: ev, target: target}
}

func (p *pausedRequest) URL() string {
	if p.ev.Request == nil {
		return ""
	}
	return p.ev.Request.URL + p.ev.Request.URLFragment
}

func (p *pausedRequest) Method() string {
	if p.ev.Request == nil {
		return ""
	}
	return p.ev.Request.Method
}

// Body joins the post data entries. Chrome omits entries for very large
// payloads, in which case the body is reported present but empty.
func (p *pausedRequest) Body() ([]byte, bool) {
	req := p.ev.Request
	if req == nil || !req.HasPostData {
		return nil, false
	}
	var body []byte
	for _, entry := range req.PostDataEntries {
		if entry == nil {
			continue
		}
		body = append(body, decodeBinary(entry.Bytes)...)
	}
	return body, true
}

func (p *pausedRequest) Respond(ctx context.Context, resp intercept.Response) error {
	if !p.answered.CompareAndSwap(false, true) {
		return ErrAlreadyAnswered
	}
	params := fetch.FulfillRequest(p.ev.RequestID, int64(resp.StatusCode())).
		WithResponseHeaders(responseHeaders(resp))
	if len(resp.Body) > 0 {
		params = params.WithBody(base64.StdEncoding.EncodeToString(resp.Body))
	}
	return params.Do(p.exec(ctx))
}

func (p *pausedRequest) Continue(ctx context.Context) error {
	if !p.answered.CompareAndSwap(false, true) {
		return ErrAlreadyAnswered
	}
	return fetch.ContinueRequest(p.ev.RequestID).Do(p.exec(ctx))
}

func (p *pausedRequest) Abort(ctx context.Context) error {
	if !p.answered.CompareAndSwap(false, true) {
		return ErrAlreadyAnswered
	}
	return fetch.FailRequest(p.ev.RequestID, network.ErrorReasonBlockedByClient).Do(p.exec(ctx))
}

func (p *pausedRequest) exec(ctx context.Context) context.Context {
	return cdp.WithExecutor(ctx, p.target)
}

// responseHeaders flattens resp headers in a stable order, adding
// Content-Type and Content-Length when the caller did not set them.
func responseHeaders(resp intercept.Response) []*fetch.HeaderEntry {
	headers := make(map[string]string, len(resp.Headers)+2)
	seen := make(map[string]bool, len(resp.Headers))
	for k, v := range resp.Headers {
		headers[k] = v
		seen[strings.ToLower(k)] = true
	}
	if resp.ContentType != "" && !seen["content-type"] {
		headers["Content-Type"] = resp.ContentType
	}
	if len(resp.Body) > 0 && !seen["content-length"] {
		headers["Content-Length"] = strconv.Itoa(len(resp.Body))
	}

	names := make([]string, 0, len(headers))
	for k := range headers {
		names = append(names, k)
	}
	sort.Strings(names)

	entries := make([]*fetch.HeaderEntry, 0, len(names))
	for _, k := range names {
		entries = append(entries, &fetch.HeaderEntry{Name: k, Value: headers[k]})
	}
	return entries
}

// decodeBinary decodes a CDP binary field, falling back to the raw text for
// values that are not base64.
func decodeBinary(s string) []byte {
	if b, err := base64.StdEncoding.DecodeString(s); err == nil {
		return b
	}
	return []byte(s)
}
