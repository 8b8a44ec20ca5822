// internal/browser/cdpdriver/tracker.go
package cdpdriver

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"go.uber.org/zap"

	"github.com/xkilldash9x/pagewright/internal/browser"
)

// networkQuietPeriod matches playwright's networkidle: no requests in flight
// for half a second.
const networkQuietPeriod = 500 * time.Millisecond

type request struct {
	id     network.RequestID
	url    string
	method string
	kind   string
}

func (r *request) ID() string           { return string(r.id) }
func (r *request) URL() string          { return r.url }
func (r *request) Method() string       { return r.method }
func (r *request) ResourceType() string { return r.kind }

type response struct {
	url    string
	status int
}

func (r *response) URL() string { return r.url }
func (r *response) Status() int { return r.status }
func (r *response) OK() bool    { return r.status >= 200 && r.status < 300 }

// tracker keeps tabs on in-flight requests of one tab and fans network events
// out to subscribers.
type tracker struct {
	logger *zap.Logger

	lock         sync.RWMutex
	inflight     map[network.RequestID]*request
	lastActivity time.Time

	requests  browser.Listeners[browser.Request]
	finished  browser.Listeners[browser.Request]
	failed    browser.Listeners[browser.Request]
	responses browser.Listeners[browser.Response]
}

func newTracker(logger *zap.Logger) *tracker {
	return &tracker{
		logger:       logger.Named("tracker"),
		inflight:     make(map[network.RequestID]*request),
		lastActivity: time.Now(),
	}
}

// handle dispatches one CDP event. It reports whether the event was a
// network event.
func (t *tracker) handle(ev interface{}) bool {
	switch e := ev.(type) {
	case *network.EventRequestWillBeSent:
		t.handleRequestWillBeSent(e)
	case *network.EventResponseReceived:
		t.handleResponseReceived(e)
	case *network.EventLoadingFinished:
		t.handleLoadingFinished(e)
	case *network.EventLoadingFailed:
		t.handleLoadingFailed(e)
	default:
		return false
	}
	return true
}

func (t *tracker) handleRequestWillBeSent(e *network.EventRequestWillBeSent) {
	r := &request{id: e.RequestID, kind: strings.ToLower(string(e.Type))}
	if e.Request != nil {
		r.url, r.method = e.Request.URL, e.Request.Method
	}

	t.lock.Lock()
	// A redirect reuses the request ID; the previous leg is complete.
	prev, redirected := t.inflight[e.RequestID]
	t.inflight[e.RequestID] = r
	t.lastActivity = time.Now()
	t.lock.Unlock()

	if redirected && e.RedirectResponse != nil {
		t.responses.Emit(&response{url: e.RedirectResponse.URL, status: int(e.RedirectResponse.Status)})
		t.finished.Emit(prev)
	}
	t.requests.Emit(r)
}

func (t *tracker) handleResponseReceived(e *network.EventResponseReceived) {
	if e.Response == nil {
		return
	}
	t.responses.Emit(&response{url: e.Response.URL, status: int(e.Response.Status)})
}

func (t *tracker) handleLoadingFinished(e *network.EventLoadingFinished) {
	if r, ok := t.complete(e.RequestID); ok {
		t.finished.Emit(r)
	}
}

func (t *tracker) handleLoadingFailed(e *network.EventLoadingFailed) {
	if r, ok := t.complete(e.RequestID); ok {
		t.logger.Debug("Request failed.", zap.String("url", r.url), zap.String("error", e.ErrorText))
		t.failed.Emit(r)
	}
}

func (t *tracker) complete(id network.RequestID) (*request, bool) {
	t.lock.Lock()
	defer t.lock.Unlock()
	r, ok := t.inflight[id]
	delete(t.inflight, id)
	t.lastActivity = time.Now()
	return r, ok
}

func (t *tracker) inflightCount() int {
	t.lock.RLock()
	defer t.lock.RUnlock()
	return len(t.inflight)
}

// WaitNetworkIdle polls until no requests have been in flight for
// quietPeriod.
func (t *tracker) WaitNetworkIdle(ctx context.Context, quietPeriod time.Duration) error {
	ticker := time.NewTicker(quietPeriod / 5)
	defer ticker.Stop()

	for {
		t.lock.RLock()
		count := len(t.inflight)
		last := t.lastActivity
		t.lock.RUnlock()

		if count == 0 && time.Since(last) >= quietPeriod {
			return nil
		}

		select {
		case <-ctx.Done():
			t.logger.Debug("WaitNetworkIdle aborted.", zap.Int("inflight_requests", count), zap.Error(ctx.Err()))
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
