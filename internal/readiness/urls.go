package readiness

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/pagewright/internal/browser"
	"github.com/xkilldash9x/pagewright/internal/retry"
)

// urlSet is the pending set of one WaitForURLs call.
type urlSet struct {
	mu      sync.Mutex
	pending map[string]struct{}
}

func newURLSet(urls []string) *urlSet {
	set := &urlSet{pending: make(map[string]struct{}, len(urls))}
	for _, u := range urls {
		set.pending[u] = struct{}{}
	}
	return set
}

// observe removes the response's URL only when the response is ok. Unlisted
// URLs are a no-op.
func (s *urlSet) observe(r browser.Response) {
	if !r.OK() {
		return
	}
	s.mu.Lock()
	delete(s.pending, r.URL())
	s.mu.Unlock()
}

func (s *urlSet) remaining() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.pending))
	for u := range s.pending {
		out = append(out, u)
	}
	sort.Strings(out)
	return out
}

// URLWatch records ok responses for a fixed URL set from the moment it is
// created. Create it before triggering navigation so early responses count.
type URLWatch struct {
	waiter      *Waiter
	page        browser.Page
	set         *urlSet
	total       int
	unsubscribe browser.Unsubscribe
}

// ExpectURLs subscribes to page responses and returns a watch over urls.
// Wait or Stop must be called to release the subscription.
func (w *Waiter) ExpectURLs(page browser.Page, urls []string) *URLWatch {
	set := newURLSet(urls)
	return &URLWatch{
		waiter:      w,
		page:        page,
		set:         set,
		total:       len(urls),
		unsubscribe: page.OnResponse(set.observe),
	}
}

// Stop releases the response subscription. It is safe to call more than once.
func (u *URLWatch) Stop() { u.unsubscribe() }

// Pending returns the URLs that have not yet answered ok, sorted.
func (u *URLWatch) Pending() []string { return u.set.remaining() }

// WaitForURLs returns once an ok response has been observed for every URL in
// urls. The response subscription is installed before anything else so no
// response that arrives during the optional network-idle pre-wait is missed.
func (w *Waiter) WaitForURLs(ctx context.Context, page browser.Page, urls []string, opts ...Option) error {
	return w.ExpectURLs(page, urls).Wait(ctx, opts...)
}

// Wait blocks until every watched URL has answered ok, then releases the
// subscription. The optional network-idle pre-wait runs on the same clock as
// the URL set, and its failure ends the wait.
func (u *URLWatch) Wait(ctx context.Context, opts ...Option) error {
	defer u.Stop()
	w, page := u.waiter, u.page
	s := w.settings(w.cfg.URLSetTimeout, opts)
	start := time.Now()

	if s.networkIdle {
		idleTimeout := min(w.cfg.NetworkIdleTimeout, s.timeout)
		if err := w.WaitForNetworkIdle(ctx, page, WithTimeout(idleTimeout)); err != nil {
			w.logger.Warn("Network idle not reached before URL-set wait.", zap.Strings("pending", u.set.remaining()), zap.Error(err))
			return err
		}
	}

	// Poll evaluates its condition before the first tick, so an already
	// spent budget still gets one final check.
	remaining := max(s.timeout-time.Since(start), time.Millisecond)
	err := retry.Poll(ctx, retry.PollSpec{
		Op:       "api responses",
		Interval: s.interval,
		Timeout:  remaining,
		Message:  fmt.Sprintf("Timeout: All APIs did not load within %d ms", s.timeout.Milliseconds()),
	}, func(ctx context.Context) (bool, error) {
		if page.IsClosed() {
			return false, retry.Permanent(browser.ErrClosed)
		}
		return len(u.set.remaining()) == 0, nil
	})
	if err != nil {
		pending := u.set.remaining()
		w.logger.Warn("API responses still pending.", zap.Strings("pending", pending), zap.Error(err))
		var dl *retry.DeadlineError
		if errors.As(err, &dl) {
			dl.Timeout = s.timeout
			dl.Last = fmt.Errorf("pending: %v", pending)
		}
		return err
	}
	w.logger.Debug("All API responses observed.", zap.Int("urls", u.total))
	return nil
}
