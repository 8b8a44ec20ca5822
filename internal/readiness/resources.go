package readiness

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/pagewright/internal/browser"
	"github.com/xkilldash9x/pagewright/internal/retry"
)

// resourceTracker holds the pending-request set of one WaitForResources call.
type resourceTracker struct {
	kinds map[string]bool

	mu      sync.Mutex
	pending map[string]struct{}
	started int
	drained chan struct{}
	once    sync.Once
}

func newResourceTracker(kinds []string) *resourceTracker {
	set := make(map[string]bool, len(kinds))
	for _, k := range kinds {
		set[strings.ToLower(k)] = true
	}
	return &resourceTracker{
		kinds:   set,
		pending: make(map[string]struct{}),
		drained: make(chan struct{}),
	}
}

func (t *resourceTracker) onStart(r browser.Request) {
	if !t.kinds[strings.ToLower(r.ResourceType())] {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pending[r.ID()] = struct{}{}
	t.started++
}

// onDone handles both finished and failed requests. Requests that were never
// tracked are ignored so the set can not go negative.
func (t *resourceTracker) onDone(r browser.Request) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.pending[r.ID()]; !ok {
		return
	}
	delete(t.pending, r.ID())
	if len(t.pending) == 0 {
		t.once.Do(func() { close(t.drained) })
	}
}

func (t *resourceTracker) snapshot() (started int, pending []string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for id := range t.pending {
		pending = append(pending, id)
	}
	return t.started, pending
}

// WaitForResources tracks requests of the allowed kinds from the moment it is
// called and returns once every tracked request has finished or failed. It
// only resolves on a finish or fail event, so a page that starts no tracked
// request before the deadline is rejected like one that never drains. The
// three event subscriptions are always removed before it returns.
func (w *Waiter) WaitForResources(ctx context.Context, page browser.Page, opts ...Option) error {
	s := w.settings(w.cfg.ResourceTimeout, opts)
	tracker := newResourceTracker(s.kinds)

	unsubscribers := []browser.Unsubscribe{
		page.OnRequest(tracker.onStart),
		page.OnRequestFinished(tracker.onDone),
		page.OnRequestFailed(tracker.onDone),
	}
	defer func() {
		for _, unsubscribe := range unsubscribers {
			unsubscribe()
		}
	}()

	deadline := time.NewTimer(s.timeout)
	defer deadline.Stop()

	select {
	case <-tracker.drained:
		started, _ := tracker.snapshot()
		w.logger.Debug("All tracked resources loaded.", zap.Int("requests", started))
		return nil
	case <-deadline.C:
		started, pending := tracker.snapshot()
		w.logger.Warn("Resources still pending at deadline.", zap.Int("started", started), zap.Int("pending", len(pending)))
		return &retry.DeadlineError{
			Op:      "resources",
			Timeout: s.timeout,
			Message: fmt.Sprintf("Not all resources loaded within %d ms (%d of %d pending)", s.timeout.Milliseconds(), len(pending), started),
		}
	case <-ctx.Done():
		return fmt.Errorf("resource wait cancelled: %w", ctx.Err())
	}
}
