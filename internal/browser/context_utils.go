// internal/browser/context_utils.go
package browser

import (
	"context"
	"time"
)

// CombineContext returns a context derived from primary that is also
// cancelled when secondary is done. Values come from primary only, which
// keeps driver state (such as a chromedp target) attached while secondary
// supplies the operational deadline.
func CombineContext(primary, secondary context.Context) (context.Context, context.CancelFunc) {
	combined, cancel := context.WithCancel(primary)
	if deadline, ok := secondary.Deadline(); ok {
		if d, ok2 := combined.Deadline(); !ok2 || deadline.Before(d) {
			var cancelDeadline context.CancelFunc
			combined, cancelDeadline = context.WithDeadline(combined, deadline)
			parentCancel := cancel
			cancel = func() {
				cancelDeadline()
				parentCancel()
			}
		}
	}

	go func() {
		select {
		case <-secondary.Done():
			cancel()
		case <-combined.Done():
		}
	}()

	return combined, cancel
}

type valueOnlyContext struct {
	context.Context
}

func (valueOnlyContext) Deadline() (deadline time.Time, ok bool) { return }
func (valueOnlyContext) Done() <-chan struct{}                   { return nil }
func (valueOnlyContext) Err() error                              { return nil }

// Detach returns a context carrying ctx's values but none of its
// cancellation, for cleanup that must outlive the caller.
func Detach(ctx context.Context) context.Context {
	return valueOnlyContext{ctx}
}

// TimeoutMillis converts ctx's remaining time into the float milliseconds
// drivers such as playwright expect. Zero means no deadline.
func TimeoutMillis(ctx context.Context) float64 {
	deadline, ok := ctx.Deadline()
	if !ok {
		return 0
	}
	ms := time.Until(deadline).Milliseconds()
	if ms < 1 {
		// Playwright reads 0 as "no timeout".
		return 1
	}
	return float64(ms)
}
