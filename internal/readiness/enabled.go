package readiness

import (
	"context"
	"fmt"

	"github.com/xkilldash9x/pagewright/internal/browser"
	"github.com/xkilldash9x/pagewright/internal/retry"
)

// WaitForEnabled polls el until it reports enabled.
func (w *Waiter) WaitForEnabled(ctx context.Context, el browser.Element, opts ...Option) error {
	s := w.settings(w.cfg.EnabledTimeout, opts)

	return retry.Poll(ctx, retry.PollSpec{
		Op:       "enabled " + el.Selector(),
		Interval: s.interval,
		Timeout:  s.timeout,
		Message:  fmt.Sprintf("Element '%s' was not enabled within %d ms", el.Selector(), s.timeout.Milliseconds()),
	}, func(ctx context.Context) (bool, error) {
		enabled, err := el.IsEnabled(ctx)
		if err != nil {
			return false, failFast(err)
		}
		return enabled, nil
	})
}
