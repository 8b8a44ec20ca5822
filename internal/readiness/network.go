package readiness

import (
	"context"
	"errors"
	"fmt"

	"github.com/xkilldash9x/pagewright/internal/browser"
	"github.com/xkilldash9x/pagewright/internal/retry"
)

// WaitForNetworkIdle delegates to the driver's network-idle signal, bounded
// by the network idle timeout.
func (w *Waiter) WaitForNetworkIdle(ctx context.Context, page browser.Page, opts ...Option) error {
	s := w.settings(w.cfg.NetworkIdleTimeout, opts)

	idleCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	err := page.WaitForNetworkIdle(idleCtx)
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return fmt.Errorf("network idle wait cancelled: %w", ctx.Err())
	}
	if errors.Is(err, browser.ErrClosed) {
		return err
	}
	return &retry.DeadlineError{
		Op:      "network idle",
		Timeout: s.timeout,
		Last:    err,
		Message: fmt.Sprintf("Network idle state not reached within %d ms", s.timeout.Milliseconds()),
	}
}
