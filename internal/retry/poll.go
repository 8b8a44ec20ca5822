package retry

import (
	"context"
	"fmt"
	"time"
)

// Condition is a readiness predicate. A non-nil error that is not Permanent
// counts as "not yet" and is kept as the last cause.
type Condition func(ctx context.Context) (bool, error)

// PollSpec configures Poll.
type PollSpec struct {
	Op       string
	Interval time.Duration
	Timeout  time.Duration
	// Message replaces the generated deadline text.
	Message string
}

// Poll evaluates cond immediately and then once per interval until it holds,
// the timeout elapses, or ctx is cancelled. Expiry yields a *DeadlineError
// naming the timeout. A Permanent error from cond ends the poll early.
func Poll(ctx context.Context, spec PollSpec, cond Condition) error {
	if spec.Interval <= 0 {
		return fmt.Errorf("%s: poll interval must be positive", spec.Op)
	}

	pollCtx, cancel := ctx, context.CancelFunc(func() {})
	if spec.Timeout > 0 {
		pollCtx, cancel = context.WithTimeout(ctx, spec.Timeout)
	}
	defer cancel()

	deadline := func(last error) error {
		return &DeadlineError{Op: spec.Op, Timeout: spec.Timeout, Last: last, Message: spec.Message}
	}

	ticker := time.NewTicker(spec.Interval)
	defer ticker.Stop()

	var last error
	for {
		ok, err := cond(pollCtx)
		switch {
		case err != nil && IsPermanent(err):
			return unwrapPermanent(err)
		case err != nil:
			last = err
		case ok:
			return nil
		}

		select {
		case <-ticker.C:
		case <-pollCtx.Done():
			if ctx.Err() != nil {
				return fmt.Errorf("%s cancelled: %w", spec.Op, ctx.Err())
			}
			return deadline(last)
		}
	}
}
