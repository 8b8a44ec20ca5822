// Package retry holds the combinators every helper is built from: a bounded
// retry loop that records each attempt, and a poll loop for readiness predicates.
package retry

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Policy configures one retry loop.
type Policy struct {
	// Op and Target name the action for error messages and logs.
	Op     string
	Target string
	// Attempts is the maximum number of iterations. Values below 1 mean 1.
	Attempts int
	// Timeout bounds each attempt when positive.
	Timeout time.Duration
	// Delay is slept between a failed attempt and the next one.
	Delay  time.Duration
	Logger *zap.Logger
}

// Func is one attempt. attempt is 1-based.
type Func func(ctx context.Context, attempt int) error

// Do runs fn until it succeeds or the policy is exhausted. Failures of
// non-final attempts are recorded wrapped in ErrTransient and otherwise
// discarded. A Permanent error or a
// precondition violation stops the loop at once and is returned unwrapped.
func Do(ctx context.Context, p Policy, fn Func) error {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}
	logger := p.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	causes := make([]Attempt, 0, attempts)
	for n := 1; n <= attempts; n++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%s on %s cancelled after %d attempts: %w", p.Op, p.Target, n-1, err)
		}

		start := time.Now()
		err := runAttempt(ctx, p.Timeout, n, fn)
		if err == nil {
			if n > 1 {
				logger.Debug("Action succeeded after retry.",
					zap.String("op", p.Op), zap.String("target", p.Target), zap.Int("attempt", n))
			}
			return nil
		}
		if IsPermanent(err) {
			return unwrapPermanent(err)
		}
		cause := err
		if n < attempts {
			cause = fmt.Errorf("%w: %w", ErrTransient, err)
		}
		causes = append(causes, Attempt{N: n, Err: cause, Duration: time.Since(start)})

		logger.Debug("Attempt failed.",
			zap.String("op", p.Op),
			zap.String("target", p.Target),
			zap.Int("attempt", n),
			zap.Int("max_attempts", attempts),
			zap.Error(err))

		if n < attempts && p.Delay > 0 {
			if err := Pause(ctx, p.Delay); err != nil {
				return fmt.Errorf("%s on %s cancelled after %d attempts: %w", p.Op, p.Target, n, err)
			}
		}
	}

	exhausted := &ExhaustedError{Op: p.Op, Target: p.Target, Attempts: attempts, Causes: causes}
	logger.Error("All attempts failed.",
		zap.String("op", p.Op),
		zap.String("target", p.Target),
		zap.Int("attempts", attempts),
		zap.Error(exhausted.All()))
	return exhausted
}

func runAttempt(ctx context.Context, timeout time.Duration, n int, fn Func) error {
	if timeout <= 0 {
		return fn(ctx, n)
	}
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return fn(attemptCtx, n)
}

// Pause sleeps for d or until ctx is done.
func Pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
