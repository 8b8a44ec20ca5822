package retry

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoll(t *testing.T) {
	t.Run("resolves once the condition holds", func(t *testing.T) {
		var calls atomic.Int32
		err := Poll(context.Background(), PollSpec{Op: "ready", Interval: 5 * time.Millisecond, Timeout: time.Second},
			func(ctx context.Context) (bool, error) {
				return calls.Add(1) >= 3, nil
			})

		require.NoError(t, err)
		assert.Equal(t, int32(3), calls.Load())
	})

	t.Run("evaluates immediately before the first tick", func(t *testing.T) {
		start := time.Now()
		err := Poll(context.Background(), PollSpec{Op: "ready", Interval: time.Hour, Timeout: time.Second},
			func(ctx context.Context) (bool, error) { return true, nil })

		require.NoError(t, err)
		assert.Less(t, time.Since(start), 100*time.Millisecond)
	})

	t.Run("deadline error names the timeout", func(t *testing.T) {
		err := Poll(context.Background(), PollSpec{Op: "Network idle state", Interval: 5 * time.Millisecond, Timeout: 30 * time.Millisecond},
			func(ctx context.Context) (bool, error) { return false, nil })

		var deadline *DeadlineError
		require.ErrorAs(t, err, &deadline)
		assert.ErrorIs(t, err, ErrDeadlineExceeded)
		assert.Equal(t, "Network idle state not reached within 30 ms", err.Error())
	})

	t.Run("custom message and last cause", func(t *testing.T) {
		cause := errors.New("evaluate failed")
		err := Poll(context.Background(), PollSpec{
			Op: "urls", Interval: 5 * time.Millisecond, Timeout: 20 * time.Millisecond,
			Message: "Timeout: All APIs did not load within 20 ms",
		}, func(ctx context.Context) (bool, error) { return false, cause })

		assert.ErrorIs(t, err, cause)
		assert.Equal(t, "Timeout: All APIs did not load within 20 ms: evaluate failed", err.Error())
	})

	t.Run("permanent errors fail fast", func(t *testing.T) {
		closed := errors.New("target closed")
		var calls atomic.Int32
		err := Poll(context.Background(), PollSpec{Op: "media", Interval: 5 * time.Millisecond, Timeout: time.Second},
			func(ctx context.Context) (bool, error) {
				calls.Add(1)
				return false, Permanent(closed)
			})

		assert.Same(t, closed, err)
		assert.Equal(t, int32(1), calls.Load())
	})

	t.Run("parent cancellation is not a deadline", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		go func() {
			time.Sleep(10 * time.Millisecond)
			cancel()
		}()
		err := Poll(ctx, PollSpec{Op: "media", Interval: 5 * time.Millisecond, Timeout: time.Minute},
			func(ctx context.Context) (bool, error) { return false, nil })

		assert.ErrorIs(t, err, context.Canceled)
		assert.NotErrorIs(t, err, ErrDeadlineExceeded)
	})

	t.Run("rejects a zero interval", func(t *testing.T) {
		err := Poll(context.Background(), PollSpec{Op: "media"}, func(ctx context.Context) (bool, error) { return true, nil })
		assert.Error(t, err)
	})
}
