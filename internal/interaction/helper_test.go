// internal/interaction/helper_test.go
package interaction

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/pagewright/internal/browser"
	"github.com/xkilldash9x/pagewright/internal/config"
	"github.com/xkilldash9x/pagewright/internal/mocks"
	"github.com/xkilldash9x/pagewright/internal/retry"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var errHidden = errors.New("element is hidden")

// newTestHelper builds a Helper with the production defaults except for the
// settle pauses, which are shortened to keep the suite fast.
func newTestHelper(t *testing.T) *Helper {
	t.Helper()
	cfg := config.NewDefaultConfig().Interaction()
	cfg.ClickSettle = 10 * time.Millisecond
	cfg.DoubleClickSettle = 10 * time.Millisecond
	cfg.FillRetryDelay = 10 * time.Millisecond
	return New(cfg, zaptest.NewLogger(t))
}

// visibleOnAttempt makes el fail its first n-1 waits.
func visibleOnAttempt(el *mocks.MockElement, n int32) *atomic.Int32 {
	var calls atomic.Int32
	el.MockWaitFor = func(ctx context.Context, state browser.WaitState) error {
		if calls.Add(1) < n {
			return errHidden
		}
		return nil
	}
	return &calls
}

func TestFill_BecomesVisibleOnSecondAttempt(t *testing.T) {
	cfg := config.NewDefaultConfig().Interaction()
	h := New(cfg, zaptest.NewLogger(t))
	el := mocks.NewMockElement("#email")
	waits := visibleOnAttempt(el, 2)

	err := h.Fill(context.Background(), el, "hello@example.com", WithRetries(3), WithTimeout(time.Second))

	require.NoError(t, err)
	assert.Equal(t, "hello@example.com", el.Value())
	assert.Equal(t, int32(2), waits.Load())
	assert.Equal(t, []string{"hello@example.com"}, el.Fills())
	assert.Equal(t, []browser.WaitState{browser.StateVisible, browser.StateVisible}, el.Waits())
}

func TestFill(t *testing.T) {
	t.Run("exhausts retries", func(t *testing.T) {
		h := newTestHelper(t)
		el := mocks.NewMockElement("#email")
		el.MockWaitFor = func(ctx context.Context, state browser.WaitState) error { return errHidden }

		err := h.Fill(context.Background(), el, "x")

		var exhausted *retry.ExhaustedError
		require.ErrorAs(t, err, &exhausted)
		assert.Equal(t, 3, exhausted.Attempts)
		assert.Equal(t, "#email", exhausted.Target)
		assert.ErrorIs(t, err, errHidden)
		assert.Empty(t, el.Fills())
	})

	t.Run("waits between failed attempts", func(t *testing.T) {
		h := newTestHelper(t)
		el := mocks.NewMockElement("#email")
		el.MockWaitFor = func(ctx context.Context, state browser.WaitState) error { return errHidden }

		start := time.Now()
		_ = h.Fill(context.Background(), el, "x", WithDelay(40*time.Millisecond))
		assert.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond)
	})

	t.Run("fill failure is retried", func(t *testing.T) {
		h := newTestHelper(t)
		el := mocks.NewMockElement("#email")
		var fails atomic.Int32
		el.MockFill = func(ctx context.Context, text string) error {
			if fails.Add(1) == 1 {
				return errors.New("detached from DOM")
			}
			return nil
		}

		require.NoError(t, h.Fill(context.Background(), el, "abc"))
		assert.Equal(t, []string{"abc"}, el.Fills())
	})
}

func TestClick(t *testing.T) {
	t.Run("succeeds with one action after transient failures", func(t *testing.T) {
		h := newTestHelper(t)
		el := mocks.NewMockElement("button.submit")
		visibleOnAttempt(el, 3)

		require.NoError(t, h.Click(context.Background(), el))
		clicks := el.Clicks()
		require.Len(t, clicks, 1)
		assert.True(t, clicks[0].Force)
	})

	t.Run("exhaustion names the selector and count", func(t *testing.T) {
		h := newTestHelper(t)
		el := mocks.NewMockElement("button.submit")
		el.MockWaitFor = func(ctx context.Context, state browser.WaitState) error { return errHidden }

		err := h.Click(context.Background(), el, WithRetries(2))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "button.submit")
		assert.Contains(t, err.Error(), "after 2 attempts")
		assert.Len(t, el.Waits(), 2)
	})

	t.Run("settles after success", func(t *testing.T) {
		h := newTestHelper(t)
		el := mocks.NewMockElement("a")

		start := time.Now()
		require.NoError(t, h.Click(context.Background(), el, WithSettle(50*time.Millisecond)))
		assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
	})

	t.Run("closed page is retried like any failure", func(t *testing.T) {
		h := newTestHelper(t)
		el := mocks.NewMockElement("a")
		el.MockClick = func(ctx context.Context, opts browser.ClickOptions) error { return browser.ErrClosed }

		err := h.Click(context.Background(), el)
		var exhausted *retry.ExhaustedError
		require.ErrorAs(t, err, &exhausted)
		assert.Equal(t, 3, exhausted.Attempts)
	})

	t.Run("per-attempt timeout bounds the wait", func(t *testing.T) {
		h := newTestHelper(t)
		el := mocks.NewMockElement("a")
		el.MockWaitFor = func(ctx context.Context, state browser.WaitState) error {
			<-ctx.Done()
			return ctx.Err()
		}

		start := time.Now()
		err := h.Click(context.Background(), el, WithRetries(2), WithTimeout(20*time.Millisecond))
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.Less(t, time.Since(start), time.Second)
	})
}

func TestDoubleClick(t *testing.T) {
	h := newTestHelper(t)
	el := mocks.NewMockElement("li.row")
	visibleOnAttempt(el, 2)

	require.NoError(t, h.DoubleClick(context.Background(), el))
	assert.Equal(t, []browser.ClickOptions{{Force: true, Button: "left"}}, el.DoubleClicks())
}

func TestClickSelector(t *testing.T) {
	t.Run("waits for attached and left-clicks with press delay", func(t *testing.T) {
		h := newTestHelper(t)
		page := mocks.NewMockPage()

		require.NoError(t, h.ClickSelector(context.Background(), page, "#save"))

		el := page.Element("#save")
		assert.Equal(t, []browser.WaitState{browser.StateAttached}, el.Waits())
		clicks := el.Clicks()
		require.Len(t, clicks, 1)
		assert.Equal(t, "left", clicks[0].Button)
		assert.Equal(t, 100*time.Millisecond, clicks[0].Delay)
	})

	t.Run("closed page fails immediately as a precondition", func(t *testing.T) {
		h := newTestHelper(t)
		page := mocks.NewMockPage()
		page.SetClosed(true)

		err := h.ClickSelector(context.Background(), page, "#save")

		assert.ErrorIs(t, err, retry.ErrPreconditionViolated)
		assert.ErrorIs(t, err, browser.ErrClosed)
		assert.NotErrorIs(t, err, retry.ErrExhausted)
		assert.Empty(t, page.Element("#save").Waits())
	})

	t.Run("page closing mid-attempt is not retried", func(t *testing.T) {
		h := newTestHelper(t)
		page := mocks.NewMockPage()
		el := page.Element("#save")
		var clicks atomic.Int32
		el.MockClick = func(ctx context.Context, opts browser.ClickOptions) error {
			clicks.Add(1)
			page.SetClosed(true)
			return errors.New("target crashed")
		}

		err := h.ClickSelector(context.Background(), page, "#save")
		assert.ErrorIs(t, err, retry.ErrPreconditionViolated)
		assert.Equal(t, int32(1), clicks.Load())
	})

	t.Run("transient failures are retried", func(t *testing.T) {
		h := newTestHelper(t)
		page := mocks.NewMockPage()
		visibleOnAttempt(page.Element("#save"), 3)

		require.NoError(t, h.ClickSelector(context.Background(), page, "#save"))
		assert.Len(t, page.Element("#save").Clicks(), 1)
	})
}

func TestTryClick(t *testing.T) {
	t.Run("force-clicks a visible element", func(t *testing.T) {
		h := newTestHelper(t)
		visible := mocks.NewMockElement("#cookie-banner")
		assert.True(t, h.TryClick(context.Background(), visible))
		assert.Equal(t, []browser.ClickOptions{{Force: true}}, visible.Clicks())
	})

	t.Run("retries until the element appears", func(t *testing.T) {
		h := newTestHelper(t)
		el := mocks.NewMockElement("#cookie-banner")
		waits := visibleOnAttempt(el, 2)

		assert.True(t, h.TryClick(context.Background(), el))
		assert.Len(t, el.Clicks(), 1)
		assert.Equal(t, int32(2), waits.Load())
	})

	t.Run("exhaustion is swallowed", func(t *testing.T) {
		h := newTestHelper(t)
		hidden := mocks.NewMockElement("#cookie-banner")
		hidden.MockWaitFor = func(ctx context.Context, state browser.WaitState) error { return errHidden }

		assert.False(t, h.TryClick(context.Background(), hidden))
		assert.Empty(t, hidden.Clicks())
		assert.Len(t, hidden.Waits(), 3, "uses the configured retry count")
	})
}

func TestInput(t *testing.T) {
	h := newTestHelper(t)

	el := mocks.NewMockElement("#search")
	require.NoError(t, h.Input(context.Background(), el, "query"))
	assert.Equal(t, "query", el.Value())

	hidden := mocks.NewMockElement("#search")
	hidden.MockWaitFor = func(ctx context.Context, state browser.WaitState) error { return errHidden }
	err := h.Input(context.Background(), hidden, "query")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "input failed for selector '#search'")
	assert.Len(t, hidden.Waits(), 1)
}

func TestWaitForSelector(t *testing.T) {
	h := newTestHelper(t)
	page := mocks.NewMockPage()

	el, err := h.WaitForSelector(context.Background(), page, "#ready")
	require.NoError(t, err)
	assert.Equal(t, "#ready", el.Selector())

	page.Element("#never").MockWaitFor = func(ctx context.Context, state browser.WaitState) error {
		<-ctx.Done()
		return ctx.Err()
	}
	_, err = h.WaitForSelector(context.Background(), page, "#never", WithTimeout(20*time.Millisecond))
	require.Error(t, err)
	assert.ErrorIs(t, err, retry.ErrDeadlineExceeded)
	assert.Contains(t, err.Error(), "Timeout waiting for selector: #never")
}

func TestWaitForElement(t *testing.T) {
	h := newTestHelper(t)
	el := mocks.NewMockElement("#spinner")

	require.NoError(t, h.WaitForElement(context.Background(), el, browser.StateHidden))
	assert.Equal(t, []browser.WaitState{browser.StateHidden}, el.Waits())

	el.MockWaitFor = func(ctx context.Context, state browser.WaitState) error { return errHidden }
	err := h.WaitForElement(context.Background(), el, browser.StateDetached)
	assert.ErrorIs(t, err, retry.ErrDeadlineExceeded)
	assert.ErrorIs(t, err, errHidden)
}

func TestClickFirstEnabled(t *testing.T) {
	h := newTestHelper(t)
	page := mocks.NewMockPage()
	buttons := []*mocks.MockElement{
		mocks.NewMockElement("button >> nth=0"),
		mocks.NewMockElement("button >> nth=1"),
		mocks.NewMockElement("button >> nth=2"),
	}
	buttons[0].MockIsEnabled = func(ctx context.Context) (bool, error) { return false, nil }

	root := page.Element("button")
	root.MockCount = func(ctx context.Context) (int, error) { return len(buttons), nil }
	root.MockNth = func(i int) browser.Element { return buttons[i] }

	require.NoError(t, h.ClickFirstEnabled(context.Background(), page, "button"))
	assert.Empty(t, buttons[0].Clicks())
	assert.Len(t, buttons[1].Clicks(), 1)
	assert.Empty(t, buttons[2].Clicks())

	for _, b := range buttons {
		b.MockIsEnabled = func(ctx context.Context) (bool, error) { return false, nil }
	}
	err := h.ClickFirstEnabled(context.Background(), page, "button")
	assert.ErrorContains(t, err, "no enabled element")
}
