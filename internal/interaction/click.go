// internal/interaction/click.go
package interaction

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/pagewright/internal/browser"
	"github.com/xkilldash9x/pagewright/internal/retry"
)

// Click waits for el to be visible and force-clicks it, retrying on failure.
// After a successful click it pauses for the configured settle delay so UI
// transitions can complete.
//
// Parameters:
//   - ctx: bounds the whole operation, including every attempt and the settle pause.
//   - el: the element to click.
//   - opts: per-call overrides of retries, timeout and settle.
//
// Returns a *retry.ExhaustedError naming the selector and attempt count when
// every attempt failed.
func (h *Helper) Click(ctx context.Context, el browser.Element, opts ...Option) error {
	s := resolve(settings{
		retries: h.cfg.Retries,
		timeout: h.cfg.ClickTimeout,
		settle:  h.cfg.ClickSettle,
	}, opts)

	err := retry.Do(ctx, h.policy("click", el.Selector(), s), func(ctx context.Context, attempt int) error {
		if err := h.waitFor(ctx, el, browser.StateVisible, s.timeout); err != nil {
			return err
		}
		return h.act(ctx, s.timeout, func(ctx context.Context) error {
			return el.Click(ctx, browser.ClickOptions{Force: true})
		})
	})
	if err != nil {
		return err
	}
	return retry.Pause(ctx, s.settle)
}

// DoubleClick waits for el to be visible and double-clicks it, retrying on
// failure, then pauses for the double-click settle delay.
func (h *Helper) DoubleClick(ctx context.Context, el browser.Element, opts ...Option) error {
	s := resolve(settings{
		retries: h.cfg.Retries,
		timeout: h.cfg.ClickTimeout,
		settle:  h.cfg.DoubleClickSettle,
	}, opts)

	err := retry.Do(ctx, h.policy("double click", el.Selector(), s), func(ctx context.Context, attempt int) error {
		if err := h.waitFor(ctx, el, browser.StateVisible, s.timeout); err != nil {
			return err
		}
		return h.act(ctx, s.timeout, func(ctx context.Context) error {
			return el.DoubleClick(ctx, browser.ClickOptions{Force: true, Button: "left"})
		})
	})
	if err != nil {
		return err
	}
	return retry.Pause(ctx, s.settle)
}

// ClickSelector resolves selector on page and left-clicks it once it is
// attached. Unlike the other variants it refuses to act on a closed page:
// that surfaces immediately as retry.ErrPreconditionViolated.
func (h *Helper) ClickSelector(ctx context.Context, page browser.Page, selector string, opts ...Option) error {
	s := resolve(settings{
		retries: h.cfg.Retries,
		timeout: h.cfg.SelectorClickTimeout,
	}, opts)
	el := page.Locator(selector)

	closed := func() error {
		return &retry.PreconditionError{Op: "click", Target: selector, Err: browser.ErrClosed}
	}

	return retry.Do(ctx, h.policy("click", selector, s), func(ctx context.Context, attempt int) error {
		if page.IsClosed() {
			return closed()
		}
		if err := h.waitFor(ctx, el, browser.StateAttached, s.timeout); err != nil {
			if errors.Is(err, browser.ErrClosed) || page.IsClosed() {
				return closed()
			}
			return err
		}
		err := h.act(ctx, s.timeout, func(ctx context.Context) error {
			return el.Click(ctx, browser.ClickOptions{Button: "left", Delay: h.cfg.PressDelay})
		})
		if err != nil && (errors.Is(err, browser.ErrClosed) || page.IsClosed()) {
			return closed()
		}
		return err
	})
}

// TryClick force-clicks el if it becomes visible, retrying like Click but
// with the shorter double-click settle. It never fails the caller: an
// element that is still not clickable after the last attempt is logged and
// reported as false.
func (h *Helper) TryClick(ctx context.Context, el browser.Element, opts ...Option) bool {
	s := resolve(settings{
		retries: h.cfg.Retries,
		timeout: h.cfg.ClickTimeout,
		settle:  h.cfg.DoubleClickSettle,
	}, opts)

	err := retry.Do(ctx, h.policy("try click", el.Selector(), s), func(ctx context.Context, attempt int) error {
		if err := h.waitFor(ctx, el, browser.StateVisible, s.timeout); err != nil {
			return err
		}
		return h.act(ctx, s.timeout, func(ctx context.Context) error {
			return el.Click(ctx, browser.ClickOptions{Force: true})
		})
	})
	if err != nil {
		h.logger.Warn("Element not clickable, skipping.", zap.String("selector", el.Selector()), zap.Error(err))
		return false
	}
	_ = retry.Pause(ctx, s.settle)
	return true
}

// ClickFirstEnabled clicks the first element matching selector that reports
// enabled.
func (h *Helper) ClickFirstEnabled(ctx context.Context, page browser.Page, selector string) error {
	el := page.Locator(selector)
	count, err := el.Count(ctx)
	if err != nil {
		return fmt.Errorf("failed to count elements for selector '%s': %w", selector, err)
	}
	for i := 0; i < count; i++ {
		candidate := el.Nth(i)
		enabled, err := candidate.IsEnabled(ctx)
		if err != nil {
			h.logger.Debug("Could not read enabled state.", zap.String("selector", selector), zap.Int("index", i), zap.Error(err))
			continue
		}
		if !enabled {
			continue
		}
		if err := candidate.Click(ctx, browser.ClickOptions{}); err != nil {
			return fmt.Errorf("click action failed for selector '%s' (index %d): %w", selector, i, err)
		}
		return nil
	}
	return fmt.Errorf("no enabled element matches selector '%s' (%d candidates)", selector, count)
}

func (h *Helper) policy(op, target string, s settings) retry.Policy {
	return retry.Policy{
		Op:       op,
		Target:   target,
		Attempts: s.retries,
		Delay:    s.delay,
		Logger:   h.logger,
	}
}

func (h *Helper) waitFor(ctx context.Context, el browser.Element, state browser.WaitState, timeout time.Duration) error {
	waitCtx, cancel := withTimeout(ctx, timeout)
	defer cancel()
	if err := el.WaitFor(waitCtx, state); err != nil {
		return fmt.Errorf("element '%s' not %s within %v: %w", el.Selector(), state, timeout, err)
	}
	return nil
}

func (h *Helper) act(ctx context.Context, timeout time.Duration, action func(context.Context) error) error {
	actCtx, cancel := withTimeout(ctx, timeout)
	defer cancel()
	return action(actCtx)
}
