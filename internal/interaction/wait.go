// internal/interaction/wait.go
package interaction

import (
	"context"
	"fmt"

	"github.com/xkilldash9x/pagewright/internal/browser"
	"github.com/xkilldash9x/pagewright/internal/retry"
)

// WaitForSelector waits for selector to become visible on page and returns
// the resolved element.
func (h *Helper) WaitForSelector(ctx context.Context, page browser.Page, selector string, opts ...Option) (browser.Element, error) {
	s := resolve(settings{timeout: h.cfg.SelectorTimeout}, opts)
	el := page.Locator(selector)

	waitCtx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()
	if err := el.WaitFor(waitCtx, browser.StateVisible); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("wait for selector '%s' cancelled: %w", selector, ctx.Err())
		}
		return nil, &retry.DeadlineError{
			Op:      "selector " + selector,
			Timeout: s.timeout,
			Last:    err,
			Message: "Timeout waiting for selector: " + selector,
		}
	}
	return el, nil
}

// WaitForElement waits for el to reach state.
func (h *Helper) WaitForElement(ctx context.Context, el browser.Element, state browser.WaitState, opts ...Option) error {
	s := resolve(settings{timeout: h.cfg.ElementTimeout}, opts)

	waitCtx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()
	if err := el.WaitFor(waitCtx, state); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("wait for '%s' to be %s cancelled: %w", el.Selector(), state, ctx.Err())
		}
		return &retry.DeadlineError{
			Op:      fmt.Sprintf("state %q for '%s'", state, el.Selector()),
			Timeout: s.timeout,
			Last:    err,
		}
	}
	return nil
}
