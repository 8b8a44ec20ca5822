// internal/interaction/fill.go
package interaction

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/pagewright/internal/browser"
	"github.com/xkilldash9x/pagewright/internal/retry"
)

// Fill waits for el to be visible and replaces its value with text. Failed
// attempts are followed by the fill retry delay before the next one.
func (h *Helper) Fill(ctx context.Context, el browser.Element, text string, opts ...Option) error {
	s := resolve(settings{
		retries: h.cfg.Retries,
		timeout: h.cfg.FillTimeout,
		delay:   h.cfg.FillRetryDelay,
	}, opts)

	h.logger.Debug("Filling element.", zap.String("selector", el.Selector()), zap.Int("text_length", len(text)))
	return retry.Do(ctx, h.policy("fill", el.Selector(), s), func(ctx context.Context, attempt int) error {
		if err := h.waitFor(ctx, el, browser.StateVisible, s.timeout); err != nil {
			return err
		}
		return h.act(ctx, s.timeout, func(ctx context.Context) error {
			return el.Fill(ctx, text)
		})
	})
}

// Input is the single-shot form of Fill: one visibility wait, one fill.
func (h *Helper) Input(ctx context.Context, el browser.Element, text string, opts ...Option) error {
	s := resolve(settings{timeout: h.cfg.SelectorTimeout}, opts)

	if err := h.waitFor(ctx, el, browser.StateVisible, s.timeout); err != nil {
		return fmt.Errorf("input failed for selector '%s': %w", el.Selector(), err)
	}
	if err := h.act(ctx, s.timeout, func(ctx context.Context) error { return el.Fill(ctx, text) }); err != nil {
		return fmt.Errorf("input failed for selector '%s': %w", el.Selector(), err)
	}
	return nil
}
