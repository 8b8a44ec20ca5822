// internal/interaction/assert.go
package interaction

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/pagewright/internal/browser"
)

// ErrAssertionFailed is wrapped by every check below whose observed state
// differs from the expected one.
var ErrAssertionFailed = errors.New("assertion failed")

// IsChecked reports whether the checkbox or radio input el is checked.
func (h *Helper) IsChecked(ctx context.Context, el browser.Element) (bool, error) {
	checked, err := el.IsChecked(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to read checked state of '%s': %w", el.Selector(), err)
	}
	return checked, nil
}

// SetChecked brings the checkbox el to the wanted state. It only acts when
// the current state differs.
func (h *Helper) SetChecked(ctx context.Context, el browser.Element, checked bool) error {
	current, err := h.IsChecked(ctx, el)
	if err != nil {
		return err
	}
	if current == checked {
		h.logger.Debug("Checkbox already in the desired state.", zap.String("selector", el.Selector()), zap.Bool("checked", checked))
		return nil
	}
	if err := el.SetChecked(ctx, checked); err != nil {
		return fmt.Errorf("failed to set checked=%t on '%s': %w", checked, el.Selector(), err)
	}
	return nil
}

// AssertText waits for el to be visible and compares its trimmed text
// content with the trimmed expected text.
func (h *Helper) AssertText(ctx context.Context, el browser.Element, expected string, opts ...Option) error {
	s := resolve(settings{timeout: h.cfg.SelectorTimeout}, opts)

	if err := h.waitFor(ctx, el, browser.StateVisible, s.timeout); err != nil {
		return fmt.Errorf("text assertion failed for locator: %s: %w", el.Selector(), err)
	}
	actual, err := el.TextContent(ctx)
	if err != nil {
		return fmt.Errorf("text assertion failed for locator: %s: %w", el.Selector(), err)
	}
	if strings.TrimSpace(actual) != strings.TrimSpace(expected) {
		return fmt.Errorf("text assertion failed for locator: %s. Expected %q, got %q: %w",
			el.Selector(), strings.TrimSpace(expected), strings.TrimSpace(actual), ErrAssertionFailed)
	}
	return nil
}

// VerifyColor waits for el to be visible and compares the computed value of
// a color property with expected. An empty property means background-color.
func (h *Helper) VerifyColor(ctx context.Context, el browser.Element, expected, property string, opts ...Option) error {
	s := resolve(settings{timeout: h.cfg.ElementTimeout}, opts)
	if property == "" {
		property = "background-color"
	}

	if err := h.waitFor(ctx, el, browser.StateVisible, s.timeout); err != nil {
		return err
	}
	actual, err := el.ComputedStyle(ctx, property)
	if err != nil {
		return fmt.Errorf("failed to read %s of '%s': %w", property, el.Selector(), err)
	}
	if strings.TrimSpace(actual) != expected {
		h.logger.Warn("Color verification failed.", zap.String("selector", el.Selector()),
			zap.String("property", property), zap.String("expected", expected), zap.String("actual", actual))
		return fmt.Errorf("expected %s of '%s' to be '%s', got '%s': %w",
			property, el.Selector(), expected, strings.TrimSpace(actual), ErrAssertionFailed)
	}
	return nil
}

// ExpectHiddenOrDisabled fails when el is both visible and enabled. A hidden
// element passes without its enabled state being read.
func (h *Helper) ExpectHiddenOrDisabled(ctx context.Context, el browser.Element, opts ...Option) error {
	s := resolve(settings{timeout: h.cfg.SelectorTimeout}, opts)
	checkCtx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	visible, err := el.IsVisible(checkCtx)
	if err != nil {
		return fmt.Errorf("failed to read visibility of '%s': %w", el.Selector(), err)
	}
	if !visible {
		return nil
	}
	enabled, err := el.IsEnabled(checkCtx)
	if err != nil {
		return fmt.Errorf("failed to read enabled state of '%s': %w", el.Selector(), err)
	}
	if enabled {
		return fmt.Errorf("'%s': button is visible and enabled, but expected it to be hidden or disabled: %w",
			el.Selector(), ErrAssertionFailed)
	}
	return nil
}
