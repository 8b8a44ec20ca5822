package pwdriver

import (
	"context"
	"fmt"

	"github.com/playwright-community/playwright-go"

	"github.com/xkilldash9x/pagewright/internal/browser"
)

type element struct {
	selector string
	locator  playwright.Locator
}

var _ browser.Element = (*element)(nil)

var waitStates = map[browser.WaitState]*playwright.WaitForSelectorState{
	browser.StateVisible:  playwright.WaitForSelectorStateVisible,
	browser.StateHidden:   playwright.WaitForSelectorStateHidden,
	browser.StateAttached: playwright.WaitForSelectorStateAttached,
	browser.StateDetached: playwright.WaitForSelectorStateDetached,
}

func (e *element) Selector() string { return e.selector }

// timeout converts ctx's deadline into a playwright timeout; zero disables
// playwright's own default so ctx stays in charge.
func timeout(ctx context.Context) *float64 {
	return playwright.Float(browser.TimeoutMillis(ctx))
}

func (e *element) WaitFor(ctx context.Context, state browser.WaitState) error {
	pwState, ok := waitStates[state]
	if !ok {
		return fmt.Errorf("unknown wait state %q", state)
	}
	return mapErr(do(ctx, func() error {
		return e.locator.WaitFor(playwright.LocatorWaitForOptions{State: pwState, Timeout: timeout(ctx)})
	}))
}

func (e *element) Click(ctx context.Context, opts browser.ClickOptions) error {
	clickOpts := playwright.LocatorClickOptions{
		Force:   playwright.Bool(opts.Force),
		Timeout: timeout(ctx),
	}
	if opts.Button != "" {
		button := playwright.MouseButton(opts.Button)
		clickOpts.Button = &button
	}
	if opts.Delay > 0 {
		clickOpts.Delay = playwright.Float(float64(opts.Delay.Milliseconds()))
	}
	return mapErr(do(ctx, func() error { return e.locator.Click(clickOpts) }))
}

func (e *element) DoubleClick(ctx context.Context, opts browser.ClickOptions) error {
	dblOpts := playwright.LocatorDblclickOptions{
		Force:   playwright.Bool(opts.Force),
		Timeout: timeout(ctx),
	}
	if opts.Button != "" {
		button := playwright.MouseButton(opts.Button)
		dblOpts.Button = &button
	}
	if opts.Delay > 0 {
		dblOpts.Delay = playwright.Float(float64(opts.Delay.Milliseconds()))
	}
	return mapErr(do(ctx, func() error { return e.locator.Dblclick(dblOpts) }))
}

func (e *element) Fill(ctx context.Context, text string) error {
	return mapErr(do(ctx, func() error {
		return e.locator.Fill(text, playwright.LocatorFillOptions{Timeout: timeout(ctx)})
	}))
}

func (e *element) SetInputFiles(ctx context.Context, files []string) error {
	return mapErr(do(ctx, func() error {
		return e.locator.SetInputFiles(files, playwright.LocatorSetInputFilesOptions{Timeout: timeout(ctx)})
	}))
}

func (e *element) IsEnabled(ctx context.Context) (bool, error) {
	enabled, err := call(ctx, func() (bool, error) {
		return e.locator.IsEnabled(playwright.LocatorIsEnabledOptions{Timeout: timeout(ctx)})
	})
	return enabled, mapErr(err)
}

func (e *element) IsVisible(ctx context.Context) (bool, error) {
	visible, err := call(ctx, func() (bool, error) { return e.locator.IsVisible() })
	return visible, mapErr(err)
}

func (e *element) IsChecked(ctx context.Context) (bool, error) {
	checked, err := call(ctx, func() (bool, error) {
		return e.locator.IsChecked(playwright.LocatorIsCheckedOptions{Timeout: timeout(ctx)})
	})
	return checked, mapErr(err)
}

func (e *element) SetChecked(ctx context.Context, checked bool) error {
	return mapErr(do(ctx, func() error {
		return e.locator.SetChecked(checked, playwright.LocatorSetCheckedOptions{Timeout: timeout(ctx)})
	}))
}

func (e *element) TextContent(ctx context.Context) (string, error) {
	text, err := call(ctx, func() (string, error) {
		return e.locator.TextContent(playwright.LocatorTextContentOptions{Timeout: timeout(ctx)})
	})
	return text, mapErr(err)
}

func (e *element) ComputedStyle(ctx context.Context, property string) (string, error) {
	value, err := call(ctx, func() (string, error) {
		v, err := e.locator.Evaluate(
			"(el, prop) => getComputedStyle(el).getPropertyValue(prop)",
			property,
			playwright.LocatorEvaluateOptions{Timeout: timeout(ctx)},
		)
		if err != nil {
			return "", err
		}
		s, _ := v.(string)
		return s, nil
	})
	return value, mapErr(err)
}

func (e *element) Screenshot(ctx context.Context) ([]byte, error) {
	buf, err := call(ctx, func() ([]byte, error) {
		return e.locator.Screenshot(playwright.LocatorScreenshotOptions{Timeout: timeout(ctx)})
	})
	return buf, mapErr(err)
}

func (e *element) Count(ctx context.Context) (int, error) {
	n, err := call(ctx, e.locator.Count)
	return n, mapErr(err)
}

func (e *element) Nth(i int) browser.Element {
	return &element{
		selector: fmt.Sprintf("%s >> nth=%d", e.selector, i),
		locator:  e.locator.Nth(i),
	}
}
