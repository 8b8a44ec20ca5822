package cdpdriver

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/chromedp"
	jsoniter "github.com/json-iterator/go"

	"github.com/xkilldash9x/pagewright/internal/browser"
)

const statePollInterval = 100 * time.Millisecond

// element addresses the first match of a CSS selector, or the nth match when
// index is not negative. Every call queries the document again.
type element struct {
	page     *Page
	selector string
	index    int
}

var _ browser.Element = (*element)(nil)

func (e *element) Selector() string {
	if e.index < 0 {
		return e.selector
	}
	return fmt.Sprintf("%s >> nth=%d", e.selector, e.index)
}

// jsRef is a JavaScript expression evaluating to the element or null.
func (e *element) jsRef() string {
	quoted, _ := jsoniter.MarshalToString(e.selector)
	if e.index < 0 {
		return fmt.Sprintf("document.querySelector(%s)", quoted)
	}
	return fmt.Sprintf("document.querySelectorAll(%s)[%d]", quoted, e.index)
}

// query returns the selector and options that address the element in chromedp
// query actions.
func (e *element) query(opts ...chromedp.QueryOption) (string, []chromedp.QueryOption) {
	if e.index < 0 {
		return e.selector, append([]chromedp.QueryOption{chromedp.ByQuery}, opts...)
	}
	return e.jsRef(), append([]chromedp.QueryOption{chromedp.ByJSPath}, opts...)
}

func (e *element) WaitFor(ctx context.Context, state browser.WaitState) error {
	switch state {
	case browser.StateVisible:
		sel, opts := e.query()
		return e.page.run(ctx, chromedp.WaitVisible(sel, opts...))
	case browser.StateAttached:
		sel, opts := e.query()
		return e.page.run(ctx, chromedp.WaitReady(sel, opts...))
	case browser.StateDetached:
		return e.poll(ctx, fmt.Sprintf("!(%s)", e.jsRef()))
	case browser.StateHidden:
		return e.poll(ctx, fmt.Sprintf(`(() => {
			const el = %s;
			if (!el) return true;
			const rect = el.getBoundingClientRect();
			return rect.width === 0 || rect.height === 0 || getComputedStyle(el).visibility === 'hidden';
		})()`, e.jsRef()))
	default:
		return fmt.Errorf("unknown wait state %q", state)
	}
}

func (e *element) poll(ctx context.Context, predicate string) error {
	return e.page.run(ctx, chromedp.Poll(predicate, nil,
		chromedp.WithPollingInterval(statePollInterval),
		chromedp.WithPollingTimeout(0)))
}

func (e *element) node(ctx context.Context, force bool) (*cdp.Node, error) {
	wait := chromedp.NodeVisible
	if force {
		wait = chromedp.NodeReady
	}
	var nodes []*cdp.Node
	sel, opts := e.query(wait)
	if err := e.page.run(ctx, chromedp.Nodes(sel, &nodes, opts...)); err != nil {
		return nil, err
	}
	if len(nodes) == 0 {
		return nil, fmt.Errorf("selector %q did not return any nodes", e.Selector())
	}
	return nodes[0], nil
}

// Click dispatches a mouse click at the element's center. The cdp driver
// does not hold the button down, so opts.Delay is ignored.
func (e *element) Click(ctx context.Context, opts browser.ClickOptions) error {
	n, err := e.node(ctx, opts.Force)
	if err != nil {
		return err
	}
	button := opts.Button
	if button == "" {
		button = "left"
	}
	return e.page.run(ctx, chromedp.MouseClickNode(n, chromedp.Button(button)))
}

// DoubleClick dispatches two clicks at the element's center. Force skips the
// visibility wait, like Click.
func (e *element) DoubleClick(ctx context.Context, opts browser.ClickOptions) error {
	n, err := e.node(ctx, opts.Force)
	if err != nil {
		return err
	}
	button := opts.Button
	if button == "" {
		button = "left"
	}
	return e.page.run(ctx, chromedp.MouseClickNode(n, chromedp.Button(button), chromedp.ClickCount(2)))
}

func (e *element) Fill(ctx context.Context, text string) error {
	sel, opts := e.query()
	return e.page.run(ctx,
		chromedp.WaitVisible(sel, opts...),
		chromedp.Clear(sel, opts...),
		chromedp.SendKeys(sel, text, opts...),
	)
}

func (e *element) SetInputFiles(ctx context.Context, files []string) error {
	sel, opts := e.query()
	return e.page.run(ctx, chromedp.SetUploadFiles(sel, files, opts...))
}

// eval runs body with the element bound to el and decodes its result into
// out. A missing element is an error naming the selector.
func (e *element) eval(ctx context.Context, body string, out interface{}) error {
	quoted, _ := jsoniter.MarshalToString(e.Selector())
	script := fmt.Sprintf(`(() => {
		const el = %s;
		if (!el) throw new Error('no element matches ' + %s);
		%s
	})()`, e.jsRef(), quoted, body)
	return e.page.Evaluate(ctx, script, out)
}

func (e *element) IsEnabled(ctx context.Context) (bool, error) {
	var enabled bool
	if err := e.eval(ctx, "return !el.disabled;", &enabled); err != nil {
		return false, err
	}
	return enabled, nil
}

func (e *element) IsVisible(ctx context.Context) (bool, error) {
	var visible bool
	script := fmt.Sprintf(`(() => {
		const el = %s;
		if (!el) return false;
		const rect = el.getBoundingClientRect();
		return rect.width > 0 && rect.height > 0 && getComputedStyle(el).visibility !== 'hidden';
	})()`, e.jsRef())
	if err := e.page.Evaluate(ctx, script, &visible); err != nil {
		return false, err
	}
	return visible, nil
}

func (e *element) IsChecked(ctx context.Context) (bool, error) {
	var checked bool
	if err := e.eval(ctx, "return !!el.checked;", &checked); err != nil {
		return false, err
	}
	return checked, nil
}

// SetChecked clicks the input only when its state differs, so change
// handlers fire the way a user toggle would.
func (e *element) SetChecked(ctx context.Context, checked bool) error {
	current, err := e.IsChecked(ctx)
	if err != nil {
		return err
	}
	if current == checked {
		return nil
	}
	if err := e.Click(ctx, browser.ClickOptions{}); err != nil {
		return err
	}
	if current, err = e.IsChecked(ctx); err != nil {
		return err
	}
	if current != checked {
		return fmt.Errorf("clicking %q did not change its checked state", e.Selector())
	}
	return nil
}

func (e *element) TextContent(ctx context.Context) (string, error) {
	var text string
	if err := e.eval(ctx, "return el.textContent || '';", &text); err != nil {
		return "", err
	}
	return text, nil
}

func (e *element) ComputedStyle(ctx context.Context, property string) (string, error) {
	prop, _ := jsoniter.MarshalToString(property)
	var value string
	if err := e.eval(ctx, fmt.Sprintf("return getComputedStyle(el).getPropertyValue(%s);", prop), &value); err != nil {
		return "", err
	}
	return value, nil
}

func (e *element) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	sel, opts := e.query()
	if err := e.page.run(ctx, chromedp.Screenshot(sel, &buf, opts...)); err != nil {
		return nil, err
	}
	return buf, nil
}

func (e *element) Count(ctx context.Context) (int, error) {
	quoted, _ := jsoniter.MarshalToString(e.selector)
	var n int
	if err := e.page.Evaluate(ctx, fmt.Sprintf("document.querySelectorAll(%s).length", quoted), &n); err != nil {
		return 0, err
	}
	if e.index >= 0 {
		if e.index < n {
			return 1, nil
		}
		return 0, nil
	}
	return n, nil
}

func (e *element) Nth(i int) browser.Element {
	return &element{page: e.page, selector: e.selector, index: i}
}
