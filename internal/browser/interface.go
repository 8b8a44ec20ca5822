// Package browser defines the driver-neutral page and element contracts the
// helpers are written against, plus the Manager that owns a driver's lifetime.
package browser

import (
	"context"
	"time"
)

// WaitState is a target condition for an element wait.
type WaitState string

const (
	StateVisible  WaitState = "visible"
	StateHidden   WaitState = "hidden"
	StateAttached WaitState = "attached"
	StateDetached WaitState = "detached"
)

// ClickOptions tunes a single click.
type ClickOptions struct {
	// Force skips actionability checks where the driver supports it.
	Force bool
	// Delay is the time between mousedown and mouseup.
	Delay time.Duration
	// Button is "left", "right" or "middle". Empty means left.
	Button string
}

// Element is an opaque reference to DOM node(s) matched by a selector. It is
// resolved lazily on every call, so it survives re-renders.
type Element interface {
	// Selector describes the element for logs and errors.
	Selector() string
	WaitFor(ctx context.Context, state WaitState) error
	Click(ctx context.Context, opts ClickOptions) error
	DoubleClick(ctx context.Context, opts ClickOptions) error
	Fill(ctx context.Context, text string) error
	SetInputFiles(ctx context.Context, files []string) error
	IsEnabled(ctx context.Context) (bool, error)
	// IsVisible reports the current state without waiting. A missing element
	// is not visible.
	IsVisible(ctx context.Context) (bool, error)
	IsChecked(ctx context.Context) (bool, error)
	// SetChecked checks or unchecks a checkbox or radio input.
	SetChecked(ctx context.Context, checked bool) error
	TextContent(ctx context.Context) (string, error)
	// ComputedStyle returns the computed value of a CSS property, such as
	// "background-color".
	ComputedStyle(ctx context.Context, property string) (string, error)
	Screenshot(ctx context.Context) ([]byte, error)
	Count(ctx context.Context) (int, error)
	// Nth narrows the reference to the i-th match, zero-based.
	Nth(i int) Element
}

// Request is a network request observed on a page.
type Request interface {
	// ID is stable across the request, finished and failed events of one request.
	ID() string
	URL() string
	Method() string
	// ResourceType is lower case: "xhr", "fetch", "image", "document" and so on.
	ResourceType() string
}

// Response is a network response observed on a page.
type Response interface {
	URL() string
	Status() int
	// OK reports a 2xx status.
	OK() bool
}

// Dialog is a native alert, confirm, prompt or beforeunload dialog.
type Dialog interface {
	Type() string
	Message() string
	Accept(promptText string) error
	Dismiss() error
}

// FileChooser is an intercepted native file picker.
type FileChooser interface {
	SetFiles(files []string) error
}

// Unsubscribe detaches a listener. Calling it more than once is a no-op.
type Unsubscribe func()

// Page is one browser tab.
type Page interface {
	ID() string
	Locator(selector string) Element
	Goto(ctx context.Context, url string) error
	URL() string
	IsClosed() bool
	// WaitForNetworkIdle blocks until the driver reports no in-flight
	// requests for its quiescence window.
	WaitForNetworkIdle(ctx context.Context) error
	// Evaluate runs a JavaScript expression and decodes its JSON-compatible
	// result into out. out may be nil.
	Evaluate(ctx context.Context, expression string, out interface{}) error
	Screenshot(ctx context.Context, fullPage bool) ([]byte, error)

	OnRequest(fn func(Request)) Unsubscribe
	OnRequestFinished(fn func(Request)) Unsubscribe
	OnRequestFailed(fn func(Request)) Unsubscribe
	OnResponse(fn func(Response)) Unsubscribe
	OnDialog(fn func(Dialog)) Unsubscribe
	OnFileChooser(fn func(FileChooser)) Unsubscribe

	Close(ctx context.Context) error
}

// Driver launches a browser and opens pages in it.
type Driver interface {
	Name() string
	NewPage(ctx context.Context) (Page, error)
	Close(ctx context.Context) error
}
