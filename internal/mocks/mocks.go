// File: internal/mocks/mocks.go
package mocks

import (
	"context"
	"sync"
	"sync/atomic"

	jsoniter "github.com/json-iterator/go"
	"github.com/stretchr/testify/mock"

	"github.com/xkilldash9x/pagewright/internal/browser"
)

// Event names used for listener bookkeeping.
const (
	EventRequest         = "request"
	EventRequestFinished = "requestfinished"
	EventRequestFailed   = "requestfailed"
	EventResponse        = "response"
	EventDialog          = "dialog"
	EventFileChooser     = "filechooser"
)

// -- Element Mock --

// MockElement implements browser.Element. Every method records its call and
// then defers to the matching Mock* override when one is set. Without an
// override the call succeeds.
type MockElement struct {
	Sel string

	MockWaitFor       func(ctx context.Context, state browser.WaitState) error
	MockClick         func(ctx context.Context, opts browser.ClickOptions) error
	MockDoubleClick   func(ctx context.Context, opts browser.ClickOptions) error
	MockFill          func(ctx context.Context, text string) error
	MockSetInputFiles func(ctx context.Context, files []string) error
	MockIsEnabled     func(ctx context.Context) (bool, error)
	MockIsVisible     func(ctx context.Context) (bool, error)
	MockIsChecked     func(ctx context.Context) (bool, error)
	MockSetChecked    func(ctx context.Context, checked bool) error
	// MockTextContent defaults to the last filled value.
	MockTextContent   func(ctx context.Context) (string, error)
	MockComputedStyle func(ctx context.Context, property string) (string, error)
	MockScreenshot    func(ctx context.Context) ([]byte, error)
	MockCount         func(ctx context.Context) (int, error)
	MockNth           func(i int) browser.Element

	mu           sync.Mutex
	waits        []browser.WaitState
	clicks       []browser.ClickOptions
	doubleClicks []browser.ClickOptions
	checks       []bool
	checked      bool
	fills        []string
	files        [][]string
	value        string
}

// NewMockElement creates an element mock for selector.
func NewMockElement(selector string) *MockElement {
	return &MockElement{Sel: selector}
}

func (e *MockElement) Selector() string { return e.Sel }

func (e *MockElement) WaitFor(ctx context.Context, state browser.WaitState) error {
	e.mu.Lock()
	e.waits = append(e.waits, state)
	e.mu.Unlock()
	if e.MockWaitFor != nil {
		return e.MockWaitFor(ctx, state)
	}
	return ctx.Err()
}

func (e *MockElement) Click(ctx context.Context, opts browser.ClickOptions) error {
	if e.MockClick != nil {
		if err := e.MockClick(ctx, opts); err != nil {
			return err
		}
	}
	e.mu.Lock()
	e.clicks = append(e.clicks, opts)
	e.mu.Unlock()
	return nil
}

func (e *MockElement) DoubleClick(ctx context.Context, opts browser.ClickOptions) error {
	if e.MockDoubleClick != nil {
		if err := e.MockDoubleClick(ctx, opts); err != nil {
			return err
		}
	}
	e.mu.Lock()
	e.doubleClicks = append(e.doubleClicks, opts)
	e.mu.Unlock()
	return nil
}

func (e *MockElement) Fill(ctx context.Context, text string) error {
	if e.MockFill != nil {
		if err := e.MockFill(ctx, text); err != nil {
			return err
		}
	}
	e.mu.Lock()
	e.fills = append(e.fills, text)
	e.value = text
	e.mu.Unlock()
	return nil
}

func (e *MockElement) SetInputFiles(ctx context.Context, files []string) error {
	if e.MockSetInputFiles != nil {
		if err := e.MockSetInputFiles(ctx, files); err != nil {
			return err
		}
	}
	e.mu.Lock()
	e.files = append(e.files, files)
	e.mu.Unlock()
	return nil
}

func (e *MockElement) IsEnabled(ctx context.Context) (bool, error) {
	if e.MockIsEnabled != nil {
		return e.MockIsEnabled(ctx)
	}
	return true, nil
}

func (e *MockElement) IsVisible(ctx context.Context) (bool, error) {
	if e.MockIsVisible != nil {
		return e.MockIsVisible(ctx)
	}
	return true, nil
}

func (e *MockElement) IsChecked(ctx context.Context) (bool, error) {
	if e.MockIsChecked != nil {
		return e.MockIsChecked(ctx)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.checked, nil
}

func (e *MockElement) SetChecked(ctx context.Context, checked bool) error {
	if e.MockSetChecked != nil {
		if err := e.MockSetChecked(ctx, checked); err != nil {
			return err
		}
	}
	e.mu.Lock()
	e.checks = append(e.checks, checked)
	e.checked = checked
	e.mu.Unlock()
	return nil
}

func (e *MockElement) TextContent(ctx context.Context) (string, error) {
	if e.MockTextContent != nil {
		return e.MockTextContent(ctx)
	}
	return e.Value(), nil
}

func (e *MockElement) ComputedStyle(ctx context.Context, property string) (string, error) {
	if e.MockComputedStyle != nil {
		return e.MockComputedStyle(ctx, property)
	}
	return "", nil
}

func (e *MockElement) Screenshot(ctx context.Context) ([]byte, error) {
	if e.MockScreenshot != nil {
		return e.MockScreenshot(ctx)
	}
	return nil, nil
}

func (e *MockElement) Count(ctx context.Context) (int, error) {
	if e.MockCount != nil {
		return e.MockCount(ctx)
	}
	return 1, nil
}

func (e *MockElement) Nth(i int) browser.Element {
	if e.MockNth != nil {
		return e.MockNth(i)
	}
	return e
}

// Waits returns the states of every WaitFor call so far.
func (e *MockElement) Waits() []browser.WaitState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]browser.WaitState(nil), e.waits...)
}

// Clicks returns the options of every successful click.
func (e *MockElement) Clicks() []browser.ClickOptions {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]browser.ClickOptions(nil), e.clicks...)
}

// DoubleClicks returns the options of every successful double click.
func (e *MockElement) DoubleClicks() []browser.ClickOptions {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]browser.ClickOptions(nil), e.doubleClicks...)
}

// Checks returns the requested state of every successful SetChecked.
func (e *MockElement) Checks() []bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]bool(nil), e.checks...)
}

// SetCheckedState sets the checked state without recording a SetChecked call.
func (e *MockElement) SetCheckedState(checked bool) {
	e.mu.Lock()
	e.checked = checked
	e.mu.Unlock()
}

// Fills returns the text of every successful fill.
func (e *MockElement) Fills() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.fills...)
}

// Value is the text of the last successful fill.
func (e *MockElement) Value() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.value
}

// Files returns the file lists of every successful SetInputFiles.
func (e *MockElement) Files() [][]string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([][]string(nil), e.files...)
}

// -- Page Mock --

// MockPage implements browser.Page with a scriptable event bus. Tests drive
// events through the Emit* methods and inspect ListenerCount for leaks.
type MockPage struct {
	PageID string

	MockGoto        func(ctx context.Context, url string) error
	MockNetworkIdle func(ctx context.Context) error
	// MockEvaluate returns a value that is round-tripped through JSON into out.
	MockEvaluate   func(ctx context.Context, expression string) (interface{}, error)
	MockScreenshot func(ctx context.Context, fullPage bool) ([]byte, error)

	closed atomic.Bool

	mu        sync.Mutex
	url       string
	elements  map[string]*MockElement
	listeners map[string]map[int]interface{}
	nextID    int
}

// NewMockPage creates an empty open page.
func NewMockPage() *MockPage {
	return &MockPage{
		PageID:    "mock-page",
		elements:  make(map[string]*MockElement),
		listeners: make(map[string]map[int]interface{}),
	}
}

func (p *MockPage) ID() string { return p.PageID }

// Element returns the mock behind selector, creating it on first use.
func (p *MockPage) Element(selector string) *MockElement {
	p.mu.Lock()
	defer p.mu.Unlock()
	el, ok := p.elements[selector]
	if !ok {
		el = NewMockElement(selector)
		p.elements[selector] = el
	}
	return el
}

func (p *MockPage) Locator(selector string) browser.Element { return p.Element(selector) }

func (p *MockPage) Goto(ctx context.Context, url string) error {
	if p.MockGoto != nil {
		if err := p.MockGoto(ctx, url); err != nil {
			return err
		}
	}
	p.mu.Lock()
	p.url = url
	p.mu.Unlock()
	return nil
}

func (p *MockPage) URL() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url
}

func (p *MockPage) IsClosed() bool { return p.closed.Load() }

func (p *MockPage) WaitForNetworkIdle(ctx context.Context) error {
	if p.MockNetworkIdle != nil {
		return p.MockNetworkIdle(ctx)
	}
	return nil
}

func (p *MockPage) Evaluate(ctx context.Context, expression string, out interface{}) error {
	if p.closed.Load() {
		return browser.ErrClosed
	}
	if p.MockEvaluate == nil {
		return nil
	}
	result, err := p.MockEvaluate(ctx, expression)
	if err != nil || out == nil {
		return err
	}
	raw, err := jsoniter.Marshal(result)
	if err != nil {
		return err
	}
	return jsoniter.Unmarshal(raw, out)
}

func (p *MockPage) Screenshot(ctx context.Context, fullPage bool) ([]byte, error) {
	if p.MockScreenshot != nil {
		return p.MockScreenshot(ctx, fullPage)
	}
	return nil, nil
}

func (p *MockPage) Close(ctx context.Context) error {
	p.closed.Store(true)
	return nil
}

// SetClosed marks the page closed or open.
func (p *MockPage) SetClosed(closed bool) { p.closed.Store(closed) }

func (p *MockPage) subscribe(event string, fn interface{}) browser.Unsubscribe {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.listeners[event] == nil {
		p.listeners[event] = make(map[int]interface{})
	}
	id := p.nextID
	p.nextID++
	p.listeners[event][id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			p.mu.Lock()
			delete(p.listeners[event], id)
			p.mu.Unlock()
		})
	}
}

func (p *MockPage) handlers(event string) []interface{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]interface{}, 0, len(p.listeners[event]))
	for _, fn := range p.listeners[event] {
		out = append(out, fn)
	}
	return out
}

// ListenerCount reports how many listeners are attached for event.
func (p *MockPage) ListenerCount(event string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.listeners[event])
}

// TotalListeners reports the number of listeners across all events.
func (p *MockPage) TotalListeners() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, l := range p.listeners {
		n += len(l)
	}
	return n
}

func (p *MockPage) OnRequest(fn func(browser.Request)) browser.Unsubscribe {
	return p.subscribe(EventRequest, fn)
}

func (p *MockPage) OnRequestFinished(fn func(browser.Request)) browser.Unsubscribe {
	return p.subscribe(EventRequestFinished, fn)
}

func (p *MockPage) OnRequestFailed(fn func(browser.Request)) browser.Unsubscribe {
	return p.subscribe(EventRequestFailed, fn)
}

func (p *MockPage) OnResponse(fn func(browser.Response)) browser.Unsubscribe {
	return p.subscribe(EventResponse, fn)
}

func (p *MockPage) OnDialog(fn func(browser.Dialog)) browser.Unsubscribe {
	return p.subscribe(EventDialog, fn)
}

func (p *MockPage) OnFileChooser(fn func(browser.FileChooser)) browser.Unsubscribe {
	return p.subscribe(EventFileChooser, fn)
}

func (p *MockPage) emitRequest(event string, r browser.Request) {
	for _, h := range p.handlers(event) {
		h.(func(browser.Request))(r)
	}
}

func (p *MockPage) EmitRequest(r browser.Request)         { p.emitRequest(EventRequest, r) }
func (p *MockPage) EmitRequestFinished(r browser.Request) { p.emitRequest(EventRequestFinished, r) }
func (p *MockPage) EmitRequestFailed(r browser.Request)   { p.emitRequest(EventRequestFailed, r) }

func (p *MockPage) EmitResponse(r browser.Response) {
	for _, h := range p.handlers(EventResponse) {
		h.(func(browser.Response))(r)
	}
}

func (p *MockPage) EmitDialog(d browser.Dialog) {
	for _, h := range p.handlers(EventDialog) {
		h.(func(browser.Dialog))(d)
	}
}

func (p *MockPage) EmitFileChooser(fc browser.FileChooser) {
	for _, h := range p.handlers(EventFileChooser) {
		h.(func(browser.FileChooser))(fc)
	}
}

// -- Network Event Mocks --

// MockRequest is a static browser.Request.
type MockRequest struct {
	RequestID string
	RawURL    string
	Verb      string
	Kind      string
}

func (r MockRequest) ID() string           { return r.RequestID }
func (r MockRequest) URL() string          { return r.RawURL }
func (r MockRequest) Method() string       { return r.Verb }
func (r MockRequest) ResourceType() string { return r.Kind }

// MockResponse is a static browser.Response.
type MockResponse struct {
	RawURL     string
	StatusCode int
}

func (r MockResponse) URL() string { return r.RawURL }
func (r MockResponse) Status() int { return r.StatusCode }
func (r MockResponse) OK() bool    { return r.StatusCode >= 200 && r.StatusCode < 300 }

// -- Dialog and File Chooser Mocks --

// MockDialog records how it was answered.
type MockDialog struct {
	Kind string
	Text string

	mu         sync.Mutex
	accepted   bool
	dismissed  bool
	promptText string
}

func (d *MockDialog) Type() string    { return d.Kind }
func (d *MockDialog) Message() string { return d.Text }

func (d *MockDialog) Accept(promptText string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.accepted = true
	d.promptText = promptText
	return nil
}

func (d *MockDialog) Dismiss() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dismissed = true
	return nil
}

// Outcome reports whether the dialog was accepted, dismissed, and with what text.
func (d *MockDialog) Outcome() (accepted, dismissed bool, promptText string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.accepted, d.dismissed, d.promptText
}

// MockFileChooser records the files it was given.
type MockFileChooser struct {
	Err error

	mu    sync.Mutex
	files []string
}

func (fc *MockFileChooser) SetFiles(files []string) error {
	if fc.Err != nil {
		return fc.Err
	}
	fc.mu.Lock()
	defer fc.mu.Unlock()
	fc.files = append([]string(nil), files...)
	return nil
}

func (fc *MockFileChooser) Files() []string {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	return append([]string(nil), fc.files...)
}

// -- Driver Mock --

// MockDriver mocks browser.Driver with testify expectations.
type MockDriver struct {
	mock.Mock
}

func (m *MockDriver) Name() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockDriver) NewPage(ctx context.Context) (browser.Page, error) {
	args := m.Called(ctx)
	page, _ := args.Get(0).(browser.Page)
	return page, args.Error(1)
}

func (m *MockDriver) Close(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}
