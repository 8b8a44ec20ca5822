package pwdriver

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"github.com/playwright-community/playwright-go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/pagewright/internal/browser"
)

// Page adapts a playwright page. One native handler per event is attached at
// creation and fans out to subscribers, which keeps unsubscribe exact.
type Page struct {
	id     string
	pwCtx  playwright.BrowserContext
	page   playwright.Page
	logger *zap.Logger

	// playwright requests carry no ID; one is assigned on the request event.
	reqMu  sync.Mutex
	reqIDs map[playwright.Request]string

	requests  browser.Listeners[browser.Request]
	finished  browser.Listeners[browser.Request]
	failed    browser.Listeners[browser.Request]
	responses browser.Listeners[browser.Response]
	dialogs   browser.Listeners[browser.Dialog]
	choosers  browser.Listeners[browser.FileChooser]

	closeOnce sync.Once
	closeErr  error
}

var _ browser.Page = (*Page)(nil)

func newPage(id string, pwCtx playwright.BrowserContext, page playwright.Page, logger *zap.Logger) *Page {
	p := &Page{
		id:     id,
		pwCtx:  pwCtx,
		page:   page,
		logger: logger.With(zap.String("page_id", id)),
		reqIDs: make(map[playwright.Request]string),
	}

	page.OnRequest(func(r playwright.Request) {
		p.requests.Emit(p.request(r, false))
	})
	page.OnRequestFinished(func(r playwright.Request) {
		p.finished.Emit(p.request(r, true))
	})
	page.OnRequestFailed(func(r playwright.Request) {
		p.failed.Emit(p.request(r, true))
	})
	page.OnResponse(func(r playwright.Response) {
		p.responses.Emit(&response{r})
	})
	page.OnDialog(func(d playwright.Dialog) {
		if p.dialogs.Len() == 0 {
			// Playwright auto-dismisses dialogs only when no handler is attached.
			_ = d.Dismiss()
			return
		}
		p.dialogs.Emit(&dialog{d})
	})
	page.OnFileChooser(func(fc playwright.FileChooser) {
		p.choosers.Emit(&fileChooser{fc})
	})
	return p
}

// request wraps r with a stable ID. done releases the ID after use.
func (p *Page) request(r playwright.Request, done bool) *request {
	p.reqMu.Lock()
	defer p.reqMu.Unlock()
	id, ok := p.reqIDs[r]
	if !ok {
		id = uuid.NewString()
		p.reqIDs[r] = id
	}
	if done {
		delete(p.reqIDs, r)
	}
	return &request{id: id, req: r}
}

func (p *Page) ID() string { return p.id }

func (p *Page) Locator(selector string) browser.Element {
	return &element{selector: selector, locator: p.page.Locator(selector)}
}

func (p *Page) Goto(ctx context.Context, url string) error {
	err := do(ctx, func() error {
		opts := playwright.PageGotoOptions{WaitUntil: playwright.WaitUntilStateLoad}
		if ms := browser.TimeoutMillis(ctx); ms > 0 {
			opts.Timeout = playwright.Float(ms)
		}
		_, err := p.page.Goto(url, opts)
		return err
	})
	if err != nil {
		return fmt.Errorf("navigation to '%s' failed: %w", url, mapErr(err))
	}
	return nil
}

func (p *Page) URL() string { return p.page.URL() }

func (p *Page) IsClosed() bool { return p.page.IsClosed() }

func (p *Page) WaitForNetworkIdle(ctx context.Context) error {
	return mapErr(do(ctx, func() error {
		return p.page.WaitForLoadState(playwright.PageWaitForLoadStateOptions{
			State:   playwright.LoadStateNetworkidle,
			Timeout: timeout(ctx),
		})
	}))
}

// Evaluate round-trips the playwright result through JSON into out.
func (p *Page) Evaluate(ctx context.Context, expression string, out interface{}) error {
	result, err := call(ctx, func() (interface{}, error) { return p.page.Evaluate(expression) })
	if err != nil {
		return mapErr(err)
	}
	if out == nil {
		return nil
	}
	raw, err := jsoniter.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to encode evaluation result: %w", err)
	}
	return jsoniter.Unmarshal(raw, out)
}

func (p *Page) Screenshot(ctx context.Context, fullPage bool) ([]byte, error) {
	buf, err := call(ctx, func() ([]byte, error) {
		return p.page.Screenshot(playwright.PageScreenshotOptions{
			FullPage: playwright.Bool(fullPage),
			Timeout:  timeout(ctx),
		})
	})
	return buf, mapErr(err)
}

func (p *Page) OnRequest(fn func(browser.Request)) browser.Unsubscribe {
	return p.requests.Add(fn)
}

func (p *Page) OnRequestFinished(fn func(browser.Request)) browser.Unsubscribe {
	return p.finished.Add(fn)
}

func (p *Page) OnRequestFailed(fn func(browser.Request)) browser.Unsubscribe {
	return p.failed.Add(fn)
}

func (p *Page) OnResponse(fn func(browser.Response)) browser.Unsubscribe {
	return p.responses.Add(fn)
}

func (p *Page) OnDialog(fn func(browser.Dialog)) browser.Unsubscribe {
	return p.dialogs.Add(fn)
}

func (p *Page) OnFileChooser(fn func(browser.FileChooser)) browser.Unsubscribe {
	return p.choosers.Add(fn)
}

// Close closes the page and its browser context. Later calls return the
// first result.
func (p *Page) Close(ctx context.Context) error {
	p.closeOnce.Do(func() {
		p.closeErr = do(ctx, func() error {
			if err := p.page.Close(); err != nil && !p.page.IsClosed() {
				return fmt.Errorf("failed to close page %s: %w", p.id, err)
			}
			return p.pwCtx.Close()
		})
	})
	return p.closeErr
}

// -- Event wrappers --

type request struct {
	id  string
	req playwright.Request
}

func (r *request) ID() string           { return r.id }
func (r *request) URL() string          { return r.req.URL() }
func (r *request) Method() string       { return r.req.Method() }
func (r *request) ResourceType() string { return r.req.ResourceType() }

type response struct {
	resp playwright.Response
}

func (r *response) URL() string { return r.resp.URL() }
func (r *response) Status() int { return r.resp.Status() }
func (r *response) OK() bool    { return r.resp.Ok() }

type dialog struct {
	d playwright.Dialog
}

func (d *dialog) Type() string    { return d.d.Type() }
func (d *dialog) Message() string { return d.d.Message() }

func (d *dialog) Accept(promptText string) error {
	if promptText == "" {
		return mapErr(d.d.Accept())
	}
	return mapErr(d.d.Accept(promptText))
}

func (d *dialog) Dismiss() error { return mapErr(d.d.Dismiss()) }

type fileChooser struct {
	fc playwright.FileChooser
}

func (f *fileChooser) SetFiles(files []string) error {
	return mapErr(f.fc.SetFiles(files))
}
