package cdpdriver

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/inspector"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/pagewright/internal/browser"
)

const dialogActionTimeout = 5 * time.Second

// Page is one chromedp tab.
type Page struct {
	id     string
	ctx    context.Context
	cancel context.CancelFunc
	logger *zap.Logger

	// listenerCtx detaches the event listener without closing the tab.
	listenerCtx    context.Context
	cancelListener context.CancelFunc

	navigationTimeout time.Duration
	tracker           *tracker
	dialogs           browser.Listeners[browser.Dialog]
	choosers          browser.Listeners[browser.FileChooser]

	urlMu  sync.RWMutex
	url    string
	closed atomic.Bool
}

var _ browser.Page = (*Page)(nil)

func newPage(tabCtx context.Context, cancel context.CancelFunc, id string, navigationTimeout time.Duration, logger *zap.Logger) *Page {
	p := &Page{
		id:                id,
		ctx:               tabCtx,
		cancel:            cancel,
		logger:            logger.With(zap.String("page_id", id)),
		navigationTimeout: navigationTimeout,
	}
	p.tracker = newTracker(p.logger)
	p.listenerCtx, p.cancelListener = context.WithCancel(tabCtx)
	chromedp.ListenTarget(p.listenerCtx, p.dispatch)
	return p
}

// dispatch is the tab's single event listener. It runs synchronously inside
// chromedp, so anything that sends CDP commands is handed to a goroutine.
func (p *Page) dispatch(ev interface{}) {
	if p.tracker.handle(ev) {
		return
	}
	switch e := ev.(type) {
	case *page.EventJavascriptDialogOpening:
		d := &dialog{page: p, ev: e}
		go p.dialogs.Emit(d)
	case *page.EventFileChooserOpened:
		fc := &fileChooser{page: p, backendNodeID: e.BackendNodeID}
		go p.choosers.Emit(fc)
	case *page.EventFrameNavigated:
		if e.Frame != nil && e.Frame.ParentID == "" {
			p.urlMu.Lock()
			p.url = e.Frame.URL + e.Frame.URLFragment
			p.urlMu.Unlock()
		}
	case *inspector.EventTargetCrashed, *inspector.EventDetached:
		p.logger.Warn("Tab is gone.", zap.String("event", fmt.Sprintf("%T", e)))
		p.closed.Store(true)
	}
}

// enable turns on the CDP domains the page relies on. It is the first Run on
// the tab context, which creates the target.
func (p *Page) enable() error {
	return chromedp.Run(p.ctx,
		network.Enable(),
		page.Enable(),
		page.SetInterceptFileChooserDialog(true),
	)
}

// run executes actions on the tab under ctx's deadline and cancellation.
func (p *Page) run(ctx context.Context, actions ...chromedp.Action) error {
	if p.IsClosed() {
		return browser.ErrClosed
	}
	runCtx, cancel := browser.CombineContext(p.ctx, ctx)
	defer cancel()

	err := chromedp.Run(runCtx, actions...)
	if err == nil {
		return nil
	}
	if p.ctx.Err() != nil || errors.Is(err, chromedp.ErrInvalidTarget) || errors.Is(err, chromedp.ErrChannelClosed) {
		p.closed.Store(true)
		return fmt.Errorf("%w: %v", browser.ErrClosed, err)
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

func (p *Page) ID() string { return p.id }

func (p *Page) Locator(selector string) browser.Element {
	return &element{page: p, selector: selector, index: -1}
}

func (p *Page) Goto(ctx context.Context, url string) error {
	if p.navigationTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.navigationTimeout)
		defer cancel()
	}
	if err := p.run(ctx, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("navigation to '%s' failed: %w", url, err)
	}
	return nil
}

func (p *Page) URL() string {
	p.urlMu.RLock()
	defer p.urlMu.RUnlock()
	return p.url
}

func (p *Page) IsClosed() bool {
	return p.closed.Load() || p.ctx.Err() != nil
}

func (p *Page) WaitForNetworkIdle(ctx context.Context) error {
	if p.IsClosed() {
		return browser.ErrClosed
	}
	return p.tracker.WaitNetworkIdle(ctx, networkQuietPeriod)
}

// Evaluate takes the raw JSON result and decodes it with jsoniter.
func (p *Page) Evaluate(ctx context.Context, expression string, out interface{}) error {
	var raw []byte
	if err := p.run(ctx, chromedp.Evaluate(expression, &raw)); err != nil {
		return err
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	return jsoniter.Unmarshal(raw, out)
}

func (p *Page) Screenshot(ctx context.Context, fullPage bool) ([]byte, error) {
	var buf []byte
	action := chromedp.CaptureScreenshot(&buf)
	if fullPage {
		action = chromedp.FullScreenshot(&buf, 100)
	}
	if err := p.run(ctx, action); err != nil {
		return nil, err
	}
	return buf, nil
}

func (p *Page) OnRequest(fn func(browser.Request)) browser.Unsubscribe {
	return p.tracker.requests.Add(fn)
}

func (p *Page) OnRequestFinished(fn func(browser.Request)) browser.Unsubscribe {
	return p.tracker.finished.Add(fn)
}

func (p *Page) OnRequestFailed(fn func(browser.Request)) browser.Unsubscribe {
	return p.tracker.failed.Add(fn)
}

func (p *Page) OnResponse(fn func(browser.Response)) browser.Unsubscribe {
	return p.tracker.responses.Add(fn)
}

func (p *Page) OnDialog(fn func(browser.Dialog)) browser.Unsubscribe {
	return p.dialogs.Add(fn)
}

func (p *Page) OnFileChooser(fn func(browser.FileChooser)) browser.Unsubscribe {
	return p.choosers.Add(fn)
}

// Close closes the tab. It is safe to call more than once.
func (p *Page) Close(ctx context.Context) error {
	if !p.closed.CompareAndSwap(false, true) && p.ctx.Err() != nil {
		return nil
	}
	p.cancelListener()

	done := make(chan error, 1)
	go func() { done <- chromedp.Cancel(p.ctx) }()
	select {
	case err := <-done:
		if err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("failed to close tab %s: %w", p.id, err)
		}
		return nil
	case <-ctx.Done():
		p.cancel()
		return ctx.Err()
	}
}

// applyStorageState sets the cookies of a saved storage state on the tab.
func (p *Page) applyStorageState(ctx context.Context, state *browser.StorageState) error {
	cookies := make([]*network.CookieParam, 0, len(state.Cookies))
	for _, c := range state.Cookies {
		param := &network.CookieParam{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Secure:   c.Secure,
			HTTPOnly: c.HTTPOnly,
			SameSite: network.CookieSameSite(c.SameSite),
		}
		if c.Expires > 0 {
			expires := cdp.TimeSinceEpoch(time.Unix(int64(c.Expires), 0))
			param.Expires = &expires
		}
		cookies = append(cookies, param)
	}
	if len(state.Origins) > 0 {
		p.logger.Warn("Storage state origins are not restored by the cdp driver.", zap.Int("origins", len(state.Origins)))
	}
	return p.run(ctx, network.SetCookies(cookies))
}

// -- Dialogs and file choosers --

type dialog struct {
	page *Page
	ev   *page.EventJavascriptDialogOpening
}

func (d *dialog) Type() string    { return string(d.ev.Type) }
func (d *dialog) Message() string { return d.ev.Message }

func (d *dialog) Accept(promptText string) error {
	return d.handle(page.HandleJavaScriptDialog(true).WithPromptText(promptText))
}

func (d *dialog) Dismiss() error {
	return d.handle(page.HandleJavaScriptDialog(false))
}

func (d *dialog) handle(action chromedp.Action) error {
	ctx, cancel := context.WithTimeout(context.Background(), dialogActionTimeout)
	defer cancel()
	return d.page.run(ctx, action)
}

type fileChooser struct {
	page          *Page
	backendNodeID cdp.BackendNodeID
}

func (fc *fileChooser) SetFiles(files []string) error {
	if fc.backendNodeID == 0 {
		return fmt.Errorf("file chooser has no input element: %w", browser.ErrNotSupported)
	}
	ctx, cancel := context.WithTimeout(context.Background(), dialogActionTimeout)
	defer cancel()
	return fc.page.run(ctx, dom.SetFileInputFiles(files).WithBackendNodeID(fc.backendNodeID))
}
