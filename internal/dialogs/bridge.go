// Package dialogs bridges native browser dialogs and file choosers to test
// code. Each page gets one Bridge, which keeps exactly one listener per event
// for its lifetime; callers register intentions against the bridge instead of
// adding listeners to the page.
package dialogs

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/pagewright/internal/browser"
	"github.com/xkilldash9x/pagewright/internal/config"
)

var (
	// ErrSuperseded completes an intention replaced by a newer registration.
	ErrSuperseded = errors.New("intention superseded by a newer registration")
	// ErrBridgeClosed completes intentions still armed when the bridge closes.
	ErrBridgeClosed = errors.New("dialog bridge closed")
)

// Action is what the bridge does with the next dialog.
type Action string

const (
	ActionAccept         Action = "accept"
	ActionDismiss        Action = "dismiss"
	ActionAcceptWithText Action = "accept_with_text"
	ActionUpload         Action = "upload"
)

// Outcome describes the event that satisfied an intention.
type Outcome struct {
	// Kind is the dialog type ("alert", "confirm", "prompt", "beforeunload")
	// or "filechooser".
	Kind    string
	Message string
	Action  Action
	Files   []string
}

// Pending is an armed intention. It completes exactly once.
type Pending struct {
	id     string
	action Action
	text   string
	files  []string

	done    chan struct{}
	outcome Outcome
	err     error
}

func newPending(action Action) *Pending {
	return &Pending{id: uuid.NewString(), action: action, done: make(chan struct{})}
}

func (p *Pending) ID() string { return p.id }

// Done is closed when the intention completes.
func (p *Pending) Done() <-chan struct{} { return p.done }

// Wait blocks until the intention completes or ctx ends.
func (p *Pending) Wait(ctx context.Context) (Outcome, error) {
	select {
	case <-p.done:
		return p.outcome, p.err
	case <-ctx.Done():
		return Outcome{}, fmt.Errorf("waiting for %s intention %s: %w", p.action, p.id, ctx.Err())
	}
}

func (p *Pending) complete(o Outcome, err error) {
	p.outcome, p.err = o, err
	close(p.done)
}

// Bridge owns the dialog and file-chooser subscriptions of one page.
type Bridge struct {
	page   browser.Page
	cfg    config.DialogsConfig
	logger *zap.Logger

	mu       sync.Mutex
	dialogs  []*Pending
	choosers []*Pending
	unsubs   []browser.Unsubscribe
	closed   bool
}

// NewBridge attaches a bridge to page. Call Close to detach it.
func NewBridge(page browser.Page, cfg config.DialogsConfig, logger *zap.Logger) *Bridge {
	b := &Bridge{
		page:   page,
		cfg:    cfg,
		logger: logger.Named("dialogs").With(zap.String("page_id", page.ID())),
	}
	b.unsubs = []browser.Unsubscribe{
		page.OnDialog(b.handleDialog),
		page.OnFileChooser(b.handleFileChooser),
	}
	return b
}

// Accept arms acceptance of the next dialog.
func (b *Bridge) Accept() *Pending {
	return b.armDialog(newPending(ActionAccept))
}

// Dismiss arms dismissal of the next dialog.
func (b *Bridge) Dismiss() *Pending {
	return b.armDialog(newPending(ActionDismiss))
}

// AcceptWithText arms acceptance of the next dialog, answering a prompt with text.
func (b *Bridge) AcceptWithText(text string) *Pending {
	p := newPending(ActionAcceptWithText)
	p.text = text
	return b.armDialog(p)
}

func (b *Bridge) armDialog(p *Pending) *Pending {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.dialogs = b.arm(b.dialogs, p, "dialog")
	return p
}

// arm adds p to queue according to the policy. Under the replace policy any
// armed intention is completed with ErrSuperseded. Callers hold b.mu.
func (b *Bridge) arm(queue []*Pending, p *Pending, event string) []*Pending {
	if b.closed {
		p.complete(Outcome{}, ErrBridgeClosed)
		return queue
	}
	if b.cfg.Policy == config.DialogPolicyQueue {
		return append(queue, p)
	}
	for _, old := range queue {
		b.logger.Warn("Replacing armed handler; the earlier registration will never fire.",
			zap.String("event", event),
			zap.String("replaced", string(old.action)),
			zap.String("replacement", string(p.action)))
		old.complete(Outcome{}, ErrSuperseded)
	}
	return []*Pending{p}
}

// next pops the head of queue. Callers hold b.mu.
func next(queue []*Pending) (*Pending, []*Pending) {
	if len(queue) == 0 {
		return nil, queue
	}
	return queue[0], queue[1:]
}

func (b *Bridge) handleDialog(d browser.Dialog) {
	b.mu.Lock()
	p, rest := next(b.dialogs)
	b.dialogs = rest
	b.mu.Unlock()

	outcome := Outcome{Kind: d.Type(), Message: d.Message()}
	if p == nil {
		b.logger.Warn("Dialog arrived with no handler armed, dismissing.",
			zap.String("type", d.Type()), zap.String("message", d.Message()))
		if err := d.Dismiss(); err != nil {
			b.logger.Error("Failed to dismiss unhandled dialog.", zap.Error(err))
		}
		return
	}

	outcome.Action = p.action
	var err error
	switch p.action {
	case ActionDismiss:
		err = d.Dismiss()
	case ActionAcceptWithText:
		err = d.Accept(p.text)
	default:
		err = d.Accept("")
	}
	if err != nil {
		err = fmt.Errorf("failed to %s %s dialog: %w", p.action, d.Type(), err)
	}
	b.logger.Debug("Dialog handled.", zap.String("type", d.Type()), zap.String("action", string(p.action)), zap.Error(err))
	p.complete(outcome, err)
}

func (b *Bridge) handleFileChooser(fc browser.FileChooser) {
	b.mu.Lock()
	p, rest := next(b.choosers)
	b.choosers = rest
	b.mu.Unlock()

	if p == nil {
		b.logger.Warn("File chooser opened with no upload armed, ignoring.")
		return
	}
	err := fc.SetFiles(p.files)
	if err != nil {
		err = fmt.Errorf("failed to set files on chooser: %w", err)
	}
	b.logger.Debug("File chooser satisfied.", zap.Strings("files", p.files), zap.Error(err))
	p.complete(Outcome{Kind: "filechooser", Action: ActionUpload, Files: p.files}, err)
}

// Armed reports the number of dialog and chooser intentions still waiting.
func (b *Bridge) Armed() (dialogs, choosers int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.dialogs), len(b.choosers)
}

// Close detaches the bridge from its page and fails every armed intention.
func (b *Bridge) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	armed := append(b.dialogs, b.choosers...)
	b.dialogs, b.choosers = nil, nil
	unsubs := b.unsubs
	b.mu.Unlock()

	for _, unsubscribe := range unsubs {
		unsubscribe()
	}
	for _, p := range armed {
		p.complete(Outcome{}, ErrBridgeClosed)
	}
}
