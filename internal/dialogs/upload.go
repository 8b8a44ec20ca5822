package dialogs

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/pagewright/internal/browser"
)

// ArmUpload arms the next file chooser to receive files.
func (b *Bridge) ArmUpload(files ...string) *Pending {
	p := newPending(ActionUpload)
	p.files = append([]string(nil), files...)

	b.mu.Lock()
	defer b.mu.Unlock()
	b.choosers = b.arm(b.choosers, p, "filechooser")
	return p
}

// UploadViaChooser arms an upload, clicks trigger to open the native chooser,
// and waits for the chooser to accept files.
func (b *Bridge) UploadViaChooser(ctx context.Context, trigger browser.Element, files ...string) error {
	ctx, cancel := b.withUploadTimeout(ctx)
	defer cancel()

	pending := b.ArmUpload(files...)
	if err := trigger.Click(ctx, browser.ClickOptions{}); err != nil {
		b.disarmChooser(pending)
		return fmt.Errorf("click action failed for selector '%s': %w", trigger.Selector(), err)
	}
	if _, err := pending.Wait(ctx); err != nil {
		b.disarmChooser(pending)
		return fmt.Errorf("upload via '%s' failed: %w", trigger.Selector(), err)
	}
	b.logger.Info("Files uploaded via chooser.", zap.String("trigger", trigger.Selector()), zap.Strings("files", files))
	return nil
}

// UploadToInput sets files directly on a file input once it is attached.
func (b *Bridge) UploadToInput(ctx context.Context, input browser.Element, files ...string) error {
	ctx, cancel := b.withUploadTimeout(ctx)
	defer cancel()

	if err := input.WaitFor(ctx, browser.StateAttached); err != nil {
		return fmt.Errorf("file input '%s' not attached: %w", input.Selector(), err)
	}
	if err := input.SetInputFiles(ctx, files); err != nil {
		return fmt.Errorf("set input files failed for selector '%s': %w", input.Selector(), err)
	}
	return nil
}

// AlertText accepts the dialog raised by clicking trigger and returns its message.
func (b *Bridge) AlertText(ctx context.Context, trigger browser.Element) (string, error) {
	pending := b.Accept()
	if err := trigger.Click(ctx, browser.ClickOptions{}); err != nil {
		b.disarmDialog(pending)
		return "", fmt.Errorf("click action failed for selector '%s': %w", trigger.Selector(), err)
	}
	outcome, err := pending.Wait(ctx)
	if err != nil {
		return "", err
	}
	return outcome.Message, nil
}

// disarmChooser removes p if it is still queued, so a later chooser does not
// consume a failed upload's files.
func (b *Bridge) disarmChooser(p *Pending) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.choosers = without(b.choosers, p)
}

func (b *Bridge) disarmDialog(p *Pending) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.dialogs = without(b.dialogs, p)
}

func without(queue []*Pending, p *Pending) []*Pending {
	for i, armed := range queue {
		if armed == p {
			return append(queue[:i:i], queue[i+1:]...)
		}
	}
	return queue
}

func (b *Bridge) withUploadTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if b.cfg.UploadTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, b.cfg.UploadTimeout)
}
