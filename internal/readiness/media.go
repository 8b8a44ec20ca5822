package readiness

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/pagewright/internal/browser"
	"github.com/xkilldash9x/pagewright/internal/retry"
)

// haveFutureData is HTMLMediaElement.HAVE_FUTURE_DATA.
const haveFutureData = 3

// mediaSnapshotScript collects the load state of every image and media
// element in the document.
const mediaSnapshotScript = `(() => ({
  images: Array.from(document.images).map(img => ({
    src: img.currentSrc || img.src,
    complete: img.complete,
    naturalHeight: img.naturalHeight
  })),
  media: Array.from(document.querySelectorAll('video, audio')).map(m => ({
    src: m.currentSrc || m.src,
    tag: m.tagName.toLowerCase(),
    readyState: m.readyState
  }))
}))()`

// ImageState is the load state of one <img>.
type ImageState struct {
	Src           string `json:"src"`
	Complete      bool   `json:"complete"`
	NaturalHeight int    `json:"naturalHeight"`
}

// Loaded reports whether the image finished loading with real content.
func (i ImageState) Loaded() bool {
	return i.Complete && i.NaturalHeight != 0
}

// MediaState is the load state of one <video> or <audio>.
type MediaState struct {
	Src        string `json:"src"`
	Tag        string `json:"tag"`
	ReadyState int    `json:"readyState"`
}

// Loaded reports whether enough data is buffered to keep playing.
func (m MediaState) Loaded() bool {
	return m.ReadyState >= haveFutureData
}

// MediaSnapshot is the readiness predicate's view of the document.
type MediaSnapshot struct {
	Images []ImageState `json:"images"`
	Media  []MediaState `json:"media"`
}

// Ready evaluates the predicate. Images always count; video and audio
// elements count only when includeMedia is set.
func (s MediaSnapshot) Ready(includeMedia bool) bool {
	for _, img := range s.Images {
		if !img.Loaded() {
			return false
		}
	}
	if !includeMedia {
		return true
	}
	for _, m := range s.Media {
		if !m.Loaded() {
			return false
		}
	}
	return true
}

// Pending lists the sources still loading.
func (s MediaSnapshot) Pending(includeMedia bool) []string {
	var pending []string
	for _, img := range s.Images {
		if !img.Loaded() {
			pending = append(pending, img.Src)
		}
	}
	if includeMedia {
		for _, m := range s.Media {
			if !m.Loaded() {
				pending = append(pending, m.Src)
			}
		}
	}
	return pending
}

// WaitForImages blocks until every image on page is complete with a non-zero
// natural height.
func (w *Waiter) WaitForImages(ctx context.Context, page browser.Page, opts ...Option) error {
	return w.waitForMedia(ctx, page, false, w.settings(w.cfg.MediaTimeout, opts))
}

// WaitForMedia extends WaitForImages to video and audio elements, which must
// report HAVE_FUTURE_DATA or better.
func (w *Waiter) WaitForMedia(ctx context.Context, page browser.Page, opts ...Option) error {
	return w.waitForMedia(ctx, page, true, w.settings(w.cfg.MediaTimeout, opts))
}

func (w *Waiter) waitForMedia(ctx context.Context, page browser.Page, includeMedia bool, s settings) error {
	what := "images"
	if includeMedia {
		what = "media elements"
	}

	var last MediaSnapshot
	err := retry.Poll(ctx, retry.PollSpec{
		Op:       what,
		Interval: s.interval,
		Timeout:  s.timeout,
		Message:  fmt.Sprintf("Not all %s loaded within %d ms", what, s.timeout.Milliseconds()),
	}, func(ctx context.Context) (bool, error) {
		var snap MediaSnapshot
		if err := page.Evaluate(ctx, mediaSnapshotScript, &snap); err != nil {
			return false, failFast(err)
		}
		last = snap
		return snap.Ready(includeMedia), nil
	})
	if err != nil {
		w.logger.Warn("Media readiness wait failed.",
			zap.String("kind", what),
			zap.Strings("pending", last.Pending(includeMedia)),
			zap.Error(err))
		return err
	}
	w.logger.Debug("Media loaded.", zap.String("kind", what), zap.Int("images", len(last.Images)), zap.Int("media", len(last.Media)))
	return nil
}
