// Package visual captures screenshots and compares them against PNG
// baselines stored on disk.
package visual

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"os"
	"path/filepath"
	"regexp"

	"github.com/orisano/pixelmatch"
	"go.uber.org/zap"

	"github.com/xkilldash9x/pagewright/internal/browser"
	"github.com/xkilldash9x/pagewright/internal/config"
)

// ErrBaselineMissing is returned when no baseline exists and baseline
// updates are disabled.
var ErrBaselineMissing = errors.New("baseline image missing")

var diffColor = color.RGBA{R: 255, A: 255}

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// Result describes one comparison.
type Result struct {
	Name            string `json:"name"`
	DiffPixels      int    `json:"diff_pixels"`
	MaxDiffPixels   int    `json:"max_diff_pixels"`
	Passed          bool   `json:"passed"`
	BaselineCreated bool   `json:"baseline_created,omitempty"`
	BaselinePath    string `json:"baseline_path"`
	ActualPath      string `json:"actual_path,omitempty"`
	DiffPath        string `json:"diff_path,omitempty"`
}

// MismatchError is returned when a screenshot differs from its baseline by
// more pixels than allowed.
type MismatchError struct {
	Result *Result
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("screenshot '%s' differs from baseline by %d pixels (max %d)",
		e.Result.Name, e.Result.DiffPixels, e.Result.MaxDiffPixels)
}

// Comparer compares screenshots against baselines in cfg.BaselineDir.
type Comparer struct {
	cfg    config.VisualConfig
	logger *zap.Logger
}

func New(cfg config.VisualConfig, logger *zap.Logger) *Comparer {
	return &Comparer{cfg: cfg, logger: logger.Named("visual")}
}

// CompareFullPage screenshots the whole page and compares it to the
// baseline called name.
func (c *Comparer) CompareFullPage(ctx context.Context, page browser.Page, name string) (*Result, error) {
	shot, err := page.Screenshot(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("full page screenshot '%s' failed: %w", name, err)
	}
	return c.Compare(name, shot, c.cfg.MaxDiffPixels)
}

// CompareElement screenshots a single element and compares it to the
// baseline called name.
func (c *Comparer) CompareElement(ctx context.Context, el browser.Element, name string) (*Result, error) {
	shot, err := el.Screenshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("element screenshot '%s' failed for selector '%s': %w", name, el.Selector(), err)
	}
	return c.Compare(name, shot, c.cfg.ElementMaxDiffPixels)
}

// TakeScreenshot writes a full page screenshot to the output directory and
// returns its path.
func (c *Comparer) TakeScreenshot(ctx context.Context, page browser.Page, name string) (string, error) {
	shot, err := page.Screenshot(ctx, true)
	if err != nil {
		return "", fmt.Errorf("screenshot '%s' failed: %w", name, err)
	}
	path := filepath.Join(c.cfg.OutputDir, fileName(name, ""))
	if err := writeFile(path, shot); err != nil {
		return "", err
	}
	c.logger.Debug("Screenshot saved.", zap.String("path", path))
	return path, nil
}

// Compare checks a PNG against the named baseline. A missing baseline is
// written when baseline updates are enabled. On mismatch the actual image
// and a diff image are written to the output directory and a
// *MismatchError is returned along with the result.
func (c *Comparer) Compare(name string, actual []byte, maxDiffPixels int) (*Result, error) {
	res := &Result{
		Name:          name,
		MaxDiffPixels: maxDiffPixels,
		BaselinePath:  filepath.Join(c.cfg.BaselineDir, fileName(name, "")),
	}

	actualImg, err := png.Decode(bytes.NewReader(actual))
	if err != nil {
		return nil, fmt.Errorf("failed to decode screenshot '%s': %w", name, err)
	}

	baseline, err := os.ReadFile(res.BaselinePath)
	if errors.Is(err, os.ErrNotExist) {
		if !c.cfg.UpdateBaselines {
			return res, fmt.Errorf("%w: %s", ErrBaselineMissing, res.BaselinePath)
		}
		if err := writeFile(res.BaselinePath, actual); err != nil {
			return nil, err
		}
		c.logger.Info("Baseline created.", zap.String("name", name), zap.String("path", res.BaselinePath))
		res.BaselineCreated = true
		res.Passed = true
		return res, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read baseline '%s': %w", res.BaselinePath, err)
	}

	baselineImg, err := png.Decode(bytes.NewReader(baseline))
	if err != nil {
		return nil, fmt.Errorf("failed to decode baseline '%s': %w", res.BaselinePath, err)
	}

	diffPixels, diffImg, err := Diff(baselineImg, actualImg, c.cfg.Threshold)
	if err != nil {
		return nil, fmt.Errorf("failed to compare '%s': %w", name, err)
	}
	res.DiffPixels = diffPixels
	res.Passed = diffPixels <= maxDiffPixels
	if res.Passed {
		return res, nil
	}

	res.ActualPath = filepath.Join(c.cfg.OutputDir, fileName(name, "-actual"))
	res.DiffPath = filepath.Join(c.cfg.OutputDir, fileName(name, "-diff"))
	if err := writeFile(res.ActualPath, actual); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, diffImg); err != nil {
		return nil, fmt.Errorf("failed to encode diff image: %w", err)
	}
	if err := writeFile(res.DiffPath, buf.Bytes()); err != nil {
		return nil, err
	}

	c.logger.Warn("Screenshot differs from baseline.",
		zap.String("name", name),
		zap.Int("diff_pixels", diffPixels),
		zap.Int("max_diff_pixels", maxDiffPixels),
		zap.String("diff_path", res.DiffPath))
	return res, &MismatchError{Result: res}
}

// Diff counts the pixels that differ perceptually by more than threshold
// (0 to 1, in pixelmatch's YIQ metric) and renders a diff image with changed
// pixels in red over a faded copy of the baseline. Anti-aliasing
// differences are not counted. Pixels outside the overlap of differently
// sized images always count.
func Diff(baseline, actual image.Image, threshold float64) (int, *image.RGBA, error) {
	bb, ab := baseline.Bounds(), actual.Bounds()
	overlap := image.Rect(0, 0, min(bb.Dx(), ab.Dx()), min(bb.Dy(), ab.Dy()))
	out := image.NewRGBA(image.Rect(0, 0, max(bb.Dx(), ab.Dx()), max(bb.Dy(), ab.Dy())))
	draw.Draw(out, out.Bounds(), image.NewUniform(diffColor), image.Point{}, draw.Src)
	outside := out.Bounds().Dx()*out.Bounds().Dy() - overlap.Dx()*overlap.Dy()

	base := crop(baseline, overlap)
	var rendered image.Image
	n, err := pixelmatch.MatchPixel(base, crop(actual, overlap),
		pixelmatch.Threshold(threshold),
		pixelmatch.DiffColor(diffColor),
		pixelmatch.WriteTo(&rendered))
	if err != nil {
		return 0, nil, fmt.Errorf("pixel comparison failed: %w", err)
	}
	// Identical images take a fast path that renders nothing.
	if rendered == nil {
		rendered = base
	}
	draw.Draw(out, overlap, rendered, rendered.Bounds().Min, draw.Src)
	return n + outside, out, nil
}

// crop copies r of img into a new image anchored at the origin.
func crop(img image.Image, r image.Rectangle) *image.RGBA {
	out := image.NewRGBA(r)
	draw.Draw(out, r, img, img.Bounds().Min, draw.Src)
	return out
}

func fileName(name, suffix string) string {
	return unsafeName.ReplaceAllString(name, "_") + suffix + ".png"
}

func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory for '%s': %w", path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write '%s': %w", path, err)
	}
	return nil
}
