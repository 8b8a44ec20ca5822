// Package pwdriver implements the browser contracts on playwright-go. Each page
// gets its own browser context, so storage state and viewport apply per page.
package pwdriver

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/playwright-community/playwright-go"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/pagewright/internal/browser"
	"github.com/xkilldash9x/pagewright/internal/config"
)

const playwrightInstallTimeout = 5 * time.Minute

// Driver owns the playwright runtime and one Chromium instance.
type Driver struct {
	cfg    config.BrowserConfig
	logger *zap.Logger

	pw      *playwright.Playwright
	browser playwright.Browser

	mu    sync.Mutex
	pages map[string]*Page
}

var _ browser.LaunchFunc = Launch

// Launch optionally installs Chromium, starts the playwright driver and
// launches the browser.
func Launch(ctx context.Context, cfg config.BrowserConfig, logger *zap.Logger) (browser.Driver, error) {
	logger = logger.Named("playwright")

	if cfg.Install {
		if err := ensureInstallation(ctx, logger); err != nil {
			return nil, err
		}
	}

	pw, err := call(ctx, func() (*playwright.Playwright, error) { return playwright.Run() })
	if err != nil {
		return nil, fmt.Errorf("failed to start playwright driver: %w", err)
	}

	b, err := call(ctx, func() (playwright.Browser, error) {
		return pw.Chromium.Launch(launchOptions(ctx, cfg))
	})
	if err != nil {
		_ = pw.Stop()
		return nil, fmt.Errorf("failed to launch browser instance: %w", err)
	}

	logger.Info("Chromium launched.", zap.String("browser_version", b.Version()), zap.Bool("headless", cfg.Headless))
	return &Driver{
		cfg:     cfg,
		logger:  logger,
		pw:      pw,
		browser: b,
		pages:   make(map[string]*Page),
	}, nil
}

func ensureInstallation(ctx context.Context, logger *zap.Logger) error {
	logger.Info("Verifying Playwright browser installation...")
	installCtx, cancel := context.WithTimeout(ctx, playwrightInstallTimeout)
	defer cancel()

	err := do(installCtx, func() error {
		return playwright.Install(&playwright.RunOptions{Browsers: []string{"chromium"}})
	})
	if err != nil {
		return fmt.Errorf("failed to install playwright browsers: %w", err)
	}
	return nil
}

func launchOptions(ctx context.Context, cfg config.BrowserConfig) playwright.BrowserTypeLaunchOptions {
	// Defaults needed in containers come first; user args may repeat them.
	args := append([]string{
		"--disable-gpu",
		"--no-sandbox",
		"--disable-dev-shm-usage",
	}, cfg.Args...)

	opts := playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(cfg.Headless),
		Args:     args,
	}
	if ms := browser.TimeoutMillis(ctx); ms > 0 {
		opts.Timeout = playwright.Float(ms)
	}
	return opts
}

func (d *Driver) Name() string { return config.DriverPlaywright }

// NewPage opens a page in a fresh browser context.
func (d *Driver) NewPage(ctx context.Context) (browser.Page, error) {
	opts := playwright.BrowserNewContextOptions{}
	if d.cfg.StorageState != "" {
		opts.StorageStatePath = playwright.String(d.cfg.StorageState)
	}
	if w, h := d.cfg.Viewport["width"], d.cfg.Viewport["height"]; w > 0 && h > 0 {
		opts.Viewport = &playwright.Size{Width: w, Height: h}
	}

	p, err := call(ctx, func() (*Page, error) {
		pwCtx, err := d.browser.NewContext(opts)
		if err != nil {
			return nil, err
		}
		if d.cfg.NavigationTimeout > 0 {
			pwCtx.SetDefaultNavigationTimeout(float64(d.cfg.NavigationTimeout.Milliseconds()))
		}
		pwPage, err := pwCtx.NewPage()
		if err != nil {
			_ = pwCtx.Close()
			return nil, err
		}
		return newPage(uuid.NewString(), pwCtx, pwPage, d.logger), nil
	})
	if err != nil {
		return nil, mapErr(fmt.Errorf("failed to create page: %w", err))
	}

	d.mu.Lock()
	d.pages[p.ID()] = p
	d.mu.Unlock()
	return p, nil
}

// Close closes every page, the browser and the playwright driver.
func (d *Driver) Close(ctx context.Context) error {
	d.mu.Lock()
	pages := make([]*Page, 0, len(d.pages))
	for _, p := range d.pages {
		pages = append(pages, p)
	}
	d.pages = make(map[string]*Page)
	d.mu.Unlock()

	var errs error
	var errMu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	for _, p := range pages {
		g.Go(func() error {
			if err := p.Close(gctx); err != nil {
				errMu.Lock()
				errs = multierr.Append(errs, err)
				errMu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	if err := do(ctx, func() error { return d.browser.Close() }); err != nil {
		d.logger.Error("Failed to close browser instance.", zap.Error(err))
		errs = multierr.Append(errs, fmt.Errorf("failed to close browser: %w", err))
	}
	if err := do(ctx, d.pw.Stop); err != nil {
		d.logger.Error("Failed to stop Playwright driver.", zap.Error(err))
		errs = multierr.Append(errs, fmt.Errorf("failed to stop playwright driver: %w", err))
	}
	return errs
}

// call runs a blocking playwright call and stops waiting when ctx ends.
// Playwright calls take no context, so the call itself is bounded by the
// timeout option derived from ctx.
func call[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}
	type result struct {
		v   T
		err error
	}
	done := make(chan result, 1)
	go func() {
		v, err := fn()
		done <- result{v, err}
	}()
	select {
	case r := <-done:
		return r.v, r.err
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

func do(ctx context.Context, fn func() error) error {
	_, err := call(ctx, func() (struct{}, error) { return struct{}{}, fn() })
	return err
}

// mapErr folds playwright's target-closed error into browser.ErrClosed.
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, playwright.ErrTargetClosed) {
		return fmt.Errorf("%w: %v", browser.ErrClosed, err)
	}
	return err
}
