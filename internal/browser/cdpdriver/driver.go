// Package cdpdriver implements the browser contracts directly on the Chrome
// DevTools Protocol with chromedp. It needs only a local Chrome, no node
// runtime.
package cdpdriver

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/pagewright/internal/browser"
	"github.com/xkilldash9x/pagewright/internal/config"
)

// Driver owns one Chrome process.
type Driver struct {
	cfg    config.BrowserConfig
	logger *zap.Logger

	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
	storageState  *browser.StorageState

	mu    sync.Mutex
	pages map[string]*Page
}

var _ browser.LaunchFunc = Launch

// execAllocatorOptions builds the Chrome flags from configuration. Args in
// "key=value" form become valued flags, bare args become boolean flags.
func execAllocatorOptions(cfg config.BrowserConfig) []chromedp.ExecAllocatorOption {
	opts := []chromedp.ExecAllocatorOption{
		chromedp.NoSandbox,
		chromedp.DisableGPU,
		chromedp.NoFirstRun,
		chromedp.NoDefaultBrowserCheck,
		chromedp.Flag("disable-dev-shm-usage", true),
	}
	if cfg.Headless {
		opts = append(opts, chromedp.Headless)
	}
	if w, h := cfg.Viewport["width"], cfg.Viewport["height"]; w > 0 && h > 0 {
		opts = append(opts, chromedp.WindowSize(w, h))
	}
	for _, arg := range cfg.Args {
		key, value, found := strings.Cut(strings.TrimLeft(arg, "-"), "=")
		if found {
			opts = append(opts, chromedp.Flag(key, value))
		} else {
			opts = append(opts, chromedp.Flag(key, true))
		}
	}
	return opts
}

// Launch starts Chrome. The browser outlives ctx; ctx only bounds startup.
func Launch(ctx context.Context, cfg config.BrowserConfig, logger *zap.Logger) (browser.Driver, error) {
	logger = logger.Named("cdp")

	var state *browser.StorageState
	if cfg.StorageState != "" {
		var err error
		if state, err = browser.LoadStorageState(cfg.StorageState); err != nil {
			return nil, err
		}
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(browser.Detach(ctx), execAllocatorOptions(cfg)...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(logger.Sugar().Debugf),
		chromedp.WithErrorf(logger.Sugar().Errorf),
	)

	d := &Driver{
		cfg:           cfg,
		logger:        logger,
		allocCancel:   allocCancel,
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
		storageState:  state,
		pages:         make(map[string]*Page),
	}

	// The first Run allocates the browser and must not carry a deadline, or
	// the deadline would kill Chrome later.
	if err := startWithin(ctx, func() error { return chromedp.Run(browserCtx) }); err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("failed to start chrome: %w", err)
	}
	logger.Info("Chrome started.", zap.Bool("headless", cfg.Headless))
	return d, nil
}

// startWithin runs start in the background and gives up when ctx ends.
func startWithin(ctx context.Context, start func() error) error {
	done := make(chan error, 1)
	go func() { done <- start() }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Driver) Name() string { return config.DriverCDP }

// NewPage opens a tab.
func (d *Driver) NewPage(ctx context.Context) (browser.Page, error) {
	tabCtx, cancel := chromedp.NewContext(d.browserCtx)
	p := newPage(tabCtx, cancel, uuid.NewString(), d.cfg.NavigationTimeout, d.logger)

	if err := startWithin(ctx, p.enable); err != nil {
		p.cancelListener()
		cancel()
		return nil, fmt.Errorf("failed to open tab: %w", err)
	}
	if d.storageState != nil {
		if err := p.applyStorageState(ctx, d.storageState); err != nil {
			_ = p.Close(browser.Detach(ctx))
			return nil, fmt.Errorf("failed to apply storage state: %w", err)
		}
	}

	d.mu.Lock()
	d.pages[p.ID()] = p
	d.mu.Unlock()
	return p, nil
}

// Close closes every tab, then Chrome.
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

	if err := startWithin(ctx, func() error { return chromedp.Cancel(d.browserCtx) }); err != nil {
		d.logger.Warn("Graceful chrome shutdown failed, killing the process.", zap.Error(err))
		errs = multierr.Append(errs, err)
	}
	d.browserCancel()
	d.allocCancel()
	return errs
}
