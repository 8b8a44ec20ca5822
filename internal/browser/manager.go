// internal/browser/manager.go
package browser

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/pagewright/internal/config"
)

// LaunchFunc starts a driver. It is called at most once per Manager.
type LaunchFunc func(ctx context.Context, cfg config.BrowserConfig, logger *zap.Logger) (Driver, error)

// Manager owns a driver and the pages opened through it. The driver is
// launched lazily on the first NewPage call.
type Manager struct {
	launch LaunchFunc
	cfg    config.BrowserConfig
	logger *zap.Logger

	// mu guards driver, pages and shut.
	mu     sync.Mutex
	driver Driver
	pages  map[string]Page
	shut   bool

	initOnce sync.Once
	initErr  error
}

const shutdownGracePeriod = 15 * time.Second

// NewManager creates a manager. No browser is started until NewPage.
func NewManager(cfg config.BrowserConfig, launch LaunchFunc, logger *zap.Logger) *Manager {
	m := &Manager{
		launch: launch,
		cfg:    cfg,
		logger: logger.Named("browser_manager"),
		pages:  make(map[string]Page),
	}
	m.logger.Debug("Browser manager created (launch deferred).", zap.String("driver", cfg.Driver))
	return m
}

func (m *Manager) initialize(ctx context.Context) error {
	m.initOnce.Do(func() {
		m.logger.Info("Launching browser driver.", zap.String("driver", m.cfg.Driver), zap.Bool("headless", m.cfg.Headless))
		launchCtx := ctx
		if m.cfg.LaunchTimeout > 0 {
			var cancel context.CancelFunc
			launchCtx, cancel = context.WithTimeout(ctx, m.cfg.LaunchTimeout)
			defer cancel()
		}
		driver, err := m.launch(launchCtx, m.cfg, m.logger)
		if err != nil {
			m.initErr = fmt.Errorf("failed to launch %s driver: %w", m.cfg.Driver, err)
			return
		}
		m.mu.Lock()
		if m.shut {
			m.mu.Unlock()
			_ = driver.Close(Detach(ctx))
			m.initErr = errShutdown
			return
		}
		m.driver = driver
		m.mu.Unlock()
		m.logger.Info("Browser driver ready.", zap.String("driver", driver.Name()))
	})
	return m.initErr
}

// errShutdown is returned by NewPage once Shutdown has started.
var errShutdown = fmt.Errorf("browser manager is shut down: %w", ErrClosed)

// NewPage opens a page, launching the driver first if needed.
func (m *Manager) NewPage(ctx context.Context) (Page, error) {
	m.mu.Lock()
	shut := m.shut
	m.mu.Unlock()
	if shut {
		return nil, errShutdown
	}
	if err := m.initialize(ctx); err != nil {
		return nil, err
	}

	m.mu.Lock()
	driver, shut := m.driver, m.shut
	m.mu.Unlock()
	if shut || driver == nil {
		return nil, errShutdown
	}

	page, err := driver.NewPage(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open page: %w", err)
	}

	m.mu.Lock()
	if m.shut {
		m.mu.Unlock()
		// Shutdown already took its snapshot of open pages.
		_ = page.Close(Detach(ctx))
		return nil, errShutdown
	}
	m.pages[page.ID()] = page
	m.mu.Unlock()

	m.logger.Debug("New page opened.", zap.String("page_id", page.ID()))
	return page, nil
}

// ClosePage closes a page and forgets it.
func (m *Manager) ClosePage(ctx context.Context, page Page) error {
	m.mu.Lock()
	delete(m.pages, page.ID())
	m.mu.Unlock()
	return page.Close(ctx)
}

// Pages returns the number of open pages.
func (m *Manager) Pages() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pages)
}

// Shutdown closes every open page concurrently, then the driver. Later
// NewPage calls fail, and a second Shutdown is a no-op.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.shut = true
	driver := m.driver
	m.driver = nil
	open := make([]Page, 0, len(m.pages))
	for _, p := range m.pages {
		open = append(open, p)
	}
	m.pages = make(map[string]Page)
	m.mu.Unlock()

	if driver == nil {
		m.logger.Debug("No running driver, nothing to shut down.")
		return nil
	}
	m.logger.Info("Shutting down browser manager.")

	var pageErrs error
	var errMu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	for _, p := range open {
		g.Go(func() error {
			if err := p.Close(gctx); err != nil {
				m.logger.Warn("Error closing page during shutdown.", zap.String("page_id", p.ID()), zap.Error(err))
				errMu.Lock()
				pageErrs = multierr.Append(pageErrs, err)
				errMu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	// The driver gets its own budget even if ctx is already spent.
	cleanupCtx, cancel := context.WithTimeout(Detach(ctx), shutdownGracePeriod)
	defer cancel()
	if err := driver.Close(cleanupCtx); err != nil {
		m.logger.Error("Failed to close browser driver.", zap.Error(err))
		return multierr.Append(pageErrs, fmt.Errorf("failed to close driver: %w", err))
	}

	m.logger.Info("Browser manager shutdown complete.")
	return pageErrs
}
