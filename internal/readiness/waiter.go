// Package readiness blocks a test flow until the page reaches a readiness
// condition: media loaded, network idle, tracked requests resolved, or a set
// of API URLs answered. Every wait is bounded and reports the configured
// timeout when it expires.
package readiness

import (
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/pagewright/internal/browser"
	"github.com/xkilldash9x/pagewright/internal/config"
	"github.com/xkilldash9x/pagewright/internal/retry"
)

// Waiter runs readiness waits against pages. It holds no per-page state.
type Waiter struct {
	cfg    config.ReadinessConfig
	logger *zap.Logger
}

// New creates a Waiter.
func New(cfg config.ReadinessConfig, logger *zap.Logger) *Waiter {
	return &Waiter{cfg: cfg, logger: logger.Named("readiness")}
}

type settings struct {
	timeout     time.Duration
	interval    time.Duration
	kinds       []string
	networkIdle bool
}

// Option overrides one default for a single wait.
type Option func(*settings)

// WithTimeout sets the deadline of the wait.
func WithTimeout(d time.Duration) Option {
	return func(s *settings) { s.timeout = d }
}

// WithInterval sets the poll interval.
func WithInterval(d time.Duration) Option {
	return func(s *settings) { s.interval = d }
}

// WithKinds replaces the resource kinds tracked by WaitForResources.
func WithKinds(kinds ...string) Option {
	return func(s *settings) { s.kinds = kinds }
}

// WithNetworkIdle toggles the network-idle pre-wait of WaitForURLs.
func WithNetworkIdle(enabled bool) Option {
	return func(s *settings) { s.networkIdle = enabled }
}

func (w *Waiter) settings(timeout time.Duration, opts []Option) settings {
	s := settings{
		timeout:     timeout,
		interval:    w.cfg.PollInterval,
		kinds:       w.cfg.ResourceKinds,
		networkIdle: w.cfg.URLSetNetworkIdle,
	}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

// failFast turns a closed-page error into a Permanent one so polling stops.
func failFast(err error) error {
	if errors.Is(err, browser.ErrClosed) {
		return retry.Permanent(err)
	}
	return err
}
