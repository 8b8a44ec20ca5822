// internal/interaction/helper.go
// Package interaction implements the retrying UI actions used by end-to-end
// tests: click, double click and fill, each of which waits for its target to
// become actionable before acting and tolerates transient non-readiness by
// retrying a bounded number of times.
//
// Every operation owns its timeouts. The caller's context only bounds the
// operation as a whole, so cancelling it aborts an in-flight retry loop
// without waiting for the per-attempt deadline.
package interaction

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/pagewright/internal/config"
)

// Helper performs resilient interactions. It is stateless apart from its
// configuration and is safe for concurrent use across pages.
type Helper struct {
	cfg    config.InteractionConfig
	logger *zap.Logger
}

// New creates a Helper using cfg for every default.
func New(cfg config.InteractionConfig, logger *zap.Logger) *Helper {
	return &Helper{cfg: cfg, logger: logger.Named("interaction")}
}

// settings is the resolved per-call configuration.
type settings struct {
	retries int
	timeout time.Duration
	settle  time.Duration
	delay   time.Duration
}

// Option overrides one default for a single call.
type Option func(*settings)

// WithRetries sets the maximum number of attempts.
func WithRetries(n int) Option {
	return func(s *settings) { s.retries = n }
}

// WithTimeout sets the per-attempt wait timeout.
func WithTimeout(d time.Duration) Option {
	return func(s *settings) { s.timeout = d }
}

// WithSettle sets the pause after a successful click.
func WithSettle(d time.Duration) Option {
	return func(s *settings) { s.settle = d }
}

// WithDelay sets the pause between failed attempts.
func WithDelay(d time.Duration) Option {
	return func(s *settings) { s.delay = d }
}

func resolve(base settings, opts []Option) settings {
	for _, opt := range opts {
		opt(&base)
	}
	return base
}

// withTimeout derives a child context bounded by d, or a plain cancelable
// child when d is not positive.
func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
