// Package retry wraps fallible operations with exponential backoff.
package retry

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/mediaharbor/clipcrawler/internal/ingest"
)

// Config controls Executor behavior.
type Config struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// Executor runs operations with bounded retries and exponential backoff.
type Executor struct {
	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration
	logger      *zap.Logger
}

// New builds an Executor, applying defaults for zero values.
func New(cfg Config, logger *zap.Logger) *Executor {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = 250 * time.Millisecond
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = 5 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{
		maxAttempts: cfg.MaxAttempts,
		baseDelay:   cfg.BaseDelay,
		maxDelay:    cfg.MaxDelay,
		logger:      logger,
	}
}

// MaxAttempts returns the configured attempt bound.
func (e *Executor) MaxAttempts() int {
	return e.maxAttempts
}

// WithMaxAttempts returns a copy of the executor with a different bound.
func (e *Executor) WithMaxAttempts(n int) *Executor {
	cp := *e
	if n > 0 {
		cp.maxAttempts = n
	}
	return &cp
}

// Backoff returns the wait duration after the given zero-based attempt.
func (e *Executor) Backoff(attempt int) time.Duration {
	delay := e.baseDelay << uint(attempt)
	if delay > e.maxDelay || delay <= 0 {
		delay = e.maxDelay
	}
	return delay
}

// Do runs op until it succeeds, a permanent error surfaces, the context
// ends, or the attempt bound is exhausted. On exhaustion the returned
// error names the label and wraps the last underlying error.
func Do[T any](ctx context.Context, e *Executor, label string, op func(context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error
	for attempt := 0; attempt < e.maxAttempts; attempt++ {
		out, err := op(ctx)
		if err == nil {
			return out, nil
		}
		lastErr = err
		if ingest.IsPermanent(err) {
			return zero, err
		}
		if ctx.Err() != nil {
			return zero, fmt.Errorf("%s: %w", label, ctx.Err())
		}
		e.logger.Warn("attempt failed",
			zap.String("operation", label),
			zap.Int("attempt", attempt+1),
			zap.Int("max_attempts", e.maxAttempts),
			zap.Error(err),
		)
		if attempt+1 < e.maxAttempts {
			if err := sleep(ctx, e.Backoff(attempt)); err != nil {
				return zero, fmt.Errorf("%s: %w", label, err)
			}
		}
	}
	return zero, fmt.Errorf("%s: retries exhausted after %d attempts: %w", label, e.maxAttempts, lastErr)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
