// Package ratelimit bounds in-flight work per logical pool and optionally
// enforces a minimum spacing between dispatched calls.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"
)

// Limiter combines a concurrency semaphore with an optional shared pacer.
// The two are independent constraints: Acquire bounds how many callers
// hold a slot, Pace spaces successive dispatches regardless of which
// caller issues them.
type Limiter struct {
	sem   chan struct{}
	pacer *rate.Limiter
}

// New builds a Limiter with the given concurrency bound. A positive
// minGap configures the pacer so successive Pace calls are at least
// minGap of wall clock apart, shared across all callers.
func New(concurrency int, minGap time.Duration) *Limiter {
	if concurrency <= 0 {
		concurrency = 1
	}
	l := &Limiter{
		sem: make(chan struct{}, concurrency),
	}
	if minGap > 0 {
		l.pacer = rate.NewLimiter(rate.Every(minGap), 1)
	}
	return l
}

// Acquire blocks until a slot is free or the context ends. Callers must
// Release the slot when done.
func (l *Limiter) Acquire(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("limiter acquire: %w", ctx.Err())
	case l.sem <- struct{}{}:
	}
	return nil
}

// Pace blocks until the minimum gap since the previous paced dispatch
// has elapsed, or the context ends. Limiters built without a gap return
// immediately. Callers dispatching more than once per slot must Pace
// before every dispatch.
func (l *Limiter) Pace(ctx context.Context) error {
	if l.pacer == nil {
		return nil
	}
	if err := l.pacer.Wait(ctx); err != nil {
		return fmt.Errorf("limiter pacing wait: %w", err)
	}
	return nil
}

// Release frees a slot obtained by Acquire. A Release without a matching
// Acquire blocks.
func (l *Limiter) Release() {
	<-l.sem
}

// InFlight returns the number of currently held slots.
func (l *Limiter) InFlight() int {
	return len(l.sem)
}
