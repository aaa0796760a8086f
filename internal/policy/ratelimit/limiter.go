// Package ratelimit spaces outbound API calls by a minimum delay.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/JakeFAU/opinion-crawler/internal/metrics"
)

// Limiter guarantees that successive operations start at least Delay apart.
// It is safe for concurrent use; concurrent callers are serialized in token
// order.
type Limiter struct {
	name    string
	delay   time.Duration
	limiter *rate.Limiter
}

// Config holds rate limiter configuration.
type Config struct {
	// Name labels the delay metric (e.g. "translate").
	Name string
	// Delay is the minimum spacing between operation starts. Zero disables
	// throttling.
	Delay time.Duration
}

// New creates a Limiter. The first call never waits.
func New(cfg Config) *Limiter {
	limit := rate.Inf
	if cfg.Delay > 0 {
		limit = rate.Every(cfg.Delay)
	}
	name := cfg.Name
	if name == "" {
		name = "default"
	}
	return &Limiter{
		name:    name,
		delay:   cfg.Delay,
		limiter: rate.NewLimiter(limit, 1),
	}
}

// Unlimited returns a Limiter that never waits.
func Unlimited() *Limiter {
	return New(Config{Name: "unlimited"})
}

// Delay returns the configured spacing.
func (l *Limiter) Delay() time.Duration {
	return l.delay
}

// Wait blocks until the next operation may start.
func (l *Limiter) Wait(ctx context.Context) error {
	start := time.Now()
	if err := l.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	if waited := time.Since(start); waited > time.Millisecond {
		metrics.ObserveRateLimitDelay(l.name, waited)
	}
	return nil
}

// Execute waits for its turn and then runs op, returning op's error unchanged.
func (l *Limiter) Execute(ctx context.Context, op func(context.Context) error) error {
	if err := l.Wait(ctx); err != nil {
		return err
	}
	return op(ctx)
}

// Do is Execute for operations that produce a value.
func Do[T any](ctx context.Context, l *Limiter, op func(context.Context) (T, error)) (T, error) {
	var out T
	err := l.Execute(ctx, func(ctx context.Context) error {
		var opErr error
		out, opErr = op(ctx)
		return opErr
	})
	return out, err
}
