// Package dispatcher fans browser sessions out across targets.
package dispatcher

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/JakeFAU/opinion-crawler/internal/crawler"
)

// Runner executes one session; session.Runner satisfies it.
type Runner interface {
	Run(ctx context.Context, target crawler.BrowserTarget) (crawler.SessionReport, error)
}

// Outcome is the settled result of one target.
type Outcome struct {
	Target crawler.BrowserTarget
	Report crawler.SessionReport
	Err    error
}

// Dispatcher runs one goroutine per target.
type Dispatcher struct {
	runner Runner
	logger *zap.Logger
}

// New creates a Dispatcher.
func New(runner Runner, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		runner: runner,
		logger: logger,
	}
}

// Run starts every target concurrently and blocks until all have settled.
// Outcomes are returned in target order. A failing session never affects the
// others; only setup problems are returned as an error.
func (d *Dispatcher) Run(ctx context.Context, targets []crawler.BrowserTarget) ([]Outcome, error) {
	if d.runner == nil {
		return nil, errors.New("dispatcher: runner is required")
	}
	if len(targets) == 0 {
		return nil, errors.New("dispatcher: no targets configured")
	}

	d.logger.Info("Running parallel sessions", zap.Int("sessions", len(targets)))
	outcomes := make([]Outcome, len(targets))
	var wg sync.WaitGroup
	for i, target := range targets {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rep, err := d.runner.Run(ctx, target)
			outcomes[i] = Outcome{Target: target, Report: rep, Err: err}
		}()
	}
	wg.Wait()

	failed := Failed(outcomes)
	d.logger.Info("All parallel sessions completed",
		zap.Int("succeeded", len(outcomes)-failed),
		zap.Int("failed", failed),
	)
	return outcomes, nil
}

// Failed counts outcomes that ended with a session error.
func Failed(outcomes []Outcome) int {
	n := 0
	for _, o := range outcomes {
		if o.Err != nil {
			n++
		}
	}
	return n
}
