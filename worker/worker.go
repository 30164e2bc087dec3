// Package worker implements wall-clock progress: a single-threaded polling
// loop that discovers due workflows and hands each to the orchestrator.
// Per-workflow failures are logged and swallowed so one bad workflow does not
// stop the loop.
package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/time/rate"
	"k8s.io/utils/clock"

	"goa.design/slumber/lock"
	"goa.design/slumber/telemetry"
	"goa.design/slumber/workflow"
)

// DefaultInterval is the poll period used when Options.Interval is zero.
const DefaultInterval = time.Second

type (
	// Runner drives one workflow to its next persisted boundary. Satisfied by
	// *orchestrator.Orchestrator.
	Runner interface {
		Run(ctx context.Context, id string) error
	}

	// Worker polls the store for due workflows on a fixed interval. Start is
	// blocking; Stop (or cancelling the context) makes it return. A Worker is
	// single-use: once stopped it cannot be restarted.
	Worker struct {
		store    workflow.Store
		runner   Runner
		interval time.Duration
		batch    int
		limiter  *rate.Limiter
		clock    clock.WithTicker
		logger   telemetry.Logger

		stopOnce sync.Once
		stopped  chan struct{}
	}

	// Options configures a Worker.
	Options struct {
		// Store is polled for due workflows. Required.
		Store workflow.Store
		// Runner executes due workflows. Required.
		Runner Runner
		// Interval between polls. Defaults to DefaultInterval.
		Interval time.Duration
		// Batch bounds each poll. Defaults to workflow.DefaultPollLimit.
		Batch int
		// Clock supplies the ticker. Defaults to the real clock; tests pass a
		// k8s.io/utils/clock/testing fake.
		Clock clock.WithTicker
		// Logger defaults to the clue-backed logger.
		Logger telemetry.Logger
	}
)

// New builds a Worker from opts, applying defaults for the optional fields.
func New(opts Options) (*Worker, error) {
	if opts.Store == nil {
		return nil, errors.New("store is required")
	}
	if opts.Runner == nil {
		return nil, errors.New("runner is required")
	}
	w := &Worker{
		store:    opts.Store,
		runner:   opts.Runner,
		interval: opts.Interval,
		batch:    opts.Batch,
		clock:    opts.Clock,
		logger:   opts.Logger,
		stopped:  make(chan struct{}),
	}
	if w.interval <= 0 {
		w.interval = DefaultInterval
	}
	if w.batch <= 0 {
		w.batch = workflow.DefaultPollLimit
	}
	if w.clock == nil {
		w.clock = clock.RealClock{}
	}
	if w.logger == nil {
		w.logger = telemetry.NewClueLogger()
	}
	// Aggressive intervals must not hammer the store: cap polling at twice
	// the configured cadence regardless of how fast the ticker fires.
	w.limiter = rate.NewLimiter(rate.Every(w.interval/2), 1)
	return w, nil
}

// Start polls every interval until Stop is called or ctx is done. The context
// error is returned on cancellation; stopping returns nil.
func (w *Worker) Start(ctx context.Context) error {
	w.logger.Info(ctx, "worker started", "interval", w.interval.String())
	ticker := w.clock.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			w.logger.Info(ctx, "worker stopping", "reason", ctx.Err().Error())
			return ctx.Err()
		case <-w.stopped:
			w.logger.Info(ctx, "worker stopped")
			return nil
		case <-ticker.C():
			if !w.limiter.Allow() {
				continue
			}
			if _, err := w.RunOnce(ctx); err != nil {
				// Store failures are not recovered here; the next poll
				// observes an unchanged state and retries.
				w.logger.Error(ctx, err, "poll failed")
			}
		}
	}
}

// RunOnce performs a single poll-and-drive pass and reports how many
// workflows ran, failures included. Per-workflow failures are logged and
// swallowed; only the poll itself can return an error.
func (w *Worker) RunOnce(ctx context.Context) (int, error) {
	ids, err := w.store.PollReady(ctx, w.batch)
	if err != nil {
		return 0, err
	}
	ran := 0
	for _, id := range ids {
		if err := w.runner.Run(ctx, id); err != nil {
			if errors.Is(err, lock.ErrHeld) {
				// Another worker owns this run.
				continue
			}
			w.logger.Error(ctx, err, "workflow run failed", "workflow_id", id)
		}
		ran++
	}
	return ran, nil
}

// Stop signals the loop to exit. Safe to call more than once and from any
// goroutine.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() { close(w.stopped) })
}
