// Package slumber is a durable execution engine: it runs multi-step business
// processes that can pause for arbitrary wall-clock durations, survive
// process restarts, and resume at the exact suspension point by replaying an
// append-only event history.
//
// The Engine facade wires the three moving pieces together — a workflow
// store, the replay orchestrator, and the polling worker — with sensible
// defaults (in-memory store and lock) so embedders can start with:
//
//	registry := workflow.NewRegistry()
//	registry.Register("billing", billingBody)
//	engine, _ := slumber.New(slumber.Options{Registry: registry})
//	engine.CreateWorkflow(ctx, "order-42", "billing", "customer-7")
//	go engine.Worker.Start(ctx)
//
// Production deployments substitute features/store/mongo for the store,
// features/lock/redis for the lock, and features/stream/pulse for the
// lifecycle sink.
package slumber

import (
	"context"
	"errors"
	"time"

	"goa.design/slumber/lock"
	"goa.design/slumber/orchestrator"
	"goa.design/slumber/stream"
	"goa.design/slumber/worker"
	"goa.design/slumber/workflow"
	"goa.design/slumber/workflow/inmem"
)

type (
	// Engine bundles a configured store, orchestrator and worker.
	Engine struct {
		// Store persists workflows and history.
		Store workflow.Store
		// Registry resolves class names to workflow bodies.
		Registry *workflow.Registry
		// Orchestrator drives individual workflows.
		Orchestrator *orchestrator.Orchestrator
		// Worker polls for due workflows.
		Worker *worker.Worker
	}

	// Options configures an Engine.
	Options struct {
		// Registry resolves class names to workflow bodies. Required.
		Registry *workflow.Registry
		// Store defaults to the in-memory store.
		Store workflow.Store
		// Lock defaults to the in-process lock.
		Lock lock.Lock
		// Sink defaults to a no-op lifecycle sink.
		Sink stream.Sink
		// PollInterval defaults to one second.
		PollInterval time.Duration
		// PollBatch defaults to workflow.DefaultPollLimit.
		PollBatch int
	}
)

// New assembles an Engine from opts.
func New(opts Options) (*Engine, error) {
	if opts.Registry == nil {
		return nil, errors.New("registry is required")
	}
	store := opts.Store
	if store == nil {
		store = inmem.New()
	}
	orch, err := orchestrator.New(orchestrator.Options{
		Store:    store,
		Registry: opts.Registry,
		Lock:     opts.Lock,
		Sink:     opts.Sink,
	})
	if err != nil {
		return nil, err
	}
	w, err := worker.New(worker.Options{
		Store:    store,
		Runner:   orch,
		Interval: opts.PollInterval,
		Batch:    opts.PollBatch,
	})
	if err != nil {
		return nil, err
	}
	return &Engine{
		Store:        store,
		Registry:     opts.Registry,
		Orchestrator: orch,
		Worker:       w,
	}, nil
}

// CreateWorkflow registers a new workflow instance with the store. The class
// must already be registered; args must be JSON-serializable.
func (e *Engine) CreateWorkflow(ctx context.Context, id, class string, args ...any) error {
	if _, err := e.Registry.Resolve(class); err != nil {
		return err
	}
	return e.Store.Create(ctx, id, class, args)
}

// Run drives a single workflow to its next persisted boundary, bypassing the
// worker. Useful for tests and for request-scoped nudges.
func (e *Engine) Run(ctx context.Context, id string) error {
	return e.Orchestrator.Run(ctx, id)
}
