// Package orchestrator implements the replay-based state machine that drives
// a single workflow to its next suspension or to completion.
//
// Run re-enters the body from scratch on every invocation: suspensions with a
// counterpart in the event history are resolved from the recorded results
// without doing real work, and only once history is exhausted does the
// orchestrator perform new side effects, appending each result before
// resuming the body. A live timer persists a wake time and returns, leaving
// no in-memory state behind.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"goa.design/slumber/lock"
	lockinmem "goa.design/slumber/lock/inmem"
	"goa.design/slumber/stream"
	"goa.design/slumber/telemetry"
	"goa.design/slumber/workflow"
)

type (
	// Orchestrator drives workflows against a store and a class registry.
	// It is safe for concurrent Run calls on distinct workflow ids; runs of
	// the same id are serialized through the configured lock.
	Orchestrator struct {
		store    workflow.Store
		registry *workflow.Registry
		lock     lock.Lock
		sink     stream.Sink
		logger   telemetry.Logger
		metrics  telemetry.Metrics
		tracer   telemetry.Tracer
	}

	// Options configures an Orchestrator.
	Options struct {
		// Store is the workflow persistence layer. Required.
		Store workflow.Store
		// Registry resolves workflow class names to bodies. Required.
		Registry *workflow.Registry
		// Lock serializes runs of the same workflow. Defaults to an in-process
		// lock, which is sufficient for single-worker deployments.
		Lock lock.Lock
		// Sink receives lifecycle events. Defaults to a no-op sink.
		Sink stream.Sink
		// Logger defaults to the clue-backed logger.
		Logger telemetry.Logger
		// Metrics defaults to the OTEL-backed recorder on the global provider.
		Metrics telemetry.Metrics
		// Tracer defaults to the OTEL-backed tracer on the global provider.
		Tracer telemetry.Tracer
	}
)

// New builds an Orchestrator from opts, applying defaults for the optional
// collaborators.
func New(opts Options) (*Orchestrator, error) {
	if opts.Store == nil {
		return nil, errors.New("store is required")
	}
	if opts.Registry == nil {
		return nil, errors.New("registry is required")
	}
	o := &Orchestrator{
		store:    opts.Store,
		registry: opts.Registry,
		lock:     opts.Lock,
		sink:     opts.Sink,
		logger:   opts.Logger,
		metrics:  opts.Metrics,
		tracer:   opts.Tracer,
	}
	if o.lock == nil {
		o.lock = lockinmem.New()
	}
	if o.sink == nil {
		o.sink = stream.NoopSink{}
	}
	if o.logger == nil {
		o.logger = telemetry.NewClueLogger()
	}
	if o.metrics == nil {
		o.metrics = telemetry.NewOTELMetrics()
	}
	if o.tracer == nil {
		o.tracer = telemetry.NewOTELTracer()
	}
	return o, nil
}

// Run drives the workflow to its next persisted boundary: sleeping, completed
// or failed. Workflows that are terminal, or sleeping with a wake time still
// in the future, are left untouched. Returns lock.ErrHeld when another run
// owns the workflow, an error wrapping workflow.ErrWorkflowNotFound when the
// id is unknown, and an error wrapping the cause when the workflow was marked
// failed. Store I/O failures are returned wrapped with the failing step and
// leave the workflow status unchanged.
func (o *Orchestrator) Run(ctx context.Context, id string) error {
	if id == "" {
		return errors.New("workflow id is required")
	}
	release, err := o.lock.Acquire(ctx, id)
	if err != nil {
		return err
	}
	defer release()

	ctx, span := o.tracer.Start(ctx, "orchestrator.run")
	defer span.End()
	started := time.Now()
	defer func() {
		o.metrics.RecordTimer("workflow_run_duration", time.Since(started))
	}()
	o.metrics.IncCounter("workflow_runs", 1)

	wf, err := o.store.Load(ctx, id)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("load workflow %q: %w", id, err)
	}

	if wf.Status.Terminal() {
		o.logger.Debug(ctx, "workflow is terminal, nothing to do", "workflow_id", id, "status", string(wf.Status))
		return nil
	}
	if wf.Status == workflow.StatusSleeping {
		now := o.store.Now()
		if wf.WakeUpTime != nil && wf.WakeUpTime.After(now) {
			o.logger.Debug(ctx, "workflow not due yet", "workflow_id", id, "wake_up_time", wf.WakeUpTime)
			return nil
		}
		// The fired timer is the event that unblocks the pending suspension:
		// recording it here closes the scheduled/fired pair before the body
		// observes anything.
		if err := o.store.AppendEvent(ctx, id, workflow.EventTimerCompleted, nil); err != nil {
			span.RecordError(err)
			return fmt.Errorf("append timer event for %q: %w", id, err)
		}
		if err := o.store.UpdateStatus(ctx, id, workflow.StatusRunning, nil); err != nil {
			span.RecordError(err)
			return fmt.Errorf("wake workflow %q: %w", id, err)
		}
		o.emit(ctx, stream.EventWorkflowWoke, id, nil)
		o.logger.Info(ctx, "workflow woke", "workflow_id", id)
	}

	reg, err := o.registry.Resolve(wf.Class)
	if err != nil {
		return o.fail(ctx, span, id, err)
	}
	if err := reg.ValidateArgs(wf.Args); err != nil {
		return o.fail(ctx, span, id, err)
	}

	history, err := o.store.History(ctx, id)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("read history for %q: %w", id, err)
	}

	session := workflow.StartSession(ctx, id, reg.Body, wf.Args)
	i := 0
	for {
		req, suspended := session.Next()
		if !suspended {
			break
		}

		eventType, ok := requestEventType(req)
		if !ok {
			// Mirrors the observed source behaviour: a malformed yield is
			// resumed with null and leaves no trace in history.
			session.Resume(nil)
			continue
		}

		if i < len(history) {
			h := history[i]
			if h.Type != eventType {
				session.Abandon()
				return o.fail(ctx, span, id, fmt.Errorf("%w: yielded %s but history event %d is %s",
					workflow.ErrNonDeterministic, req.Kind, h.Seq, h.Type))
			}
			i++
			value, err := decodeResult(h.Result)
			if err != nil {
				session.Abandon()
				span.RecordError(err)
				return fmt.Errorf("decode history event %d for %q: %w", h.Seq, id, err)
			}
			session.Resume(value)
			continue
		}

		switch req.Kind {
		case workflow.RequestTimer:
			d, err := workflow.ParseDuration(req.Duration)
			if err != nil {
				session.Abandon()
				return o.fail(ctx, span, id, err)
			}
			wake := o.store.Now().Add(d).UTC()
			if err := o.store.UpdateStatus(ctx, id, workflow.StatusSleeping, &wake); err != nil {
				session.Abandon()
				span.RecordError(err)
				return fmt.Errorf("sleep workflow %q: %w", id, err)
			}
			session.Abandon()
			o.emit(ctx, stream.EventWorkflowSlept, id, wake)
			o.logger.Info(ctx, "workflow sleeping", "workflow_id", id, "wake_up_time", wake)
			return nil

		case workflow.RequestActivity, workflow.RequestSideEffect:
			value, herr := o.invoke(ctx, req)
			if herr != nil {
				session.Abandon()
				return o.fail(ctx, span, id, fmt.Errorf("%s failed: %w", req.Kind, herr))
			}
			raw, canonical, err := canonicalize(value)
			if err != nil {
				session.Abandon()
				return o.fail(ctx, span, id, fmt.Errorf("serialize %s result: %w", req.Kind, err))
			}
			if err := o.store.AppendEvent(ctx, id, eventType, raw); err != nil {
				session.Abandon()
				span.RecordError(err)
				return fmt.Errorf("append %s event for %q: %w", eventType, id, err)
			}
			i++
			o.emit(ctx, stream.EventHistoryAppended, id, eventType)
			session.Resume(canonical)
		}
	}

	result, err := session.Result()
	if err != nil {
		return o.fail(ctx, span, id, err)
	}
	if err := o.store.UpdateStatus(ctx, id, workflow.StatusCompleted, nil); err != nil {
		span.RecordError(err)
		return fmt.Errorf("complete workflow %q: %w", id, err)
	}
	o.emit(ctx, stream.EventWorkflowCompleted, id, result)
	o.logger.Info(ctx, "workflow completed", "workflow_id", id)
	return nil
}

// invoke runs the live work for an activity or side-effect request.
func (o *Orchestrator) invoke(ctx context.Context, req *workflow.Request) (any, error) {
	switch req.Kind {
	case workflow.RequestActivity:
		if req.Activity == nil {
			return nil, errors.New("activity is required")
		}
		return req.Activity.Handle(ctx)
	case workflow.RequestSideEffect:
		if req.Thunk == nil {
			return nil, errors.New("side-effect thunk is required")
		}
		return req.Thunk()
	}
	return nil, fmt.Errorf("request kind %q is not invocable", req.Kind)
}

// fail marks the workflow failed and returns the cause. The history retains
// every event up to but not including the failing step.
func (o *Orchestrator) fail(ctx context.Context, span telemetry.Span, id string, cause error) error {
	span.RecordError(cause)
	o.metrics.IncCounter("workflow_failures", 1)
	if err := o.store.UpdateStatus(ctx, id, workflow.StatusFailed, nil); err != nil {
		o.logger.Error(ctx, err, "mark workflow failed", "workflow_id", id)
		return errors.Join(cause, err)
	}
	o.emit(ctx, stream.EventWorkflowFailed, id, cause.Error())
	o.logger.Error(ctx, cause, "workflow failed", "workflow_id", id)
	return fmt.Errorf("workflow %q failed: %w", id, cause)
}

// emit publishes a lifecycle event. Delivery is best-effort: sink failures
// are logged and never affect the run.
func (o *Orchestrator) emit(ctx context.Context, typ stream.EventType, id string, payload any) {
	ev := stream.Event{
		Type:       typ,
		WorkflowID: id,
		Timestamp:  o.store.Now().UTC(),
		Payload:    payload,
	}
	if err := o.sink.Send(ctx, ev); err != nil {
		o.logger.Error(ctx, err, "publish lifecycle event", "workflow_id", id, "event", string(typ))
	}
}

// requestEventType maps a yielded request to the history event type that
// resolves it. ok is false for nil requests and unknown kinds.
func requestEventType(req *workflow.Request) (workflow.EventType, bool) {
	if req == nil {
		return "", false
	}
	return req.Kind.EventType()
}

// canonicalize round-trips value through its JSON encoding so that live and
// replayed resumes observe identical value shapes. Nil values stay nil and
// produce a null history result.
func canonicalize(value any) (json.RawMessage, any, error) {
	if value == nil {
		return nil, nil, nil
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, nil, err
	}
	var canonical any
	if err := json.Unmarshal(raw, &canonical); err != nil {
		return nil, nil, err
	}
	return raw, canonical, nil
}

// decodeResult decodes a stored history result. Nil results resume as nil.
func decodeResult(raw json.RawMessage) (any, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var value any
	if err := json.Unmarshal(raw, &value); err != nil {
		return nil, err
	}
	return value, nil
}
