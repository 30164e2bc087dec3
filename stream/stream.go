// Package stream defines the lifecycle event fan-out contract. The
// orchestrator publishes an event on every durable transition so operators
// can observe workflow progress without polling the store. Delivery is
// best-effort: sink failures are logged and never affect the run.
package stream

import (
	"context"
	"time"
)

type (
	// Event describes one durable workflow transition.
	Event struct {
		// Type identifies the transition kind.
		Type EventType
		// WorkflowID links the event to the workflow instance.
		WorkflowID string
		// Timestamp records when the transition was observed (store clock, UTC).
		Timestamp time.Time
		// Payload carries transition-specific data, if any: the appended
		// history event type, the wake time, the body's return value, or the
		// failure message.
		Payload any
	}

	// EventType identifies a workflow lifecycle transition.
	EventType string

	// Sink receives lifecycle events. Implementations must be safe for
	// concurrent Send calls.
	Sink interface {
		Send(ctx context.Context, event Event) error
	}
)

const (
	// EventWorkflowSlept is published when a timer was persisted and the
	// workflow transitioned to sleeping. Payload is the wake time.
	EventWorkflowSlept EventType = "workflow_slept"
	// EventWorkflowWoke is published when a due workflow transitioned back to
	// running.
	EventWorkflowWoke EventType = "workflow_woke"
	// EventWorkflowCompleted is published on successful completion. Payload is
	// the body's return value.
	EventWorkflowCompleted EventType = "workflow_completed"
	// EventWorkflowFailed is published when the workflow was marked failed.
	// Payload is the failure message.
	EventWorkflowFailed EventType = "workflow_failed"
	// EventHistoryAppended is published after a live activity or side effect
	// was recorded. Payload is the appended history event type.
	EventHistoryAppended EventType = "history_appended"
)

// NoopSink discards all events.
type NoopSink struct{}

// Send implements Sink.
func (NoopSink) Send(context.Context, Event) error { return nil }
