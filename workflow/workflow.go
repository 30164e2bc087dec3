// Package workflow defines the durable workflow primitives: the persisted
// workflow record and its event history, the store contract, the class
// registry, the activity contract, and the cooperative suspension context
// consumed by workflow bodies.
//
// A workflow is created once with a caller-supplied id, a registered class
// name, and JSON-serializable constructor arguments. The orchestrator then
// drives the body forward by replaying the append-only event history and
// performing new work only past the end of it, which is what makes side
// effects at-most-once across process restarts.
package workflow

import (
	"encoding/json"
	"errors"
	"time"
)

type (
	// Workflow is the persisted record of a single workflow instance.
	//
	// Contract:
	// - IDs are stable and caller-provided (typically owned by an application).
	// - Status transitions between running and sleeping arbitrarily many times;
	//   completed and failed are terminal and sticky.
	// - WakeUpTime is non-nil exactly when Status is StatusSleeping.
	Workflow struct {
		// ID is the durable identifier of the workflow.
		ID string
		// Class names the registered body that drives this workflow.
		Class string
		// Args holds the deserialized constructor arguments.
		Args []any
		// Status is the current lifecycle state.
		Status Status
		// WakeUpTime is the absolute time a sleeping workflow becomes due.
		WakeUpTime *time.Time
		// CreatedAt records when the workflow was created.
		CreatedAt time.Time
		// UpdatedAt records when the record was last mutated.
		UpdatedAt time.Time
	}

	// Event is one resolved suspension in a workflow's append-only history.
	Event struct {
		// WorkflowID identifies the owning workflow.
		WorkflowID string
		// Seq is the strictly-increasing position within the workflow.
		Seq int64
		// Type identifies the suspension kind that was resolved.
		Type EventType
		// Result is the canonical JSON encoding of the resolved value. Nil for
		// timers and for activities or side effects that returned null.
		Result json.RawMessage
		// CreatedAt records when the event was appended, per the store clock.
		CreatedAt time.Time
	}

	// Status represents the lifecycle state of a workflow.
	Status string

	// EventType represents the kind of a history event.
	EventType string
)

const (
	// StatusRunning indicates the workflow is being driven or is awaiting a
	// worker to re-enter it.
	StatusRunning Status = "running"
	// StatusSleeping indicates the workflow yielded a timer; no in-memory
	// execution exists and a wake time is persisted.
	StatusSleeping Status = "sleeping"
	// StatusCompleted indicates the body returned. Terminal.
	StatusCompleted Status = "completed"
	// StatusFailed indicates the body or one of its suspensions raised. Terminal.
	StatusFailed Status = "failed"

	// EventActivityCompleted records a resolved activity suspension.
	EventActivityCompleted EventType = "activity_completed"
	// EventTimerCompleted records a fired timer. Result is always nil.
	EventTimerCompleted EventType = "timer_completed"
	// EventSideEffectCompleted records a resolved side-effect suspension.
	EventSideEffectCompleted EventType = "side_effect_completed"
)

var (
	// ErrWorkflowNotFound indicates the workflow does not exist in the store.
	ErrWorkflowNotFound = errors.New("workflow not found")
	// ErrWorkflowExists indicates a create collided with an existing id.
	ErrWorkflowExists = errors.New("workflow already exists")
	// ErrWorkflowTerminal indicates an attempted transition out of a terminal
	// status.
	ErrWorkflowTerminal = errors.New("workflow is terminal")
	// ErrClassNotFound indicates the workflow class is not registered.
	ErrClassNotFound = errors.New("workflow class not registered")
	// ErrNonDeterministic indicates the body yielded a suspension whose kind
	// does not match the next history event.
	ErrNonDeterministic = errors.New("non-deterministic replay")
)

// Terminal reports whether the status admits no further transitions.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Valid reports whether the status is one of the four lifecycle states.
func (s Status) Valid() bool {
	switch s {
	case StatusRunning, StatusSleeping, StatusCompleted, StatusFailed:
		return true
	}
	return false
}
