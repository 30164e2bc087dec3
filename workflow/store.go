package workflow

import (
	"context"
	"encoding/json"
	"time"
)

// Store persists workflow records and their append-only event histories, and
// owns the engine clock so tests can substitute a fake.
//
// Store implementations must be durable and read-your-writes: a mutation
// observed by one caller is observed by all subsequent callers. Concurrent
// PollReady across workers is permitted; mutual exclusion of concurrent runs
// of the same workflow is the orchestrator's responsibility (see the lock
// package), not the store's.
type Store interface {
	// Create inserts a new workflow with StatusRunning and an empty history.
	// Returns ErrWorkflowExists when the id is already taken.
	Create(ctx context.Context, id, class string, args []any) error

	// Load returns the workflow record.
	// Returns ErrWorkflowNotFound when the workflow does not exist.
	Load(ctx context.Context, id string) (Workflow, error)

	// AppendEvent appends one history event stamped with the store clock.
	// Strict per-workflow insertion order is preserved; the assigned sequence
	// numbers are strictly increasing.
	AppendEvent(ctx context.Context, id string, typ EventType, result json.RawMessage) error

	// History returns the full ordered event sequence, oldest first.
	History(ctx context.Context, id string) ([]Event, error)

	// UpdateStatus atomically updates the workflow status. A non-nil
	// wakeUpTime is stored as-is; otherwise the wake time is cleared whenever
	// the new status is not StatusSleeping. Transitions out of a terminal
	// status return ErrWorkflowTerminal.
	UpdateStatus(ctx context.Context, id string, status Status, wakeUpTime *time.Time) error

	// PollReady returns at most limit ids of workflows with StatusSleeping and
	// a wake time at or before the store clock, oldest wake time first.
	PollReady(ctx context.Context, limit int) ([]string, error)

	// Now returns the current time per the store clock.
	Now() time.Time
}

// DefaultPollLimit bounds a PollReady batch when callers pass limit <= 0.
const DefaultPollLimit = 10
