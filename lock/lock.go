// Package lock defines the per-workflow mutual exclusion contract the
// orchestrator relies on. Two workers replaying the same workflow
// concurrently would both append events and corrupt history, so at most one
// orchestrator may run a given workflow at any time.
package lock

import (
	"context"
	"errors"
)

// ErrHeld indicates the workflow lock is currently owned by another run.
// Callers treat it as a skip, not a failure: the owning run will advance the
// workflow, and the next poll re-discovers it if needed.
var ErrHeld = errors.New("workflow lock held")

// Lock provides per-workflow mutual exclusion around orchestrator runs.
//
// Acquire returns ErrHeld without blocking when the lock is owned elsewhere.
// The returned release function must be called exactly once, after the run
// reached its persisted boundary. Implementations backed by shared stores
// (see features/lock/redis) should lease the lock so a dead worker cannot
// wedge a workflow forever.
type Lock interface {
	Acquire(ctx context.Context, workflowID string) (release func(), err error)
}
