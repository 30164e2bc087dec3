package workflow

import "context"

// Activity is a side-effecting operation invoked by the engine on behalf of a
// workflow body. Activities are black boxes: the engine's only obligations are
// to invoke Handle at most once per successful completion, serialize the
// returned value into history, and propagate failure to the orchestrator.
// Returned values must round-trip through encoding/json.
type Activity interface {
	Handle(ctx context.Context) (any, error)
}

// ActivityFunc adapts a function to the Activity interface.
type ActivityFunc func(ctx context.Context) (any, error)

// Handle implements Activity.
func (f ActivityFunc) Handle(ctx context.Context) (any, error) { return f(ctx) }
