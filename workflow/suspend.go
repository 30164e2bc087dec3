package workflow

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

type (
	// BodyFunc is a workflow body: deterministic user code that expresses a
	// business process as a sequence of suspensions. The body must be a pure
	// function of its args and of the values returned by Context operations;
	// direct I/O, random numbers, and clock reads belong in activities and
	// side effects.
	BodyFunc func(ctx *Context, args []any) (any, error)

	// Request is the tagged suspension request a body yields to the
	// orchestrator. Exactly one variant field is meaningful per Kind. Requests
	// are in-memory only and never persisted.
	Request struct {
		// Kind selects the variant.
		Kind RequestKind
		// Activity is the activity to execute (RequestActivity).
		Activity Activity
		// Duration is the relative-time expression to sleep for (RequestTimer).
		// See ParseDuration for the accepted forms.
		Duration string
		// Thunk is the deferred computation to run (RequestSideEffect).
		Thunk func() (any, error)
	}

	// RequestKind identifies a suspension variant.
	RequestKind string

	// Context is the library surface workflow bodies use to suspend. It is
	// bound to a single session and must not be shared across goroutines or
	// cached beyond the body invocation.
	Context struct {
		ctx     context.Context
		id      string
		session *Session
	}

	// Session is one cooperative execution of a body: the body runs on its own
	// goroutine and alternates with the orchestrator through two-way value
	// passing. In-memory state does not survive the session; across sessions
	// the body observes prior results only via replay.
	Session struct {
		requests chan *Request
		resumes  chan any
		done     chan struct{}
		quit     chan struct{}
		quitOnce sync.Once
		result   any
		err      error
	}
)

const (
	// RequestActivity asks the orchestrator to run an activity.
	RequestActivity RequestKind = "activity"
	// RequestTimer asks the orchestrator to persist a durable timer.
	RequestTimer RequestKind = "timer"
	// RequestSideEffect asks the orchestrator to run an inline computation.
	RequestSideEffect RequestKind = "side_effect"
)

// ErrSuspended is returned by Context operations once the orchestrator has
// abandoned the session, which happens when a live timer is persisted. Bodies
// must propagate errors returned by Context operations so the goroutine
// unwinds promptly.
var ErrSuspended = errors.New("workflow suspended")

// EventType returns the history event type that resolves this request kind.
// ok is false for unknown kinds.
func (k RequestKind) EventType() (EventType, bool) {
	switch k {
	case RequestActivity:
		return EventActivityCompleted, true
	case RequestTimer:
		return EventTimerCompleted, true
	case RequestSideEffect:
		return EventSideEffectCompleted, true
	}
	return "", false
}

// StartSession launches fn on a dedicated goroutine and returns the session
// handle the orchestrator drives. The provided ctx is surfaced to the body via
// Context.Context and bounds any blocking work the body performs directly.
func StartSession(ctx context.Context, id string, fn BodyFunc, args []any) *Session {
	s := &Session{
		requests: make(chan *Request),
		resumes:  make(chan any),
		done:     make(chan struct{}),
		quit:     make(chan struct{}),
	}
	wctx := &Context{ctx: ctx, id: id, session: s}
	go func() {
		defer close(s.done)
		defer func() {
			if r := recover(); r != nil {
				s.err = fmt.Errorf("workflow body panicked: %v", r)
			}
		}()
		s.result, s.err = fn(wctx, args)
	}()
	return s
}

// Next blocks until the body either yields a suspension request or returns.
// It reports suspended=true with the yielded request, or suspended=false once
// the body has returned and Result is available.
func (s *Session) Next() (req *Request, suspended bool) {
	select {
	case req := <-s.requests:
		return req, true
	case <-s.done:
		return nil, false
	}
}

// Resume delivers the resolved value of the current suspension back into the
// body. It must be called exactly once after each suspended Next.
func (s *Session) Resume(v any) {
	select {
	case s.resumes <- v:
	case <-s.done:
	}
}

// Abandon detaches the session: the body's pending and future suspensions
// observe ErrSuspended so the goroutine unwinds. Called on the live timer
// path, where the body's in-memory state is discarded and the next run
// replays from scratch. Safe to call more than once.
func (s *Session) Abandon() {
	s.quitOnce.Do(func() { close(s.quit) })
}

// Result returns the body's return value and error. Valid only after Next
// reported suspended=false.
func (s *Session) Result() (any, error) {
	return s.result, s.err
}

// Context returns the Go context bound to the current run.
func (c *Context) Context() context.Context { return c.ctx }

// WorkflowID returns the id of the workflow being driven.
func (c *Context) WorkflowID() string { return c.id }

// Execute suspends on an activity and returns its checkpointed result. The
// activity runs at most once per successful completion across all replays;
// re-entries observe the recorded result without re-invoking the handler.
func (c *Context) Execute(activity Activity) (any, error) {
	return c.Yield(&Request{Kind: RequestActivity, Activity: activity})
}

// Wait suspends on a durable timer. The body is only re-entered, in a later
// session, once the wake time has passed. The duration string must be one of
// the forms accepted by ParseDuration.
func (c *Context) Wait(duration string) error {
	_, err := c.Yield(&Request{Kind: RequestTimer, Duration: duration})
	return err
}

// SideEffect suspends on an inline deferred computation and returns its
// checkpointed result, with the same at-most-once semantics as Execute.
func (c *Context) SideEffect(thunk func() (any, error)) (any, error) {
	return c.Yield(&Request{Kind: RequestSideEffect, Thunk: thunk})
}

// Yield is the low-level suspension primitive Execute, Wait and SideEffect
// wrap: it hands req up to the orchestrator and blocks until a resolved value
// is passed back down. Yielding a nil or malformed request resumes with nil
// and records nothing.
func (c *Context) Yield(req *Request) (any, error) {
	s := c.session
	select {
	case s.requests <- req:
	case <-s.quit:
		return nil, ErrSuspended
	}
	select {
	case v := <-s.resumes:
		return v, nil
	case <-s.quit:
		return nil, ErrSuspended
	}
}
