// Package inmem provides an in-memory implementation of workflow.Store.
//
// It is intended for tests and local development. Production deployments
// should use a durable implementation (for example features/store/mongo). The
// clock is injectable so tests can drive time explicitly.
package inmem

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"time"

	"k8s.io/utils/clock"

	"goa.design/slumber/workflow"
)

type (
	// Store is an in-memory implementation of workflow.Store.
	// It is safe for concurrent use.
	Store struct {
		mu    sync.RWMutex
		clock clock.PassiveClock
		items map[string]*record
	}

	record struct {
		wf     workflow.Workflow
		args   json.RawMessage
		events []workflow.Event
	}
)

// New returns an empty Store on the real clock.
func New() *Store {
	return NewWithClock(clock.RealClock{})
}

// NewWithClock returns an empty Store reading time from c. Tests pass a
// k8s.io/utils/clock/testing fake to control wake-up arithmetic.
func NewWithClock(c clock.PassiveClock) *Store {
	return &Store{clock: c, items: make(map[string]*record)}
}

// Create implements workflow.Store.
func (s *Store) Create(_ context.Context, id, class string, args []any) error {
	if id == "" {
		return errors.New("workflow id is required")
	}
	if class == "" {
		return errors.New("workflow class is required")
	}
	raw, err := json.Marshal(args)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.items[id]; ok {
		return workflow.ErrWorkflowExists
	}
	now := s.clock.Now().UTC()
	s.items[id] = &record{
		wf: workflow.Workflow{
			ID:        id,
			Class:     class,
			Status:    workflow.StatusRunning,
			CreatedAt: now,
			UpdatedAt: now,
		},
		args: raw,
	}
	return nil
}

// Load implements workflow.Store.
func (s *Store) Load(_ context.Context, id string) (workflow.Workflow, error) {
	if id == "" {
		return workflow.Workflow{}, errors.New("workflow id is required")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.items[id]
	if !ok {
		return workflow.Workflow{}, workflow.ErrWorkflowNotFound
	}
	out := rec.wf
	if rec.wf.WakeUpTime != nil {
		at := *rec.wf.WakeUpTime
		out.WakeUpTime = &at
	}
	if len(rec.args) > 0 {
		if err := json.Unmarshal(rec.args, &out.Args); err != nil {
			return workflow.Workflow{}, err
		}
	}
	return out, nil
}

// AppendEvent implements workflow.Store.
func (s *Store) AppendEvent(_ context.Context, id string, typ workflow.EventType, result json.RawMessage) error {
	if id == "" {
		return errors.New("workflow id is required")
	}
	switch typ {
	case workflow.EventActivityCompleted, workflow.EventTimerCompleted, workflow.EventSideEffectCompleted:
	default:
		return errors.New("invalid event type")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.items[id]
	if !ok {
		return workflow.ErrWorkflowNotFound
	}
	var res json.RawMessage
	if len(result) > 0 {
		res = append(json.RawMessage(nil), result...)
	}
	rec.events = append(rec.events, workflow.Event{
		WorkflowID: id,
		Seq:        int64(len(rec.events) + 1),
		Type:       typ,
		Result:     res,
		CreatedAt:  s.clock.Now().UTC(),
	})
	return nil
}

// History implements workflow.Store.
func (s *Store) History(_ context.Context, id string) ([]workflow.Event, error) {
	if id == "" {
		return nil, errors.New("workflow id is required")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.items[id]
	if !ok {
		return nil, workflow.ErrWorkflowNotFound
	}
	out := make([]workflow.Event, len(rec.events))
	copy(out, rec.events)
	return out, nil
}

// UpdateStatus implements workflow.Store.
func (s *Store) UpdateStatus(_ context.Context, id string, status workflow.Status, wakeUpTime *time.Time) error {
	if id == "" {
		return errors.New("workflow id is required")
	}
	if !status.Valid() {
		return errors.New("invalid workflow status")
	}
	if status == workflow.StatusSleeping && wakeUpTime == nil {
		return errors.New("wake_up_time is required for sleeping status")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.items[id]
	if !ok {
		return workflow.ErrWorkflowNotFound
	}
	if rec.wf.Status.Terminal() {
		return workflow.ErrWorkflowTerminal
	}
	rec.wf.Status = status
	switch {
	case wakeUpTime != nil:
		at := wakeUpTime.UTC()
		rec.wf.WakeUpTime = &at
	case status != workflow.StatusSleeping:
		rec.wf.WakeUpTime = nil
	}
	rec.wf.UpdatedAt = s.clock.Now().UTC()
	return nil
}

// PollReady implements workflow.Store.
func (s *Store) PollReady(_ context.Context, limit int) ([]string, error) {
	if limit <= 0 {
		limit = workflow.DefaultPollLimit
	}
	now := s.clock.Now()

	s.mu.RLock()
	defer s.mu.RUnlock()

	type due struct {
		id   string
		wake time.Time
	}
	var ready []due
	for id, rec := range s.items {
		if rec.wf.Status != workflow.StatusSleeping || rec.wf.WakeUpTime == nil {
			continue
		}
		if rec.wf.WakeUpTime.After(now) {
			continue
		}
		ready = append(ready, due{id: id, wake: *rec.wf.WakeUpTime})
	}
	// Oldest wake time first so long-overdue workflows are not starved.
	sort.Slice(ready, func(i, j int) bool {
		if ready[i].wake.Equal(ready[j].wake) {
			return ready[i].id < ready[j].id
		}
		return ready[i].wake.Before(ready[j].wake)
	})
	if len(ready) > limit {
		ready = ready[:limit]
	}
	out := make([]string, len(ready))
	for i, d := range ready {
		out[i] = d.id
	}
	return out, nil
}

// Now implements workflow.Store.
func (s *Store) Now() time.Time {
	return s.clock.Now()
}
