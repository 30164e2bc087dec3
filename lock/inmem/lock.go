// Package inmem provides an in-process implementation of lock.Lock. It is the
// orchestrator default and is sufficient for single-worker deployments; use
// features/lock/redis when multiple worker processes share a store.
package inmem

import (
	"context"
	"errors"
	"sync"

	"goa.design/slumber/lock"
)

// Lock is an in-process implementation of lock.Lock.
// It is safe for concurrent use.
type Lock struct {
	mu   sync.Mutex
	held map[string]struct{}
}

// New returns a Lock with no held entries.
func New() *Lock {
	return &Lock{held: make(map[string]struct{})}
}

// Acquire implements lock.Lock.
func (l *Lock) Acquire(_ context.Context, workflowID string) (func(), error) {
	if workflowID == "" {
		return nil, errors.New("workflow id is required")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.held[workflowID]; ok {
		return nil, lock.ErrHeld
	}
	l.held[workflowID] = struct{}{}

	var once sync.Once
	release := func() {
		once.Do(func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			delete(l.held, workflowID)
		})
	}
	return release, nil
}
