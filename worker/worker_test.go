package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	clocktesting "k8s.io/utils/clock/testing"

	"goa.design/slumber/lock"
	"goa.design/slumber/orchestrator"
	"goa.design/slumber/workflow"
	"goa.design/slumber/workflow/inmem"
)

var epoch = time.Date(2023, 1, 1, 12, 0, 0, 0, time.UTC)

func TestNewValidatesOptions(t *testing.T) {
	_, err := New(Options{Runner: runnerFunc(nil)})
	require.EqualError(t, err, "store is required")
	_, err = New(Options{Store: inmem.New()})
	require.EqualError(t, err, "runner is required")
}

type runnerFunc func(ctx context.Context, id string) error

func (f runnerFunc) Run(ctx context.Context, id string) error { return f(ctx, id) }

// Scenario: two due workflows, the first fails on wake. RunOnce marks it
// failed and still drives the second to completion.
func TestRunOnceIsolatesPerWorkflowFailures(t *testing.T) {
	ctx := context.Background()
	fc := clocktesting.NewFakePassiveClock(epoch)
	store := inmem.NewWithClock(fc)
	registry := workflow.NewRegistry()

	require.NoError(t, registry.Register("bad", func(wctx *workflow.Context, args []any) (any, error) {
		if err := wctx.Wait("1 minute"); err != nil {
			return nil, err
		}
		return nil, errors.New("woke up on the wrong side")
	}))
	require.NoError(t, registry.Register("good", func(wctx *workflow.Context, args []any) (any, error) {
		if err := wctx.Wait("1 minute"); err != nil {
			return nil, err
		}
		return "done", nil
	}))

	orch, err := orchestrator.New(orchestrator.Options{Store: store, Registry: registry})
	require.NoError(t, err)
	w, err := New(Options{Store: store, Runner: orch})
	require.NoError(t, err)

	require.NoError(t, store.Create(ctx, "w1", "bad", nil))
	require.NoError(t, store.Create(ctx, "w2", "good", nil))
	require.NoError(t, orch.Run(ctx, "w1"))
	require.NoError(t, orch.Run(ctx, "w2"))

	fc.SetTime(epoch.Add(2 * time.Minute))
	ran, err := w.RunOnce(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, ran)

	w1, err := store.Load(ctx, "w1")
	require.NoError(t, err)
	require.Equal(t, workflow.StatusFailed, w1.Status)
	w2, err := store.Load(ctx, "w2")
	require.NoError(t, err)
	require.Equal(t, workflow.StatusCompleted, w2.Status)
}

func TestRunOnceWithNothingDue(t *testing.T) {
	store := inmem.New()
	w, err := New(Options{Store: store, Runner: runnerFunc(func(context.Context, string) error {
		t.Fatal("runner must not be called")
		return nil
	})})
	require.NoError(t, err)

	ran, err := w.RunOnce(context.Background())
	require.NoError(t, err)
	require.Zero(t, ran)
}

func TestRunOnceSkipsHeldWorkflows(t *testing.T) {
	ctx := context.Background()
	fc := clocktesting.NewFakePassiveClock(epoch)
	store := inmem.NewWithClock(fc)
	wake := epoch.Add(-time.Minute)
	require.NoError(t, store.Create(ctx, "w1", "any", nil))
	require.NoError(t, store.UpdateStatus(ctx, "w1", workflow.StatusSleeping, &wake))

	w, err := New(Options{Store: store, Runner: runnerFunc(func(context.Context, string) error {
		return lock.ErrHeld
	})})
	require.NoError(t, err)

	ran, err := w.RunOnce(ctx)
	require.NoError(t, err)
	require.Zero(t, ran)
}

func TestStartPollsAndStops(t *testing.T) {
	ctx := context.Background()
	fc := clocktesting.NewFakePassiveClock(epoch)
	store := inmem.NewWithClock(fc)
	wake := epoch.Add(-time.Minute)
	require.NoError(t, store.Create(ctx, "w1", "any", nil))
	require.NoError(t, store.UpdateStatus(ctx, "w1", workflow.StatusSleeping, &wake))

	var mu sync.Mutex
	seen := make(map[string]int)
	wc := clocktesting.NewFakeClock(epoch)
	w, err := New(Options{
		Store: store,
		Runner: runnerFunc(func(_ context.Context, id string) error {
			mu.Lock()
			seen[id]++
			mu.Unlock()
			return nil
		}),
		Interval: 50 * time.Millisecond,
		Clock:    wc,
	})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- w.Start(ctx) }()

	// Let the loop subscribe to the ticker before stepping time.
	require.Eventually(t, func() bool { return wc.HasWaiters() }, time.Second, time.Millisecond)
	wc.Step(50 * time.Millisecond)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return seen["w1"] > 0
	}, time.Second, time.Millisecond)

	w.Stop()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
	w.Stop() // idempotent
}

func TestStartReturnsOnContextCancel(t *testing.T) {
	store := inmem.New()
	w, err := New(Options{Store: store, Runner: runnerFunc(func(context.Context, string) error { return nil })})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Start(ctx) }()
	cancel()

	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("worker did not exit on cancel")
	}
}
