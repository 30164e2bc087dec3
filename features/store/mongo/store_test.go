package mongo

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"goa.design/slumber/workflow"
)

// fakeClient records delegated calls so the tests can assert pass-through
// behaviour without a running MongoDB.
type fakeClient struct {
	createdID   string
	appended    []workflow.EventType
	loadResult  workflow.Workflow
	historyOut  []workflow.Event
	pollOut     []string
	statusID    string
	statusValue workflow.Status
	wakeValue   *time.Time
	now         time.Time
}

func (f *fakeClient) Name() string               { return "fake" }
func (f *fakeClient) Ping(context.Context) error { return nil }
func (f *fakeClient) Now() time.Time             { return f.now }

func (f *fakeClient) Create(_ context.Context, id, class string, args []any) error {
	f.createdID = id
	return nil
}

func (f *fakeClient) Load(context.Context, string) (workflow.Workflow, error) {
	return f.loadResult, nil
}

func (f *fakeClient) AppendEvent(_ context.Context, _ string, typ workflow.EventType, _ []byte) error {
	f.appended = append(f.appended, typ)
	return nil
}

func (f *fakeClient) History(context.Context, string) ([]workflow.Event, error) {
	return f.historyOut, nil
}

func (f *fakeClient) UpdateStatus(_ context.Context, id string, status workflow.Status, wake *time.Time) error {
	f.statusID = id
	f.statusValue = status
	f.wakeValue = wake
	return nil
}

func (f *fakeClient) PollReady(context.Context, int) ([]string, error) {
	return f.pollOut, nil
}

func TestNewStoreRequiresClient(t *testing.T) {
	_, err := NewStore(nil)
	require.EqualError(t, err, "client is required")
}

func TestStoreDelegatesToClient(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2023, 1, 1, 12, 0, 0, 0, time.UTC)
	fake := &fakeClient{
		loadResult: workflow.Workflow{ID: "wf-1", Class: "billing", Status: workflow.StatusRunning},
		historyOut: []workflow.Event{{WorkflowID: "wf-1", Seq: 1, Type: workflow.EventTimerCompleted}},
		pollOut:    []string{"wf-1"},
		now:        now,
	}
	store, err := NewStore(fake)
	require.NoError(t, err)

	require.NoError(t, store.Create(ctx, "wf-1", "billing", []any{"x"}))
	require.Equal(t, "wf-1", fake.createdID)

	wf, err := store.Load(ctx, "wf-1")
	require.NoError(t, err)
	require.Equal(t, fake.loadResult, wf)

	require.NoError(t, store.AppendEvent(ctx, "wf-1", workflow.EventActivityCompleted, json.RawMessage(`"ok"`)))
	require.Equal(t, []workflow.EventType{workflow.EventActivityCompleted}, fake.appended)

	events, err := store.History(ctx, "wf-1")
	require.NoError(t, err)
	require.Equal(t, fake.historyOut, events)

	wake := now.Add(time.Hour)
	require.NoError(t, store.UpdateStatus(ctx, "wf-1", workflow.StatusSleeping, &wake))
	require.Equal(t, workflow.StatusSleeping, fake.statusValue)
	require.Equal(t, &wake, fake.wakeValue)

	ids, err := store.PollReady(ctx, 10)
	require.NoError(t, err)
	require.Equal(t, []string{"wf-1"}, ids)

	require.Equal(t, now, store.Now())
}
