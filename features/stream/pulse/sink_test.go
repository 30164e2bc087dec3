package pulse

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	streamopts "goa.design/pulse/streaming/options"

	clientspulse "goa.design/slumber/features/stream/pulse/clients/pulse"
	"goa.design/slumber/stream"
)

type fakeStream struct {
	events   []string
	payloads [][]byte
	err      error
}

func (f *fakeStream) Add(_ context.Context, event string, payload []byte) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.events = append(f.events, event)
	f.payloads = append(f.payloads, payload)
	return "1234567890-0", nil
}

type fakeClient struct {
	streams map[string]*fakeStream
	err     error
}

func (f *fakeClient) Stream(name string, _ ...streamopts.Stream) (clientspulse.Stream, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.streams == nil {
		f.streams = make(map[string]*fakeStream)
	}
	s, ok := f.streams[name]
	if !ok {
		s = &fakeStream{}
		f.streams[name] = s
	}
	return s, nil
}

func (f *fakeClient) Close(context.Context) error { return nil }

func TestNewSinkRequiresClient(t *testing.T) {
	_, err := NewSink(Options{})
	require.EqualError(t, err, "pulse client is required")
}

func TestSendPublishesEnvelope(t *testing.T) {
	client := &fakeClient{}
	sink, err := NewSink(Options{Client: client})
	require.NoError(t, err)

	at := time.Date(2023, 1, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, sink.Send(context.Background(), stream.Event{
		Type:       stream.EventWorkflowSlept,
		WorkflowID: "wf-1",
		Timestamp:  at,
		Payload:    at.Add(time.Hour),
	}))

	s, ok := client.streams["workflow/wf-1"]
	require.True(t, ok)
	require.Equal(t, []string{"workflow_slept"}, s.events)

	var env Envelope
	require.NoError(t, json.Unmarshal(s.payloads[0], &env))
	require.Equal(t, "workflow_slept", env.Type)
	require.Equal(t, "wf-1", env.WorkflowID)
	require.Equal(t, at, env.Timestamp)
}

func TestSendRequiresWorkflowID(t *testing.T) {
	sink, err := NewSink(Options{Client: &fakeClient{}})
	require.NoError(t, err)
	require.Error(t, sink.Send(context.Background(), stream.Event{Type: stream.EventWorkflowWoke}))
}

func TestSendPropagatesStreamErrors(t *testing.T) {
	boom := errors.New("redis down")
	sink, err := NewSink(Options{Client: &fakeClient{err: boom}})
	require.NoError(t, err)
	require.ErrorIs(t, sink.Send(context.Background(), stream.Event{
		Type:       stream.EventWorkflowWoke,
		WorkflowID: "wf-1",
	}), boom)
}

func TestCustomStreamIDAndMarshaler(t *testing.T) {
	client := &fakeClient{}
	sink, err := NewSink(Options{
		Client:   client,
		StreamID: func(stream.Event) (string, error) { return "audit", nil },
		MarshalEnvelope: func(env Envelope) ([]byte, error) {
			return []byte(env.Type), nil
		},
	})
	require.NoError(t, err)

	require.NoError(t, sink.Send(context.Background(), stream.Event{
		Type:       stream.EventWorkflowCompleted,
		WorkflowID: "wf-1",
	}))
	s := client.streams["audit"]
	require.NotNil(t, s)
	require.Equal(t, []byte("workflow_completed"), s.payloads[0])
}
