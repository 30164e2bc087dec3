// Package pulse exposes a stream.Sink implementation that publishes workflow
// lifecycle events to goa.design/pulse streams. It mirrors the layering used
// by existing Pulse deployments: services build a Redis client, pass it to
// the Pulse client, and hand the resulting sink to the orchestrator.
package pulse

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"goa.design/slumber/features/stream/pulse/clients/pulse"
	"goa.design/slumber/stream"
)

type (
	// Options configures the Pulse sink.
	Options struct {
		// Client is the Pulse client used to publish events. Required.
		Client pulse.Client
		// StreamID derives the target Pulse stream from an event. Defaults to
		// `workflow/<WorkflowID>`.
		StreamID func(stream.Event) (string, error)
		// MarshalEnvelope allows overriding the envelope serialization
		// (primarily for tests).
		MarshalEnvelope func(Envelope) ([]byte, error)
	}

	// Sink publishes lifecycle Event values into Pulse streams. It delegates
	// serialization to the configured envelope marshaler.
	// Thread-safe for concurrent Send operations.
	Sink struct {
		client pulse.Client
		opts   sinkOptions
	}

	sinkOptions struct {
		streamID        func(stream.Event) (string, error)
		marshalEnvelope func(Envelope) ([]byte, error)
	}

	// Envelope wraps lifecycle events for transmission over Pulse streams.
	Envelope struct {
		// Type identifies the transition kind (e.g., "workflow_slept").
		Type string `json:"type"`
		// WorkflowID links the event to a workflow instance.
		WorkflowID string `json:"workflow_id"`
		// Timestamp records when the transition was observed (UTC).
		Timestamp time.Time `json:"timestamp"`
		// Payload contains the transition-specific data, if any.
		Payload any `json:"payload,omitempty"`
	}
)

// NewSink constructs a Pulse-backed lifecycle sink. The Client field in opts
// is required; StreamID and MarshalEnvelope default to the built-in
// implementations if not provided.
func NewSink(opts Options) (*Sink, error) {
	if opts.Client == nil {
		return nil, errors.New("pulse client is required")
	}
	cfg := sinkOptions{
		streamID:        defaultStreamID,
		marshalEnvelope: defaultMarshal,
	}
	if opts.StreamID != nil {
		cfg.streamID = opts.StreamID
	}
	if opts.MarshalEnvelope != nil {
		cfg.marshalEnvelope = opts.MarshalEnvelope
	}
	return &Sink{client: opts.Client, opts: cfg}, nil
}

// Send publishes the event to the derived Pulse stream. It derives the stream
// ID, wraps the event in an envelope, marshals it to JSON, and publishes it
// via the Pulse client. Thread-safe for concurrent calls.
func (s *Sink) Send(ctx context.Context, event stream.Event) error {
	streamID, err := s.opts.streamID(event)
	if err != nil {
		return err
	}
	handle, err := s.client.Stream(streamID)
	if err != nil {
		return err
	}
	env := Envelope{
		Type:       string(event.Type),
		WorkflowID: event.WorkflowID,
		Timestamp:  event.Timestamp.UTC(),
		Payload:    event.Payload,
	}
	payload, err := s.opts.marshalEnvelope(env)
	if err != nil {
		return err
	}
	if _, err := handle.Add(ctx, env.Type, payload); err != nil {
		return err
	}
	return nil
}

// Close releases resources owned by the sink. This delegates to the
// underlying Pulse client, which may or may not close the Redis connection
// depending on the client implementation.
func (s *Sink) Close(ctx context.Context) error {
	return s.client.Close(ctx)
}

// defaultStreamID derives the Pulse stream name from the event's workflow id.
// Returns an error if the id is empty.
func defaultStreamID(event stream.Event) (string, error) {
	if event.WorkflowID == "" {
		return "", errors.New("stream event missing workflow id")
	}
	return fmt.Sprintf("workflow/%s", event.WorkflowID), nil
}

func defaultMarshal(env Envelope) ([]byte, error) {
	return json.Marshal(env)
}
