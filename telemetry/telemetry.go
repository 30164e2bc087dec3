// Package telemetry defines the observability seams used by the orchestrator
// and worker: structured logging, metrics, and tracing. The default
// implementations delegate to goa.design/clue/log and OpenTelemetry; no-op
// implementations keep tests and minimal embeddings quiet.
package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/trace"
)

type (
	// Logger emits structured log entries. Keyvals are alternating key/value
	// pairs; non-string keys are skipped.
	Logger interface {
		Debug(ctx context.Context, msg string, keyvals ...any)
		Info(ctx context.Context, msg string, keyvals ...any)
		Error(ctx context.Context, err error, msg string, keyvals ...any)
	}

	// Metrics records engine counters and timers. Tags are alternating
	// key/value strings.
	Metrics interface {
		IncCounter(name string, value float64, tags ...string)
		RecordTimer(name string, duration time.Duration, tags ...string)
	}

	// Tracer opens spans around orchestrator runs.
	Tracer interface {
		Start(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, Span)
	}

	// Span is the subset of span operations the engine uses.
	Span interface {
		End(opts ...trace.SpanEndOption)
		RecordError(err error, opts ...trace.EventOption)
	}

	// NoopLogger discards all log entries.
	NoopLogger struct{}

	// NoopMetrics discards all measurements.
	NoopMetrics struct{}

	// NoopTracer produces no-op spans.
	NoopTracer struct{}

	noopSpan struct{}
)

// Debug implements Logger.
func (NoopLogger) Debug(context.Context, string, ...any) {}

// Info implements Logger.
func (NoopLogger) Info(context.Context, string, ...any) {}

// Error implements Logger.
func (NoopLogger) Error(context.Context, error, string, ...any) {}

// IncCounter implements Metrics.
func (NoopMetrics) IncCounter(string, float64, ...string) {}

// RecordTimer implements Metrics.
func (NoopMetrics) RecordTimer(string, time.Duration, ...string) {}

// Start implements Tracer.
func (NoopTracer) Start(ctx context.Context, _ string, _ ...trace.SpanStartOption) (context.Context, Span) {
	return ctx, noopSpan{}
}

func (noopSpan) End(...trace.SpanEndOption)              {}
func (noopSpan) RecordError(error, ...trace.EventOption) {}
