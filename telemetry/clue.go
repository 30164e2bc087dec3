package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"goa.design/clue/log"
)

const scopeName = "goa.design/slumber"

type (
	// ClueLogger delegates to goa.design/clue/log. The logger reads formatting
	// and debug settings from the context (set via log.Context and
	// log.WithFormat/log.WithDebug).
	ClueLogger struct{}

	// OTELMetrics delegates to OpenTelemetry metrics.
	OTELMetrics struct {
		meter metric.Meter
	}

	// OTELTracer delegates to OpenTelemetry tracing.
	OTELTracer struct {
		tracer trace.Tracer
	}

	otelSpan struct {
		span trace.Span
	}
)

// NewClueLogger constructs a Logger backed by goa.design/clue/log.
func NewClueLogger() Logger {
	return ClueLogger{}
}

// NewOTELMetrics constructs a Metrics recorder on the global MeterProvider;
// configure it via otel.SetMeterProvider before driving workflows (typically
// done via clue.ConfigureOpenTelemetry).
func NewOTELMetrics() Metrics {
	return &OTELMetrics{meter: otel.Meter(scopeName)}
}

// NewOTELTracer constructs a Tracer on the global TracerProvider.
func NewOTELTracer() Tracer {
	return &OTELTracer{tracer: otel.Tracer(scopeName)}
}

// Debug implements Logger.
func (ClueLogger) Debug(ctx context.Context, msg string, keyvals ...any) {
	log.Debug(ctx, kvFielders(msg, keyvals)...)
}

// Info implements Logger.
func (ClueLogger) Info(ctx context.Context, msg string, keyvals ...any) {
	log.Info(ctx, kvFielders(msg, keyvals)...)
}

// Error implements Logger.
func (ClueLogger) Error(ctx context.Context, err error, msg string, keyvals ...any) {
	log.Error(ctx, err, kvFielders(msg, keyvals)...)
}

// IncCounter implements Metrics.
func (m *OTELMetrics) IncCounter(name string, value float64, tags ...string) {
	counter, err := m.meter.Float64Counter(name)
	if err != nil {
		return
	}
	counter.Add(context.Background(), value, metric.WithAttributes(tagAttrs(tags)...))
}

// RecordTimer implements Metrics.
func (m *OTELMetrics) RecordTimer(name string, duration time.Duration, tags ...string) {
	histogram, err := m.meter.Float64Histogram(name)
	if err != nil {
		return
	}
	histogram.Record(context.Background(), duration.Seconds(), metric.WithAttributes(tagAttrs(tags)...))
}

// Start implements Tracer.
func (t *OTELTracer) Start(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, Span) {
	newCtx, span := t.tracer.Start(ctx, name, opts...)
	return newCtx, &otelSpan{span: span}
}

// End implements Span.
func (s *otelSpan) End(opts ...trace.SpanEndOption) {
	s.span.End(opts...)
}

// RecordError implements Span.
func (s *otelSpan) RecordError(err error, opts ...trace.EventOption) {
	s.span.RecordError(err, opts...)
}

// kvFielders converts a message plus alternating key/value pairs into clue
// fielders. Non-string keys are skipped; a trailing key is paired with nil.
func kvFielders(msg string, keyvals []any) []log.Fielder {
	fielders := []log.Fielder{log.KV{K: "msg", V: msg}}
	for i := 0; i < len(keyvals); i += 2 {
		k, ok := keyvals[i].(string)
		if !ok {
			continue
		}
		var v any
		if i+1 < len(keyvals) {
			v = keyvals[i+1]
		}
		fielders = append(fielders, log.KV{K: k, V: v})
	}
	return fielders
}

func tagAttrs(tags []string) []attribute.KeyValue {
	var attrs []attribute.KeyValue
	for i := 0; i < len(tags); i += 2 {
		v := ""
		if i+1 < len(tags) {
			v = tags[i+1]
		}
		attrs = append(attrs, attribute.String(tags[i], v))
	}
	return attrs
}
