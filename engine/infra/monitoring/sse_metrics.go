package monitoring

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/compozy/vachanamrut/engine/infra/monitoring/metrics"
)

// Stream kinds used as the "kind" attribute.
const (
	StreamKindAsk    = "ask"
	StreamKindReplay = "replay"
)

var (
	streamDurationBuckets   = []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300}
	timeToFirstEventBuckets = []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10}
)

// StreamMetrics captures SSE stream lifecycle telemetry. A nil
// *StreamMetrics records nothing.
type StreamMetrics struct {
	active     metric.Int64UpDownCounter
	duration   metric.Float64Histogram
	firstEvent metric.Float64Histogram
	events     metric.Int64Counter
	errors     metric.Int64Counter
}

func NewStreamMetrics(meter metric.Meter) (*StreamMetrics, error) {
	active, err := meter.Int64UpDownCounter(
		metrics.MetricNameWithSubsystem("stream", "active_connections"),
		metric.WithDescription("Open SSE connections by kind"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("create stream active connections counter: %w", err)
	}
	duration, err := meter.Float64Histogram(
		metrics.MetricNameWithSubsystem("stream", "connection_duration_seconds"),
		metric.WithDescription("Duration of SSE connections"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(streamDurationBuckets...),
	)
	if err != nil {
		return nil, fmt.Errorf("create stream duration histogram: %w", err)
	}
	firstEvent, err := meter.Float64Histogram(
		metrics.MetricNameWithSubsystem("stream", "time_to_first_event_seconds"),
		metric.WithDescription("Time between accepting a connection and its first event"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(timeToFirstEventBuckets...),
	)
	if err != nil {
		return nil, fmt.Errorf("create time-to-first-event histogram: %w", err)
	}
	events, err := meter.Int64Counter(
		metrics.MetricNameWithSubsystem("stream", "events_total"),
		metric.WithDescription("SSE events written by kind and event type"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("create stream events counter: %w", err)
	}
	errs, err := meter.Int64Counter(
		metrics.MetricNameWithSubsystem("stream", "errors_total"),
		metric.WithDescription("SSE streams closed abnormally by kind and reason"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("create stream errors counter: %w", err)
	}
	return &StreamMetrics{active: active, duration: duration, firstEvent: firstEvent, events: events, errors: errs}, nil
}

func kindAttr(kind string) metric.MeasurementOption {
	return metric.WithAttributes(attribute.String("kind", kind))
}

func (m *StreamMetrics) RecordConnect(ctx context.Context, kind string) {
	if m == nil {
		return
	}
	m.active.Add(ctx, 1, kindAttr(kind))
}

// RecordDisconnect closes the connection gauge and records its lifetime.
func (m *StreamMetrics) RecordDisconnect(ctx context.Context, kind string, lifetime time.Duration) {
	if m == nil {
		return
	}
	m.active.Add(ctx, -1, kindAttr(kind))
	m.duration.Record(ctx, lifetime.Seconds(), kindAttr(kind))
}

func (m *StreamMetrics) RecordTimeToFirstEvent(ctx context.Context, kind string, latency time.Duration) {
	if m == nil {
		return
	}
	m.firstEvent.Record(ctx, latency.Seconds(), kindAttr(kind))
}

func (m *StreamMetrics) RecordEvent(ctx context.Context, kind, eventType string) {
	if m == nil {
		return
	}
	m.events.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.String("event_type", eventType),
	))
}

func (m *StreamMetrics) RecordError(ctx context.Context, kind, reason string) {
	if m == nil {
		return
	}
	m.errors.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.String("reason", reason),
	))
}
