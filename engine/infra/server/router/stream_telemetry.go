package router

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/compozy/vachanamrut/engine/core"
	"github.com/compozy/vachanamrut/engine/infra/monitoring"
	"github.com/compozy/vachanamrut/pkg/logger"
)

const (
	streamTracerName     = "vachanamrut.stream"
	streamConnectedEvent = "stream.connected"
	streamEventEmission  = "stream.event"
)

// Reasons a stream ended, used as metric and log attributes.
const (
	StreamReasonCompleted       = "completed"
	StreamReasonContextCanceled = "context_canceled"
	StreamReasonWriteFailed     = "write_failed"
	StreamReasonStreamError     = "stream_error"
	StreamReasonTimeout         = "timeout"
)

// StreamTelemetry traces and measures one SSE connection.
type StreamTelemetry struct {
	ctx                context.Context
	kind               string
	runID              string
	metrics            *monitoring.StreamMetrics
	start              time.Time
	firstEventRecorded bool
	events             int64
	span               trace.Span
	closeOnce          sync.Once
}

// NewStreamTelemetry starts a span and counts the connection.
func NewStreamTelemetry(
	ctx context.Context,
	kind string,
	runID core.ID,
	metrics *monitoring.StreamMetrics,
) *StreamTelemetry {
	spanCtx, span := otel.Tracer(streamTracerName).Start(
		ctx,
		fmt.Sprintf("stream.%s", kind),
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.String("stream.kind", kind),
			attribute.String("stream.run_id", runID.String()),
		),
	)
	metrics.RecordConnect(spanCtx, kind)
	return &StreamTelemetry{
		ctx:     spanCtx,
		kind:    kind,
		runID:   runID.String(),
		metrics: metrics,
		start:   time.Now(),
		span:    span,
	}
}

// Context carries the connection span.
func (t *StreamTelemetry) Context() context.Context {
	return t.ctx
}

// Connected logs the start of the stream.
func (t *StreamTelemetry) Connected(message string, fields ...any) {
	payload := append([]any{"run_id", t.runID, "kind", t.kind}, fields...)
	logger.FromContext(t.ctx).Info(message, payload...)
	t.span.AddEvent(streamConnectedEvent)
}

// RecordEvent counts one written frame.
func (t *StreamTelemetry) RecordEvent(eventType string) {
	t.events++
	if !t.firstEventRecorded {
		t.firstEventRecorded = true
		latency := time.Since(t.start)
		t.metrics.RecordTimeToFirstEvent(t.ctx, t.kind, latency)
		t.span.SetAttributes(attribute.Float64("stream.time_to_first_event_seconds", latency.Seconds()))
	}
	t.metrics.RecordEvent(t.ctx, t.kind, eventType)
	t.span.AddEvent(streamEventEmission, trace.WithAttributes(
		attribute.String("stream.event.type", eventType),
		attribute.Int64("stream.event.sequence", t.events),
	))
}

// Events returns how many frames were recorded.
func (t *StreamTelemetry) Events() int64 {
	return t.events
}

// Close ends the span once. A non-nil err marks the stream failed.
func (t *StreamTelemetry) Close(reason string, err error) {
	t.closeOnce.Do(func() {
		duration := time.Since(t.start)
		t.metrics.RecordDisconnect(t.ctx, t.kind, duration)
		fields := []any{
			"run_id", t.runID,
			"kind", t.kind,
			"reason", reason,
			"events", t.events,
			"duration", duration,
		}
		log := logger.FromContext(t.ctx)
		if err != nil {
			t.metrics.RecordError(t.ctx, t.kind, reason)
			t.span.RecordError(err)
			t.span.SetStatus(codes.Error, reason)
			log.Warn("Stream closed with error", append(fields, "error", core.RedactError(err))...)
		} else {
			t.span.SetStatus(codes.Ok, reason)
			log.Info("Stream closed", fields...)
		}
		t.span.SetAttributes(
			attribute.String("stream.close_reason", reason),
			attribute.Int64("stream.events", t.events),
		)
		t.span.End()
	})
}
