package monitoring

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/compozy/vachanamrut/engine/core"
	"github.com/compozy/vachanamrut/engine/infra/monitoring/metrics"
	"github.com/compozy/vachanamrut/engine/llm/gateway"
)

var providerLatencyBuckets = []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30}

// GatewayMetrics records provider calls, fallbacks and exhaustion.
type GatewayMetrics struct {
	calls     metric.Int64Counter
	latency   metric.Float64Histogram
	fallbacks metric.Int64Counter
	exhausted metric.Int64Counter
}

var _ gateway.Recorder = (*GatewayMetrics)(nil)

func NewGatewayMetrics(meter metric.Meter) (*GatewayMetrics, error) {
	calls, err := meter.Int64Counter(
		metrics.MetricNameWithSubsystem("llm", "provider_calls_total"),
		metric.WithDescription("LLM provider calls by provider and outcome"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("create provider calls counter: %w", err)
	}
	latency, err := meter.Float64Histogram(
		metrics.MetricNameWithSubsystem("llm", "provider_call_duration_seconds"),
		metric.WithDescription("Duration of LLM provider calls"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(providerLatencyBuckets...),
	)
	if err != nil {
		return nil, fmt.Errorf("create provider latency histogram: %w", err)
	}
	fallbacks, err := meter.Int64Counter(
		metrics.MetricNameWithSubsystem("llm", "provider_fallbacks_total"),
		metric.WithDescription("Switches from a failed LLM provider to the next one"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("create provider fallbacks counter: %w", err)
	}
	exhausted, err := meter.Int64Counter(
		metrics.MetricNameWithSubsystem("llm", "providers_exhausted_total"),
		metric.WithDescription("Calls for which every LLM provider failed"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("create providers exhausted counter: %w", err)
	}
	return &GatewayMetrics{calls: calls, latency: latency, fallbacks: fallbacks, exhausted: exhausted}, nil
}

func (m *GatewayMetrics) RecordProviderCall(
	ctx context.Context,
	provider core.ProviderName,
	outcome string,
	duration time.Duration,
) {
	attrs := metric.WithAttributes(
		attribute.String("provider", string(provider)),
		attribute.String("outcome", outcome),
	)
	m.calls.Add(ctx, 1, attrs)
	if outcome != gateway.OutcomeSkipped {
		m.latency.Record(ctx, duration.Seconds(), attrs)
	}
}

func (m *GatewayMetrics) RecordFallback(ctx context.Context, from, to core.ProviderName) {
	m.fallbacks.Add(ctx, 1, metric.WithAttributes(
		attribute.String("from", string(from)),
		attribute.String("to", string(to)),
	))
}

func (m *GatewayMetrics) RecordExhausted(ctx context.Context) {
	m.exhausted.Add(ctx, 1)
}
