package pipeline

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/compozy/vachanamrut/engine/infra/monitoring/metrics"
)

// Run outcomes.
const (
	OutcomeAnswered    = "answered"
	OutcomeNoResults   = "no_results"
	OutcomeUnavailable = "unavailable"
	OutcomeFailed      = "failed"
	OutcomeCanceled    = "canceled"
)

var (
	runMetricsOnce sync.Once
	runMetricsErr  error
	runDuration    metric.Float64Histogram
	runTotal       metric.Int64Counter
	runTokens      metric.Int64Counter
)

func ensureRunMetrics() error {
	runMetricsOnce.Do(func() {
		meter := otel.GetMeterProvider().Meter("vachanamrut.pipeline")
		runDuration, runMetricsErr = meter.Float64Histogram(
			metrics.MetricNameWithSubsystem("pipeline", "run_duration_seconds"),
			metric.WithDescription("Duration of question answering runs"),
			metric.WithUnit("s"),
			metric.WithExplicitBucketBoundaries(metrics.StageDurationBuckets...),
		)
		if runMetricsErr != nil {
			return
		}
		runTotal, runMetricsErr = meter.Int64Counter(
			metrics.MetricNameWithSubsystem("pipeline", "runs_total"),
			metric.WithDescription("Question answering runs by outcome"),
			metric.WithUnit("1"),
		)
		if runMetricsErr != nil {
			return
		}
		runTokens, runMetricsErr = meter.Int64Counter(
			metrics.MetricNameWithSubsystem("pipeline", "answer_fragments_total"),
			metric.WithDescription("Answer fragments streamed to callers"),
			metric.WithUnit("1"),
		)
	})
	return runMetricsErr
}

func recordRun(ctx context.Context, outcome string, d time.Duration, fragments int) {
	if err := ensureRunMetrics(); err != nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	runDuration.Record(ctx, d.Seconds(), attrs)
	runTotal.Add(ctx, 1, attrs)
	if fragments > 0 {
		runTokens.Add(ctx, int64(fragments))
	}
}
