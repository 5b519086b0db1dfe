package stage

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/compozy/vachanamrut/engine/infra/monitoring/metrics"
)

const (
	outcomeOK      = "ok"
	outcomeDefault = "default"
	outcomeFailed  = "failed"
)

var (
	stageMetricsOnce sync.Once
	stageMetricsErr  error
	stageDuration    metric.Float64Histogram
	stageTotal       metric.Int64Counter
)

func ensureStageMetrics() error {
	stageMetricsOnce.Do(func() {
		meter := otel.GetMeterProvider().Meter("vachanamrut.pipeline.stage")
		stageDuration, stageMetricsErr = meter.Float64Histogram(
			metrics.MetricNameWithSubsystem("pipeline", "stage_duration_seconds"),
			metric.WithDescription("Duration of pipeline stage calls"),
			metric.WithUnit("s"),
			metric.WithExplicitBucketBoundaries(metrics.StageDurationBuckets...),
		)
		if stageMetricsErr != nil {
			return
		}
		stageTotal, stageMetricsErr = meter.Int64Counter(
			metrics.MetricNameWithSubsystem("pipeline", "stage_total"),
			metric.WithDescription("Pipeline stage runs by outcome; default means the stage fell back"),
			metric.WithUnit("1"),
		)
	})
	return stageMetricsErr
}

func recordStage(ctx context.Context, name, outcome string, d time.Duration) {
	if err := ensureStageMetrics(); err != nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("stage", name), attribute.String("outcome", outcome))
	stageDuration.Record(ctx, d.Seconds(), attrs)
	stageTotal.Add(ctx, 1, attrs)
}
