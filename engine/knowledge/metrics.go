package knowledge

import (
	"context"
	"sync"
	"time"

	"github.com/compozy/vachanamrut/engine/infra/monitoring/metrics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Retrieval outcomes.
const (
	OutcomeHit         = "hit"
	OutcomeEmpty       = "empty"
	OutcomeUnavailable = "unavailable"
)

var (
	metricsOnce         sync.Once
	metricsMu           sync.Mutex
	metricsInitErr      error
	queryLatencyHist    metric.Float64Histogram
	retrievalCounter    metric.Int64Counter
	embedCacheHitCount  metric.Int64Counter
	embedCacheMissCount metric.Int64Counter
)

// RecordQueryLatency records how long one retrieval took and how it ended.
func RecordQueryLatency(ctx context.Context, collection string, outcome string, d time.Duration) {
	if err := ensureMetrics(); err != nil || queryLatencyHist == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("collection", collection),
		attribute.String("outcome", outcome),
	)
	queryLatencyHist.Record(ctx, d.Seconds(), attrs)
	retrievalCounter.Add(ctx, 1, attrs)
}

// RecordEmbedCache counts query embedding cache lookups.
func RecordEmbedCache(ctx context.Context, provider string, hit bool) {
	if err := ensureMetrics(); err != nil || embedCacheHitCount == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("provider", provider))
	if hit {
		embedCacheHitCount.Add(ctx, 1, attrs)
		return
	}
	embedCacheMissCount.Add(ctx, 1, attrs)
}

func ResetMetricsForTesting() {
	metricsMu.Lock()
	metricsOnce = sync.Once{}
	metricsInitErr = nil
	queryLatencyHist = nil
	retrievalCounter = nil
	embedCacheHitCount = nil
	embedCacheMissCount = nil
	metricsMu.Unlock()
}

func ensureMetrics() error {
	metricsOnce.Do(func() {
		meter := otel.GetMeterProvider().Meter("vachanamrut.knowledge")
		metricsInitErr = initRetrievalMetrics(meter)
	})
	return metricsInitErr
}

func initRetrievalMetrics(meter metric.Meter) error {
	var err error
	queryLatencyHist, err = meter.Float64Histogram(
		metrics.MetricNameWithSubsystem("knowledge", "query_latency_seconds"),
		metric.WithDescription("Latency of scripture retrieval queries"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(metrics.RetrievalDurationBuckets...),
	)
	if err != nil {
		return err
	}
	retrievalCounter, err = meter.Int64Counter(
		metrics.MetricNameWithSubsystem("knowledge", "retrieval_total"),
		metric.WithDescription("Number of retrievals classified by outcome"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return err
	}
	embedCacheHitCount, err = meter.Int64Counter(
		metrics.MetricNameWithSubsystem("knowledge", "embed_cache_hits_total"),
		metric.WithDescription("Number of query embeddings served from cache"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return err
	}
	embedCacheMissCount, err = meter.Int64Counter(
		metrics.MetricNameWithSubsystem("knowledge", "embed_cache_misses_total"),
		metric.WithDescription("Number of query embeddings computed by the provider"),
		metric.WithUnit("1"),
	)
	return err
}
