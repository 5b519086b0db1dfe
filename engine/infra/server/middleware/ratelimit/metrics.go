package ratelimit

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/compozy/vachanamrut/engine/infra/monitoring/metrics"
)

var (
	rateLimitBlocksTotal metric.Int64Counter
	metricsOnce          sync.Once
	metricsMu            sync.RWMutex
)

// InitMetrics initializes rate limiting metrics.
func InitMetrics(meter metric.Meter) error {
	var err error
	metricsOnce.Do(func() {
		var counter metric.Int64Counter
		counter, err = meter.Int64Counter(
			metrics.MetricName("rate_limit_blocks_total"),
			metric.WithDescription("Total number of requests blocked by rate limiting"),
			metric.WithUnit("1"),
		)
		metricsMu.Lock()
		rateLimitBlocksTotal = counter
		metricsMu.Unlock()
	})
	return err
}

// IncrementBlockedRequests increments the blocked requests counter.
func IncrementBlockedRequests(ctx context.Context, route string) {
	metricsMu.RLock()
	counter := rateLimitBlocksTotal
	metricsMu.RUnlock()
	if counter != nil {
		counter.Add(ctx, 1, metric.WithAttributes(attribute.String("route", route)))
	}
}

// ResetMetricsForTesting allows InitMetrics to run again.
func ResetMetricsForTesting() {
	metricsMu.Lock()
	defer metricsMu.Unlock()
	rateLimitBlocksTotal = nil
	metricsOnce = sync.Once{}
}
