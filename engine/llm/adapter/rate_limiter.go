package llmadapter

import (
	"context"
	"fmt"
	"math"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/compozy/vachanamrut/engine/core"
	appconfig "github.com/compozy/vachanamrut/pkg/config"
)

// RateLimiterRegistry throttles calls per provider with a concurrency
// semaphore and an optional request-per-minute token bucket. Limiters are
// shared across pipeline runs so concurrent questions observe the same limits.
type RateLimiterRegistry struct {
	enabled  bool
	config   appconfig.LLMRateLimitConfig
	limiters sync.Map // map[core.ProviderName]*providerRateLimiter
}

// RateLimiterMetricsSnapshot provides introspection for active/rejected counters.
type RateLimiterMetricsSnapshot struct {
	ActiveRequests   int32
	RejectedRequests int64
	TotalRequests    int64
}

type providerRateLimiter struct {
	provider    core.ProviderName
	sem         *semaphore.Weighted
	rateLimiter *rate.Limiter

	activeRequests   atomic.Int32
	rejectedRequests atomic.Int64
	totalRequests    atomic.Int64
}

// NewRateLimiterRegistry creates a registry using the supplied configuration.
func NewRateLimiterRegistry(cfg appconfig.LLMRateLimitConfig) *RateLimiterRegistry {
	return &RateLimiterRegistry{
		enabled: cfg.Enabled && cfg.Concurrency > 0,
		config:  cfg,
	}
}

// Acquire waits for a slot for the provider.
// When rate limiting is disabled Acquire is a no-op.
func (r *RateLimiterRegistry) Acquire(ctx context.Context, provider core.ProviderName) error {
	limiter := r.ensureLimiter(provider)
	if limiter == nil {
		return nil
	}
	return limiter.acquire(ctx)
}

// Release frees a previously acquired slot for the provider.
func (r *RateLimiterRegistry) Release(provider core.ProviderName) {
	if r == nil || !r.enabled {
		return
	}
	if value, ok := r.limiters.Load(provider); ok {
		value.(*providerRateLimiter).release()
	}
}

// Metrics provides a snapshot of limiter counters for observability and tests.
func (r *RateLimiterRegistry) Metrics(provider core.ProviderName) (RateLimiterMetricsSnapshot, bool) {
	if r == nil {
		return RateLimiterMetricsSnapshot{}, false
	}
	value, ok := r.limiters.Load(provider)
	if !ok {
		return RateLimiterMetricsSnapshot{}, false
	}
	l := value.(*providerRateLimiter)
	return RateLimiterMetricsSnapshot{
		ActiveRequests:   l.activeRequests.Load(),
		RejectedRequests: l.rejectedRequests.Load(),
		TotalRequests:    l.totalRequests.Load(),
	}, true
}

func (r *RateLimiterRegistry) ensureLimiter(provider core.ProviderName) *providerRateLimiter {
	if r == nil || !r.enabled || provider == "" {
		return nil
	}
	if existing, ok := r.limiters.Load(provider); ok {
		return existing.(*providerRateLimiter)
	}
	actual, _ := r.limiters.LoadOrStore(provider, newProviderRateLimiter(provider, r.config))
	return actual.(*providerRateLimiter)
}

func newProviderRateLimiter(provider core.ProviderName, cfg appconfig.LLMRateLimitConfig) *providerRateLimiter {
	limiter := &providerRateLimiter{
		provider: provider,
		sem:      semaphore.NewWeighted(int64(cfg.Concurrency)),
	}
	if cfg.RequestsPerMinute > 0 {
		perSecond := cfg.RequestsPerMinute / 60.0
		limiter.rateLimiter = rate.NewLimiter(rate.Limit(perSecond), computeBurst(perSecond, cfg.Burst))
	}
	return limiter
}

func computeBurst(perSecond float64, configured int) int {
	if configured > 0 {
		return configured
	}
	if perSecond <= 0 {
		return 1
	}
	return int(math.Ceil(perSecond))
}

func (l *providerRateLimiter) acquire(ctx context.Context) error {
	l.totalRequests.Add(1)
	if err := l.sem.Acquire(ctx, 1); err != nil {
		l.rejectedRequests.Add(1)
		return newRateLimitError(l.provider, "provider concurrency wait canceled", err)
	}
	l.activeRequests.Add(1)
	if l.rateLimiter != nil {
		if err := l.rateLimiter.Wait(ctx); err != nil {
			l.rejectedRequests.Add(1)
			l.release()
			return newRateLimitError(l.provider, "provider request rate wait canceled", err)
		}
	}
	return nil
}

func (l *providerRateLimiter) release() {
	l.sem.Release(1)
	l.activeRequests.Add(-1)
}

func newRateLimitError(provider core.ProviderName, message string, underlying error) error {
	return NewErrorWithCode(ErrCodeRateLimit, fmt.Sprintf("%s (%s)", message, provider), string(provider), underlying)
}
