package ratelimit

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3"
	mgin "github.com/ulule/limiter/v3/drivers/middleware/gin"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	sredis "github.com/ulule/limiter/v3/drivers/store/redis"
	"go.opentelemetry.io/otel/metric"

	"github.com/compozy/vachanamrut/engine/infra/server/router"
	"github.com/compozy/vachanamrut/pkg/logger"
)

// Manager throttles requests per client IP.
type Manager struct {
	config  *Config
	limiter *limiter.Limiter
	driver  string
}

// NewManager builds a manager. A nil redis client selects the in-memory store.
func NewManager(cfg *Config, client *redis.Client) (*Manager, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	rate, err := cfg.LimiterRate()
	if err != nil {
		return nil, err
	}
	opts := limiter.StoreOptions{
		Prefix:          cfg.Prefix,
		MaxRetry:        cfg.MaxRetry,
		CleanUpInterval: cfg.CleanUpInterval,
	}
	var store limiter.Store
	driver := "memory"
	if client != nil {
		store, err = sredis.NewStoreWithOptions(client, opts)
		if err != nil {
			return nil, fmt.Errorf("failed to create redis rate limit store: %w", err)
		}
		driver = "redis"
	} else {
		store = memory.NewStoreWithOptions(opts)
	}
	return &Manager{
		config:  cfg,
		limiter: limiter.New(store, rate),
		driver:  driver,
	}, nil
}

// NewManagerWithMetrics builds a manager that counts blocked requests.
func NewManagerWithMetrics(
	ctx context.Context,
	cfg *Config,
	client *redis.Client,
	meter metric.Meter,
) (*Manager, error) {
	if meter != nil {
		if err := InitMetrics(meter); err != nil {
			logger.FromContext(ctx).Warn("Failed to initialize rate limit metrics", "error", err)
		}
	}
	return NewManager(cfg, client)
}

// Driver names the backing store.
func (m *Manager) Driver() string {
	return m.driver
}

// Middleware enforces the limit on the routes it is attached to.
func (m *Manager) Middleware() gin.HandlerFunc {
	limit := mgin.NewMiddleware(
		m.limiter,
		mgin.WithLimitReachedHandler(func(c *gin.Context) {
			route := c.FullPath()
			if route == "" {
				route = c.Request.URL.Path
			}
			IncrementBlockedRequests(c.Request.Context(), route)
			router.RespondWithStatus(c, http.StatusTooManyRequests, "rate limit exceeded, try again later")
		}),
		mgin.WithErrorHandler(func(c *gin.Context, err error) {
			logger.FromContext(c.Request.Context()).Error("Rate limiter failed, allowing request", "error", err)
			c.Next()
		}),
	)
	return func(c *gin.Context) {
		if m.config.excluded(c.Request.URL.Path, c.ClientIP()) {
			c.Next()
			return
		}
		if m.config.DisableHeaders {
			m.enforceWithoutHeaders(c)
			return
		}
		limit(c)
	}
}

func (m *Manager) enforceWithoutHeaders(c *gin.Context) {
	ctx, err := m.limiter.Get(c.Request.Context(), c.ClientIP())
	if err != nil {
		logger.FromContext(c.Request.Context()).Error("Rate limiter failed, allowing request", "error", err)
		c.Next()
		return
	}
	if ctx.Reached {
		IncrementBlockedRequests(c.Request.Context(), c.FullPath())
		router.RespondWithStatus(c, http.StatusTooManyRequests, "rate limit exceeded, try again later")
		return
	}
	c.Next()
}
