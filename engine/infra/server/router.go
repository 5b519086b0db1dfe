package server

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/compozy/vachanamrut/engine/infra/monitoring"
	"github.com/compozy/vachanamrut/engine/infra/server/appstate"
	"github.com/compozy/vachanamrut/engine/infra/server/middleware/ratelimit"
	"github.com/compozy/vachanamrut/engine/infra/server/routes"
	"github.com/compozy/vachanamrut/pkg/config"
	"github.com/compozy/vachanamrut/pkg/logger"
)

func convertRateLimitConfig(cfg *config.ServerConfig) *ratelimit.Config {
	rl := ratelimit.DefaultConfig()
	rl.Rate = cfg.AskRateLimit
	rl.ExcludedPaths = []string{routes.Health()}
	return rl
}

// BuildRouter assembles the gin engine. The rate limiter is skipped when the
// ask rate is empty.
func BuildRouter(
	ctx context.Context,
	cfg *config.Config,
	state *appstate.State,
	mon *monitoring.Service,
	limits *ratelimit.Manager,
) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if mon != nil && mon.IsInitialized() {
		r.Use(mon.GinMiddleware(ctx))
	}
	r.Use(LoggerMiddleware(ctx))
	r.Use(TimeoutMiddleware(cfg.Server.Timeout))
	if cfg.Server.CORSEnabled {
		r.Use(CORSMiddleware())
	}
	r.Use(appstate.StateMiddleware(state))
	if mon != nil && mon.IsInitialized() {
		r.GET(mon.Path(), gin.WrapH(mon.ExporterHandler()))
	}
	var limit gin.HandlerFunc
	if limits != nil {
		limit = limits.Middleware()
	}
	RegisterRoutes(ctx, r, limit)
	return r
}

func newRateLimiter(ctx context.Context, cfg *config.Config, s *Server) *ratelimit.Manager {
	if cfg.Server.AskRateLimit == "" {
		return nil
	}
	log := logger.FromContext(ctx)
	var (
		manager *ratelimit.Manager
		err     error
	)
	if s.monitoring != nil && s.monitoring.IsInitialized() {
		manager, err = ratelimit.NewManagerWithMetrics(ctx, convertRateLimitConfig(&cfg.Server), s.redis, s.monitoring.Meter())
	} else {
		manager, err = ratelimit.NewManager(convertRateLimitConfig(&cfg.Server), s.redis)
	}
	if err != nil {
		log.Error("Failed to initialize rate limiting", "error", err)
		return nil
	}
	log.Info("Rate limiter initialized", "driver", manager.Driver(), "rate", cfg.Server.AskRateLimit)
	return manager
}
