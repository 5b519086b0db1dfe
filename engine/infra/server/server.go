package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/compozy/vachanamrut/engine/infra/monitoring"
	"github.com/compozy/vachanamrut/pkg/config"
	"github.com/compozy/vachanamrut/pkg/logger"
)

const (
	monitoringShutdownTimeout = 5 * time.Second
	serverShutdownTimeout     = 5 * time.Second
	httpReadTimeout           = 15 * time.Second
	httpIdleTimeout           = 60 * time.Second
)

// Server serves the HTTP API until its context ends.
type Server struct {
	config     *config.Config
	monitoring *monitoring.Service
	deps       *Dependencies
	redis      *redis.Client
	router     *gin.Engine
	httpServer *http.Server
}

// NewServer builds monitoring, dependencies and the router.
func NewServer(ctx context.Context, cfg *config.Config) (*Server, error) {
	if cfg == nil {
		return nil, errors.New("server: configuration is required")
	}
	mon := monitoring.NewServiceWithFallback(ctx, &cfg.Monitoring)
	mon.SetAsGlobal()
	deps, err := NewDependencies(ctx, cfg, mon)
	if err != nil {
		shutdownMonitoring(ctx, mon)
		return nil, err
	}
	s := &Server{
		config:     cfg,
		monitoring: mon,
		deps:       deps,
		redis:      deps.Redis,
	}
	s.router = BuildRouter(ctx, cfg, deps.State, mon, newRateLimiter(ctx, cfg, s))
	return s, nil
}

// Handler exposes the router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Addr is the listen address.
func (s *Server) Addr() string {
	return net.JoinHostPort(s.config.Server.Host, strconv.Itoa(s.config.Server.Port))
}

// Run listens until ctx is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	log := logger.FromContext(ctx)
	// No write timeout: answers stream for as long as the request context allows.
	s.httpServer = &http.Server{
		Addr:        s.Addr(),
		Handler:     s.router,
		ReadTimeout: httpReadTimeout,
		IdleTimeout: httpIdleTimeout,
		BaseContext: func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info("Starting HTTP server", "address", fmt.Sprintf("http://%s", s.Addr()))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	select {
	case err := <-errCh:
		s.cleanup(ctx)
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}
	log.Debug("Received shutdown signal, initiating graceful shutdown")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), serverShutdownTimeout)
	defer cancel()
	err := s.httpServer.Shutdown(shutdownCtx)
	s.cleanup(ctx)
	if err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	log.Info("Server shutdown completed successfully")
	return nil
}

func (s *Server) cleanup(ctx context.Context) {
	s.deps.Close(ctx)
	shutdownMonitoring(ctx, s.monitoring)
}

func shutdownMonitoring(ctx context.Context, mon *monitoring.Service) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), monitoringShutdownTimeout)
	defer cancel()
	if err := mon.Shutdown(ctx); err != nil {
		logger.FromContext(ctx).Warn("Monitoring shutdown failed", "error", err)
	}
}
