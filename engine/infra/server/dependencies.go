package server

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/compozy/vachanamrut/engine/infra/monitoring"
	"github.com/compozy/vachanamrut/engine/infra/server/appstate"
	"github.com/compozy/vachanamrut/engine/knowledge"
	"github.com/compozy/vachanamrut/engine/knowledge/embedder"
	"github.com/compozy/vachanamrut/engine/knowledge/librarian"
	"github.com/compozy/vachanamrut/engine/knowledge/retriever"
	"github.com/compozy/vachanamrut/engine/knowledge/vectordb"
	"github.com/compozy/vachanamrut/engine/llm/gateway"
	"github.com/compozy/vachanamrut/engine/pipeline"
	"github.com/compozy/vachanamrut/engine/streaming"
	"github.com/compozy/vachanamrut/pkg/config"
	"github.com/compozy/vachanamrut/pkg/logger"
)

const cleanupTimeout = 10 * time.Second

// Dependencies owns everything the handlers and the ask command share.
type Dependencies struct {
	State *appstate.State
	// Redis is nil unless event mirroring is enabled and reachable.
	Redis    *redis.Client
	cleanups []func(context.Context) error
}

type retrieval interface {
	knowledge.Retriever
	appstate.Readiness
}

// NewDependencies builds the pipeline and its collaborators from cfg. Only a
// misconfigured gateway is fatal: an unreachable retrieval backend, a missing
// corpus or an unreachable Redis degrade the service instead.
func NewDependencies(ctx context.Context, cfg *config.Config, mon *monitoring.Service) (*Dependencies, error) {
	log := logger.FromContext(ctx)
	start := time.Now()
	deps := &Dependencies{}
	gw, err := newGateway(ctx, cfg, mon)
	if err != nil {
		return nil, err
	}
	deps.cleanups = append(deps.cleanups, func(context.Context) error { return gw.Close() })
	retr := deps.setupRetrieval(ctx, cfg)
	orchestrator := pipeline.New(gw, retr, pipeline.WithSearchLimit(cfg.Knowledge.SearchLimit))
	state, err := appstate.NewState(orchestrator, nil, retr)
	if err != nil {
		deps.Close(ctx)
		return nil, err
	}
	if lib, err := librarian.Load(ctx, cfg.Knowledge.CorpusPath); err != nil {
		log.Warn("Corpus unavailable, full-text lookup disabled", "path", cfg.Knowledge.CorpusPath, "error", err)
	} else {
		state.Library = lib
	}
	if cfg.Streaming.Enabled {
		deps.setupStreaming(ctx, cfg, state)
	}
	if mon != nil {
		if sm, err := monitoring.NewStreamMetrics(mon.Meter()); err != nil {
			log.Warn("Failed to create stream metrics", "error", err)
		} else {
			state.StreamMetrics = sm
		}
	}
	deps.State = state
	log.Info("Dependencies ready",
		"llm_primary", gw.Primary(),
		"llm_secondary", gw.Secondary(),
		"vector_provider", cfg.Knowledge.Vector.Provider,
		"replay", state.Publisher != nil,
		"duration", time.Since(start),
	)
	return deps, nil
}

func newGateway(ctx context.Context, cfg *config.Config, mon *monitoring.Service) (*gateway.Gateway, error) {
	var opts []gateway.Option
	if mon != nil {
		rec, err := monitoring.NewGatewayMetrics(mon.Meter())
		if err != nil {
			logger.FromContext(ctx).Warn("Failed to create gateway metrics", "error", err)
		} else {
			opts = append(opts, gateway.WithRecorder(rec))
		}
	}
	gw, err := gateway.NewFromConfig(&cfg.LLM, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to configure LLM gateway: %w", err)
	}
	for _, name := range gw.Order("") {
		if gw.KeyCount(name) == 0 {
			logger.FromContext(ctx).Warn("LLM provider has no API keys", "provider", name)
		}
	}
	return gw, nil
}

func (d *Dependencies) setupRetrieval(ctx context.Context, cfg *config.Config) retrieval {
	log := logger.FromContext(ctx)
	emb, err := embedder.New(ctx, embedder.ConfigFromApp(&cfg.Knowledge.Embedder))
	if err != nil {
		log.Error("Embedder unavailable, retrieval disabled", "error", err)
		return retriever.Offline{Cause: err}
	}
	store, err := vectordb.New(ctx, vectordb.ConfigFromApp(&cfg.Knowledge.Vector))
	if err != nil {
		log.Error("Vector store unavailable, retrieval disabled", "error", err)
		return retriever.Offline{Cause: err}
	}
	svc, err := retriever.NewService(emb, store, retriever.WithCollection(cfg.Knowledge.Vector.Collection))
	if err != nil {
		_ = store.Close(ctx)
		log.Error("Retriever unavailable", "error", err)
		return retriever.Offline{Cause: err}
	}
	d.cleanups = append(d.cleanups, svc.Close)
	return svc
}

func (d *Dependencies) setupStreaming(ctx context.Context, cfg *config.Config, state *appstate.State) {
	log := logger.FromContext(ctx)
	client, err := streaming.NewRedisClient(ctx, cfg.Streaming.RedisURL)
	if err != nil {
		log.Warn("Redis unavailable, event replay disabled", "error", err)
		return
	}
	pub, err := streaming.NewRedisPublisher(client, streaming.OptionsFromConfig(&cfg.Streaming))
	if err != nil {
		_ = client.Close()
		log.Warn("Event publisher unavailable, event replay disabled", "error", err)
		return
	}
	d.Redis = client
	d.cleanups = append(d.cleanups, func(context.Context) error { return client.Close() })
	state.Publisher = pub
}

// Close releases resources in reverse order of creation.
func (d *Dependencies) Close(ctx context.Context) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()
	log := logger.FromContext(ctx)
	for i := len(d.cleanups) - 1; i >= 0; i-- {
		if err := d.cleanups[i](ctx); err != nil {
			log.Warn("Cleanup failed", "index", i, "error", err)
		}
	}
	d.cleanups = nil
}
