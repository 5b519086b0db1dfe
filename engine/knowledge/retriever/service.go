package retriever

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/compozy/vachanamrut/engine/core"
	"github.com/compozy/vachanamrut/engine/knowledge"
	"github.com/compozy/vachanamrut/engine/knowledge/embedder"
	"github.com/compozy/vachanamrut/engine/knowledge/vectordb"
	"github.com/compozy/vachanamrut/pkg/logger"
)

// Service implements knowledge.Retriever on top of an embedder and a vector store.
type Service struct {
	embedder   embedder.Embedder
	store      vectordb.Store
	collection string
	minScore   float64
	tracer     trace.Tracer
}

var _ knowledge.Retriever = (*Service)(nil)

// Option customizes a Service.
type Option func(*Service)

// WithCollection labels spans and metrics with the collection name.
func WithCollection(name string) Option {
	return func(s *Service) {
		s.collection = name
	}
}

// WithMinScore drops matches scoring below threshold.
func WithMinScore(threshold float64) Option {
	return func(s *Service) {
		s.minScore = threshold
	}
}

func NewService(emb embedder.Embedder, store vectordb.Store, opts ...Option) (*Service, error) {
	if emb == nil {
		return nil, errors.New("knowledge: retriever embedder is required")
	}
	if store == nil {
		return nil, errors.New("knowledge: retriever vector store is required")
	}
	s := &Service{
		embedder: emb,
		store:    store,
		tracer:   otel.Tracer("vachanamrut.knowledge.retriever"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Search embeds query and returns the closest passages, best first. Backend
// failures are reported as knowledge.ErrUnavailable. A query the store
// refuses, such as a filter on an unknown field, yields an empty result.
func (s *Service) Search(
	ctx context.Context,
	query string,
	filter *knowledge.Filter,
	limit int,
) (result *knowledge.SearchResult, err error) {
	if strings.TrimSpace(query) == "" {
		return &knowledge.SearchResult{}, nil
	}
	if limit <= 0 {
		limit = knowledge.DefaultSearchLimit
	}
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "vachanamrut.knowledge.retriever.search", trace.WithAttributes(
		attribute.String("collection", s.collection),
		attribute.String("filter", filter.String()),
		attribute.Int("limit", limit),
	))
	defer func() { s.finishSearch(ctx, span, start, result, err) }()

	vector, err := s.embedQueryWithSpan(ctx, query)
	if err != nil {
		return nil, s.classify(ctx, err)
	}
	matches, err := s.searchMatches(ctx, vector, vectordb.SearchOptions{
		TopK:     limit,
		MinScore: s.minScore,
		Filter:   filter,
	})
	if err != nil {
		if oe, ok := vectordb.IsOperationError(err); ok && oe.Rejected() {
			logger.FromContext(ctx).Warn(
				"Vector store rejected query; treating as no results",
				"filter", filter.String(),
				"error", core.RedactError(err),
			)
			return &knowledge.SearchResult{}, nil
		}
		return nil, s.classify(ctx, err)
	}
	sortMatches(matches)
	return buildResult(matches), nil
}

// Ready reports whether the vector store answers.
func (s *Service) Ready(ctx context.Context) error {
	if p, ok := s.store.(vectordb.Pinger); ok {
		if err := p.Ping(ctx); err != nil {
			return knowledge.Unavailable(err)
		}
	}
	return nil
}

// Close releases the vector store.
func (s *Service) Close(ctx context.Context) error {
	return s.store.Close(ctx)
}

func (s *Service) classify(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return knowledge.Unavailable(err)
}

func (s *Service) embedQueryWithSpan(ctx context.Context, query string) ([]float32, error) {
	spanCtx, span := s.tracer.Start(ctx, "vachanamrut.knowledge.retriever.embed_query")
	defer span.End()
	vector, err := s.embedder.EmbedQuery(spanCtx, query)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int("dimension", len(vector)))
	return vector, nil
}

func (s *Service) searchMatches(
	ctx context.Context,
	vector []float32,
	opts vectordb.SearchOptions,
) ([]vectordb.Match, error) {
	spanCtx, span := s.tracer.Start(ctx, "vachanamrut.knowledge.retriever.vector_search", trace.WithAttributes(
		attribute.String("collection", s.collection),
		attribute.Int("top_k", opts.TopK),
	))
	defer span.End()
	matches, err := s.store.Search(spanCtx, vector, opts)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int("matches", len(matches)))
	return matches, nil
}

func buildResult(matches []vectordb.Match) *knowledge.SearchResult {
	result := &knowledge.SearchResult{
		Documents: make([]string, len(matches)),
		Metadatas: make([]map[string]any, len(matches)),
	}
	for i := range matches {
		result.Documents[i] = matches[i].Text
		metadata := core.CloneMap(matches[i].Metadata)
		if metadata == nil {
			metadata = map[string]any{}
		}
		result.Metadatas[i] = metadata
	}
	return result
}

func (s *Service) finishSearch(
	ctx context.Context,
	span trace.Span,
	start time.Time,
	result *knowledge.SearchResult,
	runErr error,
) {
	duration := time.Since(start)
	log := logger.FromContext(ctx).With("collection", s.collection)
	seconds := duration.Seconds()
	if runErr != nil {
		knowledge.RecordQueryLatency(ctx, s.collection, knowledge.OutcomeUnavailable, duration)
		log.Error("Knowledge retrieval failed", "error", core.RedactError(runErr), "duration_seconds", seconds)
		span.RecordError(runErr)
		span.SetStatus(codes.Error, runErr.Error())
		span.End()
		return
	}
	total := result.Len()
	outcome := knowledge.OutcomeHit
	if total == 0 {
		outcome = knowledge.OutcomeEmpty
	}
	knowledge.RecordQueryLatency(ctx, s.collection, outcome, duration)
	log.Info("Knowledge retrieval finished", "results", total, "duration_seconds", seconds)
	span.SetAttributes(attribute.Int("results", total))
	span.End()
}

func sortMatches(matches []vectordb.Match) {
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Score == matches[j].Score {
			return matches[i].ID < matches[j].ID
		}
		return matches[i].Score > matches[j].Score
	})
}
