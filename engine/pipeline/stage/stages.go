package stage

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/compozy/vachanamrut/engine/core"
	"github.com/compozy/vachanamrut/engine/llm/gateway"
	"github.com/compozy/vachanamrut/engine/pipeline/prompt"
	"github.com/compozy/vachanamrut/pkg/logger"
)

// Stage names used in logs and metrics.
const (
	NameDetectLanguage = "detect_language"
	NameRoute          = "route"
	NameTranslate      = "translate"
	NameRewrite        = "rewrite"
	NameRerank         = "rerank"
)

// Generator is the part of the provider gateway the stages need.
type Generator interface {
	Generate(ctx context.Context, req gateway.Request) (string, error)
}

// Stages runs the single-call transformation steps of the pipeline. Each
// method falls back to its default on malformed output or a failed call and
// only returns an error when every provider failed or ctx ended.
type Stages struct {
	gen Generator
}

func New(gen Generator) *Stages {
	return &Stages{gen: gen}
}

// DetectLanguage returns en, hi or gu. Default en.
func (s *Stages) DetectLanguage(ctx context.Context, query string) (Language, error) {
	lang := LanguageEnglish
	text, renderErr := prompt.RenderDetectLanguage(query)
	err := s.run(ctx, NameDetectLanguage, text, renderErr, true, func(out string) bool {
		parsed, ok := parseLanguage(out)
		if ok {
			lang = parsed
		}
		return ok
	})
	return lang, err
}

// Route resolves which discourse, if any, the query refers to. Default empty.
func (s *Stages) Route(ctx context.Context, query, history string) (RoutingMetadata, error) {
	var meta RoutingMetadata
	text, renderErr := prompt.RenderRoute(query, history)
	err := s.run(ctx, NameRoute, text, renderErr, true, func(out string) bool {
		parsed, ok := parseRouting(out)
		if ok {
			meta = parsed
		}
		return ok
	})
	return meta, err
}

// Translate returns an English rendition of query. Default query unchanged.
func (s *Stages) Translate(ctx context.Context, query string) (string, error) {
	text, renderErr := prompt.RenderTranslate(query)
	return s.runText(ctx, NameTranslate, text, renderErr, query)
}

// Rewrite turns query into a self-contained search query. Default query unchanged.
func (s *Stages) Rewrite(ctx context.Context, query string, routing RoutingMetadata) (string, error) {
	text, renderErr := prompt.RenderRewrite(query, routing.String())
	return s.runText(ctx, NameRewrite, text, renderErr, query)
}

// Rerank orders passages by relevance to query. Default nil, meaning the
// retrieval order is kept.
func (s *Stages) Rerank(ctx context.Context, query string, passages []string) (RankingOrder, error) {
	if len(passages) == 0 {
		return nil, nil
	}
	var order RankingOrder
	text, renderErr := prompt.RenderRerank(query, passages)
	err := s.run(ctx, NameRerank, text, renderErr, true, func(out string) bool {
		parsed, ok := parseRanking(out)
		if ok {
			order = parsed
		}
		return ok
	})
	return order, err
}

func (s *Stages) runText(ctx context.Context, name, text string, renderErr error, input string) (string, error) {
	result := input
	err := s.run(ctx, name, text, renderErr, false, func(out string) bool {
		out = strings.TrimSpace(out)
		if out == "" {
			return false
		}
		result = out
		return true
	})
	return result, err
}

// run calls the gateway with a rendered prompt and hands the output to
// accept, which reports whether the output was usable. When it was not, the
// caller's default stays in place.
func (s *Stages) run(
	ctx context.Context,
	name string,
	text string,
	renderErr error,
	jsonMode bool,
	accept func(out string) bool,
) error {
	log := logger.FromContext(ctx).With("stage", name)
	start := time.Now()
	if renderErr != nil {
		log.Warn("Prompt rendering failed; using default", "error", renderErr)
		recordStage(ctx, name, outcomeDefault, time.Since(start))
		return nil
	}
	out, err := s.gen.Generate(ctx, gateway.UserPrompt(text, jsonMode))
	if err != nil {
		if gateway.IsAllProvidersFailed(err) || isContextError(ctx, err) {
			recordStage(ctx, name, outcomeFailed, time.Since(start))
			return err
		}
		log.Warn("Stage call failed; using default", "error", core.RedactError(err))
		recordStage(ctx, name, outcomeDefault, time.Since(start))
		return nil
	}
	if !accept(out) {
		log.Debug("Unusable stage output; using default", "output", truncate(out, 200))
		recordStage(ctx, name, outcomeDefault, time.Since(start))
		return nil
	}
	recordStage(ctx, name, outcomeOK, time.Since(start))
	return nil
}

func isContextError(ctx context.Context, err error) bool {
	return ctx.Err() != nil || errors.Is(err, context.Canceled)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}
