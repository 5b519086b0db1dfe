package pipeline

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/compozy/vachanamrut/engine/core"
	"github.com/compozy/vachanamrut/engine/knowledge"
	"github.com/compozy/vachanamrut/engine/llm/gateway"
	"github.com/compozy/vachanamrut/engine/pipeline/prompt"
	"github.com/compozy/vachanamrut/engine/pipeline/stage"
	"github.com/compozy/vachanamrut/pkg/logger"
)

const (
	eventBuffer       = 8
	answerTemperature = 0.1
)

// Gateway is the part of the provider gateway a run uses.
type Gateway interface {
	stage.Generator
	Stream(ctx context.Context, req gateway.Request, onFragment gateway.FragmentFunc) error
}

// Orchestrator answers questions by running the stages in order and
// streaming progress, citations and the answer as events.
type Orchestrator struct {
	gw          Gateway
	stages      *stage.Stages
	retriever   knowledge.Retriever
	searchLimit int
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithSearchLimit overrides the number of passages requested per question.
func WithSearchLimit(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.searchLimit = n
		}
	}
}

func New(gw Gateway, retriever knowledge.Retriever, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		gw:          gw,
		stages:      stage.New(gw),
		retriever:   retriever,
		searchLimit: knowledge.DefaultSearchLimit,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run starts answering q and returns its events. The channel is closed when
// the run ends, including when ctx is canceled.
func (o *Orchestrator) Run(ctx context.Context, q Query) <-chan Event {
	events := make(chan Event, eventBuffer)
	go func() {
		defer close(events)
		r := &run{
			Orchestrator: o,
			ctx:          ctx,
			query:        q,
			events:       events,
			state:        newRunState(),
			log:          logger.FromContext(ctx),
		}
		r.execute()
	}()
	return events
}

// Collect drains a run into a slice.
func Collect(events <-chan Event) []Event {
	var out []Event
	for ev := range events {
		out = append(out, ev)
	}
	return out
}

type run struct {
	*Orchestrator
	ctx       context.Context
	query     Query
	events    chan<- Event
	state     *runState
	log       logger.Logger
	fragments int
}

func (r *run) execute() {
	start := time.Now()
	outcome := r.answer()
	if r.ctx.Err() != nil && outcome != OutcomeAnswered {
		outcome = OutcomeCanceled
	}
	if !r.state.finished() {
		r.state.transition(r.ctx, transitionFail)
	}
	recordRun(r.ctx, outcome, time.Since(start), r.fragments)
	r.log.Info("Pipeline run finished", "outcome", outcome, "duration", time.Since(start))
}

// answer walks the stages and reports the run outcome.
func (r *run) answer() string {
	ctx := r.ctx
	history := FormatHistory(r.query.History)
	if !r.emit(Thought(ThoughtAnalyzing)) {
		return OutcomeCanceled
	}

	r.state.transition(ctx, transitionDetect)
	lang, err := r.stages.DetectLanguage(ctx, r.query.Question)
	if err != nil {
		return r.abort(err)
	}
	if !r.emit(Thought(thoughtLanguage + string(lang))) {
		return OutcomeCanceled
	}

	r.state.transition(ctx, transitionRoute)
	routing, err := r.stages.Route(ctx, r.query.Question, history)
	if err != nil {
		return r.abort(err)
	}
	if !routing.IsEmpty() && !r.emit(Thought(thoughtRouting+routing.String())) {
		return OutcomeCanceled
	}

	question := r.query.Question
	if lang != stage.LanguageEnglish {
		r.state.transition(ctx, transitionTranslate)
		if !r.emit(Thought(ThoughtTranslating)) {
			return OutcomeCanceled
		}
		if question, err = r.stages.Translate(ctx, question); err != nil {
			return r.abort(err)
		}
	}

	r.state.transition(ctx, transitionRewrite)
	searchQuery, err := r.stages.Rewrite(ctx, question, routing)
	if err != nil {
		return r.abort(err)
	}
	if !r.emit(Thought(ThoughtSearching)) {
		return OutcomeCanceled
	}

	r.state.transition(ctx, transitionSearch)
	filter := DeriveFilter(r.query.Filter, routing)
	r.log.Debug("Searching scripture", "query", searchQuery, "filter", filter.String())
	result, err := r.retriever.Search(ctx, searchQuery, filter, r.searchLimit)
	if err != nil {
		if ctx.Err() != nil {
			return OutcomeCanceled
		}
		if !errors.Is(err, knowledge.ErrUnavailable) {
			r.log.Error("Unexpected retrieval error", "error", err)
		} else {
			r.log.Warn("Retrieval unavailable", "error", err)
		}
		r.state.transition(ctx, transitionFail)
		r.emit(Error(MessageUnavailable))
		return OutcomeUnavailable
	}
	if result.Empty() {
		r.state.transition(ctx, transitionFinish)
		r.emit(Token(MessageNoResults))
		return OutcomeNoResults
	}

	r.state.transition(ctx, transitionRerank)
	if !r.emit(Thought(ThoughtRanking)) {
		return OutcomeCanceled
	}
	n := result.Len()
	order, err := r.stages.Rerank(ctx, searchQuery, result.Documents[:n])
	if err != nil {
		return r.abort(err)
	}
	docs, metas := ApplyRanking(ctx, order, result.Documents[:n], result.Metadatas[:n])
	if !r.emit(Citations(buildCitations(docs, metas))) {
		return OutcomeCanceled
	}

	r.state.transition(ctx, transitionSynthesize)
	if !r.emit(Thought(ThoughtGenerating)) {
		return OutcomeCanceled
	}
	return r.synthesize(strings.Join(docs, "\n\n"), searchQuery, lang)
}

func (r *run) synthesize(contextText, searchQuery string, lang stage.Language) string {
	ctx := r.ctx
	text, err := prompt.RenderAnswer(contextText, searchQuery, string(lang))
	if err != nil {
		r.log.Error("Answer prompt rendering failed", "error", err)
		r.state.transition(ctx, transitionFail)
		r.emit(Error("failed to prepare the answer"))
		return OutcomeFailed
	}
	req := gateway.UserPrompt(text, false)
	temperature := answerTemperature
	req.Temperature = &temperature
	err = r.gw.Stream(ctx, req, func(_ context.Context, fragment string) error {
		if fragment == "" {
			return nil
		}
		if !r.emit(Token(fragment)) {
			return context.Cause(ctx)
		}
		r.fragments++
		return nil
	})
	if err != nil {
		return r.abort(err)
	}
	r.state.transition(ctx, transitionFinish)
	return OutcomeAnswered
}

// abort ends the run after a terminal error. Cancellation ends it silently.
func (r *run) abort(err error) string {
	if r.ctx.Err() != nil {
		return OutcomeCanceled
	}
	r.log.Error("Pipeline run failed", "state", r.state.current(), "error", core.RedactError(err))
	r.state.transition(r.ctx, transitionFail)
	r.emit(Error(core.RedactError(err)))
	return OutcomeFailed
}

// emit delivers ev unless the caller went away.
func (r *run) emit(ev Event) bool {
	if r.ctx.Err() != nil {
		return false
	}
	select {
	case r.events <- ev:
		return true
	case <-r.ctx.Done():
		return false
	}
}

func buildCitations(docs []string, metas []map[string]any) []Citation {
	out := make([]Citation, 0, len(docs))
	for i, doc := range docs {
		out = append(out, Citation{Text: Excerpt(doc), Metadata: core.CloneMap(metas[i])})
	}
	return out
}
