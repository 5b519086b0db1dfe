package appstate

import (
	"context"
	"errors"
	"fmt"

	"github.com/gin-gonic/gin"

	"github.com/compozy/vachanamrut/engine/infra/monitoring"
	"github.com/compozy/vachanamrut/engine/knowledge/librarian"
	"github.com/compozy/vachanamrut/engine/pipeline"
	"github.com/compozy/vachanamrut/engine/streaming"
)

type contextKey string

const stateKey contextKey = "app_state"

// Asker runs the question answering pipeline.
type Asker interface {
	Run(ctx context.Context, q pipeline.Query) <-chan pipeline.Event
}

// Library looks up full discourse texts.
type Library interface {
	Lookup(chapter, section string, number int) (*librarian.Discourse, error)
}

// Readiness reports whether the retrieval backend answers.
type Readiness interface {
	Ready(ctx context.Context) error
}

// State holds the dependencies shared by every handler.
type State struct {
	Asker     Asker
	Library   Library
	Retrieval Readiness
	// Publisher is nil when event mirroring is disabled.
	Publisher     streaming.Publisher
	StreamMetrics *monitoring.StreamMetrics
}

// NewState validates the mandatory dependencies.
func NewState(asker Asker, library Library, retrieval Readiness) (*State, error) {
	if asker == nil {
		return nil, errors.New("app state: asker is required")
	}
	return &State{Asker: asker, Library: library, Retrieval: retrieval}, nil
}

func WithState(ctx context.Context, state *State) context.Context {
	return context.WithValue(ctx, stateKey, state)
}

func GetState(ctx context.Context) (*State, error) {
	state, ok := ctx.Value(stateKey).(*State)
	if !ok || state == nil {
		return nil, fmt.Errorf("app state not found in context")
	}
	return state, nil
}

func StateMiddleware(state *State) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := WithState(c.Request.Context(), state)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
