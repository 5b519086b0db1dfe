package routertest

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/compozy/vachanamrut/engine/infra/server/appstate"
	"github.com/compozy/vachanamrut/engine/knowledge/librarian"
	"github.com/compozy/vachanamrut/engine/pipeline"
)

// FakeAsker replays a fixed event list and records the queries it receives.
// With Hold set the run stays open after the last event until ctx ends.
type FakeAsker struct {
	Events []pipeline.Event
	Hold   bool

	mu      sync.Mutex
	queries []pipeline.Query
}

func (f *FakeAsker) Run(ctx context.Context, q pipeline.Query) <-chan pipeline.Event {
	f.mu.Lock()
	f.queries = append(f.queries, q)
	f.mu.Unlock()
	out := make(chan pipeline.Event)
	go func() {
		defer close(out)
		for _, ev := range f.Events {
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
		if f.Hold {
			<-ctx.Done()
		}
	}()
	return out
}

// Queries returns the received queries in order.
func (f *FakeAsker) Queries() []pipeline.Query {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]pipeline.Query(nil), f.queries...)
}

// FakeLibrary serves one discourse per chapter and number.
type FakeLibrary struct {
	Discourses []*librarian.Discourse
}

func (f *FakeLibrary) Lookup(chapter, _ string, number int) (*librarian.Discourse, error) {
	for _, d := range f.Discourses {
		if d.Chapter == chapter && d.Number == number {
			return d, nil
		}
	}
	return nil, librarian.ErrNotFound
}

// FakeReadiness reports Err from every probe.
type FakeReadiness struct {
	Err error
}

func (f FakeReadiness) Ready(context.Context) error {
	return f.Err
}

// NewTestState builds an app state around asker with a ready retrieval backend.
func NewTestState(t *testing.T, asker appstate.Asker) *appstate.State {
	t.Helper()
	state, err := appstate.NewState(asker, &FakeLibrary{}, FakeReadiness{})
	if err != nil {
		t.Fatalf("failed to build app state: %v", err)
	}
	return state
}

// NewTestEngine returns a gin engine in test mode carrying state.
func NewTestEngine(t *testing.T, state *appstate.State) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(appstate.StateMiddleware(state))
	return r
}

// SSEData returns the data payloads of an event stream body in order.
func SSEData(body string) []string {
	var out []string
	for _, frame := range strings.Split(body, "\n\n") {
		var data []string
		for _, line := range strings.Split(frame, "\n") {
			if v, ok := strings.CutPrefix(line, "data: "); ok {
				data = append(data, v)
			}
		}
		if len(data) > 0 {
			out = append(out, strings.Join(data, "\n"))
		}
	}
	return out
}

// SSEIDs returns the ids of an event stream body in order.
func SSEIDs(body string) []string {
	var out []string
	for _, line := range strings.Split(body, "\n") {
		if v, ok := strings.CutPrefix(line, "id: "); ok {
			out = append(out, v)
		}
	}
	return out
}
