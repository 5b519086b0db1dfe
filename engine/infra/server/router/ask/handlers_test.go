package askrouter

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/compozy/vachanamrut/engine/core"
	"github.com/compozy/vachanamrut/engine/infra/server/appstate"
	"github.com/compozy/vachanamrut/engine/infra/server/router/routertest"
	"github.com/compozy/vachanamrut/engine/knowledge"
	"github.com/compozy/vachanamrut/engine/pipeline"
	"github.com/compozy/vachanamrut/engine/streaming"
)

var scriptedEvents = []pipeline.Event{
	pipeline.Thought(pipeline.ThoughtAnalyzing),
	pipeline.Citations([]pipeline.Citation{{Text: "Bliss is...", Metadata: map[string]any{"chapter": "Gadhada", "section": "I"}}}),
	pipeline.Token("Devotion "),
	pipeline.Token("is love."),
}

func newEngine(t *testing.T, state *appstate.State) *gin.Engine {
	t.Helper()
	r := routertest.NewTestEngine(t, state)
	Register(r.Group("/api/v0"), nil)
	return r
}

func postAsk(r *gin.Engine, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v0/ask", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	return w
}

func get(r *gin.Engine, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, http.NoBody))
	return w
}

func withPublisher(t *testing.T, state *appstate.State) *streaming.RedisPublisher {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	pub, err := streaming.NewRedisPublisher(client, nil)
	require.NoError(t, err)
	state.Publisher = pub
	return pub
}

func expectedFrames(t *testing.T, events []pipeline.Event) []string {
	t.Helper()
	out := make([]string, 0, len(events)+1)
	for _, ev := range events {
		b, err := json.Marshal(ev)
		require.NoError(t, err)
		out = append(out, string(b))
	}
	return append(out, "[DONE]")
}

func TestAsk(t *testing.T) {
	t.Run("Should stream every event followed by the done marker", func(t *testing.T) {
		asker := &routertest.FakeAsker{Events: scriptedEvents}
		r := newEngine(t, routertest.NewTestState(t, asker))

		w := postAsk(r, `{"question":"What is devotion?"}`)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))
		_, err := core.ParseID(w.Header().Get(RunIDHeader))
		assert.NoError(t, err)
		assert.Equal(t, expectedFrames(t, scriptedEvents), routertest.SSEData(w.Body.String()))
		assert.True(t, strings.HasPrefix(w.Body.String(), `data: {"type":"thought","data":"`))
	})

	t.Run("Should end a run cut short by the deadline with an error and the done marker", func(t *testing.T) {
		asker := &routertest.FakeAsker{Events: scriptedEvents[:1], Hold: true}
		state := routertest.NewTestState(t, asker)
		pub := withPublisher(t, state)
		r := newEngine(t, state)

		ctx, cancel := context.WithTimeout(t.Context(), 50*time.Millisecond)
		defer cancel()
		w := httptest.NewRecorder()
		req := httptest.NewRequestWithContext(ctx, http.MethodPost, "/api/v0/ask", bytes.NewBufferString(`{"question":"Q"}`))
		req.Header.Set("Content-Type", "application/json")
		r.ServeHTTP(w, req)

		timeout := pipeline.Error(pipeline.MessageTimedOut)
		assert.Equal(t, expectedFrames(t, []pipeline.Event{scriptedEvents[0], timeout}), routertest.SSEData(w.Body.String()))
		runID, err := core.ParseID(w.Header().Get(RunIDHeader))
		require.NoError(t, err)
		envelopes, err := pub.Replay(t.Context(), runID, 0, 0)
		require.NoError(t, err)
		require.Len(t, envelopes, 3)
		assert.Equal(t, streaming.EventTypeError, envelopes[1].Type)
		assert.True(t, streaming.Finished(envelopes))
	})

	t.Run("Should stop without the done marker when the client goes away", func(t *testing.T) {
		asker := &routertest.FakeAsker{Events: scriptedEvents[:1], Hold: true}
		r := newEngine(t, routertest.NewTestState(t, asker))

		ctx, cancel := context.WithCancel(t.Context())
		time.AfterFunc(50*time.Millisecond, cancel)
		w := httptest.NewRecorder()
		req := httptest.NewRequestWithContext(ctx, http.MethodPost, "/api/v0/ask", bytes.NewBufferString(`{"question":"Q"}`))
		req.Header.Set("Content-Type", "application/json")
		r.ServeHTTP(w, req)

		frames := routertest.SSEData(w.Body.String())
		assert.Equal(t, expectedFrames(t, scriptedEvents[:1])[:1], frames)
		assert.NotContains(t, frames, "[DONE]")
	})

	t.Run("Should build the manual filter from the request", func(t *testing.T) {
		asker := &routertest.FakeAsker{}
		r := newEngine(t, routertest.NewTestState(t, asker))

		postAsk(r, `{"question":" Q ","history":[{"role":"user","content":"hi"}],`+
			`"chapter":"Gadhada","section":"I","vachanamrut_no":12}`)

		queries := asker.Queries()
		require.Len(t, queries, 1)
		assert.Equal(t, "Q", queries[0].Question)
		assert.Equal(t, []pipeline.Turn{{Role: pipeline.RoleUser, Content: "hi"}}, queries[0].History)
		require.NotNil(t, queries[0].Filter)
		assert.Equal(t, []knowledge.Clause{
			{Field: knowledge.FieldChapter, Value: "Gadhada"},
			{Field: knowledge.FieldSection, Value: "I"},
			{Field: knowledge.FieldDiscourseNumber, Value: 12},
		}, queries[0].Filter.Clauses())
	})

	t.Run("Should leave the filter unset for sentinel values", func(t *testing.T) {
		asker := &routertest.FakeAsker{}
		r := newEngine(t, routertest.NewTestState(t, asker))
		postAsk(r, `{"question":"Q","chapter":"All","section":"All","vachanamrut_no":0}`)
		queries := asker.Queries()
		require.Len(t, queries, 1)
		assert.Nil(t, queries[0].Filter)
	})

	t.Run("Should reject a missing or blank question", func(t *testing.T) {
		asker := &routertest.FakeAsker{}
		r := newEngine(t, routertest.NewTestState(t, asker))
		for _, body := range []string{`{}`, `{"question":"   "}`, `not json`} {
			w := postAsk(r, body)
			assert.Equal(t, http.StatusBadRequest, w.Code, body)
			assert.Contains(t, w.Body.String(), `"status":400`)
		}
		assert.Empty(t, asker.Queries())
	})

	t.Run("Should mirror the run for replay", func(t *testing.T) {
		state := routertest.NewTestState(t, &routertest.FakeAsker{Events: scriptedEvents})
		pub := withPublisher(t, state)
		r := newEngine(t, state)

		w := postAsk(r, `{"question":"Q"}`)
		runID, err := core.ParseID(w.Header().Get(RunIDHeader))
		require.NoError(t, err)

		envelopes, err := pub.Replay(t.Context(), runID, 0, 0)
		require.NoError(t, err)
		require.Len(t, envelopes, len(scriptedEvents)+1)
		assert.Equal(t, streaming.EventTypeThought, envelopes[0].Type)
		assert.Equal(t, streaming.EventTypeCitation, envelopes[1].Type)
		assert.JSONEq(t, `"is love."`, string(envelopes[3].Data))
		assert.True(t, streaming.Finished(envelopes))
	})
}

func TestReplay(t *testing.T) {
	t.Run("Should replay a finished run with ids", func(t *testing.T) {
		state := routertest.NewTestState(t, &routertest.FakeAsker{Events: scriptedEvents})
		withPublisher(t, state)
		r := newEngine(t, state)
		runID := postAsk(r, `{"question":"Q"}`).Header().Get(RunIDHeader)

		w := get(r, "/api/v0/ask/"+runID+"/events")

		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, expectedFrames(t, scriptedEvents), routertest.SSEData(w.Body.String()))
		assert.Equal(t, []string{"1", "2", "3", "4", "5"}, routertest.SSEIDs(w.Body.String()))
		assert.Equal(t, "true", w.Header().Get(RunCompleteHeader))
	})

	t.Run("Should resume after the given id", func(t *testing.T) {
		state := routertest.NewTestState(t, &routertest.FakeAsker{Events: scriptedEvents})
		withPublisher(t, state)
		r := newEngine(t, state)
		runID := postAsk(r, `{"question":"Q"}`).Header().Get(RunIDHeader)

		w := get(r, "/api/v0/ask/"+runID+"/events?after=3&limit=1")

		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, []string{"4"}, routertest.SSEIDs(w.Body.String()))
		assert.Equal(t, []string{`{"type":"token","data":"is love."}`}, routertest.SSEData(w.Body.String()))
		assert.Equal(t, "false", w.Header().Get(RunCompleteHeader))
	})

	t.Run("Should send an empty stream when nothing follows the given id", func(t *testing.T) {
		state := routertest.NewTestState(t, &routertest.FakeAsker{Events: scriptedEvents})
		withPublisher(t, state)
		r := newEngine(t, state)
		runID := postAsk(r, `{"question":"Q"}`).Header().Get(RunIDHeader)

		w := get(r, "/api/v0/ask/"+runID+"/events?after=5")

		require.Equal(t, http.StatusOK, w.Code)
		assert.Empty(t, routertest.SSEData(w.Body.String()))
	})

	t.Run("Should answer 404 for an unknown run even when resuming", func(t *testing.T) {
		state := routertest.NewTestState(t, &routertest.FakeAsker{})
		withPublisher(t, state)
		r := newEngine(t, state)
		w := get(r, "/api/v0/ask/"+core.MustNewID().String()+"/events?after=3")
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("Should answer 404 for an unknown run", func(t *testing.T) {
		state := routertest.NewTestState(t, &routertest.FakeAsker{})
		withPublisher(t, state)
		r := newEngine(t, state)
		w := get(r, "/api/v0/ask/"+core.MustNewID().String()+"/events")
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("Should answer 400 for a malformed id", func(t *testing.T) {
		state := routertest.NewTestState(t, &routertest.FakeAsker{})
		withPublisher(t, state)
		r := newEngine(t, state)
		assert.Equal(t, http.StatusBadRequest, get(r, "/api/v0/ask/not-an-id/events").Code)
		assert.Equal(t, http.StatusBadRequest, get(r, "/api/v0/ask/"+core.MustNewID().String()+"/events?limit=-1").Code)
	})

	t.Run("Should answer 503 when mirroring is disabled", func(t *testing.T) {
		r := newEngine(t, routertest.NewTestState(t, &routertest.FakeAsker{}))
		w := get(r, "/api/v0/ask/"+core.MustNewID().String()+"/events")
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	})
}
