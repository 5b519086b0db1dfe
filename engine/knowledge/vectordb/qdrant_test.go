package vectordb

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/compozy/vachanamrut/engine/knowledge"
)

type qdrantFake struct {
	t        *testing.T
	mu       sync.Mutex
	bodies   []map[string]any
	paths    []string
	apiKeys  []string
	handler  func(w http.ResponseWriter, r *http.Request, body map[string]any)
	searches atomic.Int32
}

func (f *qdrantFake) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(r.Body)
	require.NoError(f.t, err)
	body := map[string]any{}
	if len(raw) > 0 {
		require.NoError(f.t, json.Unmarshal(raw, &body))
	}
	f.mu.Lock()
	f.bodies = append(f.bodies, body)
	f.paths = append(f.paths, r.Method+" "+r.URL.Path)
	f.apiKeys = append(f.apiKeys, r.Header.Get("api-key"))
	f.mu.Unlock()
	if r.URL.Path == "/collections/scripture/points/search" {
		f.searches.Add(1)
	}
	f.handler(w, r, body)
}

func (f *qdrantFake) lastBody() map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.bodies[len(f.bodies)-1]
}

func newQdrantFake(
	t *testing.T,
	handler func(w http.ResponseWriter, r *http.Request, body map[string]any),
) (*qdrantFake, *qdrantStore) {
	t.Helper()
	fake := &qdrantFake{t: t, handler: handler}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)
	store, err := newQdrantStore(t.Context(), &Config{
		Provider:   ProviderQdrant,
		URL:        srv.URL + "/",
		Collection: "scripture",
		APIKey:     "qdrant-secret",
		Dimension:  2,
		Timeout:    time.Second,
		MaxRetries: 2,
	})
	require.NoError(t, err)
	store.backoff = time.Millisecond
	return fake, store
}

func writeJSON(w http.ResponseWriter, status int, payload string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, payload)
}

func TestQdrantStore_Search(t *testing.T) {
	t.Run("Should translate a conjunction into must clauses", func(t *testing.T) {
		fake, store := newQdrantFake(t, func(w http.ResponseWriter, _ *http.Request, _ map[string]any) {
			writeJSON(w, http.StatusOK, `{"result":[
				{"id":"b7c1","score":0.91,"payload":{"text":"first passage","record_id":"gadhada-i-16","chapter":"Gadhada","vachanamrut_no":16}},
				{"id":7,"score":0.55,"payload":{"text":"second passage","chapter":"Gadhada"}}
			],"status":"ok"}`)
		})
		filter := knowledge.NewFilter(
			knowledge.Clause{Field: knowledge.FieldChapter, Value: "Gadhada"},
			knowledge.Clause{Field: knowledge.FieldDiscourseNumber, Value: 16},
		)
		matches, err := store.Search(t.Context(), []float32{0.1, 0.2}, SearchOptions{TopK: 5, Filter: filter})
		require.NoError(t, err)
		require.Len(t, matches, 2)
		assert.Equal(t, "gadhada-i-16", matches[0].ID)
		assert.Equal(t, "first passage", matches[0].Text)
		assert.Equal(t, map[string]any{"chapter": "Gadhada", "vachanamrut_no": float64(16)}, matches[0].Metadata)
		assert.Equal(t, "7", matches[1].ID)

		body := fake.lastBody()
		assert.Equal(t, float64(5), body["limit"])
		assert.Equal(t, true, body["with_payload"])
		assert.Equal(t, map[string]any{"must": []any{
			map[string]any{"key": "chapter", "match": map[string]any{"value": "Gadhada"}},
			map[string]any{"key": "vachanamrut_no", "match": map[string]any{"value": float64(16)}},
		}}, body["filter"])
		assert.Equal(t, "qdrant-secret", fake.apiKeys[0])
	})

	t.Run("Should omit the filter when none is given", func(t *testing.T) {
		fake, store := newQdrantFake(t, func(w http.ResponseWriter, _ *http.Request, _ map[string]any) {
			writeJSON(w, http.StatusOK, `{"result":[]}`)
		})
		matches, err := store.Search(t.Context(), []float32{0.1, 0.2}, SearchOptions{})
		require.NoError(t, err)
		assert.Empty(t, matches)
		_, hasFilter := fake.lastBody()["filter"]
		assert.False(t, hasFilter)
		assert.Equal(t, float64(qdrantDefaultTopK), fake.lastBody()["limit"])
	})

	t.Run("Should retry transient server errors", func(t *testing.T) {
		var calls atomic.Int32
		fake, store := newQdrantFake(t, func(w http.ResponseWriter, _ *http.Request, _ map[string]any) {
			if calls.Add(1) == 1 {
				writeJSON(w, http.StatusServiceUnavailable, `{"status":{"error":"warming up"}}`)
				return
			}
			writeJSON(w, http.StatusOK, `{"result":[{"id":1,"score":0.5,"payload":{"text":"ok"}}]}`)
		})
		matches, err := store.Search(t.Context(), []float32{0.1, 0.2}, SearchOptions{})
		require.NoError(t, err)
		require.Len(t, matches, 1)
		assert.Equal(t, int32(2), fake.searches.Load())
	})

	t.Run("Should stop after the retry budget", func(t *testing.T) {
		fake, store := newQdrantFake(t, func(w http.ResponseWriter, _ *http.Request, _ map[string]any) {
			writeJSON(w, http.StatusInternalServerError, `{"status":{"error":"boom"}}`)
		})
		_, err := store.Search(t.Context(), []float32{0.1, 0.2}, SearchOptions{})
		require.Error(t, err)
		opErr, ok := IsOperationError(err)
		require.True(t, ok)
		assert.Equal(t, http.StatusInternalServerError, opErr.StatusCode)
		assert.Contains(t, opErr.Error(), "boom")
		assert.Equal(t, int32(3), fake.searches.Load())
	})

	t.Run("Should not retry rejected queries", func(t *testing.T) {
		fake, store := newQdrantFake(t, func(w http.ResponseWriter, _ *http.Request, _ map[string]any) {
			writeJSON(w, http.StatusBadRequest, `{"status":{"error":"Bad request: Index required"}}`)
		})
		_, err := store.Search(t.Context(), []float32{0.1, 0.2}, SearchOptions{Filter: knowledge.Equal("chapter", "Loya")})
		require.Error(t, err)
		opErr, ok := IsOperationError(err)
		require.True(t, ok)
		assert.True(t, opErr.Rejected())
		assert.Equal(t, int32(1), fake.searches.Load())
	})

	t.Run("Should reject unsupported filter values before calling the server", func(t *testing.T) {
		fake, store := newQdrantFake(t, func(w http.ResponseWriter, _ *http.Request, _ map[string]any) {
			writeJSON(w, http.StatusOK, `{"result":[]}`)
		})
		_, err := store.Search(t.Context(), []float32{0.1, 0.2}, SearchOptions{Filter: knowledge.Equal("vachanamrut_no", 1.5)})
		require.Error(t, err)
		opErr, ok := IsOperationError(err)
		require.True(t, ok)
		assert.Equal(t, OperationErrorUnsupported, opErr.Code)
		assert.Equal(t, int32(0), fake.searches.Load())
	})

	t.Run("Should reject a mismatched query dimension", func(t *testing.T) {
		_, store := newQdrantFake(t, func(w http.ResponseWriter, _ *http.Request, _ map[string]any) {
			writeJSON(w, http.StatusOK, `{"result":[]}`)
		})
		_, err := store.Search(t.Context(), []float32{0.1}, SearchOptions{})
		require.Error(t, err)
		opErr, ok := IsOperationError(err)
		require.True(t, ok)
		assert.Equal(t, OperationErrorDimension, opErr.Code)
		assert.False(t, opErr.Rejected())
	})

	t.Run("Should not treat a server side dimension error as a rejected query", func(t *testing.T) {
		fake, store := newQdrantFake(t, func(w http.ResponseWriter, _ *http.Request, _ map[string]any) {
			writeJSON(w, http.StatusBadRequest,
				`{"status":{"error":"Wrong input: Vector dimension error: expected dim: 384, got 2"}}`)
		})
		_, err := store.Search(t.Context(), []float32{0.1, 0.2}, SearchOptions{})
		require.Error(t, err)
		opErr, ok := IsOperationError(err)
		require.True(t, ok)
		assert.Equal(t, OperationErrorDimension, opErr.Code)
		assert.Equal(t, http.StatusBadRequest, opErr.StatusCode)
		assert.False(t, opErr.Rejected())
		assert.Equal(t, int32(1), fake.searches.Load())
	})
}

func TestQdrantStore_Upsert(t *testing.T) {
	t.Run("Should store text and record id in the payload", func(t *testing.T) {
		fake, store := newQdrantFake(t, func(w http.ResponseWriter, _ *http.Request, _ map[string]any) {
			writeJSON(w, http.StatusOK, `{"result":{"status":"completed"},"status":"ok"}`)
		})
		err := store.Upsert(t.Context(), []Record{{
			ID:        "loya-2",
			Text:      "passage",
			Embedding: []float32{0.3, 0.4},
			Metadata:  map[string]any{"chapter": "Loya"},
		}})
		require.NoError(t, err)
		points, ok := fake.lastBody()["points"].([]any)
		require.True(t, ok)
		require.Len(t, points, 1)
		point := points[0].(map[string]any)
		assert.Equal(t, pointID("loya-2"), point["id"])
		payload := point["payload"].(map[string]any)
		assert.Equal(t, "passage", payload["text"])
		assert.Equal(t, "loya-2", payload["record_id"])
		assert.Equal(t, "PUT /collections/scripture/points", fake.paths[0])
	})
}

func TestQdrantStore_EnsureCollection(t *testing.T) {
	t.Run("Should create a missing collection", func(t *testing.T) {
		fake := &qdrantFake{t: t}
		fake.handler = func(w http.ResponseWriter, r *http.Request, _ map[string]any) {
			if r.Method == http.MethodGet {
				writeJSON(w, http.StatusNotFound, `{"status":{"error":"Not found: Collection scripture doesn't exist!"}}`)
				return
			}
			writeJSON(w, http.StatusOK, `{"result":true,"status":"ok"}`)
		}
		srv := httptest.NewServer(fake)
		t.Cleanup(srv.Close)
		_, err := newQdrantStore(t.Context(), &Config{
			URL:              srv.URL,
			Collection:       "scripture",
			Dimension:        384,
			EnsureCollection: true,
		})
		require.NoError(t, err)
		require.Len(t, fake.paths, 2)
		assert.Equal(t, "PUT /collections/scripture", fake.paths[1])
		vectors := fake.bodies[1]["vectors"].(map[string]any)
		assert.Equal(t, float64(384), vectors["size"])
		assert.Equal(t, "Cosine", vectors["distance"])
	})
}

func TestPointID(t *testing.T) {
	t.Run("Should keep numeric and uuid identifiers", func(t *testing.T) {
		assert.Equal(t, uint64(42), pointID("42"))
		id := "6ba7b810-9dad-11d1-80b4-00c04fd430c8"
		assert.Equal(t, id, pointID(id))
	})

	t.Run("Should derive a stable uuid for other identifiers", func(t *testing.T) {
		assert.Equal(t, pointID("gadhada-i-1"), pointID("gadhada-i-1"))
		assert.NotEqual(t, pointID("gadhada-i-1"), pointID("gadhada-i-2"))
	})
}
