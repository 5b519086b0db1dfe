package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/compozy/vachanamrut/engine/infra/monitoring"
	"github.com/compozy/vachanamrut/engine/infra/monitoring/middleware"
	"github.com/compozy/vachanamrut/engine/infra/server/appstate"
	"github.com/compozy/vachanamrut/engine/infra/server/middleware/ratelimit"
	"github.com/compozy/vachanamrut/engine/infra/server/router/routertest"
	"github.com/compozy/vachanamrut/engine/knowledge"
	"github.com/compozy/vachanamrut/engine/pipeline"
	"github.com/compozy/vachanamrut/pkg/config"
)

func newState(t *testing.T) *appstate.State {
	t.Helper()
	return routertest.NewTestState(t, &routertest.FakeAsker{Events: []pipeline.Event{pipeline.Token("ok")}})
}

func serve(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cfg := config.Default()

	t.Run("Should report ok and ready modules", func(t *testing.T) {
		r := BuildRouter(t.Context(), cfg, newState(t), nil, nil)
		w := serve(r, http.MethodGet, "/api/v0/health", "")
		require.Equal(t, http.StatusOK, w.Code)
		var body map[string]any
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, "ok", body["status"])
		assert.Equal(t, []any{"Agent", "Librarian", "VectorDB"}, body["modules"])
		assert.Equal(t, true, body["ready"])
	})

	t.Run("Should stay ok while retrieval is unavailable", func(t *testing.T) {
		state := newState(t)
		state.Retrieval = routertest.FakeReadiness{Err: knowledge.Unavailable(errors.New("connection refused"))}
		r := BuildRouter(t.Context(), cfg, state, nil, nil)
		w := serve(r, http.MethodGet, "/api/v0/health", "")
		require.Equal(t, http.StatusOK, w.Code)
		var body struct {
			Status     string `json:"status"`
			Ready      bool   `json:"ready"`
			Components map[string]struct {
				Ready bool   `json:"ready"`
				Error string `json:"error"`
			} `json:"components"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, "ok", body.Status)
		assert.False(t, body.Ready)
		assert.False(t, body.Components["VectorDB"].Ready)
		assert.NotEmpty(t, body.Components["VectorDB"].Error)
		assert.True(t, body.Components["Librarian"].Ready)
	})
}

func TestBuildRouter(t *testing.T) {
	gin.SetMode(gin.TestMode)

	t.Run("Should limit only the ask endpoint", func(t *testing.T) {
		cfg := config.Default()
		cfg.Server.AskRateLimit = "1-M"
		limits, err := ratelimit.NewManager(convertRateLimitConfig(&cfg.Server), nil)
		require.NoError(t, err)
		r := BuildRouter(t.Context(), cfg, newState(t), nil, limits)

		assert.Equal(t, http.StatusOK, serve(r, http.MethodPost, "/api/v0/ask", `{"question":"Q"}`).Code)
		assert.Equal(t, http.StatusTooManyRequests, serve(r, http.MethodPost, "/api/v0/ask", `{"question":"Q"}`).Code)
		for range 3 {
			assert.Equal(t, http.StatusOK, serve(r, http.MethodGet, "/api/v0/health", "").Code)
		}
	})

	t.Run("Should answer CORS preflight requests", func(t *testing.T) {
		cfg := config.Default()
		r := BuildRouter(t.Context(), cfg, newState(t), nil, nil)
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodOptions, "/api/v0/ask", http.NoBody)
		req.Header.Set("Origin", "http://localhost:5173")
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.Equal(t, "http://localhost:5173", w.Header().Get("Access-Control-Allow-Origin"))
		assert.Contains(t, w.Header().Get("Access-Control-Expose-Headers"), "X-Run-ID")
	})

	t.Run("Should not send CORS headers when disabled", func(t *testing.T) {
		cfg := config.Default()
		cfg.Server.CORSEnabled = false
		r := BuildRouter(t.Context(), cfg, newState(t), nil, nil)
		w := serve(r, http.MethodGet, "/api/v0/health", "")
		assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("Should expose metrics when monitoring is enabled", func(t *testing.T) {
		middleware.ResetMetricsForTesting()
		monitoring.ResetSystemMetricsForTesting()
		t.Cleanup(middleware.ResetMetricsForTesting)
		t.Cleanup(monitoring.ResetSystemMetricsForTesting)
		cfg := config.Default()
		cfg.Monitoring = config.MonitoringConfig{Enabled: true, Path: "/metrics"}
		mon, err := monitoring.NewService(t.Context(), &cfg.Monitoring)
		require.NoError(t, err)
		t.Cleanup(func() { _ = mon.Shutdown(t.Context()) })
		r := BuildRouter(t.Context(), cfg, newState(t), mon, nil)

		serve(r, http.MethodGet, "/api/v0/health", "")
		w := serve(r, http.MethodGet, "/metrics", "")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "vachanamrut_http_requests")
	})
}

func TestTimeoutMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	t.Run("Should attach a deadline to the request context", func(t *testing.T) {
		r := gin.New()
		r.Use(TimeoutMiddleware(config.Default().Server.Timeout))
		var hasDeadline bool
		r.GET("/t", func(c *gin.Context) { _, hasDeadline = c.Request.Context().Deadline() })
		serve(r, http.MethodGet, "/t", "")
		assert.True(t, hasDeadline)
	})

	t.Run("Should leave the context alone when disabled", func(t *testing.T) {
		r := gin.New()
		r.Use(TimeoutMiddleware(0))
		hasDeadline := true
		r.GET("/t", func(c *gin.Context) { _, hasDeadline = c.Request.Context().Deadline() })
		serve(r, http.MethodGet, "/t", "")
		assert.False(t, hasDeadline)
	})
}
