package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func newTestRouter(t *testing.T) (*gin.Engine, *sdkmetric.ManualReader) {
	t.Helper()
	ResetMetricsForTesting()
	t.Cleanup(ResetMetricsForTesting)
	reader := sdkmetric.NewManualReader()
	meter := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)).Meter("test")
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(HTTPMetrics(t.Context(), meter))
	router.GET("/api/v0/vachanamrut", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})
	router.POST("/api/v0/ask", func(c *gin.Context) {
		c.Status(http.StatusTooManyRequests)
	})
	return router, reader
}

func serve(router *gin.Engine, method, path string) int {
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(method, path, http.NoBody))
	return w.Code
}

func requestCounts(t *testing.T, reader *sdkmetric.ManualReader) map[string]int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(t.Context(), &rm))
	counts := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != "vachanamrut_http_requests_total" {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok)
			for _, dp := range sum.DataPoints {
				method, _ := dp.Attributes.Value(attribute.Key("method"))
				path, _ := dp.Attributes.Value(attribute.Key("path"))
				status, _ := dp.Attributes.Value(attribute.Key("status_code"))
				counts[method.AsString()+" "+path.AsString()+" "+status.AsString()] += dp.Value
			}
		}
	}
	return counts
}

func TestHTTPMetrics(t *testing.T) {
	t.Run("Should count requests by route template and status", func(t *testing.T) {
		router, reader := newTestRouter(t)
		assert.Equal(t, http.StatusOK, serve(router, http.MethodGet, "/api/v0/vachanamrut?chapter=Loya&number=1"))
		assert.Equal(t, http.StatusTooManyRequests, serve(router, http.MethodPost, "/api/v0/ask"))
		counts := requestCounts(t, reader)
		assert.Equal(t, int64(1), counts["GET /api/v0/vachanamrut 200"])
		assert.Equal(t, int64(1), counts["POST /api/v0/ask 429"])
	})

	t.Run("Should group unknown paths together", func(t *testing.T) {
		router, reader := newTestRouter(t)
		for _, p := range []string{"/a", "/b/c", "/api/v1/missing"} {
			assert.Equal(t, http.StatusNotFound, serve(router, http.MethodGet, p))
		}
		assert.Equal(t, int64(3), requestCounts(t, reader)["GET unmatched 404"])
	})

	t.Run("Should record latency and in-flight instruments", func(t *testing.T) {
		router, reader := newTestRouter(t)
		serve(router, http.MethodGet, "/api/v0/vachanamrut")
		var rm metricdata.ResourceMetrics
		require.NoError(t, reader.Collect(t.Context(), &rm))
		names := map[string]bool{}
		for _, sm := range rm.ScopeMetrics {
			for _, m := range sm.Metrics {
				names[m.Name] = true
			}
		}
		assert.True(t, names["vachanamrut_http_request_duration_seconds"])
		assert.True(t, names["vachanamrut_http_requests_in_flight"])
	})

	t.Run("Should pass requests through with a no-op meter", func(t *testing.T) {
		ResetMetricsForTesting()
		t.Cleanup(ResetMetricsForTesting)
		router := gin.New()
		router.Use(HTTPMetrics(t.Context(), noop.NewMeterProvider().Meter("test")))
		router.GET("/ok", func(c *gin.Context) { c.Status(http.StatusNoContent) })
		assert.Equal(t, http.StatusNoContent, serve(router, http.MethodGet, "/ok"))
	})

	t.Run("Should pass requests through without a meter", func(t *testing.T) {
		ResetMetricsForTesting()
		t.Cleanup(ResetMetricsForTesting)
		router := gin.New()
		router.Use(HTTPMetrics(t.Context(), nil))
		router.GET("/ok", func(c *gin.Context) { c.Status(http.StatusNoContent) })
		assert.Equal(t, http.StatusNoContent, serve(router, http.MethodGet, "/ok"))
	})
}
