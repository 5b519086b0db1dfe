package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func buildRouterForTest(t *testing.T, cfg *Config) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	m, err := NewManager(cfg, nil)
	require.NoError(t, err)
	r.Use(m.Middleware())
	r.GET("/t", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	r.GET("/health", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	return r
}

func doReq(r *gin.Engine, path, ip string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, http.NoBody)
	if ip != "" {
		req.Header.Set("X-Real-IP", ip)
	}
	r.ServeHTTP(w, req)
	return w
}

func testConfig(rate string) *Config {
	cfg := DefaultConfig()
	cfg.Rate = rate
	cfg.Prefix = "test:ratelimit:"
	return cfg
}

func TestManager_Middleware(t *testing.T) {
	t.Run("Should block the second request within the period", func(t *testing.T) {
		r := buildRouterForTest(t, testConfig("1-S"))
		require.Equal(t, http.StatusOK, doReq(r, "/t", "1.2.3.4").Code)
		res := doReq(r, "/t", "1.2.3.4")
		require.Equal(t, http.StatusTooManyRequests, res.Code)
		assert.Contains(t, res.Body.String(), `"status":429`)
	})

	t.Run("Should count clients separately", func(t *testing.T) {
		r := buildRouterForTest(t, testConfig("1-M"))
		require.Equal(t, http.StatusOK, doReq(r, "/t", "10.0.0.1").Code)
		require.Equal(t, http.StatusOK, doReq(r, "/t", "10.0.0.2").Code)
	})

	t.Run("Should set rate limit headers", func(t *testing.T) {
		r := buildRouterForTest(t, testConfig("2-M"))
		res := doReq(r, "/t", "9.9.9.9")
		require.Equal(t, http.StatusOK, res.Code)
		assert.Equal(t, "2", res.Header().Get("X-RateLimit-Limit"))
		assert.Equal(t, "1", res.Header().Get("X-RateLimit-Remaining"))
		assert.NotEmpty(t, res.Header().Get("X-RateLimit-Reset"))
	})

	t.Run("Should omit headers when disabled", func(t *testing.T) {
		cfg := testConfig("1-M")
		cfg.DisableHeaders = true
		r := buildRouterForTest(t, cfg)
		res := doReq(r, "/t", "8.8.8.8")
		require.Equal(t, http.StatusOK, res.Code)
		assert.Empty(t, res.Header().Get("X-RateLimit-Limit"))
		assert.Equal(t, http.StatusTooManyRequests, doReq(r, "/t", "8.8.8.8").Code)
	})

	t.Run("Should skip excluded paths", func(t *testing.T) {
		cfg := testConfig("1-M")
		cfg.ExcludedPaths = []string{"/health"}
		r := buildRouterForTest(t, cfg)
		for range 3 {
			require.Equal(t, http.StatusOK, doReq(r, "/health", "7.7.7.7").Code)
		}
	})
}

func TestConfig_Validate(t *testing.T) {
	t.Run("Should accept the default rate", func(t *testing.T) {
		assert.NoError(t, DefaultConfig().Validate())
	})

	t.Run("Should reject a malformed rate", func(t *testing.T) {
		_, err := NewManager(testConfig("sixty"), nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid rate")
	})
}

func TestNewManagerWithMetrics(t *testing.T) {
	t.Run("Should count blocked requests", func(t *testing.T) {
		ResetMetricsForTesting()
		t.Cleanup(ResetMetricsForTesting)
		gin.SetMode(gin.TestMode)
		reader := sdkmetric.NewManualReader()
		meter := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)).Meter("test")
		m, err := NewManagerWithMetrics(t.Context(), testConfig("1-H"), nil, meter)
		require.NoError(t, err)
		assert.Equal(t, "memory", m.Driver())
		r := gin.New()
		r.Use(m.Middleware())
		r.GET("/t", func(c *gin.Context) { c.Status(http.StatusOK) })
		doReq(r, "/t", "4.4.4.4")
		doReq(r, "/t", "4.4.4.4")

		var rm metricdata.ResourceMetrics
		require.NoError(t, reader.Collect(t.Context(), &rm))
		var blocked int64
		for _, sm := range rm.ScopeMetrics {
			for _, metric := range sm.Metrics {
				if metric.Name != "vachanamrut_rate_limit_blocks_total" {
					continue
				}
				sum, ok := metric.Data.(metricdata.Sum[int64])
				require.True(t, ok)
				for _, dp := range sum.DataPoints {
					blocked += dp.Value
				}
			}
		}
		assert.Equal(t, int64(1), blocked)
	})
}

func TestInMemoryRateLimit_RefillAfterPeriod(t *testing.T) {
	t.Run("Should allow requests again after the period", func(t *testing.T) {
		r := buildRouterForTest(t, testConfig("1-S"))
		require.Equal(t, http.StatusOK, doReq(r, "/t", "5.6.7.8").Code)
		require.Equal(t, http.StatusTooManyRequests, doReq(r, "/t", "5.6.7.8").Code)
		time.Sleep(1100 * time.Millisecond)
		require.Equal(t, http.StatusOK, doReq(r, "/t", "5.6.7.8").Code)
	})
}
