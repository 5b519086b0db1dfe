package monitoring

import (
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestSystemMetrics(t *testing.T) {
	t.Run("Should record build info", func(t *testing.T) {
		ResetSystemMetricsForTesting()
		t.Cleanup(ResetSystemMetricsForTesting)
		meter, reader := newTestMeter()
		InitSystemMetrics(t.Context(), meter)
		m, ok := collect(t, reader)["vachanamrut_build_info"]
		require.True(t, ok)
		gauge, ok := m.Data.(metricdata.Gauge[float64])
		require.True(t, ok)
		require.Len(t, gauge.DataPoints, 1)
		dp := gauge.DataPoints[0]
		assert.Equal(t, float64(1), dp.Value)
		assert.Equal(t, runtime.Version(), attrString(t, dp.Attributes, "go_version"))
		assert.NotEmpty(t, attrString(t, dp.Attributes, "version"))
		assert.NotEmpty(t, attrString(t, dp.Attributes, "commit_hash"))
	})

	t.Run("Should observe a growing uptime", func(t *testing.T) {
		ResetSystemMetricsForTesting()
		t.Cleanup(ResetSystemMetricsForTesting)
		meter, reader := newTestMeter()
		InitSystemMetrics(t.Context(), meter)
		time.Sleep(10 * time.Millisecond)
		first := uptime(t, collect(t, reader))
		time.Sleep(10 * time.Millisecond)
		second := uptime(t, collect(t, reader))
		assert.Greater(t, first, float64(0))
		assert.Greater(t, second, first)
	})

	t.Run("Should register instruments only once", func(t *testing.T) {
		ResetSystemMetricsForTesting()
		t.Cleanup(ResetSystemMetricsForTesting)
		meter, reader := newTestMeter()
		InitSystemMetrics(t.Context(), meter)
		InitSystemMetrics(t.Context(), meter)
		gauge, ok := collect(t, reader)["vachanamrut_uptime_seconds"].Data.(metricdata.Gauge[float64])
		require.True(t, ok)
		assert.Len(t, gauge.DataPoints, 1)
	})
}

func uptime(t *testing.T, metrics map[string]metricdata.Metrics) float64 {
	t.Helper()
	gauge, ok := metrics["vachanamrut_uptime_seconds"].Data.(metricdata.Gauge[float64])
	require.True(t, ok)
	require.Len(t, gauge.DataPoints, 1)
	return gauge.DataPoints[0].Value
}

func TestGetBuildInfo(t *testing.T) {
	t.Run("Should prefer ldflags values", func(t *testing.T) {
		origVersion, origCommit := Version, CommitHash
		t.Cleanup(func() { Version, CommitHash = origVersion, origCommit })
		Version, CommitHash = "v1.2.3", "abc123"
		version, commit, goVersion := getBuildInfo()
		assert.Equal(t, "v1.2.3", version)
		assert.Equal(t, "abc123", commit)
		assert.Equal(t, runtime.Version(), goVersion)
	})
}
