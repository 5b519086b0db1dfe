package monitoring

import (
	"context"
	"runtime"
	"runtime/debug"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/compozy/vachanamrut/engine/infra/monitoring/metrics"
	"github.com/compozy/vachanamrut/pkg/logger"
)

// Set with -ldflags "-X github.com/compozy/vachanamrut/engine/infra/monitoring.Version=..."
var (
	Version    = "unknown"
	CommitHash = "unknown"
)

const unknownBuild = "unknown"

// processMetrics holds the instruments describing the running binary.
type processMetrics struct {
	mu           sync.Mutex
	registered   bool
	buildInfo    metric.Float64Gauge
	registration metric.Registration
	started      time.Time
}

var process processMetrics

// InitSystemMetrics registers build info and uptime once per process.
func InitSystemMetrics(ctx context.Context, meter metric.Meter) {
	process.mu.Lock()
	defer process.mu.Unlock()
	if !process.registered {
		process.register(ctx, meter)
	}
	process.recordBuild(ctx)
}

func (p *processMetrics) register(ctx context.Context, meter metric.Meter) {
	log := logger.FromContext(ctx)
	p.registered = true
	p.started = time.Now()
	info, err := meter.Float64Gauge(
		metrics.MetricName("build_info"),
		metric.WithDescription("Build information (value=1)"),
	)
	if err != nil {
		log.Error("Failed to create build info gauge", "error", err)
	} else {
		p.buildInfo = info
	}
	uptime, err := meter.Float64ObservableGauge(
		metrics.MetricName("uptime_seconds"),
		metric.WithDescription("Seconds since the service started"),
	)
	if err != nil {
		log.Error("Failed to create uptime gauge", "error", err)
		return
	}
	started := p.started
	p.registration, err = meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		o.ObserveFloat64(uptime, time.Since(started).Seconds())
		return nil
	}, uptime)
	if err != nil {
		log.Error("Failed to register uptime callback", "error", err)
	}
}

func (p *processMetrics) recordBuild(ctx context.Context) {
	if p.buildInfo == nil {
		return
	}
	version, commit, goVersion := getBuildInfo()
	p.buildInfo.Record(ctx, 1, metric.WithAttributes(
		attribute.String("version", version),
		attribute.String("commit_hash", commit),
		attribute.String("go_version", goVersion),
	))
	logger.FromContext(ctx).Debug("Build info recorded", "version", version, "commit", commit)
}

func (p *processMetrics) reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.registration != nil {
		_ = p.registration.Unregister()
	}
	p.registered = false
	p.buildInfo = nil
	p.registration = nil
	p.started = time.Time{}
}

// getBuildInfo prefers ldflags values, then the module version and VCS
// revision embedded by the toolchain.
func getBuildInfo() (version, commit, goVersion string) {
	version, commit = Version, CommitHash
	if info, ok := debug.ReadBuildInfo(); ok {
		if version == unknownBuild && info.Main.Version != "" && info.Main.Version != "(devel)" {
			version = info.Main.Version
		}
		for _, s := range info.Settings {
			if commit == unknownBuild && s.Key == "vcs.revision" {
				commit = s.Value
			}
		}
	}
	return version, commit, runtime.Version()
}

// ResetSystemMetricsForTesting lets tests register the instruments again.
func ResetSystemMetricsForTesting() {
	process.reset()
}
