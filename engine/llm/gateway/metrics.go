package gateway

import (
	"context"
	"time"

	"github.com/compozy/vachanamrut/engine/core"
)

// Outcome labels for provider calls.
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
	OutcomeSkipped = "skipped"
)

// Recorder receives gateway telemetry.
type Recorder interface {
	RecordProviderCall(ctx context.Context, provider core.ProviderName, outcome string, duration time.Duration)
	RecordFallback(ctx context.Context, from core.ProviderName, to core.ProviderName)
	RecordExhausted(ctx context.Context)
}

type nopRecorder struct{}

func (nopRecorder) RecordProviderCall(context.Context, core.ProviderName, string, time.Duration) {}
func (nopRecorder) RecordFallback(context.Context, core.ProviderName, core.ProviderName)         {}
func (nopRecorder) RecordExhausted(context.Context)                                              {}

// NopRecorder returns a Recorder that discards everything.
func NopRecorder() Recorder {
	return nopRecorder{}
}
