package streaming

import (
	"context"

	"github.com/compozy/vachanamrut/engine/core"
	"github.com/compozy/vachanamrut/pkg/logger"
)

// Recorder mirrors the events of one run. Mirroring failures are logged and
// never interrupt the run. A Recorder with a nil publisher does nothing.
type Recorder struct {
	pub    Publisher
	runID  core.ID
	failed bool
}

func NewRecorder(pub Publisher, runID core.ID) *Recorder {
	return &Recorder{pub: pub, runID: runID}
}

// Record mirrors one event.
func (r *Recorder) Record(ctx context.Context, typ EventType, data any) {
	if r == nil || r.pub == nil || r.failed {
		return
	}
	if _, err := r.pub.Publish(context.WithoutCancel(ctx), r.runID, Event{Type: typ, Data: data}); err != nil {
		r.failed = true
		logger.FromContext(ctx).Warn("Run event mirroring stopped", "run_id", r.runID, "error", err)
	}
}

// Done writes the end marker.
func (r *Recorder) Done(ctx context.Context) {
	r.Record(ctx, EventTypeDone, nil)
}
