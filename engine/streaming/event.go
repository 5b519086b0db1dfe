package streaming

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/compozy/vachanamrut/engine/core"
)

// EventType enumerates the categories of mirrored run events.
type EventType string

const (
	EventTypeThought  EventType = "thought"
	EventTypeCitation EventType = "citation"
	EventTypeToken    EventType = "token"
	EventTypeError    EventType = "error"
	// EventTypeDone marks the end of a run. It carries no data.
	EventTypeDone EventType = "done"
)

// Event captures a logical event before transport encoding.
type Event struct {
	Type EventType
	Data any
}

// Envelope is the transport representation persisted and broadcast to subscribers.
type Envelope struct {
	ID        int64           `json:"id"`
	RunID     core.ID         `json:"run_id"`
	Type      EventType       `json:"type"`
	Timestamp time.Time       `json:"ts"`
	Data      json.RawMessage `json:"data"`
}

// Publisher stores run events for later replay.
type Publisher interface {
	Publish(ctx context.Context, runID core.ID, event Event) (Envelope, error)
	Replay(ctx context.Context, runID core.ID, afterID int64, limit int) ([]Envelope, error)
	// Exists reports whether any event is retained for the run.
	Exists(ctx context.Context, runID core.ID) (bool, error)
	Channel(runID core.ID) string
}

// NewEnvelope constructs an envelope from the provided event data.
func NewEnvelope(id int64, runID core.ID, event Event, ts time.Time) (Envelope, error) {
	if runID.IsZero() {
		return Envelope{}, fmt.Errorf("streaming: run id is required")
	}
	if event.Type == "" {
		return Envelope{}, fmt.Errorf("streaming: event type is required")
	}
	payload, err := json.Marshal(event.Data)
	if err != nil {
		return Envelope{}, fmt.Errorf("streaming: marshal payload: %w", err)
	}
	return Envelope{
		ID:        id,
		RunID:     runID,
		Type:      event.Type,
		Timestamp: ts.UTC(),
		Data:      payload,
	}, nil
}

// Finished reports whether envelopes end with the done marker.
func Finished(envelopes []Envelope) bool {
	return len(envelopes) > 0 && envelopes[len(envelopes)-1].Type == EventTypeDone
}
