package askrouter

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/compozy/vachanamrut/engine/core"
	"github.com/compozy/vachanamrut/engine/infra/monitoring"
	"github.com/compozy/vachanamrut/engine/infra/server/appstate"
	"github.com/compozy/vachanamrut/engine/infra/server/router"
	"github.com/compozy/vachanamrut/engine/pipeline"
	"github.com/compozy/vachanamrut/engine/streaming"
	"github.com/compozy/vachanamrut/pkg/logger"
)

const (
	// RunIDHeader carries the id under which a run's events can be replayed.
	RunIDHeader = "X-Run-ID"
	// RunCompleteHeader tells replay clients whether the page ends the run.
	RunCompleteHeader = "X-Run-Complete"
)

// Request is the body of POST /ask. "All", blank and zero filter values are unset.
type Request struct {
	Question      string          `json:"question"       binding:"required" example:"What is true devotion?"`
	History       []pipeline.Turn `json:"history"`
	Chapter       string          `json:"chapter"                           example:"Gadhada"`
	Section       string          `json:"section"                           example:"I"`
	VachanamrutNo int             `json:"vachanamrut_no"                    example:"0"`
}

// Query converts the request into pipeline input.
func (r *Request) Query() pipeline.Query {
	return pipeline.Query{
		Question: strings.TrimSpace(r.Question),
		History:  r.History,
		Filter:   pipeline.ManualFilter(r.Chapter, r.Section, r.VachanamrutNo),
	}
}

type replayFrame struct {
	Type streaming.EventType `json:"type"`
	Data json.RawMessage     `json:"data"`
}

// ask handles POST /ask.
//
//	@Summary      Ask a question
//	@Description  Streams thoughts, citations, answer tokens and errors as SSE frames ending with [DONE].
//	@Tags         ask
//	@Accept       json
//	@Produce      text/event-stream
//	@Param        payload body askrouter.Request true "Question and optional filters"
//	@Header       200 {string} X-Run-ID "Run id for replay"
//	@Failure      400 {object} router.ProblemDocument "Invalid request"
//	@Router       /api/v0/ask [post]
func ask(c *gin.Context) {
	state, ok := router.GetAppState(c)
	if !ok {
		return
	}
	var req Request
	if err := c.ShouldBindJSON(&req); err != nil {
		router.RespondWithStatus(c, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		router.RespondWithStatus(c, http.StatusBadRequest, "question must not be blank")
		return
	}
	runID, err := core.NewID()
	if err != nil {
		router.RespondWithStatus(c, http.StatusInternalServerError, "failed to allocate run id")
		return
	}
	c.Header(RunIDHeader, runID.String())
	telemetry := router.NewStreamTelemetry(c.Request.Context(), monitoring.StreamKindAsk, runID, state.StreamMetrics)
	stream, err := router.StartSSE(c)
	if err != nil {
		telemetry.Close(router.StreamReasonStreamError, err)
		router.RespondWithStatus(c, http.StatusInternalServerError, err.Error())
		return
	}
	log := logger.FromContext(c.Request.Context()).With("run_id", runID.String())
	ctx, cancel := context.WithCancel(logger.ContextWithLogger(telemetry.Context(), log))
	defer cancel()
	telemetry.Connected("Ask stream connected", "filtered", req.Query().Filter != nil)
	recorder := streaming.NewRecorder(state.Publisher, runID)
	reason, streamErr := relay(ctx, cancel, stream, state.Asker.Run(ctx, req.Query()), recorder, telemetry)
	recorder.Done(ctx)
	telemetry.Close(reason, streamErr)
}

// relay forwards run events to the client and the recorder. When the client
// goes away the run is canceled and its remaining events are drained. A run
// stopped by the request deadline still ends with an error frame and [DONE].
func relay(
	ctx context.Context,
	cancel context.CancelFunc,
	stream *router.SSEStream,
	events <-chan pipeline.Event,
	recorder *streaming.Recorder,
	telemetry *router.StreamTelemetry,
) (string, error) {
	for ev := range events {
		recorder.Record(ctx, streaming.EventType(ev.Type), ev.Data)
		payload, err := json.Marshal(ev)
		if err != nil {
			logger.FromContext(ctx).Error("Failed to encode event", "type", ev.Type, "error", err)
			continue
		}
		if err := stream.WriteData(payload); err != nil {
			cancel()
			for range events {
			}
			return router.StreamReasonWriteFailed, err
		}
		telemetry.RecordEvent(string(ev.Type))
	}
	if err := ctx.Err(); err != nil {
		if !errors.Is(err, context.DeadlineExceeded) {
			return router.StreamReasonContextCanceled, nil
		}
		return timedOut(ctx, stream, recorder, telemetry)
	}
	if err := stream.WriteDone(); err != nil {
		return router.StreamReasonWriteFailed, err
	}
	telemetry.RecordEvent(router.DoneMarker)
	return router.StreamReasonCompleted, nil
}

// timedOut ends a run cut short by the server deadline with an error frame
// and the done marker, since the client is still listening.
func timedOut(
	ctx context.Context,
	stream *router.SSEStream,
	recorder *streaming.Recorder,
	telemetry *router.StreamTelemetry,
) (string, error) {
	logger.FromContext(ctx).Warn("Run exceeded the request timeout")
	ev := pipeline.Error(pipeline.MessageTimedOut)
	recorder.Record(ctx, streaming.EventType(ev.Type), ev.Data)
	payload, err := json.Marshal(ev)
	if err != nil {
		return router.StreamReasonStreamError, err
	}
	if err := stream.WriteData(payload); err != nil {
		return router.StreamReasonWriteFailed, err
	}
	telemetry.RecordEvent(string(ev.Type))
	if err := stream.WriteDone(); err != nil {
		return router.StreamReasonWriteFailed, err
	}
	telemetry.RecordEvent(router.DoneMarker)
	return router.StreamReasonTimeout, nil
}

// replay handles GET /ask/:id/events.
//
//	@Summary      Replay run events
//	@Description  Streams the recorded events of a run after the given id. Requires event mirroring.
//	@Tags         ask
//	@Produce      text/event-stream
//	@Param        id path string true "Run id"
//	@Param        after query int false "Only events with a greater id"
//	@Param        limit query int false "Maximum number of events"
//	@Failure      400 {object} router.ProblemDocument "Invalid run id"
//	@Header       200 {string} X-Run-Complete "true when the page ends with [DONE]"
//	@Failure      404 {object} router.ProblemDocument "Run not found"
//	@Failure      503 {object} router.ProblemDocument "Event mirroring disabled"
//	@Router       /api/v0/ask/{id}/events [get]
func replay(c *gin.Context) {
	state, ok := router.GetAppState(c)
	if !ok {
		return
	}
	if state.Publisher == nil {
		router.RespondWithStatus(c, http.StatusServiceUnavailable, "event replay is disabled")
		return
	}
	runID, err := core.ParseID(c.Param("id"))
	if err != nil {
		router.RespondWithStatus(c, http.StatusBadRequest, "invalid run id")
		return
	}
	after := router.LastEventID(c)
	limit, err := parseLimit(c.Query("limit"))
	if err != nil {
		router.RespondWithStatus(c, http.StatusBadRequest, err.Error())
		return
	}
	envelopes, err := state.Publisher.Replay(c.Request.Context(), runID, after, limit)
	if err != nil {
		logger.FromContext(c.Request.Context()).Error("Replay failed", "run_id", runID, "error", err)
		router.RespondWithStatus(c, http.StatusServiceUnavailable, "event store unavailable")
		return
	}
	if len(envelopes) == 0 {
		exists, err := state.Publisher.Exists(c.Request.Context(), runID)
		if err != nil {
			logger.FromContext(c.Request.Context()).Error("Replay lookup failed", "run_id", runID, "error", err)
			router.RespondWithStatus(c, http.StatusServiceUnavailable, "event store unavailable")
			return
		}
		if !exists {
			router.RespondWithStatus(c, http.StatusNotFound, "run not found")
			return
		}
	}
	c.Header(RunCompleteHeader, strconv.FormatBool(streaming.Finished(envelopes)))
	writeReplay(c, state, runID, envelopes)
}

func writeReplay(c *gin.Context, state *appstate.State, runID core.ID, envelopes []streaming.Envelope) {
	telemetry := router.NewStreamTelemetry(c.Request.Context(), monitoring.StreamKindReplay, runID, state.StreamMetrics)
	stream, err := router.StartSSE(c)
	if err != nil {
		telemetry.Close(router.StreamReasonStreamError, err)
		router.RespondWithStatus(c, http.StatusInternalServerError, err.Error())
		return
	}
	telemetry.Connected("Replay stream connected", "events", len(envelopes))
	for _, env := range envelopes {
		if env.Type == streaming.EventTypeDone {
			err = stream.WriteEvent(env.ID, []byte(router.DoneMarker))
		} else {
			var payload []byte
			if payload, err = json.Marshal(replayFrame{Type: env.Type, Data: env.Data}); err == nil {
				err = stream.WriteEvent(env.ID, payload)
			}
		}
		if err != nil {
			telemetry.Close(router.StreamReasonWriteFailed, err)
			return
		}
		telemetry.RecordEvent(string(env.Type))
	}
	telemetry.Close(router.StreamReasonCompleted, nil)
}

var errInvalidLimit = errors.New("limit must be a non-negative integer")

func parseLimit(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, errInvalidLimit
	}
	return n, nil
}
