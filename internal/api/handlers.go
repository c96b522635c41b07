// Package api exposes the automation engine over HTTP.
package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/pipeline-automation/internal/automation"
	"github.com/ignite/pipeline-automation/internal/domain"
	"github.com/ignite/pipeline-automation/internal/pkg/httputil"
)

// Engine is the part of the automation engine the handlers call.
type Engine interface {
	RunAdHoc(ctx context.Context, automationID string, opts automation.AdHocOptions) (*domain.ExecutionRecord, error)
	ListExecutionHistory(ctx context.Context, automationID string, limit, offset int) ([]domain.ExecutionRecord, error)
	SweepDateTriggers(ctx context.Context, asOf time.Time) (*automation.SweepReport, error)
	Location() *time.Location
}

// Publisher hands a transition to the engine without waiting for it.
type Publisher interface {
	Publish(ctx context.Context, ev domain.TransitionEvent)
}

// Handlers serves the automation endpoints.
type Handlers struct {
	engine    Engine
	publisher Publisher
}

// NewHandlers creates the automation handlers.
func NewHandlers(engine Engine, publisher Publisher) *Handlers {
	return &Handlers{engine: engine, publisher: publisher}
}

// RegisterRoutes mounts the automation routes on r.
func (h *Handlers) RegisterRoutes(r chi.Router) {
	r.Post("/transitions", h.HandleTransition)
	r.Post("/sweeps", h.HandleSweep)
	r.Route("/automations/{automationId}", func(r chi.Router) {
		r.Post("/test", h.HandleRunAdHoc)
		r.Get("/executions", h.HandleListExecutions)
	})
}

// HandleTransition accepts a committed field or stage change. Evaluation
// happens in the background; the caller never waits on mail delivery.
//
//	POST /api/transitions
func (h *Handlers) HandleTransition(w http.ResponseWriter, r *http.Request) {
	var ev domain.TransitionEvent
	if !httputil.Decode(w, r, &ev) {
		return
	}
	if ev.Kind == domain.EventStageChanged && ev.Field == "" {
		ev.Field = domain.StageMarker
	}
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now()
	}
	if ev.Kind == domain.EventDateArrived {
		httputil.BadRequest(w, "date events are produced by the scheduler")
		return
	}
	if err := ev.Validate(); err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}

	h.publisher.Publish(r.Context(), ev)
	httputil.Accepted(w, map[string]interface{}{
		"accepted":  true,
		"record_id": ev.RecordID,
	})
}

// HandleRunAdHoc sends a test message for one automation.
//
//	POST /api/automations/{automationId}/test
func (h *Handlers) HandleRunAdHoc(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "automationId")
	opts := automation.AdHocOptions{UseRandomRecord: true}
	if !httputil.Decode(w, r, &opts) {
		return
	}
	if opts.RecordID != "" {
		opts.UseRandomRecord = false
	}

	rec, err := h.engine.RunAdHoc(r.Context(), id, opts)
	switch {
	case errors.Is(err, automation.ErrRuleNotFound):
		httputil.NotFound(w, "automation not found")
		return
	case errors.Is(err, automation.ErrRecordNotFound):
		httputil.NotFound(w, "record not found")
		return
	case err != nil:
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, rec)
}

// HandleListExecutions returns execution history, newest first.
//
//	GET /api/automations/{automationId}/executions?limit=50&offset=0
func (h *Handlers) HandleListExecutions(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "automationId")
	limit, ok := queryInt(w, r, "limit")
	if !ok {
		return
	}
	offset, ok := queryInt(w, r, "offset")
	if !ok {
		return
	}

	records, err := h.engine.ListExecutionHistory(r.Context(), id, limit, offset)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, map[string]interface{}{
		"automation_id": id,
		"executions":    records,
		"count":         len(records),
	})
}

// HandleSweep runs the date-trigger sweep for a business day (default today).
// Repeating a sweep is safe.
//
//	POST /api/sweeps?date=2026-03-11
func (h *Handlers) HandleSweep(w http.ResponseWriter, r *http.Request) {
	asOf := time.Now()
	if d := r.URL.Query().Get("date"); d != "" {
		parsed, err := time.ParseInLocation(domain.DateLayout, d, h.engine.Location())
		if err != nil {
			httputil.BadRequest(w, "date must be YYYY-MM-DD")
			return
		}
		asOf = parsed
	}

	report, err := h.engine.SweepDateTriggers(r.Context(), asOf)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, report)
}

func queryInt(w http.ResponseWriter, r *http.Request, key string) (int, bool) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return 0, true
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		httputil.BadRequest(w, key+" must be a non-negative integer")
		return 0, false
	}
	return n, true
}
