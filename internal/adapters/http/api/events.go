package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	service "github.com/okian/formwizard/internal/app"
	"github.com/okian/formwizard/internal/domain/model"
	"github.com/okian/formwizard/pkg/logger"
	"github.com/okian/formwizard/pkg/metrics"
)

// TrackerHandler handles events posted by the capture script.
type TrackerHandler struct {
	server *Server
}

// ingestResponse mirrors the OpenAPI schema for POST /api/tracker/event.
type ingestResponse struct {
	Status string      `json:"status"`
	Data   model.Event `json:"data"`
}

// batchRequest mirrors the OpenAPI schema for POST /api/tracker/events.
type batchRequest struct {
	Events []model.Event `json:"events" validate:"required,min=1"`
}

type batchItem struct {
	Status  string `json:"status"`
	EventID string `json:"eventId,omitempty"`
	Error   string `json:"error,omitempty"`
}

type batchResponse struct {
	Status     string      `json:"status"`
	Accepted   int         `json:"accepted"`
	Duplicates int         `json:"duplicates"`
	Rejected   int         `json:"rejected"`
	Results    []batchItem `json:"results"`
}

// HandlePostEvent handles POST /api/tracker/event requests.
func (h *TrackerHandler) HandlePostEvent(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_event"
	if !h.allow(w, op) {
		return
	}

	var ev model.Event
	if err := h.decode(w, r, &ev); err != nil {
		writeDecodeError(w, op, err)
		return
	}
	enrichUserAgent(r, &ev)

	res, err := h.server.deps.Ingest(r.Context(), ev)
	if err != nil {
		writeServiceError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, ingestResponse{Status: string(res.Status), Data: res.Event})
}

// HandlePostBatch handles POST /api/tracker/events requests. Invalid events are
// reported per item; a full queue stops the batch and answers 429 with the
// results so far.
func (h *TrackerHandler) HandlePostBatch(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_events"
	if !h.allow(w, op) {
		return
	}

	var req batchRequest
	if err := h.decode(w, r, &req); err != nil {
		writeDecodeError(w, op, err)
		return
	}
	if err := h.server.validate.StructCtx(r.Context(), req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, errors.New("events must be a non-empty list")))
		return
	}
	if len(req.Events) > h.server.maxBatchSize {
		writeError(w, http.StatusBadRequest, "bad_request",
			WrapKind(op, ErrBadRequest, fmt.Errorf("at most %d events per batch", h.server.maxBatchSize)))
		return
	}

	resp := batchResponse{Status: "success", Results: make([]batchItem, 0, len(req.Events))}
	for i := range req.Events {
		ev := req.Events[i]
		enrichUserAgent(r, &ev)

		res, err := h.server.deps.Ingest(r.Context(), ev)
		switch {
		case err == nil && res.Status == service.StatusDuplicate:
			resp.Duplicates++
			resp.Results = append(resp.Results, batchItem{Status: string(res.Status), EventID: ev.EventID})
		case err == nil:
			resp.Accepted++
			resp.Results = append(resp.Results, batchItem{Status: string(res.Status), EventID: ev.EventID})
		case errors.Is(err, service.ErrInvalidEvent):
			resp.Rejected++
			resp.Results = append(resp.Results, batchItem{Status: "invalid", EventID: ev.EventID, Error: err.Error()})
		case errors.Is(err, service.ErrQueueFull):
			resp.Status = "partial"
			h.server.logger.Warn(r.Context(), "ingest queue full during batch",
				logger.Int("accepted", resp.Accepted),
				logger.Int("remaining", len(req.Events)-i),
			)
			writeJSON(w, http.StatusTooManyRequests, resp)
			return
		default:
			writeServiceError(w, op, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *TrackerHandler) allow(w http.ResponseWriter, op string) bool {
	if h.server.limiter == nil || h.server.limiter.Allow() {
		return true
	}
	metrics.RecordIngestRateLimited()
	writeError(w, http.StatusTooManyRequests, "rate_limited", NewKind(op, ErrRateLimited))
	return false
}

func (h *TrackerHandler) decode(w http.ResponseWriter, r *http.Request, v any) error {
	body := http.MaxBytesReader(w, r.Body, h.server.maxBodyBytes)
	return json.NewDecoder(body).Decode(v)
}

func writeDecodeError(w http.ResponseWriter, op string, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		writeError(w, http.StatusRequestEntityTooLarge, "too_large", WrapKind(op, ErrBadRequest, err))
		return
	}
	writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
}

// enrichUserAgent records the request User-Agent on events that carry none.
func enrichUserAgent(r *http.Request, ev *model.Event) {
	if ev.Metadata.UserAgent != nil {
		return
	}
	if ua := r.UserAgent(); ua != "" {
		ev.Metadata.UserAgent = model.String(ua)
	}
}

// EventDependencies defines the interface for raw event access.
type EventDependencies interface {
	GetEvents(ctx context.Context) ([]model.Event, error)
	ClearEvents(ctx context.Context) error
}

// EventsHandler exposes the stored events.
type EventsHandler struct {
	deps EventDependencies
}

// NewEventsHandler creates a new events handler.
func NewEventsHandler(deps EventDependencies) *EventsHandler {
	return &EventsHandler{deps: deps}
}

// HandleGetEvents handles GET /api/events requests.
func (h *EventsHandler) HandleGetEvents(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_events"
	events, err := h.deps.GetEvents(r.Context())
	if err != nil {
		writeServiceError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(events))
}

// HandleClearEvents handles DELETE /api/events requests.
func (h *EventsHandler) HandleClearEvents(w http.ResponseWriter, r *http.Request) {
	const op = "api.clear_events"
	if err := h.deps.ClearEvents(r.Context()); err != nil {
		writeServiceError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}
