// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	gorillahandlers "github.com/gorilla/handlers"
	service "github.com/okian/formwizard/internal/app"
	"github.com/okian/formwizard/internal/domain/model"
	"github.com/okian/formwizard/pkg/logger"
	"golang.org/x/time/rate"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to the service implementation.
type Dependencies interface {
	StatsProvider

	// Ingest queues one tracker event.
	Ingest(ctx context.Context, ev model.Event) (service.IngestResult, error)

	// Store access.
	GetEvents(ctx context.Context) ([]model.Event, error)
	ClearEvents(ctx context.Context) error

	// Read operations expose form analytics.
	ListForms(ctx context.Context) ([]string, error)
	GetFormAnalytics(ctx context.Context, formID string) ([]model.FieldMetrics, error)
	IdentifyProblematicFields(ctx context.Context, formID string) ([]model.ProblemReport, error)
	GenerateHeatmap(ctx context.Context, formID, token string) ([]model.HeatmapPoint, error)
	DeviceBreakdown(ctx context.Context, formID string) ([]model.DeviceCount, error)
}

// Server wires HTTP routes for the business API.
type Server struct {
	deps Dependencies

	healthHandler    *HealthHandler
	statsHandler     *StatsHandler
	trackerHandler   *TrackerHandler
	eventsHandler    *EventsHandler
	analyticsHandler *AnalyticsHandler

	limiter        *rate.Limiter
	allowedOrigins []string
	maxBodyBytes   int64
	maxBatchSize   int
	validate       *validator.Validate
	logger         logger.Logger
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, opts ...Option) *Server {
	s := &Server{
		deps:         deps,
		maxBodyBytes: defaultMaxBodyBytes,
		maxBatchSize: defaultMaxBatchSize,
		validate:     validator.New(validator.WithRequiredStructEnabled()),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("api")
	}

	s.healthHandler = NewHealthHandler()
	s.statsHandler = NewStatsHandler(deps)
	s.trackerHandler = &TrackerHandler{server: s}
	s.eventsHandler = NewEventsHandler(deps)
	s.analyticsHandler = NewAnalyticsHandler(deps)
	return s
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	if mux == nil {
		panic("mux is nil")
	}

	mux.HandleFunc("GET /healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("GET /stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))

	mux.HandleFunc("POST /api/tracker/event", MetricsMiddleware(s.trackerHandler.HandlePostEvent, "tracker_event"))
	mux.HandleFunc("POST /api/tracker/events", MetricsMiddleware(s.trackerHandler.HandlePostBatch, "tracker_events"))

	mux.HandleFunc("GET /api/events", MetricsMiddleware(s.eventsHandler.HandleGetEvents, "events"))
	mux.HandleFunc("DELETE /api/events", MetricsMiddleware(s.eventsHandler.HandleClearEvents, "events"))

	mux.HandleFunc("GET /api/forms", MetricsMiddleware(s.analyticsHandler.HandleListForms, "forms"))
	mux.HandleFunc("GET /api/analytics/{formId}", MetricsMiddleware(s.analyticsHandler.HandleFieldMetrics, "analytics"))
	mux.HandleFunc("GET /api/analytics/{formId}/problems", MetricsMiddleware(s.analyticsHandler.HandleProblems, "problems"))
	mux.HandleFunc("GET /api/analytics/{formId}/heatmap", MetricsMiddleware(s.analyticsHandler.HandleHeatmap, "heatmap"))
	mux.HandleFunc("GET /api/analytics/{formId}/devices", MetricsMiddleware(s.analyticsHandler.HandleDevices, "devices"))
}

// Handler wraps next with panic recovery and CORS. Tracker scripts run on
// third party pages, so preflight requests are answered here.
func (s *Server) Handler(next http.Handler) http.Handler {
	cors := gorillahandlers.CORS(
		gorillahandlers.AllowedOrigins(s.origins()),
		gorillahandlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions}),
		gorillahandlers.AllowedHeaders([]string{"Content-Type"}),
	)
	recovery := gorillahandlers.RecoveryHandler(
		gorillahandlers.RecoveryLogger(recoveryLogger{s.logger}),
	)
	return recovery(cors(next))
}

func (s *Server) origins() []string {
	if len(s.allowedOrigins) == 0 {
		return []string{"*"}
	}
	return s.allowedOrigins
}

// recoveryLogger adapts logger.Logger to gorilla's RecoveryHandlerLogger.
type recoveryLogger struct {
	l logger.Logger
}

func (r recoveryLogger) Println(v ...interface{}) {
	r.l.Error(context.Background(), "handler panic", logger.Any("panic", v))
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = message(err)
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// writeServiceError translates service sentinels into HTTP statuses.
func writeServiceError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidEvent):
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
	case errors.Is(err, service.ErrQueueFull):
		writeError(w, http.StatusTooManyRequests, "backpressure", WrapKind(op, ErrBackpressure, err))
	case errors.Is(err, service.ErrNotStarted):
		writeError(w, http.StatusServiceUnavailable, "unavailable", WrapKind(op, ErrUnavailable, err))
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusServiceUnavailable, "unavailable", WrapKind(op, ErrUnavailable, err))
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", WrapKind(op, ErrInternal, err))
	}
}

// nonNil keeps empty results encoded as [] rather than null.
func nonNil[T any](v []T) []T {
	if v == nil {
		return []T{}
	}
	return v
}
