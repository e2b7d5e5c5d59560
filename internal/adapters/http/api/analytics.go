package api

import (
	"context"
	"net/http"

	"github.com/okian/formwizard/internal/domain/model"
	"github.com/okian/formwizard/internal/domain/window"
)

// AnalyticsDependencies defines the read operations used by the dashboard.
type AnalyticsDependencies interface {
	ListForms(ctx context.Context) ([]string, error)
	GetFormAnalytics(ctx context.Context, formID string) ([]model.FieldMetrics, error)
	IdentifyProblematicFields(ctx context.Context, formID string) ([]model.ProblemReport, error)
	GenerateHeatmap(ctx context.Context, formID, token string) ([]model.HeatmapPoint, error)
	DeviceBreakdown(ctx context.Context, formID string) ([]model.DeviceCount, error)
}

// AnalyticsHandler serves per-form aggregates.
type AnalyticsHandler struct {
	deps AnalyticsDependencies
}

// NewAnalyticsHandler creates a new analytics handler.
func NewAnalyticsHandler(deps AnalyticsDependencies) *AnalyticsHandler {
	return &AnalyticsHandler{deps: deps}
}

// fieldAnalytics is the dashboard shape of one field: id plus nested metrics.
type fieldAnalytics struct {
	FieldID string       `json:"fieldId"`
	Metrics fieldMetrics `json:"metrics"`
}

type fieldMetrics struct {
	TotalInteractions int   `json:"totalInteractions"`
	AvgHesitation     int64 `json:"avgHesitation"`
	AbandonmentCount  int   `json:"abandonmentCount"`
	AbandonmentRate   int   `json:"abandonmentRate"`
	ChangeCount       int   `json:"changeCount"`
}

func toFieldAnalytics(in []model.FieldMetrics) []fieldAnalytics {
	out := make([]fieldAnalytics, 0, len(in))
	for _, m := range in {
		out = append(out, fieldAnalytics{
			FieldID: m.FieldID,
			Metrics: fieldMetrics{
				TotalInteractions: m.TotalInteractions,
				AvgHesitation:     m.AvgHesitation,
				AbandonmentCount:  m.AbandonmentCount,
				AbandonmentRate:   m.AbandonmentRate,
				ChangeCount:       m.ChangeCount,
			},
		})
	}
	return out
}

type heatmapResponse struct {
	FormID string               `json:"formId"`
	Range  string               `json:"range"`
	Points []model.HeatmapPoint `json:"points"`
}

// HandleListForms handles GET /api/forms requests.
func (h *AnalyticsHandler) HandleListForms(w http.ResponseWriter, r *http.Request) {
	const op = "api.list_forms"
	forms, err := h.deps.ListForms(r.Context())
	if err != nil {
		writeServiceError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(forms))
}

// HandleFieldMetrics handles GET /api/analytics/{formId} requests.
func (h *AnalyticsHandler) HandleFieldMetrics(w http.ResponseWriter, r *http.Request) {
	const op = "api.field_metrics"
	metrics, err := h.deps.GetFormAnalytics(r.Context(), r.PathValue("formId"))
	if err != nil {
		writeServiceError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, toFieldAnalytics(metrics))
}

// HandleProblems handles GET /api/analytics/{formId}/problems requests.
func (h *AnalyticsHandler) HandleProblems(w http.ResponseWriter, r *http.Request) {
	const op = "api.problems"
	reports, err := h.deps.IdentifyProblematicFields(r.Context(), r.PathValue("formId"))
	if err != nil {
		writeServiceError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(reports))
}

// HandleHeatmap handles GET /api/analytics/{formId}/heatmap?range= requests.
// Unknown ranges fall back to 24h; the response echoes the range applied.
func (h *AnalyticsHandler) HandleHeatmap(w http.ResponseWriter, r *http.Request) {
	const op = "api.heatmap"
	formID := r.PathValue("formId")
	token := r.URL.Query().Get("range")

	points, err := h.deps.GenerateHeatmap(r.Context(), formID, token)
	if err != nil {
		writeServiceError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, heatmapResponse{
		FormID: formID,
		Range:  window.Normalize(token),
		Points: nonNil(points),
	})
}

// HandleDevices handles GET /api/analytics/{formId}/devices requests.
func (h *AnalyticsHandler) HandleDevices(w http.ResponseWriter, r *http.Request) {
	const op = "api.devices"
	counts, err := h.deps.DeviceBreakdown(r.Context(), r.PathValue("formId"))
	if err != nil {
		writeServiceError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(counts))
}
