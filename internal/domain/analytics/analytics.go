// Package analytics computes per-field behavioral metrics for a form.
package analytics

import (
	"math"

	"github.com/okian/formwizard/internal/domain/classify"
	"github.com/okian/formwizard/internal/domain/model"
)

const percent = 100

// ComputeFieldMetrics returns one FieldMetrics per distinct field observed on
// formID, in first-observed order. A form without events yields an empty slice.
//
// A focus counts as abandoned when its session never submitted the form; a
// single submission absolves every field focused in that session.
func ComputeFieldMetrics(events []model.Event, formID string) []model.FieldMetrics {
	formEvents := classify.ByForm(events, formID)
	out := make([]model.FieldMetrics, 0)
	if len(formEvents) == 0 {
		return out
	}

	submitted := classify.SessionIDs(classify.ByType(formEvents, model.EventFormSubmit))
	for _, fieldID := range classify.DistinctFieldIDs(formEvents) {
		out = append(out, fieldMetrics(classify.ByField(formEvents, fieldID), fieldID, submitted))
	}
	return out
}

func fieldMetrics(fieldEvents []model.Event, fieldID string, submitted map[string]struct{}) model.FieldMetrics {
	m := model.FieldMetrics{FieldID: fieldID}

	var (
		hesitationSum   float64
		hesitationCount int
	)
	for i := range fieldEvents {
		e := &fieldEvents[i]
		switch e.EventType {
		case model.EventFieldFocus:
			m.TotalInteractions++
			if _, ok := submitted[e.SessionID]; !ok {
				m.AbandonmentCount++
			}
		case model.EventFieldBlur:
			if d := e.Metadata.HesitationDuration; d != nil {
				hesitationSum += *d
				hesitationCount++
			}
		case model.EventFieldChanged:
			m.ChangeCount++
		}
	}

	if hesitationCount > 0 {
		m.AvgHesitation = int64(roundHalfUp(hesitationSum / float64(hesitationCount)))
	}
	m.AbandonmentRate = Rate(m.AbandonmentCount, m.TotalInteractions)
	return m
}

// Rate returns round(100 * part / whole) as an integer percentage, or 0 when
// whole is zero.
func Rate(part, whole int) int {
	if whole <= 0 {
		return 0
	}
	return int(roundHalfUp(float64(part) / float64(whole) * percent))
}

// roundHalfUp rounds to the nearest integer with halves going toward +Inf.
func roundHalfUp(x float64) float64 {
	return math.Floor(x + 0.5)
}
