// Package classify partitions event sequences by form, field, session or type.
//
// Every function returns a new slice and never mutates its input.
package classify

import "github.com/okian/formwizard/internal/domain/model"

// ByForm returns the events recorded against formID.
func ByForm(events []model.Event, formID string) []model.Event {
	return filter(events, func(e *model.Event) bool { return e.FormID == formID })
}

// ByField returns the events recorded against fieldID.
func ByField(events []model.Event, fieldID string) []model.Event {
	return filter(events, func(e *model.Event) bool { return e.FieldID == fieldID })
}

// BySession returns the events of one session.
func BySession(events []model.Event, sessionID string) []model.Event {
	return filter(events, func(e *model.Event) bool { return e.SessionID == sessionID })
}

// ByType returns the events of kind t.
func ByType(events []model.Event, t model.EventType) []model.Event {
	return filter(events, func(e *model.Event) bool { return e.EventType == t })
}

// DistinctFieldIDs returns each field ID carried by events, in first-observed order.
func DistinctFieldIDs(events []model.Event) []string {
	return distinct(events, func(e *model.Event) string { return e.FieldID })
}

// FormIDs returns each form ID carried by events, in first-observed order.
func FormIDs(events []model.Event) []string {
	return distinct(events, func(e *model.Event) string { return e.FormID })
}

// SessionIDs returns the set of sessions present in events.
func SessionIDs(events []model.Event) map[string]struct{} {
	out := make(map[string]struct{})
	for i := range events {
		out[events[i].SessionID] = struct{}{}
	}
	return out
}

func filter(events []model.Event, keep func(*model.Event) bool) []model.Event {
	out := make([]model.Event, 0)
	for i := range events {
		if keep(&events[i]) {
			out = append(out, events[i])
		}
	}
	return out
}

func distinct(events []model.Event, key func(*model.Event) string) []string {
	seen := make(map[string]struct{})
	out := make([]string, 0)
	for i := range events {
		k := key(&events[i])
		if k == "" {
			continue
		}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}
