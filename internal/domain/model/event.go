// Package model contains domain models passed between layers.
package model

import (
	"encoding/json"
	"math"
	"time"
)

// EventType discriminates interaction events.
type EventType string

// Recognized event kinds.
const (
	EventFieldFocus   EventType = "fieldFocus"
	EventFieldBlur    EventType = "fieldBlur"
	EventFieldChanged EventType = "fieldChanged"
	EventFormSubmit   EventType = "formSubmit"
	EventFormAbandon  EventType = "formAbandon"
	EventPageExit     EventType = "pageExit"
	EventMouseMove    EventType = "mouseMove"
)

var knownEventTypes = map[EventType]struct{}{
	EventFieldFocus:   {},
	EventFieldBlur:    {},
	EventFieldChanged: {},
	EventFormSubmit:   {},
	EventFormAbandon:  {},
	EventPageExit:     {},
	EventMouseMove:    {},
}

// Known reports whether t is one of the recognized event kinds.
// Unknown kinds are stored verbatim but never aggregated.
func (t EventType) Known() bool {
	_, ok := knownEventTypes[t]
	return ok
}

// Event is a single form interaction captured by the tracker.
// Fields mirror the JSON payload posted to /api/tracker/event.
type Event struct {
	EventID   string    `json:"eventId,omitempty" validate:"max=128"` // optional idempotency key
	SessionID string    `json:"sessionId" validate:"max=128"`         // one page load
	FormID    string    `json:"formId,omitempty" validate:"max=128"`  // absent on page-level events
	FieldID   string    `json:"fieldId,omitempty" validate:"max=128"` // field-scoped events only
	EventType EventType `json:"eventType" validate:"required,max=64"`
	Timestamp time.Time `json:"timestamp"`
	Metadata  Metadata  `json:"metadata"`

	// RawTimestamp holds a timestamp value that could not be parsed. It is
	// written back verbatim and such an event falls outside every time window.
	RawTimestamp json.RawMessage `json:"-"`
}

// timestampLayouts are the ISO 8601 forms accepted besides RFC 3339.
// Layouts without a zone are read as UTC.
var timestampLayouts = []string{
	"2006-01-02T15:04:05.999999999Z0700",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04Z07:00",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// HasTimestamp reports whether the event carries a timestamp of its own,
// parsed or not.
func (e *Event) HasTimestamp() bool {
	return !e.Timestamp.IsZero() || len(e.RawTimestamp) > 0
}

// UnmarshalJSON decodes an event. The timestamp may be RFC 3339, another
// common ISO 8601 form or epoch milliseconds; anything else is kept in
// RawTimestamp instead of failing the event.
func (e *Event) UnmarshalJSON(data []byte) error {
	type alias Event
	var raw struct {
		alias
		Timestamp json.RawMessage `json:"timestamp"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*e = Event(raw.alias)
	e.Timestamp, e.RawTimestamp = time.Time{}, nil
	if len(raw.Timestamp) == 0 || string(raw.Timestamp) == "null" || string(raw.Timestamp) == `""` {
		return nil
	}
	if ts, ok := parseTimestamp(raw.Timestamp); ok {
		e.Timestamp = ts
		return nil
	}
	e.RawTimestamp = append(json.RawMessage(nil), raw.Timestamp...)
	return nil
}

func parseTimestamp(raw json.RawMessage) (time.Time, bool) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		var ms float64
		if err := json.Unmarshal(raw, &ms); err != nil || math.IsNaN(ms) || math.Abs(ms) > maxEpochMillis {
			return time.Time{}, false
		}
		return time.UnixMilli(int64(ms)).UTC(), true
	}
	if ts, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return ts, true
	}
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}

// maxEpochMillis is the largest magnitude a JavaScript Date accepts.
const maxEpochMillis = 8.64e15

// MarshalJSON omits a zero timestamp rather than emitting year 1, and writes
// an unparsed timestamp back as it arrived.
func (e Event) MarshalJSON() ([]byte, error) {
	type alias Event
	var ts any
	switch {
	case !e.Timestamp.IsZero():
		ts = e.Timestamp
	case len(e.RawTimestamp) > 0:
		ts = e.RawTimestamp
	}
	return json.Marshal(struct {
		alias
		Timestamp any `json:"timestamp,omitempty"`
	}{alias: alias(e), Timestamp: ts})
}

// FieldMetrics holds the derived per-field statistics for one form.
type FieldMetrics struct {
	FieldID           string `json:"fieldId"`
	TotalInteractions int    `json:"totalInteractions"`
	AvgHesitation     int64  `json:"avgHesitation"` // ms
	AbandonmentCount  int    `json:"abandonmentCount"`
	AbandonmentRate   int    `json:"abandonmentRate"` // percent 0-100
	ChangeCount       int    `json:"changeCount"`
}

// HeatmapPoint is one populated unit cell of the pointer heatmap.
type HeatmapPoint struct {
	X     int `json:"x"`
	Y     int `json:"y"`
	Value int `json:"value"`
}

// Issues flags the reasons a field was reported as problematic.
type Issues struct {
	HighAbandonment  bool `json:"highAbandonment"`
	LongHesitation   bool `json:"longHesitation"`
	ExcessiveChanges bool `json:"excessiveChanges"`
}

// ProblemReport pairs a problematic field with its flags and metrics.
type ProblemReport struct {
	FieldID string       `json:"fieldId"`
	Issues  Issues       `json:"issues"`
	Metrics FieldMetrics `json:"metrics"`
}

// DeviceCount is the number of distinct sessions seen from a device class.
type DeviceCount struct {
	Device   string `json:"device"`
	Sessions int    `json:"sessions"`
}
