package model

import (
	"bytes"
	"encoding/json"
)

// Metadata keys understood by the aggregation engine.
const (
	KeyHesitationDuration  = "hesitationDuration"
	KeyCursorPosition      = "cursorPosition"
	KeyChangeCount         = "changeCount"
	KeyInteractionSequence = "interactionSequence"
	KeyFieldType           = "fieldType"
	KeyIsEmpty             = "isEmpty"
	KeyUserAgent           = "userAgent"
	KeyURL                 = "url"
)

// Point is a pointer position in page coordinates.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Metadata is the event-type dependent payload. A nil pointer means the key
// was absent (or carried a value of the wrong shape, kept in Extra).
type Metadata struct {
	HesitationDuration  *float64
	CursorPosition      *Point
	ChangeCount         *int
	InteractionSequence *int64
	FieldType           *string
	IsEmpty             *bool
	UserAgent           *string
	URL                 *string

	// Extra keeps every other key verbatim.
	Extra map[string]json.RawMessage
}

// IsZero reports whether no metadata key is set.
func (m Metadata) IsZero() bool {
	return m.HesitationDuration == nil && m.CursorPosition == nil && m.ChangeCount == nil &&
		m.InteractionSequence == nil && m.FieldType == nil && m.IsEmpty == nil &&
		m.UserAgent == nil && m.URL == nil && len(m.Extra) == 0
}

// UnmarshalJSON decodes known keys into typed fields. Values of an unexpected
// shape are not an error: they stay in Extra so nothing is lost.
func (m *Metadata) UnmarshalJSON(data []byte) error {
	*m = Metadata{}
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return nil
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	for key, val := range raw {
		if !m.decodeKnown(key, val) {
			if m.Extra == nil {
				m.Extra = make(map[string]json.RawMessage)
			}
			m.Extra[key] = val
		}
	}
	return nil
}

func (m *Metadata) decodeKnown(key string, val json.RawMessage) bool {
	if bytes.Equal(bytes.TrimSpace(val), []byte("null")) {
		return false
	}
	switch key {
	case KeyHesitationDuration:
		return decodeInto(val, &m.HesitationDuration)
	case KeyCursorPosition:
		return decodePoint(val, &m.CursorPosition)
	case KeyChangeCount:
		return decodeInto(val, &m.ChangeCount)
	case KeyInteractionSequence:
		return decodeInto(val, &m.InteractionSequence)
	case KeyFieldType:
		return decodeInto(val, &m.FieldType)
	case KeyIsEmpty:
		return decodeInto(val, &m.IsEmpty)
	case KeyUserAgent:
		return decodeInto(val, &m.UserAgent)
	case KeyURL:
		return decodeInto(val, &m.URL)
	}
	return false
}

func decodeInto[T any](val json.RawMessage, dst **T) bool {
	var v T
	if err := json.Unmarshal(val, &v); err != nil {
		return false
	}
	*dst = &v
	return true
}

// decodePoint accepts a cursor position only when both coordinates are numbers.
func decodePoint(val json.RawMessage, dst **Point) bool {
	var raw struct {
		X *float64 `json:"x"`
		Y *float64 `json:"y"`
	}
	if err := json.Unmarshal(val, &raw); err != nil || raw.X == nil || raw.Y == nil {
		return false
	}
	// Reject positions carrying keys other than x/y so they round-trip via Extra.
	var keys map[string]json.RawMessage
	if err := json.Unmarshal(val, &keys); err != nil || len(keys) != 2 {
		return false
	}
	*dst = &Point{X: *raw.X, Y: *raw.Y}
	return true
}

// MarshalJSON writes typed fields back under their original keys.
func (m Metadata) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(m.Extra)+8)
	for k, v := range m.Extra {
		out[k] = v
	}
	set := func(key string, present bool, v any) {
		if present {
			out[key] = v
		}
	}
	set(KeyHesitationDuration, m.HesitationDuration != nil, m.HesitationDuration)
	set(KeyCursorPosition, m.CursorPosition != nil, m.CursorPosition)
	set(KeyChangeCount, m.ChangeCount != nil, m.ChangeCount)
	set(KeyInteractionSequence, m.InteractionSequence != nil, m.InteractionSequence)
	set(KeyFieldType, m.FieldType != nil, m.FieldType)
	set(KeyIsEmpty, m.IsEmpty != nil, m.IsEmpty)
	set(KeyUserAgent, m.UserAgent != nil, m.UserAgent)
	set(KeyURL, m.URL != nil, m.URL)
	return json.Marshal(out)
}

// Float64 returns a pointer to v, for building metadata in code.
func Float64(v float64) *float64 { return &v }

// Int returns a pointer to v.
func Int(v int) *int { return &v }

// Int64 returns a pointer to v.
func Int64(v int64) *int64 { return &v }

// String returns a pointer to v.
func String(v string) *string { return &v }

// Bool returns a pointer to v.
func Bool(v bool) *bool { return &v }

// At returns a cursor position pointer.
func At(x, y float64) *Point { return &Point{X: x, Y: y} }
