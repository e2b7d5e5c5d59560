package model_test

import (
	"encoding/json"
	"testing"
	"time"

	model "github.com/okian/formwizard/internal/domain/model"
	"github.com/smartystreets/goconvey/convey"
)

func TestEventType(t *testing.T) {
	convey.Convey("Given event types", t, func() {
		convey.Convey("Then every tracker kind should be known", func() {
			for _, et := range []model.EventType{
				model.EventFieldFocus, model.EventFieldBlur, model.EventFieldChanged,
				model.EventFormSubmit, model.EventFormAbandon, model.EventPageExit, model.EventMouseMove,
			} {
				convey.So(et.Known(), convey.ShouldBeTrue)
			}
		})

		convey.Convey("Then unrecognized kinds should not be known", func() {
			convey.So(model.EventType("keyPress").Known(), convey.ShouldBeFalse)
			convey.So(model.EventType("").Known(), convey.ShouldBeFalse)
			convey.So(model.EventType("FIELDFOCUS").Known(), convey.ShouldBeFalse)
		})
	})
}

func TestEventJSON(t *testing.T) {
	convey.Convey("Given a tracker payload", t, func() {
		payload := `{
			"sessionId": "session_abc",
			"formId": "signup",
			"fieldId": "email",
			"eventType": "fieldBlur",
			"timestamp": "2025-03-01T10:00:00Z",
			"metadata": {
				"hesitationDuration": 1500,
				"cursorPosition": {"x": 10.5, "y": 20.25},
				"interactionSequence": 7,
				"fieldType": "email",
				"isEmpty": false,
				"custom": {"nested": [1, 2]}
			}
		}`

		convey.Convey("When decoding it", func() {
			var ev model.Event
			err := json.Unmarshal([]byte(payload), &ev)

			convey.Convey("Then typed fields should be populated", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(ev.SessionID, convey.ShouldEqual, "session_abc")
				convey.So(ev.EventType, convey.ShouldEqual, model.EventFieldBlur)
				convey.So(ev.Timestamp.Equal(time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)), convey.ShouldBeTrue)
				convey.So(*ev.Metadata.HesitationDuration, convey.ShouldEqual, 1500.0)
				convey.So(*ev.Metadata.CursorPosition, convey.ShouldResemble, model.Point{X: 10.5, Y: 20.25})
				convey.So(*ev.Metadata.InteractionSequence, convey.ShouldEqual, int64(7))
				convey.So(*ev.Metadata.FieldType, convey.ShouldEqual, "email")
				convey.So(*ev.Metadata.IsEmpty, convey.ShouldBeFalse)
				convey.So(ev.Metadata.ChangeCount, convey.ShouldBeNil)
				convey.So(ev.Metadata.Extra, convey.ShouldContainKey, "custom")
			})

			convey.Convey("And re-encoding it should be lossless", func() {
				out, err := json.Marshal(ev)
				convey.So(err, convey.ShouldBeNil)

				var want, got map[string]any
				convey.So(json.Unmarshal([]byte(payload), &want), convey.ShouldBeNil)
				convey.So(json.Unmarshal(out, &got), convey.ShouldBeNil)
				convey.So(got, convey.ShouldResemble, want)
			})
		})
	})

	convey.Convey("Given a payload with malformed optional values", t, func() {
		payload := `{
			"sessionId": "s1",
			"eventType": "mouseMove",
			"timestamp": "yesterday",
			"metadata": {"hesitationDuration": "slow", "cursorPosition": {"x": 4}, "changeCount": 2.5}
		}`

		convey.Convey("When decoding it", func() {
			var ev model.Event
			err := json.Unmarshal([]byte(payload), &ev)

			convey.Convey("Then it should not fail and should keep the raw values", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(ev.Timestamp.IsZero(), convey.ShouldBeTrue)
				convey.So(string(ev.RawTimestamp), convey.ShouldEqual, `"yesterday"`)
				convey.So(ev.HasTimestamp(), convey.ShouldBeTrue)
				convey.So(ev.Metadata.HesitationDuration, convey.ShouldBeNil)
				convey.So(ev.Metadata.CursorPosition, convey.ShouldBeNil)
				convey.So(ev.Metadata.ChangeCount, convey.ShouldBeNil)
				convey.So(string(ev.Metadata.Extra["hesitationDuration"]), convey.ShouldEqual, `"slow"`)
				convey.So(string(ev.Metadata.Extra["cursorPosition"]), convey.ShouldEqual, `{"x": 4}`)
			})
		})
	})

	convey.Convey("Given a page exit without form or field", t, func() {
		payload := `{"sessionId":"s9","eventType":"pageExit","timestamp":"2025-03-01T10:00:00Z","metadata":{}}`

		convey.Convey("When round-tripping it", func() {
			var ev model.Event
			convey.So(json.Unmarshal([]byte(payload), &ev), convey.ShouldBeNil)
			out, err := json.Marshal(ev)

			convey.Convey("Then optional identifiers should stay absent", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(string(out), convey.ShouldNotContainSubstring, "formId")
				convey.So(string(out), convey.ShouldNotContainSubstring, "fieldId")
				convey.So(ev.Metadata.IsZero(), convey.ShouldBeTrue)
			})
		})
	})
}

func TestEventTimestampLayouts(t *testing.T) {
	decode := func(ts string) model.Event {
		var ev model.Event
		payload := `{"sessionId":"s1","eventType":"fieldFocus","timestamp":` + ts + `}`
		convey.So(json.Unmarshal([]byte(payload), &ev), convey.ShouldBeNil)
		return ev
	}

	convey.Convey("Given ISO 8601 timestamps that are not RFC 3339", t, func() {
		convey.Convey("A local date-time should be read as UTC", func() {
			ev := decode(`"2024-01-01T10:00:00"`)
			convey.So(ev.Timestamp.Equal(time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)), convey.ShouldBeTrue)
			convey.So(ev.RawTimestamp, convey.ShouldBeNil)
		})

		convey.Convey("A basic-format offset should be applied", func() {
			ev := decode(`"2024-01-01T10:00:00+0100"`)
			convey.So(ev.Timestamp.Equal(time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)), convey.ShouldBeTrue)
		})

		convey.Convey("A bare date should be midnight UTC", func() {
			ev := decode(`"2024-01-01"`)
			convey.So(ev.Timestamp.Equal(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)), convey.ShouldBeTrue)
		})

		convey.Convey("Fractional seconds without a zone should be kept", func() {
			ev := decode(`"2024-01-01T10:00:00.250"`)
			convey.So(ev.Timestamp.Equal(time.Date(2024, 1, 1, 10, 0, 0, 250_000_000, time.UTC)), convey.ShouldBeTrue)
		})

		convey.Convey("Epoch milliseconds should be accepted", func() {
			ev := decode(`1704103200000`)
			convey.So(ev.Timestamp.Equal(time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)), convey.ShouldBeTrue)
		})

		convey.Convey("An empty string should count as missing", func() {
			ev := decode(`""`)
			convey.So(ev.HasTimestamp(), convey.ShouldBeFalse)
		})
	})

	convey.Convey("Given a timestamp no layout understands", t, func() {
		var ev model.Event
		payload := `{"sessionId":"s1","eventType":"fieldFocus","timestamp":"next tuesday"}`
		convey.So(json.Unmarshal([]byte(payload), &ev), convey.ShouldBeNil)

		convey.Convey("When re-encoding the event", func() {
			out, err := json.Marshal(ev)
			convey.So(err, convey.ShouldBeNil)

			convey.Convey("Then the original value should come back unchanged", func() {
				var got map[string]any
				convey.So(json.Unmarshal(out, &got), convey.ShouldBeNil)
				convey.So(got["timestamp"], convey.ShouldEqual, "next tuesday")

				var again model.Event
				convey.So(json.Unmarshal(out, &again), convey.ShouldBeNil)
				convey.So(string(again.RawTimestamp), convey.ShouldEqual, `"next tuesday"`)
			})
		})
	})
}
