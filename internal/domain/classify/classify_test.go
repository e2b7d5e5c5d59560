package classify_test

import (
	"testing"

	"github.com/okian/formwizard/internal/domain/classify"
	"github.com/okian/formwizard/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func sample() []model.Event {
	return []model.Event{
		{SessionID: "s1", FormID: "signup", FieldID: "email", EventType: model.EventFieldFocus},
		{SessionID: "s1", FormID: "signup", FieldID: "name", EventType: model.EventFieldFocus},
		{SessionID: "s2", FormID: "contact", FieldID: "email", EventType: model.EventFieldBlur},
		{SessionID: "s2", FormID: "contact", EventType: model.EventFormSubmit},
		{SessionID: "s3", EventType: model.EventPageExit},
		{SessionID: "s1", FormID: "signup", FieldID: "email", EventType: model.EventFieldChanged},
	}
}

func TestClassify(t *testing.T) {
	Convey("Given a mixed event sequence", t, func() {
		events := sample()
		before := sample()

		Convey("ByForm should keep only the form's events in order", func() {
			got := classify.ByForm(events, "signup")
			So(len(got), ShouldEqual, 3)
			So(got[0].FieldID, ShouldEqual, "email")
			So(got[1].FieldID, ShouldEqual, "name")
			So(got[2].EventType, ShouldEqual, model.EventFieldChanged)
		})

		Convey("ByField should match across forms", func() {
			So(len(classify.ByField(events, "email")), ShouldEqual, 3)
		})

		Convey("BySession and ByType should filter on their keys", func() {
			So(len(classify.BySession(events, "s2")), ShouldEqual, 2)
			So(len(classify.ByType(events, model.EventFieldFocus)), ShouldEqual, 2)
		})

		Convey("DistinctFieldIDs should skip events without a field", func() {
			So(classify.DistinctFieldIDs(events), ShouldResemble, []string{"email", "name"})
		})

		Convey("FormIDs should list forms in first-observed order", func() {
			So(classify.FormIDs(events), ShouldResemble, []string{"signup", "contact"})
		})

		Convey("No match should give an empty, non-nil slice", func() {
			got := classify.ByForm(events, "missing")
			So(got, ShouldNotBeNil)
			So(got, ShouldBeEmpty)
		})

		Convey("The input should never be mutated", func() {
			_ = classify.ByForm(events, "signup")
			_ = classify.DistinctFieldIDs(events)
			So(events, ShouldResemble, before)
		})
	})
}
