package problems_test

import (
	"testing"

	"github.com/okian/formwizard/internal/domain/model"
	"github.com/okian/formwizard/internal/domain/problems"
	. "github.com/smartystreets/goconvey/convey"
)

func TestDetectProblems(t *testing.T) {
	Convey("Given field metrics around the thresholds", t, func() {
		metrics := []model.FieldMetrics{
			{FieldID: "email", TotalInteractions: 100, AbandonmentCount: 31, AbandonmentRate: 31, AvgHesitation: 100},
			{FieldID: "name", AbandonmentRate: 30, AvgHesitation: 5000},
			{FieldID: "bio", AvgHesitation: 5001, ChangeCount: 11},
			{FieldID: "tags", ChangeCount: 50},
		}

		Convey("When detecting with the defaults", func() {
			got := problems.DetectProblems(metrics)

			Convey("Then only fields strictly above a qualifying threshold should be reported", func() {
				So(len(got), ShouldEqual, 2)
				So(got[0].FieldID, ShouldEqual, "email")
				So(got[0].Issues, ShouldResemble, model.Issues{HighAbandonment: true})
				So(got[0].Metrics, ShouldResemble, metrics[0])
				So(got[1].FieldID, ShouldEqual, "bio")
				So(got[1].Issues, ShouldResemble, model.Issues{LongHesitation: true, ExcessiveChanges: true})
			})
		})

		Convey("When detecting with custom thresholds", func() {
			d := problems.NewDetector(problems.WithThresholds(problems.Thresholds{AbandonmentRate: 20, HesitationMS: 10_000}))
			got := d.Detect(metrics)

			Convey("Then the overrides should apply and unset values keep defaults", func() {
				So(d.Thresholds().ChangeCount, ShouldEqual, problems.DefaultChangeCount)
				So(len(got), ShouldEqual, 2)
				So(got[0].FieldID, ShouldEqual, "email")
				So(got[1].FieldID, ShouldEqual, "name")
			})
		})
	})

	Convey("Given no metrics", t, func() {
		got := problems.DetectProblems(nil)
		So(got, ShouldNotBeNil)
		So(got, ShouldBeEmpty)
	})
}
