package heatmap_test

import (
	"math"
	"math/rand"
	"sort"
	"testing"

	"github.com/okian/formwizard/internal/domain/heatmap"
	"github.com/okian/formwizard/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func move(x, y float64) model.Event {
	return model.Event{SessionID: "s", EventType: model.EventMouseMove, Metadata: model.Metadata{CursorPosition: model.At(x, y)}}
}

func sorted(points []model.HeatmapPoint) []model.HeatmapPoint {
	out := append([]model.HeatmapPoint(nil), points...)
	sort.Slice(out, func(i, j int) bool {
		if out[i].X != out[j].X {
			return out[i].X < out[j].X
		}
		return out[i].Y < out[j].Y
	})
	return out
}

func TestBinPositions(t *testing.T) {
	Convey("Given cursor samples", t, func() {
		events := []model.Event{
			move(10.2, 20.9),
			move(10.8, 20.1),
			move(11, 20),
			move(-0.5, 3.7),
			{SessionID: "s", EventType: model.EventFieldFocus},
			move(math.NaN(), 4),
			move(5, math.Inf(1)),
		}

		Convey("Then samples should be floored into unit cells", func() {
			So(heatmap.BinPositions(events), ShouldResemble, []model.HeatmapPoint{
				{X: 10, Y: 20, Value: 2},
				{X: 11, Y: 20, Value: 1},
				{X: -1, Y: 3, Value: 1},
			})
		})

		Convey("Then permuting the input should give the same multiset", func() {
			want := sorted(heatmap.BinPositions(events))
			r := rand.New(rand.NewSource(7))
			for i := 0; i < 20; i++ {
				shuffled := append([]model.Event(nil), events...)
				r.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })
				So(sorted(heatmap.BinPositions(shuffled)), ShouldResemble, want)
			}
		})
	})

	Convey("Given coordinates too large for a grid cell", t, func() {
		events := []model.Event{
			move(1e300, 2),
			move(3, -1e300),
			move(math.MaxInt32+1, 0),
			move(math.MaxInt32, -math.MaxInt32),
		}

		Convey("Then only the in-range sample should be binned", func() {
			So(heatmap.BinPositions(events), ShouldResemble, []model.HeatmapPoint{
				{X: math.MaxInt32, Y: -math.MaxInt32, Value: 1},
			})
		})
	})

	Convey("Given no positions", t, func() {
		got := heatmap.BinPositions([]model.Event{{SessionID: "s", EventType: model.EventFormSubmit}})

		Convey("Then the heatmap should be empty", func() {
			So(got, ShouldNotBeNil)
			So(got, ShouldBeEmpty)
		})
	})
}
