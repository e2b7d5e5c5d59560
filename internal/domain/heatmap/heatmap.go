// Package heatmap bins pointer positions into a unit grid.
package heatmap

import (
	"math"

	"github.com/okian/formwizard/internal/domain/model"
)

type cell struct{ x, y int }

// BinPositions counts cursor positions per floored (x, y) cell. Events without
// a finite position, or with a coordinate beyond the int32 range, are skipped. Points come out in first-occurrence order.
func BinPositions(events []model.Event) []model.HeatmapPoint {
	index := make(map[cell]int)
	out := make([]model.HeatmapPoint, 0)
	for i := range events {
		p := events[i].Metadata.CursorPosition
		if p == nil || !binnable(p.X) || !binnable(p.Y) {
			continue
		}
		c := cell{x: int(math.Floor(p.X)), y: int(math.Floor(p.Y))}
		if idx, ok := index[c]; ok {
			out[idx].Value++
			continue
		}
		index[c] = len(out)
		out = append(out, model.HeatmapPoint{X: c.x, Y: c.y, Value: 1})
	}
	return out
}

// binnable rejects NaN, infinities and magnitudes whose floor has no exact
// int conversion.
func binnable(f float64) bool {
	return !math.IsNaN(f) && math.Abs(f) <= math.MaxInt32
}
