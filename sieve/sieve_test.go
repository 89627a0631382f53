package sieve

import (
	"testing"

	"github.com/go-spatial/geom"
	"github.com/stretchr/testify/assert"
)

func TestPolygon(t *testing.T) {
	square := [][2]float64{{0, 0}, {0, 10}, {10, 10}, {10, 0}, {0, 0}}
	bigHole := [][2]float64{{2, 2}, {2, 8}, {8, 8}, {8, 2}, {2, 2}}
	smallHole := [][2]float64{{1, 1}, {1, 2}, {2, 2}, {2, 1}, {1, 1}}

	var tests = []struct {
		name       string
		polygon    geom.Polygon
		resolution float64
		want       geom.Polygon
	}{
		{name: "kept", polygon: geom.Polygon{square}, resolution: 1, want: geom.Polygon{square}},
		{name: "too small", polygon: geom.Polygon{square}, resolution: 10, want: nil},
		{name: "small hole removed", polygon: geom.Polygon{square, bigHole, smallHole}, resolution: 2, want: geom.Polygon{square, bigHole}},
		{name: "holes kept at zero resolution", polygon: geom.Polygon{square, smallHole}, resolution: 0, want: geom.Polygon{square, smallHole}},
		{name: "zero area dropped", polygon: geom.Polygon{{{0, 0}, {5, 0}, {10, 0}}}, resolution: 0, want: nil},
		{name: "hole eats everything", polygon: geom.Polygon{square, square}, resolution: 0, want: nil},
		{name: "nil", polygon: nil, resolution: 0, want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Polygon(tt.polygon, tt.resolution))
			assert.Equal(t, tt.want, Filter(tt.resolution)(tt.polygon))
		})
	}
}
