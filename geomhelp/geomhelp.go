package geomhelp

import (
	"math"

	"github.com/go-spatial/geom"
	"github.com/go-spatial/geom/encoding/wkt"
	"github.com/muesli/reflow/truncate"
)

// https://en.wikipedia.org/wiki/Shoelace_formula
func Shoelace(pts [][2]float64) float64 {
	sum := 0.
	if len(pts) == 0 {
		return 0.
	}

	p0 := pts[len(pts)-1]
	for _, p1 := range pts {
		sum += p0[1]*p1[0] - p0[0]*p1[1]
		p0 = p1
	}
	return math.Abs(sum / 2)
}

// Area of a polygon: the outer ring minus its holes
func Area(p geom.Polygon) float64 {
	if len(p) == 0 {
		return 0.
	}
	interior := 0.
	for _, ring := range p[1:] {
		interior += Shoelace(ring)
	}
	return Shoelace(p[0]) - interior
}

// Polygons flattens a (multi)polygon geometry. Other geometry types yield nil.
func Polygons(g geom.Geometry) []geom.Polygon {
	switch g := g.(type) {
	case geom.Polygon:
		return []geom.Polygon{g}
	case *geom.Polygon:
		if g == nil {
			return nil
		}
		return []geom.Polygon{*g}
	case geom.MultiPolygon:
		polygons := make([]geom.Polygon, len(g))
		for i := range g {
			polygons[i] = g[i]
		}
		return polygons
	case *geom.MultiPolygon:
		if g == nil {
			return nil
		}
		return Polygons(*g)
	default:
		return nil
	}
}

// WktMustEncode encodes a geometry as WKT for log messages, truncated to maxLen (0 is unlimited).
// Encoding failures are reported in the returned string.
func WktMustEncode(g geom.Geometry, maxLen uint) (s string) {
	defer func() {
		if r := recover(); r != nil {
			s = "<unencodable geometry>"
		}
	}()
	return wktMustEncodeTruncated(g, maxLen)
}

func wktMustEncodeTruncated(geom geom.Geometry, width uint) string {
	if width == 0 {
		return wkt.MustEncode(geom)
	}
	return truncate.StringWithTail(wkt.MustEncode(geom), width, "...")
}
