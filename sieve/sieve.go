// Package sieve drops polygons, and holes, that are too small to matter.
package sieve

import (
	"github.com/go-spatial/geom"
	"github.com/pdok/skmosaic/geomhelp"
)

// Polygon sieves a POLYGON: it is kept when its area exceeds resolution squared,
// and so are its holes. A resolution of 0 only drops polygons without area.
func Polygon(p geom.Polygon, resolution float64) geom.Polygon {
	minArea := resolution * resolution
	if geomhelp.Area(p) <= minArea {
		return nil
	}
	if len(p) == 1 {
		return p
	}
	sievedPolygon := geom.Polygon{p[0]}
	for _, interior := range p[1:] {
		if geomhelp.Shoelace(interior) > minArea {
			sievedPolygon = append(sievedPolygon, interior)
		}
	}
	return sievedPolygon
}

// Filter returns Polygon with a fixed resolution
func Filter(resolution float64) func(geom.Polygon) geom.Polygon {
	return func(p geom.Polygon) geom.Polygon {
		return Polygon(p, resolution)
	}
}
