// Package detect reads detection features and renders them onto tile rasters.
package detect

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/go-spatial/geom"
	"github.com/go-spatial/geom/encoding/geojson"
	"github.com/pdok/skmosaic/geomhelp"
)

// ClassProperty is the feature property holding the classification label
const ClassProperty = "class"

// Feature is one detected object: a polygon (or multipolygon) with a class label.
type Feature struct {
	Class      string
	Geometry   geom.Geometry
	Properties map[string]interface{}
}

// Polygons returns the polygons of the feature's geometry
func (f Feature) Polygons() []geom.Polygon {
	return geomhelp.Polygons(f.Geometry)
}

// FeatureCollection holds the detections of one tile
type FeatureCollection struct {
	Features []Feature
}

type rawFeature struct {
	Geometry   geojson.Geometry       `json:"geometry"`
	Properties map[string]interface{} `json:"properties"`
}

type rawFeatureCollection struct {
	Type     string       `json:"type"`
	Features []rawFeature `json:"features"`
}

// Decode reads a GeoJSON FeatureCollection with detections.
func Decode(r io.Reader) (FeatureCollection, error) {
	var raw rawFeatureCollection
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return FeatureCollection{}, fmt.Errorf("could not decode detections: %w", err)
	}
	if raw.Type != "" && raw.Type != "FeatureCollection" {
		return FeatureCollection{}, fmt.Errorf(`expected a FeatureCollection, got "%v"`, raw.Type)
	}
	fc := FeatureCollection{Features: make([]Feature, 0, len(raw.Features))}
	for _, rf := range raw.Features {
		f := Feature{Geometry: rf.Geometry.Geometry, Properties: rf.Properties}
		if class, ok := rf.Properties[ClassProperty].(string); ok {
			f.Class = class
		}
		fc.Features = append(fc.Features, f)
	}
	return fc, nil
}
