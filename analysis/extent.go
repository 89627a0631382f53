package analysis

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/go-spatial/geom"
	"github.com/go-spatial/geom/encoding/geojson"
)

// Extent is the area of interest: the GeoJSON as given, plus its bounding box.
type Extent struct {
	GeoJSON json.RawMessage
	Bounds  *geom.Extent
}

// ids and properties are not needed, and may be of any type
type extentFeature struct {
	Geometry geojson.Geometry `json:"geometry"`
}

// LoadExtent reads a GeoJSON geometry, feature or feature collection from path.
func LoadExtent(path string) (Extent, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Extent{}, fmt.Errorf("could not read area of interest: %w", err)
	}
	return ParseExtent(data)
}

// ParseExtent checks that data is GeoJSON with a non-empty bounding box.
func ParseExtent(data []byte) (Extent, error) {
	var typed struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &typed); err != nil {
		return Extent{}, fmt.Errorf("invalid GeoJSON: %w", err)
	}

	var geometries []geom.Geometry
	switch typed.Type {
	case "FeatureCollection":
		var fc struct {
			Features []extentFeature `json:"features"`
		}
		if err := json.Unmarshal(data, &fc); err != nil {
			return Extent{}, fmt.Errorf("invalid GeoJSON feature collection: %w", err)
		}
		for _, f := range fc.Features {
			geometries = append(geometries, f.Geometry.Geometry)
		}
	case "Feature":
		var f extentFeature
		if err := json.Unmarshal(data, &f); err != nil {
			return Extent{}, fmt.Errorf("invalid GeoJSON feature: %w", err)
		}
		geometries = append(geometries, f.Geometry.Geometry)
	case "":
		return Extent{}, errors.New(`GeoJSON without "type"`)
	default:
		var g geojson.Geometry
		if err := json.Unmarshal(data, &g); err != nil {
			return Extent{}, fmt.Errorf("invalid GeoJSON geometry: %w", err)
		}
		geometries = append(geometries, g.Geometry)
	}

	var bounds *geom.Extent
	for _, g := range geometries {
		if g == nil {
			continue
		}
		e, err := geom.NewExtentFromGeometry(g)
		if err != nil {
			return Extent{}, fmt.Errorf("could not determine extent: %w", err)
		}
		if bounds == nil {
			bounds = e
		} else {
			bounds.Add(e)
		}
	}
	if bounds == nil || bounds.Area() == 0 {
		return Extent{}, errors.New("area of interest has an empty bounding box")
	}
	return Extent{GeoJSON: json.RawMessage(data), Bounds: bounds}, nil
}
