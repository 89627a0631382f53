package processing

import (
	"errors"
	"fmt"
	"log"

	"github.com/go-spatial/geom"
	"github.com/pdok/skmosaic/detect"
	"github.com/pdok/skmosaic/tiles"
)

// DetectionColumns are the attribute columns a detection feature carries, in order
var DetectionColumns = []string{"class", "tile_z", "tile_x", "tile_y"}

type detectionFeature struct {
	columns  []interface{}
	geometry geom.Geometry
}

func (f detectionFeature) Columns() []interface{} {
	return f.columns
}

func (f detectionFeature) Geometry() geom.Geometry {
	return f.geometry
}

// DetectionSource reads the detections of a set of tiles
type DetectionSource struct {
	Tiles  []tiles.Address
	Loader detect.FeatureLoader
}

func (source DetectionSource) ReadFeatures(features chan<- Feature) error {
	for _, a := range source.Tiles {
		fc, err := source.Loader.LoadFeatures(a)
		if errors.Is(err, tiles.ErrNotFound) {
			log.Printf("    warning: no detections for tile %d/%d/%d, skipping", a.Z, a.X, a.Y)
			continue
		} else if err != nil {
			return fmt.Errorf("could not read detections of tile %d/%d/%d: %w", a.Z, a.X, a.Y, err)
		}
		for _, f := range fc.Features {
			features <- detectionFeature{
				columns:  []interface{}{f.Class, int64(a.Z), int64(a.X), int64(a.Y)},
				geometry: f.Geometry,
			}
		}
	}
	return nil
}
