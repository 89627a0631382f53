// Package processing takes care of the logistics around reading from a Source and writing to a Target.
// Not the processing operation(s) itself.
package processing

import (
	"log"

	"github.com/go-spatial/geom"
	"golang.org/x/sync/errgroup"
)

// Counts summarizes one ProcessFeatures run
type Counts struct {
	Total         uint64
	NonPolygons   uint64
	MultiPolygons uint64
	Kept          uint64
}

// readFeaturesFromSource reads the features from the source and closes the channel when done
func readFeaturesFromSource(source Source, features chan<- Feature) error {
	defer close(features)
	return source.ReadFeatures(features)
}

// processFeatures processes the geometries in the features with the given function
func processFeatures(featuresIn <-chan Feature, featuresOut chan<- Feature, f processPolygonFunc) Counts {
	var counts Counts
	for feature := range featuresIn {
		counts.Total++
		switch g := feature.Geometry().(type) {
		case geom.Polygon:
			if newPolygon := f(g); newPolygon != nil {
				counts.Kept++
				featuresOut <- wrapFeature(feature, newPolygon)
			}
		case *geom.Polygon:
			if g == nil {
				continue
			}
			if newPolygon := f(*g); newPolygon != nil {
				counts.Kept++
				featuresOut <- wrapFeature(feature, newPolygon)
			}
		case geom.MultiPolygon:
			counts.MultiPolygons++
			if newMultiPolygon := processMultiPolygon(g, f); newMultiPolygon != nil {
				counts.Kept++
				featuresOut <- wrapFeature(feature, newMultiPolygon)
			}
		default:
			counts.Kept++
			counts.NonPolygons++
			featuresOut <- feature
		}
	}
	close(featuresOut)

	log.Printf("    total features: %d", counts.Total)
	log.Printf("      non-polygons: %d", counts.NonPolygons)
	if counts.Total != counts.NonPolygons {
		log.Printf("     multipolygons: %d", counts.MultiPolygons)
	}
	log.Printf("              kept: %d", counts.Kept)
	return counts
}

// processMultiPolygon will split itself into the separated polygons that will be processed before building a new MULTIPOLYGON
func processMultiPolygon(mp geom.MultiPolygon, f processPolygonFunc) geom.MultiPolygon {
	var newMultiPolygon geom.MultiPolygon
	for _, p := range mp {
		if newPolygon := f(p); newPolygon != nil {
			newMultiPolygon = append(newMultiPolygon, newPolygon)
		}
	}
	return newMultiPolygon
}

// processPolygonFunc returns the processed polygon, or nil to drop it
type processPolygonFunc func(p geom.Polygon) geom.Polygon

// ProcessFeatures streams the features of source through f into target.
func ProcessFeatures(source Source, target Target, f processPolygonFunc) (Counts, error) {
	featuresBefore := make(chan Feature)
	featuresAfter := make(chan Feature)
	var counts Counts

	var g errgroup.Group
	g.Go(func() error {
		return target.WriteFeatures(featuresAfter)
	})
	g.Go(func() error {
		counts = processFeatures(featuresBefore, featuresAfter, f)
		return nil
	})
	g.Go(func() error {
		return readFeaturesFromSource(source, featuresBefore)
	})

	err := g.Wait()
	return counts, err
}

type featureWrapper struct {
	wrapped     Feature
	newGeometry geom.Geometry
}

func (f *featureWrapper) Columns() []interface{} {
	return f.wrapped.Columns()
}

func (f *featureWrapper) Geometry() geom.Geometry {
	if f.newGeometry == nil {
		return f.wrapped.Geometry()
	}
	return f.newGeometry
}

func wrapFeature(feature Feature, newGeometry geom.Geometry) Feature {
	return &featureWrapper{
		wrapped:     feature,
		newGeometry: newGeometry,
	}
}
