package gpkg

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"

	"github.com/pdok/skmosaic/processing"
	"github.com/pdok/skmosaic/sieve"
)

// ExportDetections writes the features of source to a fresh GeoPackage at file,
// sieving polygons at resolution (degrees).
func ExportDetections(file string, source processing.Source, pagesize int, resolution float64) (processing.Counts, error) {
	if err := os.Remove(file); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return processing.Counts{}, fmt.Errorf("could not remove previous export: %w", err)
	}
	target, err := NewTarget(file, DetectionsTable(), pagesize)
	if err != nil {
		return processing.Counts{}, err
	}
	log.Printf("  exporting detections to %v", file)
	counts, err := processing.ProcessFeatures(source, target, sieve.Filter(resolution))
	if closeErr := target.Close(); err == nil {
		err = closeErr
	}
	return counts, err
}
