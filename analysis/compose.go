package analysis

import (
	"errors"
	"fmt"
	"image"
	"image/draw"
	"log"
	"path/filepath"

	"github.com/pdok/skmosaic/config"
	"github.com/pdok/skmosaic/detect"
	"github.com/pdok/skmosaic/gpkg"
	"github.com/pdok/skmosaic/processing"
	"github.com/pdok/skmosaic/stitch"
	"github.com/pdok/skmosaic/store"
	"github.com/pdok/skmosaic/tiles"
)

// Compose builds the result of a scene from the tiles stored for it:
// stitch the imagery, render the detections, write the image, export the detections
// and update the manifest. A failed GeoPackage export is logged, not returned.
func Compose(scene *store.Scene, manifest store.Manifest, settings config.Settings) (store.Manifest, *detect.ClassCounts, error) {
	style, err := settings.Render.Style()
	if err != nil {
		return manifest, nil, err
	}
	detectionTiles, err := manifest.Detections()
	if err != nil {
		return manifest, nil, fmt.Errorf("invalid detection tiles: %w", err)
	}
	imageryTiles, err := manifest.Imagery()
	if err != nil {
		return manifest, nil, fmt.Errorf("invalid imagery tiles: %w", err)
	}

	render := settings.Render
	// enhanced tiles are only current when rendered in this run
	scene.PreferEnhanced = render.EnhancedFirst && render.PerTile
	if render.PerTile {
		log.Println("  rendering detections into single imagery tiles")
		if err = renderTiles(scene, detectionTiles, imageryTiles, style); err != nil {
			return manifest, nil, err
		}
	}

	log.Printf("  stitching %d imagery tile(s)", len(imageryTiles))
	mosaic, err := stitch.Stitch(imageryTiles, scene, stitch.WithParallelism(settings.Parallelism))
	if err != nil {
		return manifest, nil, fmt.Errorf("could not stitch imagery: %w", err)
	}
	if mosaic == nil {
		return manifest, nil, errors.New("no imagery tiles to stitch")
	}

	// enhanced tiles already carry their detections
	if !scene.PreferEnhanced {
		log.Printf("  rendering detections of %d tile(s)", len(detectionTiles))
		if mosaic, err = detect.Render(mosaic, detectionTiles, scene, style); err != nil {
			return manifest, nil, fmt.Errorf("could not render detections: %w", err)
		}
	}

	path, err := scene.SaveResult(mosaic.RGBA, render.Format, render.Quality)
	if err != nil {
		return manifest, nil, err
	}
	log.Printf("  result written to %s", path)

	if settings.Export.Geopackage {
		source := processing.DetectionSource{Tiles: detectionTiles, Loader: scene}
		if _, err = gpkg.ExportDetections(scene.GeopackagePath(), source, settings.Export.Pagesize, settings.Export.SieveResolution); err != nil {
			log.Printf("  warning: could not export detections, the result image is kept: %v", err)
		}
	}

	counts, err := countDetections(scene, detectionTiles)
	if err != nil {
		return manifest, nil, err
	}
	manifest.Result = filepath.Base(path)
	manifest.MosaicZoom = mosaic.Zoom
	manifest.Counts = counts.Map()
	if err = scene.SaveManifest(manifest); err != nil {
		return manifest, nil, fmt.Errorf("could not write manifest: %w", err)
	}
	return manifest, counts, nil
}

// renderTiles outlines detections on every single imagery tile and stores it as enhanced imagery.
// The detections of a tile come from the detection tile containing it.
func renderTiles(scene *store.Scene, detectionTiles, imageryTiles []tiles.Address, style detect.Style) error {
	if len(detectionTiles) == 0 {
		return nil
	}
	detectionZoom, err := tiles.Zoom(detectionTiles)
	if err != nil {
		return err
	}
	collections := make(map[tiles.Address]detect.FeatureCollection)
	for _, a := range imageryTiles {
		if a.Z < detectionZoom {
			return fmt.Errorf("imagery tile %d/%d/%d is coarser than the detections (zoom %d)", a.Z, a.X, a.Y, detectionZoom)
		}
		shift := a.Z - detectionZoom
		parent := tiles.Address{Z: detectionZoom, X: a.X >> shift, Y: a.Y >> shift}
		fc, ok := collections[parent]
		if !ok {
			fc, err = scene.LoadFeatures(parent)
			if errors.Is(err, tiles.ErrNotFound) {
				fc = detect.FeatureCollection{}
			} else if err != nil {
				return err
			}
			collections[parent] = fc
		}

		img, err := scene.LoadImagery(a)
		if errors.Is(err, tiles.ErrNotFound) {
			log.Printf("    imagery tile %d/%d/%d not found, not enhanced", a.Z, a.X, a.Y)
			continue
		} else if err != nil {
			return err
		}
		rgba := image.NewRGBA(image.Rect(0, 0, img.Bounds().Dx(), img.Bounds().Dy()))
		draw.Draw(rgba, rgba.Bounds(), img, img.Bounds().Min, draw.Src)
		if err = detect.RenderTile(rgba, a, fc, style); err != nil {
			return fmt.Errorf("could not render tile %d/%d/%d: %w", a.Z, a.X, a.Y, err)
		}
		if err = scene.SaveEnhanced(a, rgba); err != nil {
			return err
		}
	}
	return nil
}

// countDetections counts the classes of the stored detections; absent tiles count as empty.
func countDetections(scene *store.Scene, detectionTiles []tiles.Address) (*detect.ClassCounts, error) {
	collections := make([]detect.FeatureCollection, 0, len(detectionTiles))
	for _, a := range detectionTiles {
		fc, err := scene.LoadFeatures(a)
		if errors.Is(err, tiles.ErrNotFound) {
			continue
		} else if err != nil {
			return nil, err
		}
		collections = append(collections, fc)
	}
	return detect.CountClasses(collections...), nil
}
