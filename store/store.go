// Package store lays out downloaded tiles and results per scene on the local disk.
//
// Layout of <root>/<sceneId>/:
//
//	imagery-{z}-{x}-{y}.png            true colour tile
//	enhanced-imagery-{z}-{x}-{y}.png   true colour tile with detections outlined
//	detections-{z}-{x}-{y}.geojson     detections of a tile
//	result.{png|jpg|webp}              stitched result
//	detections.gpkg                    exported detections
//	manifest.json                      tiles and zooms used for the scene
package store

import (
	"errors"
	"fmt"
	"image"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	"github.com/pdok/skmosaic/detect"
	"github.com/pdok/skmosaic/tiles"

	_ "golang.org/x/image/webp" // decode webp tiles
)

// ErrNotFound is returned (wrapped) when a file is absent
var ErrNotFound = tiles.ErrNotFound

const (
	FormatPNG  = "png"
	FormatJPG  = "jpg"
	FormatWebP = "webp"

	manifestFile   = "manifest.json"
	geopackageFile = "detections.gpkg"
	resultBase     = "result"
)

// Scene gives access to the files of one scene.
type Scene struct {
	dir string
	// PreferEnhanced makes LoadTile return enhanced imagery when present
	PreferEnhanced bool
}

// Open returns the storage of a scene, creating its directory.
func Open(root, sceneID string) (*Scene, error) {
	if sceneID == "" || strings.ContainsAny(sceneID, `/\`) || sceneID == "." || sceneID == ".." {
		return nil, fmt.Errorf("invalid scene id %q", sceneID)
	}
	dir := filepath.Join(root, sceneID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("could not create scene directory: %w", err)
	}
	return &Scene{dir: dir, PreferEnhanced: true}, nil
}

func (s *Scene) Dir() string {
	return s.dir
}

func (s *Scene) ImageryPath(a tiles.Address) string {
	return filepath.Join(s.dir, fmt.Sprintf("imagery-%d-%d-%d.png", a.Z, a.X, a.Y))
}

func (s *Scene) EnhancedImageryPath(a tiles.Address) string {
	return filepath.Join(s.dir, fmt.Sprintf("enhanced-imagery-%d-%d-%d.png", a.Z, a.X, a.Y))
}

func (s *Scene) DetectionsPath(a tiles.Address) string {
	return filepath.Join(s.dir, fmt.Sprintf("detections-%d-%d-%d.geojson", a.Z, a.X, a.Y))
}

func (s *Scene) ResultPath(format string) string {
	return filepath.Join(s.dir, resultBase+"."+format)
}

func (s *Scene) GeopackagePath() string {
	return filepath.Join(s.dir, geopackageFile)
}

// SaveImagery stores the raw (encoded) bytes of a true colour tile
func (s *Scene) SaveImagery(a tiles.Address, data []byte) error {
	return writeFile(s.ImageryPath(a), data)
}

// SaveDetections stores the raw GeoJSON of a detections tile
func (s *Scene) SaveDetections(a tiles.Address, data []byte) error {
	return writeFile(s.DetectionsPath(a), data)
}

// LoadTile loads the imagery of a tile, enhanced first if so configured.
func (s *Scene) LoadTile(a tiles.Address) (image.Image, error) {
	if s.PreferEnhanced {
		img, err := openImage(s.EnhancedImageryPath(a))
		if !errors.Is(err, ErrNotFound) {
			return img, err
		}
	}
	return openImage(s.ImageryPath(a))
}

// LoadImagery loads the raw imagery of a tile, never the enhanced one.
func (s *Scene) LoadImagery(a tiles.Address) (image.Image, error) {
	return openImage(s.ImageryPath(a))
}

// LoadFeatures loads and decodes the detections of a tile.
func (s *Scene) LoadFeatures(a tiles.Address) (detect.FeatureCollection, error) {
	f, err := os.Open(s.DetectionsPath(a))
	if err != nil {
		return detect.FeatureCollection{}, notFound(err)
	}
	defer f.Close()
	fc, err := detect.Decode(f)
	if err != nil {
		return detect.FeatureCollection{}, fmt.Errorf("%v: %w", f.Name(), err)
	}
	return fc, nil
}

// SaveEnhanced writes a single tile with rendered detections.
func (s *Scene) SaveEnhanced(a tiles.Address, img image.Image) error {
	return imaging.Save(img, s.EnhancedImageryPath(a))
}

// SaveResult writes the stitched result in the given format, overwriting a previous one.
func (s *Scene) SaveResult(img image.Image, format string, quality int) (string, error) {
	path := s.ResultPath(format)
	var err error
	switch format {
	case FormatPNG:
		err = imaging.Save(img, path)
	case FormatJPG:
		err = imaging.Save(img, path, imaging.JPEGQuality(quality))
	case FormatWebP:
		err = saveWebP(img, path, quality)
	default:
		return "", fmt.Errorf("unsupported output format %q", format)
	}
	if err != nil {
		return "", fmt.Errorf("could not write result: %w", err)
	}
	return path, nil
}

func saveWebP(img image.Image, path string, quality int) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err = webp.Encode(f, img, &webp.Options{Lossless: quality >= 100, Quality: float32(quality)}); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func openImage(path string) (image.Image, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, notFound(err)
	}
	img, err := imaging.Open(path)
	if err != nil {
		return nil, fmt.Errorf("could not decode %v: %w", path, err)
	}
	return img, nil
}

func writeFile(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func notFound(err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	return err
}
