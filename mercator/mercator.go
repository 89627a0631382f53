// Package mercator converts geographic coordinates to pixel coordinates
// in the spherical Web Mercator (EPSG:3857) XYZ tile scheme.
package mercator

import (
	"errors"
	"fmt"
	"image"
	"math"

	"github.com/go-spatial/geom"
	"github.com/pdok/skmosaic/mathhelp"
)

// TileSize is the width and height of a tile in pixels
const TileSize = 256

// MaxZoom is the deepest zoom whose global pixels fit in an int.
const MaxZoom = 30

var ErrInvalidCoordinate = errors.New("invalid coordinate")

// WorldSize returns the width (and height) of the world in pixels at the given zoom.
// Zooms beyond MaxZoom are not supported.
func WorldSize(zoom uint) int {
	return TileSize * int(mathhelp.Pow2(zoom))
}

// Project converts a longitude/latitude (degrees) to a global pixel at the given zoom.
// Results outside of [0, world], non-finite values, or a zoom beyond MaxZoom yield ErrInvalidCoordinate.
// Latitudes beyond ±85.0511° are not clamped.
// The world's far edges are included: longitude 180 gives x == world, the first pixel
// of the next copy of the world east of the antimeridian (and 0 within its tile).
func Project(lon, lat float64, zoom uint) (image.Point, error) {
	if zoom > MaxZoom {
		return image.Point{}, fmt.Errorf("%w: zoom %d beyond %d", ErrInvalidCoordinate, zoom, MaxZoom)
	}
	world := float64(WorldSize(zoom))
	lambda := lon * math.Pi / 180
	phi := lat * math.Pi / 180
	x := math.Floor((world / (2 * math.Pi)) * (lambda + math.Pi))
	y := math.Floor((world / (2 * math.Pi)) * (math.Pi - math.Log(math.Tan(math.Pi/4+phi/2))))
	if !finite(x) || !finite(y) || x < 0 || x > world || y < 0 || y > world {
		return image.Point{}, fmt.Errorf("%w: lon=%v lat=%v zoom=%d", ErrInvalidCoordinate, lon, lat, zoom)
	}
	return image.Pt(int(x), int(y)), nil
}

// ProjectPoint is Project for a geom.Point holding {lon, lat}.
func ProjectPoint(pt geom.Point, zoom uint) (image.Point, error) {
	return Project(pt.X(), pt.Y(), zoom)
}

// ProjectWithinTile returns the pixel offset inside the tile containing lon/lat.
func ProjectWithinTile(lon, lat float64, zoom uint) (px, py int, err error) {
	p, err := Project(lon, lat, zoom)
	if err != nil {
		return 0, 0, err
	}
	return mathhelp.EuclidianMod(p.X, TileSize), mathhelp.EuclidianMod(p.Y, TileSize), nil
}

// Unproject returns the longitude/latitude of a (fractional) global pixel position.
func Unproject(x, y float64, zoom uint) geom.Point {
	world := float64(WorldSize(zoom))
	lon := x/world*360 - 180
	n := math.Pi - 2*math.Pi*y/world
	lat := 180 / math.Pi * math.Atan(math.Sinh(n))
	return geom.Point{lon, lat}
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
