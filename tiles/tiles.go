// Package tiles handles XYZ tile addresses: validation, bounds and re-tiling.
package tiles

import (
	"errors"
	"fmt"
	"image"

	"github.com/go-spatial/geom/slippy"
	"github.com/pdok/skmosaic/mathhelp"
	"github.com/pdok/skmosaic/mercator"
)

// Address identifies one 256x256 tile in the quad tree at zoom Z.
type Address = slippy.Tile

var ErrMixedZoom = errors.New("tiles do not share one zoom level")

// New returns a validated Address.
func New(z, x, y uint) (Address, error) {
	if z > mercator.MaxZoom {
		return Address{}, fmt.Errorf("tile %d/%d/%d: zoom beyond %d", z, x, y, mercator.MaxZoom)
	}
	size := mathhelp.Pow2(z)
	if x >= size || y >= size {
		return Address{}, fmt.Errorf("tile %d/%d/%d out of range for zoom %d (size %d)", z, x, y, z, size)
	}
	return *slippy.NewTile(z, x, y), nil
}

// FromTriples parses the [z, x, y] triples the API returns.
func FromTriples(triples [][]int) ([]Address, error) {
	addresses := make([]Address, 0, len(triples))
	for _, t := range triples {
		if len(t) != 3 {
			return nil, fmt.Errorf("tile triple should have 3 elements, got %v", t)
		}
		if t[0] < 0 || t[1] < 0 || t[2] < 0 {
			return nil, fmt.Errorf("negative tile triple %v", t)
		}
		a, err := New(uint(t[0]), uint(t[1]), uint(t[2]))
		if err != nil {
			return nil, err
		}
		addresses = append(addresses, a)
	}
	return addresses, nil
}

// Triples is the inverse of FromTriples.
func Triples(addresses []Address) [][]int {
	triples := make([][]int, len(addresses))
	for i, a := range addresses {
		triples[i] = []int{int(a.Z), int(a.X), int(a.Y)}
	}
	return triples
}

// Zoom returns the common zoom of the addresses, or ErrMixedZoom.
func Zoom(addresses []Address) (uint, error) {
	if len(addresses) == 0 {
		return 0, errors.New("no tiles provided")
	}
	z := addresses[0].Z
	for _, a := range addresses[1:] {
		if a.Z != z {
			return 0, fmt.Errorf("%w: %d and %d", ErrMixedZoom, z, a.Z)
		}
	}
	return z, nil
}

// Bounds represents the min/max row and column of a tile set, inclusive
type Bounds struct {
	MinX, MaxX uint
	MinY, MaxY uint
}

// Cols returns the number of columns in the bounds
func (b Bounds) Cols() uint {
	return b.MaxX - b.MinX + 1
}

// Rows returns the number of rows in the bounds
func (b Bounds) Rows() uint {
	return b.MaxY - b.MinY + 1
}

// PixelSize returns the raster size needed to hold every tile in the bounds.
func (b Bounds) PixelSize() image.Point {
	return image.Pt(int(b.Cols())*mercator.TileSize, int(b.Rows())*mercator.TileSize)
}

// Offset returns the top-left raster position of a tile within the bounds.
func (b Bounds) Offset(a Address) image.Point {
	return image.Pt(int(a.X-b.MinX)*mercator.TileSize, int(a.Y-b.MinY)*mercator.TileSize)
}

// CalculateBounds calculates the min/max row and column bounds from a slice of tiles
func CalculateBounds(addresses []Address) (Bounds, error) {
	if len(addresses) == 0 {
		return Bounds{}, errors.New("no tiles provided")
	}
	b := Bounds{
		MinX: addresses[0].X, MaxX: addresses[0].X,
		MinY: addresses[0].Y, MaxY: addresses[0].Y,
	}
	for _, a := range addresses[1:] {
		b.MinX = min(b.MinX, a.X)
		b.MaxX = max(b.MaxX, a.X)
		b.MinY = min(b.MinY, a.Y)
		b.MaxY = max(b.MaxY, a.Y)
	}
	return b, nil
}

// Footprint returns the area covered by a tile in global pixels at the given (deeper or equal) zoom.
// Max is exclusive.
func Footprint(a Address, zoom uint) (image.Rectangle, error) {
	if zoom < a.Z {
		return image.Rectangle{}, fmt.Errorf("cannot express tile %d/%d/%d at coarser zoom %d", a.Z, a.X, a.Y, zoom)
	}
	size := mercator.TileSize * int(mathhelp.Pow2(zoom-a.Z))
	minPt := image.Pt(int(a.X)*size, int(a.Y)*size)
	return image.Rectangle{Min: minPt, Max: minPt.Add(image.Pt(size, size))}, nil
}

// Retile expands tiles at zoom z0 into the equivalent tiles at targetZoom.
// All tiles are assumed to share the zoom of the first one.
// Zooming out is not supported: if targetZoom <= z0 the input is returned unchanged.
func Retile(addresses []Address, targetZoom uint) []Address {
	if len(addresses) == 0 {
		return addresses
	}
	z0 := addresses[0].Z
	if targetZoom <= z0 {
		return addresses
	}
	factor := mathhelp.Pow2(targetZoom - z0)
	retiled := make([]Address, 0, uint(len(addresses))*factor*factor)
	for _, a := range addresses {
		for j := uint(0); j < factor; j++ {
			for i := uint(0); i < factor; i++ {
				retiled = append(retiled, Address{Z: targetZoom, X: a.X*factor + i, Y: a.Y*factor + j})
			}
		}
	}
	return retiled
}

// ErrNotFound is returned by loaders when no data is stored for a tile.
var ErrNotFound = errors.New("tile data not found")
