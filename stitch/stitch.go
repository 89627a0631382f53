// Package stitch lays out same-zoom tiles into one contiguous raster.
package stitch

import (
	"errors"
	"fmt"
	"image"
	"image/draw"
	"log"

	"github.com/pdok/skmosaic/mercator"
	"github.com/pdok/skmosaic/tiles"
	"github.com/umpc/go-sortedmap"
	"golang.org/x/sync/errgroup"
)

const defaultParallelism = 4

// TileLoader loads the raster of a tile. It returns an error wrapping
// tiles.ErrNotFound when the tile is absent.
type TileLoader interface {
	LoadTile(a tiles.Address) (image.Image, error)
}

// TileLoaderFunc adapts a function to a TileLoader.
type TileLoaderFunc func(a tiles.Address) (image.Image, error)

func (f TileLoaderFunc) LoadTile(a tiles.Address) (image.Image, error) {
	return f(a)
}

// Mosaic is a stitched raster at a single zoom level.
// Origin is the tile (x, y) of its top-left corner.
type Mosaic struct {
	*image.RGBA
	Zoom   uint
	Origin image.Point
}

// PixelOrigin returns the global pixel position of the top-left corner.
func (m *Mosaic) PixelOrigin() image.Point {
	return m.Origin.Mul(mercator.TileSize)
}

type options struct {
	parallelism int
}

type Option func(*options)

// WithParallelism sets how many tiles are loaded concurrently.
func WithParallelism(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.parallelism = n
		}
	}
}

// Stitch composes the tiles into one Mosaic, rows by ascending y and columns by ascending x,
// anchored at the minimum x and y. Empty input produces no mosaic (nil, nil).
//
// Sparse input yields a bounding-box raster: positions without a tile, and tiles that
// the loader reports as not found, are left fully transparent.
func Stitch(addresses []tiles.Address, loader TileLoader, opts ...Option) (*Mosaic, error) {
	if len(addresses) == 0 {
		return nil, nil
	}
	o := options{parallelism: defaultParallelism}
	for _, opt := range opts {
		opt(&o)
	}
	zoom, err := tiles.Zoom(addresses)
	if err != nil {
		return nil, err
	}
	bounds, err := tiles.CalculateBounds(addresses)
	if err != nil {
		return nil, err
	}

	rows := groupByRow(addresses)
	loaded, err := loadAll(rows, loader, o.parallelism)
	if err != nil {
		return nil, err
	}

	size := bounds.PixelSize()
	m := &Mosaic{
		RGBA:   image.NewRGBA(image.Rect(0, 0, size.X, size.Y)),
		Zoom:   zoom,
		Origin: image.Pt(int(bounds.MinX), int(bounds.MinY)),
	}
	for _, row := range rows {
		for _, a := range row {
			img := loaded[a]
			if img == nil {
				continue // placeholder, the raster is already zeroed
			}
			offset := bounds.Offset(a)
			dst := image.Rectangle{Min: offset, Max: offset.Add(image.Pt(mercator.TileSize, mercator.TileSize))}
			draw.Draw(m.RGBA, dst, img, img.Bounds().Min, draw.Src)
		}
	}
	return m, nil
}

// groupByRow returns the addresses per row, rows sorted by y and tiles within a row by x.
// Duplicate addresses are dropped.
func groupByRow(addresses []tiles.Address) [][]tiles.Address {
	rowIndex := sortedmap.New(len(addresses), func(i, j interface{}) bool {
		return i.(uint) < j.(uint)
	})
	cols := make(map[uint]*sortedmap.SortedMap)
	for _, a := range addresses {
		row, ok := cols[a.Y]
		if !ok {
			row = sortedmap.New(4, func(i, j interface{}) bool {
				return i.(uint) < j.(uint)
			})
			cols[a.Y] = row
			rowIndex.Insert(a.Y, a.Y)
		}
		row.Insert(a.X, a.X)
	}

	zoom := addresses[0].Z
	rows := make([][]tiles.Address, 0, rowIndex.Len())
	for _, y := range rowIndex.Keys() {
		xs := cols[y.(uint)].Keys()
		row := make([]tiles.Address, 0, len(xs))
		for _, x := range xs {
			row = append(row, tiles.Address{Z: zoom, X: x.(uint), Y: y.(uint)})
		}
		rows = append(rows, row)
	}
	return rows
}

// loadAll loads every tile concurrently and collects them before anything is composited.
// Missing tiles map to nil.
func loadAll(rows [][]tiles.Address, loader TileLoader, parallelism int) (map[tiles.Address]image.Image, error) {
	type result struct {
		address tiles.Address
		img     image.Image
	}
	var count int
	for _, row := range rows {
		count += len(row)
	}
	results := make([]result, count)

	g := errgroup.Group{}
	g.SetLimit(parallelism)
	i := 0
	for _, row := range rows {
		for _, a := range row {
			idx, a := i, a
			i++
			g.Go(func() error {
				img, err := loader.LoadTile(a)
				if errors.Is(err, tiles.ErrNotFound) {
					log.Printf("    tile for stitching not found, using empty image. tile: z=%d, x=%d, y=%d", a.Z, a.X, a.Y)
					results[idx] = result{address: a}
					return nil
				}
				if err != nil {
					return fmt.Errorf("could not load tile %d/%d/%d: %w", a.Z, a.X, a.Y, err)
				}
				if img.Bounds().Dx() != mercator.TileSize || img.Bounds().Dy() != mercator.TileSize {
					return fmt.Errorf("tile %d/%d/%d is %v, expected %dx%d",
						a.Z, a.X, a.Y, img.Bounds().Size(), mercator.TileSize, mercator.TileSize)
				}
				results[idx] = result{address: a, img: img}
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	loaded := make(map[tiles.Address]image.Image, count)
	for _, r := range results {
		loaded[r.address] = r.img
	}
	return loaded, nil
}
