package detect

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"log"

	"github.com/fogleman/gg"
	"github.com/go-spatial/geom"
	"github.com/pdok/skmosaic/geomhelp"
	"github.com/pdok/skmosaic/mathhelp"
	"github.com/pdok/skmosaic/mercator"
	"github.com/pdok/skmosaic/stitch"
	"github.com/pdok/skmosaic/tiles"
)

const wktLogLength = 120

// FeatureLoader loads the detections of a tile. It returns an error wrapping
// tiles.ErrNotFound when there are none stored.
type FeatureLoader interface {
	LoadFeatures(a tiles.Address) (FeatureCollection, error)
}

// FeatureLoaderFunc adapts a function to a FeatureLoader.
type FeatureLoaderFunc func(a tiles.Address) (FeatureCollection, error)

func (f FeatureLoaderFunc) LoadFeatures(a tiles.Address) (FeatureCollection, error) {
	return f(a)
}

// Style determines how detections are drawn.
type Style struct {
	Color     color.RGBA
	LineWidth float64
	// Outline draws the polygon rings instead of filling them
	Outline bool
}

func DefaultStyle() Style {
	return Style{
		Color:     color.RGBA{R: 255, A: 255},
		LineWidth: 2,
	}
}

// Render draws the detections of every detection tile into the mosaic, which is mutated and returned.
//
// Detection tiles may be coarser than the mosaic: their footprint at the mosaic's zoom covers a block
// of 2^(mosaic zoom - detection zoom) tiles per axis. Geometry is confined to that footprint, so
// polygons straddling a tile edge never bleed into a neighbouring tile's region.
// Tiles without stored detections are skipped.
func Render(m *stitch.Mosaic, detectionTiles []tiles.Address, loader FeatureLoader, style Style) (*stitch.Mosaic, error) {
	if m == nil || m.RGBA == nil {
		return nil, errors.New("no mosaic to render into")
	}
	dc := gg.NewContextForRGBA(m.RGBA)
	for _, a := range detectionTiles {
		fc, err := loader.LoadFeatures(a)
		if errors.Is(err, tiles.ErrNotFound) {
			log.Printf("    detections not found for tile z=%d, x=%d, y=%d, skipping", a.Z, a.X, a.Y)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("could not load detections for tile %d/%d/%d: %w", a.Z, a.X, a.Y, err)
		}
		if err = renderFeatures(dc, m, a, fc, style); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// RenderTile outlines the detections of a single tile onto that tile's own 256x256 image.
func RenderTile(img *image.RGBA, a tiles.Address, fc FeatureCollection, style Style) error {
	if img.Bounds().Dx() != mercator.TileSize || img.Bounds().Dy() != mercator.TileSize {
		return fmt.Errorf("tile image is %v, expected %dx%d", img.Bounds().Size(), mercator.TileSize, mercator.TileSize)
	}
	m := &stitch.Mosaic{RGBA: img, Zoom: a.Z, Origin: image.Pt(int(a.X), int(a.Y))}
	style.Outline = true
	return renderFeatures(gg.NewContextForRGBA(img), m, a, fc, style)
}

func renderFeatures(dc *gg.Context, m *stitch.Mosaic, a tiles.Address, fc FeatureCollection, style Style) error {
	if len(fc.Features) == 0 {
		return nil
	}
	footprint, err := tiles.Footprint(a, m.Zoom)
	if err != nil {
		return err
	}
	shift, clip := placeFootprint(footprint, m)
	// footprint in global pixels -> raster position in the mosaic
	toRaster := func(p image.Point) image.Point {
		p.X = mathhelp.Clamp(p.X, footprint.Min.X, footprint.Max.X-1)
		p.Y = mathhelp.Clamp(p.Y, footprint.Min.Y, footprint.Max.Y-1)
		return p.Add(shift)
	}
	if clip.Empty() {
		log.Printf("    detection tile z=%d, x=%d, y=%d lies outside of the mosaic, skipping", a.Z, a.X, a.Y)
		return nil
	}

	dc.Push()
	defer dc.Pop()
	dc.ResetClip()
	dc.DrawRectangle(float64(clip.Min.X), float64(clip.Min.Y), float64(clip.Dx()), float64(clip.Dy()))
	dc.Clip()
	dc.SetColor(style.Color)
	dc.SetLineWidth(style.LineWidth)
	dc.SetFillRule(gg.FillRuleEvenOdd)

	for _, f := range fc.Features {
		for _, polygon := range f.Polygons() {
			rings, err := rasterRings(polygon, m.Zoom, toRaster)
			if err != nil {
				return fmt.Errorf("could not project detection in tile %d/%d/%d: %w", a.Z, a.X, a.Y, err)
			}
			if len(rings) == 0 || geomhelp.Shoelace(rings[0]) == 0 {
				log.Printf("    degenerate detection skipped in tile z=%d, x=%d, y=%d: %s",
					a.Z, a.X, a.Y, geomhelp.WktMustEncode(polygon, wktLogLength))
				continue
			}
			for _, ring := range rings {
				dc.NewSubPath()
				dc.MoveTo(ring[0][0], ring[0][1])
				for _, pt := range ring[1:] {
					dc.LineTo(pt[0], pt[1])
				}
				dc.ClosePath()
			}
			if style.Outline {
				dc.Stroke()
			} else {
				dc.Fill()
			}
		}
	}
	return nil
}

// placeFootprint returns the offset from global pixels to mosaic raster pixels for a footprint,
// and the part of the raster it covers. Of the world copies west, on and east of the
// antimeridian the one overlapping the mosaic most is used, so all vertices of a tile share it.
func placeFootprint(footprint image.Rectangle, m *stitch.Mosaic) (image.Point, image.Rectangle) {
	world := mercator.WorldSize(m.Zoom)
	origin := m.PixelOrigin()
	var shift image.Point
	var clip image.Rectangle
	best := -1
	for _, k := range []int{0, -1, 1} {
		candidate := image.Pt(k*world, 0).Sub(origin)
		overlap := footprint.Add(candidate).Intersect(m.Bounds())
		if area := overlap.Dx() * overlap.Dy(); area > best {
			best, shift, clip = area, candidate, overlap
		}
	}
	return shift, clip
}

// rasterRings projects every ring of the polygon to raster coordinates
func rasterRings(polygon geom.Polygon, zoom uint, toRaster func(image.Point) image.Point) ([][][2]float64, error) {
	rings := make([][][2]float64, 0, len(polygon))
	for _, ring := range polygon {
		if len(ring) < 3 {
			continue
		}
		rasterRing := make([][2]float64, 0, len(ring))
		for _, vertex := range ring {
			p, err := mercator.ProjectPoint(geom.Point(vertex), zoom)
			if err != nil {
				return nil, err
			}
			p = toRaster(p)
			rasterRing = append(rasterRing, [2]float64{float64(p.X), float64(p.Y)})
		}
		rings = append(rings, rasterRing)
	}
	return rings, nil
}
