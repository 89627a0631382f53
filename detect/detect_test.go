package detect

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"strings"
	"testing"

	"github.com/go-spatial/geom"
	"github.com/pdok/skmosaic/mercator"
	"github.com/pdok/skmosaic/stitch"
	"github.com/pdok/skmosaic/tiles"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const detectionsJSON = `{
  "type": "FeatureCollection",
  "features": [
    {"type": "Feature", "properties": {"class": "cars", "score": 0.9},
     "geometry": {"type": "Polygon", "coordinates": [[[14.41, 50.08], [14.42, 50.08], [14.42, 50.09], [14.41, 50.08]]]}},
    {"type": "Feature", "properties": {"class": "trucks"},
     "geometry": {"type": "MultiPolygon", "coordinates": [
       [[[14.41, 50.08], [14.42, 50.08], [14.42, 50.09], [14.41, 50.08]]],
       [[[14.43, 50.08], [14.44, 50.08], [14.44, 50.09], [14.43, 50.08]]]
     ]}},
    {"type": "Feature", "properties": {"class": "cars"},
     "geometry": {"type": "Polygon", "coordinates": [[[14.41, 50.08], [14.42, 50.08], [14.42, 50.09], [14.41, 50.08]]]}}
  ]
}`

func TestDecode(t *testing.T) {
	fc, err := Decode(strings.NewReader(detectionsJSON))
	require.NoError(t, err)
	require.Len(t, fc.Features, 3)
	assert.Equal(t, "cars", fc.Features[0].Class)
	assert.Equal(t, 0.9, fc.Features[0].Properties["score"])
	assert.Len(t, fc.Features[0].Polygons(), 1)
	assert.Len(t, fc.Features[1].Polygons(), 2)

	_, err = Decode(strings.NewReader(`{"type": "Feature"}`))
	assert.Error(t, err)
	_, err = Decode(strings.NewReader(`not json`))
	assert.Error(t, err)
}

func TestCountClasses(t *testing.T) {
	fc, err := Decode(strings.NewReader(detectionsJSON))
	require.NoError(t, err)

	counts := CountClasses(fc, fc)
	assert.Equal(t, 4, counts.Get(ClassCars))
	assert.Equal(t, 2, counts.Get(ClassTrucks))
	assert.Equal(t, 0, counts.Get("planes"))
	assert.Equal(t, 6, counts.Total())
	assert.Equal(t, []string{"cars", "trucks"}, counts.Classes())
	assert.Equal(t, "cars=4, trucks=2", counts.String())

	merged := NewClassCounts()
	merged.Merge(counts)
	merged.Add("planes", 1)
	assert.Equal(t, 7, merged.Total())
}

// lonLat returns the coordinate of the centre of a global pixel at zoom
func lonLat(x, y int, zoom uint) [2]float64 {
	return mercator.Unproject(float64(x)+0.5, float64(y)+0.5, zoom)
}

func staticLoader(collections map[tiles.Address]FeatureCollection) FeatureLoader {
	return FeatureLoaderFunc(func(a tiles.Address) (FeatureCollection, error) {
		fc, ok := collections[a]
		if !ok {
			return FeatureCollection{}, fmt.Errorf("%v: %w", a, tiles.ErrNotFound)
		}
		return fc, nil
	})
}

func newMosaic(zoom uint, originX, originY, cols, rows int) *stitch.Mosaic {
	return &stitch.Mosaic{
		RGBA:   image.NewRGBA(image.Rect(0, 0, cols*256, rows*256)),
		Zoom:   zoom,
		Origin: image.Pt(originX, originY),
	}
}

func paintedBounds(img *image.RGBA) (image.Rectangle, int) {
	var painted image.Rectangle
	count := 0
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if img.RGBAAt(x, y).A == 0 {
				continue
			}
			count++
			px := image.Rect(x, y, x+1, y+1)
			if painted.Empty() {
				painted = px
			} else {
				painted = painted.Union(px)
			}
		}
	}
	return painted, count
}

func TestRender_confinedToDetectionTile(t *testing.T) {
	detectionTile := tiles.Address{Z: 18, X: 10, Y: 12}
	// footprint of the detection tile at zoom 19 starts at global pixel (20*256, 24*256)
	x0, y0 := 20*256, 24*256
	shape := geom.Polygon{{
		lonLat(x0+100, y0+100, 19),
		lonLat(x0+400, y0+50, 19),
		lonLat(x0-300, y0+450, 19), // in the neighbouring tile to the west
		lonLat(x0-300, y0+100, 19),
	}}
	loader := staticLoader(map[tiles.Address]FeatureCollection{
		detectionTile: {Features: []Feature{{Class: ClassCars, Geometry: shape}}},
	})

	m := newMosaic(19, 18, 22, 6, 6)
	got, err := Render(m, []tiles.Address{detectionTile}, loader, DefaultStyle())
	require.NoError(t, err)
	require.Same(t, m, got)

	painted, count := paintedBounds(m.RGBA)
	require.Greater(t, count, 1000)
	footprint := image.Rect(512, 512, 1024, 1024)
	assert.True(t, painted.In(footprint), "painted %v outside of %v", painted, footprint)
	assert.Equal(t, color.RGBA{R: 255, A: 255}, m.RGBAAt(512+150, 512+120))
	// the clamped vertices land on the footprint's western edge
	assert.Equal(t, 512, painted.Min.X)
}

func TestRender_partialFootprint(t *testing.T) {
	detectionTile := tiles.Address{Z: 18, X: 10, Y: 12}
	tests := []struct {
		name             string
		originX, originY int
		cols, rows       int
	}{
		{name: "eastern column of the block", originX: 21, originY: 24, cols: 1, rows: 2},
		{name: "southern row of the block", originX: 20, originY: 25, cols: 2, rows: 1},
		{name: "mosaic reaching beyond the block", originX: 21, originY: 25, cols: 3, rows: 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			x0, y0 := tt.originX*256, tt.originY*256
			square := geom.Polygon{{
				lonLat(x0+50, y0+50, 19), lonLat(x0+200, y0+50, 19),
				lonLat(x0+200, y0+200, 19), lonLat(x0+50, y0+200, 19),
			}}
			loader := staticLoader(map[tiles.Address]FeatureCollection{
				detectionTile: {Features: []Feature{{Class: ClassCars, Geometry: square}}},
			})
			m := newMosaic(19, tt.originX, tt.originY, tt.cols, tt.rows)
			_, err := Render(m, []tiles.Address{detectionTile}, loader, DefaultStyle())
			require.NoError(t, err)

			painted, count := paintedBounds(m.RGBA)
			require.Greater(t, count, 1000, "detection inside the mosaic was not drawn")
			assert.True(t, painted.In(image.Rect(45, 45, 206, 206)), "painted %v", painted)
			assert.Equal(t, color.RGBA{R: 255, A: 255}, m.RGBAAt(125, 125))
		})
	}
}

func TestRender_vertexOutsideMosaicIsClipped(t *testing.T) {
	detectionTile := tiles.Address{Z: 18, X: 10, Y: 12}
	x0, y0 := 21*256, 24*256
	// starts in the western column of the block, which the mosaic does not cover
	shape := geom.Polygon{{
		lonLat(x0-100, y0+50, 19), lonLat(x0+200, y0+50, 19),
		lonLat(x0+200, y0+200, 19), lonLat(x0-100, y0+200, 19),
	}}
	loader := staticLoader(map[tiles.Address]FeatureCollection{
		detectionTile: {Features: []Feature{{Geometry: shape}}},
	})
	m := newMosaic(19, 21, 24, 1, 2)
	_, err := Render(m, []tiles.Address{detectionTile}, loader, DefaultStyle())
	require.NoError(t, err)

	painted, count := paintedBounds(m.RGBA)
	require.Greater(t, count, 0)
	assert.Equal(t, 0, painted.Min.X)
	assert.LessOrEqual(t, painted.Max.X, 206)
	// nothing wrapped around to the far edge of the world
	assert.Less(t, painted.Max.Y, 256)
}

func TestRender_antimeridianCopy(t *testing.T) {
	// the mosaic starts one tile west of x=0, i.e. at the eastern edge of the world
	detectionTile := tiles.Address{Z: 2, X: 3, Y: 1}
	x0, y0 := 3*256, 1*256
	square := geom.Polygon{{
		lonLat(x0+50, y0+50, 2), lonLat(x0+200, y0+50, 2),
		lonLat(x0+200, y0+200, 2), lonLat(x0+50, y0+200, 2),
	}}
	loader := staticLoader(map[tiles.Address]FeatureCollection{
		detectionTile: {Features: []Feature{{Geometry: square}}},
	})
	m := newMosaic(2, -1, 1, 2, 1)
	_, err := Render(m, []tiles.Address{detectionTile}, loader, DefaultStyle())
	require.NoError(t, err)

	painted, count := paintedBounds(m.RGBA)
	require.Greater(t, count, 1000)
	assert.True(t, painted.In(image.Rect(45, 45, 206, 206)), "painted %v", painted)
}

func TestRender_noFeaturesIsIdentity(t *testing.T) {
	m := newMosaic(19, 20, 24, 2, 2)
	for i := range m.Pix {
		m.Pix[i] = uint8(i * 7)
	}
	before := bytes.Clone(m.Pix)

	loader := staticLoader(map[tiles.Address]FeatureCollection{
		{Z: 18, X: 10, Y: 12}: {},
	})
	_, err := Render(m, []tiles.Address{{Z: 18, X: 10, Y: 12}, {Z: 18, X: 11, Y: 12}}, loader, DefaultStyle())
	require.NoError(t, err)
	assert.Equal(t, before, m.Pix)
}

func TestRender_errors(t *testing.T) {
	triangle := geom.Polygon{{{0, 0}, {1, 0}, {1, 1}}}
	collection := FeatureCollection{Features: []Feature{{Geometry: triangle}}}

	_, err := Render(nil, nil, staticLoader(nil), DefaultStyle())
	assert.Error(t, err)

	// detections deeper than the mosaic
	deep := tiles.Address{Z: 20, X: 1, Y: 1}
	_, err = Render(newMosaic(19, 0, 0, 1, 1), []tiles.Address{deep},
		staticLoader(map[tiles.Address]FeatureCollection{deep: collection}), DefaultStyle())
	assert.Error(t, err)

	broken := errors.New("corrupt file")
	_, err = Render(newMosaic(19, 0, 0, 1, 1), []tiles.Address{{Z: 19}},
		FeatureLoaderFunc(func(tiles.Address) (FeatureCollection, error) { return FeatureCollection{}, broken }), DefaultStyle())
	assert.ErrorIs(t, err, broken)

	polar := tiles.Address{Z: 2, X: 1, Y: 0}
	polarCollection := FeatureCollection{Features: []Feature{{Geometry: geom.Polygon{{{0, 89}, {10, 89}, {10, 80}}}}}}
	_, err = Render(newMosaic(2, 1, 0, 1, 1), []tiles.Address{polar},
		staticLoader(map[tiles.Address]FeatureCollection{polar: polarCollection}), DefaultStyle())
	assert.ErrorIs(t, err, mercator.ErrInvalidCoordinate)
}

func TestRender_degenerateSkipped(t *testing.T) {
	a := tiles.Address{Z: 10, X: 3, Y: 4}
	// every vertex is far outside the tile on the same side, so clamping collapses the ring
	x0, y0 := 3*256, 4*256
	line := geom.Polygon{{lonLat(x0-50, y0+10, 10), lonLat(x0-60, y0+100, 10), lonLat(x0-70, y0+200, 10)}}
	m := newMosaic(10, 3, 4, 1, 1)
	_, err := Render(m, []tiles.Address{a},
		staticLoader(map[tiles.Address]FeatureCollection{a: {Features: []Feature{{Geometry: line}}}}), DefaultStyle())
	require.NoError(t, err)
	_, count := paintedBounds(m.RGBA)
	assert.Zero(t, count)
}

func TestRenderTile(t *testing.T) {
	a := tiles.Address{Z: 18, X: 10, Y: 12}
	x0, y0 := 10*256, 12*256
	square := geom.Polygon{{
		lonLat(x0+50, y0+50, 18), lonLat(x0+200, y0+50, 18),
		lonLat(x0+200, y0+200, 18), lonLat(x0+50, y0+200, 18),
	}}
	img := image.NewRGBA(image.Rect(0, 0, 256, 256))
	err := RenderTile(img, a, FeatureCollection{Features: []Feature{{Geometry: square}}}, DefaultStyle())
	require.NoError(t, err)

	painted, count := paintedBounds(img)
	require.Greater(t, count, 0)
	assert.True(t, painted.In(image.Rect(45, 45, 206, 206)), "painted %v", painted)
	// outlined, not filled
	assert.Equal(t, uint8(0), img.RGBAAt(125, 125).A)

	err = RenderTile(image.NewRGBA(image.Rect(0, 0, 10, 10)), a, FeatureCollection{}, DefaultStyle())
	assert.Error(t, err)
}
