package stitch

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"math/rand"
	"testing"

	"github.com/pdok/skmosaic/tiles"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// colourFor gives every tile address a distinct, opaque colour
func colourFor(a tiles.Address) color.RGBA {
	return color.RGBA{R: uint8(a.X), G: uint8(a.Y), B: uint8(a.Z), A: 255}
}

func solidTile(c color.Color) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, 256, 256))
	for y := 0; y < 256; y++ {
		for x := 0; x < 256; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func memoryLoader(missing ...tiles.Address) TileLoader {
	return TileLoaderFunc(func(a tiles.Address) (image.Image, error) {
		for _, m := range missing {
			if m == a {
				return nil, fmt.Errorf("%v: %w", a, tiles.ErrNotFound)
			}
		}
		return solidTile(colourFor(a)), nil
	})
}

func denseGrid(z, minX, minY, cols, rows uint) []tiles.Address {
	var addresses []tiles.Address
	for y := minY; y < minY+rows; y++ {
		for x := minX; x < minX+cols; x++ {
			addresses = append(addresses, tiles.Address{Z: z, X: x, Y: y})
		}
	}
	return addresses
}

func TestStitch_empty(t *testing.T) {
	m, err := Stitch(nil, memoryLoader())
	require.NoError(t, err)
	assert.Nil(t, m)
}

func TestStitch_dense(t *testing.T) {
	tests := []struct {
		name       string
		cols, rows uint
	}{
		{name: "single", cols: 1, rows: 1},
		{name: "row", cols: 3, rows: 1},
		{name: "column", cols: 1, rows: 4},
		{name: "rectangle", cols: 3, rows: 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			addresses := denseGrid(19, 20, 24, tt.cols, tt.rows)
			rand.New(rand.NewSource(42)).Shuffle(len(addresses), func(i, j int) {
				addresses[i], addresses[j] = addresses[j], addresses[i]
			})

			m, err := Stitch(addresses, memoryLoader(), WithParallelism(3))
			require.NoError(t, err)
			require.NotNil(t, m)
			assert.Equal(t, image.Rect(0, 0, int(256*tt.cols), int(256*tt.rows)), m.Bounds())
			assert.Equal(t, uint(19), m.Zoom)
			assert.Equal(t, image.Pt(20, 24), m.Origin)
			assert.Equal(t, image.Pt(20*256, 24*256), m.PixelOrigin())

			for _, a := range addresses {
				x := int(a.X-20)*256 + 128
				y := int(a.Y-24)*256 + 128
				assert.Equal(t, colourFor(a), m.RGBAAt(x, y), "tile %v", a)
			}
		})
	}
}

func TestStitch_missingTile(t *testing.T) {
	addresses := denseGrid(5, 2, 3, 2, 2)
	missing := tiles.Address{Z: 5, X: 3, Y: 3}

	m, err := Stitch(addresses, memoryLoader(missing))
	require.NoError(t, err)
	require.Equal(t, image.Rect(0, 0, 512, 512), m.Bounds())

	for y := 0; y < 256; y++ {
		for x := 256; x < 512; x++ {
			require.Equal(t, uint8(0), m.RGBAAt(x, y).A, "pixel %d,%d should be transparent", x, y)
		}
	}
	assert.Equal(t, colourFor(tiles.Address{Z: 5, X: 2, Y: 3}), m.RGBAAt(0, 0))
	assert.Equal(t, colourFor(tiles.Address{Z: 5, X: 3, Y: 4}), m.RGBAAt(511, 511))
}

func TestStitch_sparse(t *testing.T) {
	addresses := []tiles.Address{{Z: 4, X: 1, Y: 1}, {Z: 4, X: 3, Y: 2}}

	m, err := Stitch(addresses, memoryLoader())
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 3*256, 2*256), m.Bounds())
	assert.Equal(t, colourFor(addresses[0]), m.RGBAAt(10, 10))
	assert.Equal(t, colourFor(addresses[1]), m.RGBAAt(2*256+10, 256+10))
	assert.Equal(t, color.RGBA{}, m.RGBAAt(256+10, 10), "hole should stay empty")
}

func TestStitch_errors(t *testing.T) {
	_, err := Stitch([]tiles.Address{{Z: 4}, {Z: 5}}, memoryLoader())
	assert.ErrorIs(t, err, tiles.ErrMixedZoom)

	broken := errors.New("disk on fire")
	_, err = Stitch(denseGrid(4, 0, 0, 2, 1), TileLoaderFunc(func(a tiles.Address) (image.Image, error) {
		return nil, broken
	}))
	assert.ErrorIs(t, err, broken)

	_, err = Stitch(denseGrid(4, 0, 0, 1, 1), TileLoaderFunc(func(a tiles.Address) (image.Image, error) {
		return image.NewRGBA(image.Rect(0, 0, 512, 512)), nil
	}))
	assert.Error(t, err)
}

func TestGroupByRow(t *testing.T) {
	rows := groupByRow([]tiles.Address{
		{Z: 3, X: 5, Y: 2}, {Z: 3, X: 1, Y: 7}, {Z: 3, X: 4, Y: 2}, {Z: 3, X: 4, Y: 2},
	})
	assert.Equal(t, [][]tiles.Address{
		{{Z: 3, X: 4, Y: 2}, {Z: 3, X: 5, Y: 2}},
		{{Z: 3, X: 1, Y: 7}},
	}, rows)
}
