package mercator

import (
	"fmt"
	"image"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProject(t *testing.T) {
	tests := []struct {
		lon, lat float64
		zoom     uint
		want     image.Point
	}{
		{lon: 0, lat: 0, zoom: 0, want: image.Pt(128, 128)},
		{lon: -180, lat: 0, zoom: 0, want: image.Pt(0, 128)},
		{lon: 180, lat: 0, zoom: 0, want: image.Pt(256, 128)},
		{lon: 180, lat: 0, zoom: MaxZoom, want: image.Pt(1<<38, 1<<37)},
		{lon: 0, lat: 0, zoom: 1, want: image.Pt(256, 256)},
		{lon: 0.001, lat: 0.001, zoom: 19, want: image.Pt(67109236, 67108491)},
		{lon: -0.001, lat: -0.002, zoom: 19, want: image.Pt(67108491, 67109609)},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%v,%v@%d", tt.lon, tt.lat, tt.zoom), func(t *testing.T) {
			got, err := Project(tt.lon, tt.lat, tt.zoom)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestProject_invalid(t *testing.T) {
	tests := []struct {
		name     string
		lon, lat float64
	}{
		{name: "NaN longitude", lon: math.NaN(), lat: 0},
		{name: "infinite latitude", lon: 0, lat: math.Inf(1)},
		{name: "north pole", lon: 0, lat: 90},
		{name: "beyond south", lon: 0, lat: -89},
		{name: "beyond antimeridian", lon: 181, lat: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Project(tt.lon, tt.lat, 5)
			assert.ErrorIs(t, err, ErrInvalidCoordinate)
		})
	}
}

func TestProject_zoomBeyondMax(t *testing.T) {
	for _, zoom := range []uint{MaxZoom + 1, 55, 56, 64} {
		_, err := Project(10, 10, zoom)
		assert.ErrorIs(t, err, ErrInvalidCoordinate, "zoom %d", zoom)
	}
	_, err := Project(10, 10, MaxZoom)
	assert.NoError(t, err)
}

func TestProjectWithinTile_antimeridian(t *testing.T) {
	px, py, err := ProjectWithinTile(180, 0, 3)
	require.NoError(t, err)
	assert.Equal(t, 0, px)
	assert.Equal(t, 0, py)
}

func TestProjectWithinTile(t *testing.T) {
	for zoom := uint(0); zoom <= 20; zoom += 4 {
		for lon := -180.0; lon <= 180; lon += 17.3 {
			for lat := -85.0; lat <= 85; lat += 9.7 {
				px, py, err := ProjectWithinTile(lon, lat, zoom)
				require.NoError(t, err)
				assert.True(t, px >= 0 && px < TileSize, "px %d out of tile for %v,%v@%d", px, lon, lat, zoom)
				assert.True(t, py >= 0 && py < TileSize, "py %d out of tile for %v,%v@%d", py, lon, lat, zoom)
			}
		}
	}
}

func TestUnproject(t *testing.T) {
	pt := Unproject(128, 128, 0)
	assert.InDelta(t, 0, pt.X(), 1e-9)
	assert.InDelta(t, 0, pt.Y(), 1e-9)

	// the centre of a pixel projects back onto that pixel
	p, err := ProjectPoint(Unproject(1000.5, 2000.5, 12), 12)
	require.NoError(t, err)
	assert.Equal(t, image.Pt(1000, 2000), p)
}
