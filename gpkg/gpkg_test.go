package gpkg

import (
	"path/filepath"
	"testing"

	"github.com/go-spatial/geom"
	"github.com/pdok/skmosaic/detect"
	"github.com/pdok/skmosaic/geomhelp"
	"github.com/pdok/skmosaic/processing"
	"github.com/pdok/skmosaic/sieve"
	"github.com/pdok/skmosaic/tiles"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type collector struct {
	features []processing.Feature
}

func (c *collector) WriteFeatures(features <-chan processing.Feature) error {
	for f := range features {
		c.features = append(c.features, f)
	}
	return nil
}

func TestTable_SQL(t *testing.T) {
	table := DetectionsTable()
	assert.Equal(t,
		`CREATE TABLE IF NOT EXISTS "detections"(fid INTEGER NOT NULL PRIMARY KEY, class TEXT, tile_z INTEGER, tile_x INTEGER, tile_y INTEGER, geom GEOMETRY);`,
		table.createSQL())
	assert.Equal(t,
		`INSERT INTO "detections"(class,tile_z,tile_x,tile_y,geom) VALUES(?,?,?,?,?)`,
		table.insertSQL())
	assert.Equal(t,
		`SELECT class,tile_z,tile_x,tile_y,geom FROM "detections";`,
		table.selectSQL())
}

func TestExportDetections(t *testing.T) {
	car := geom.Polygon{{{4.9, 52.3}, {4.9001, 52.3}, {4.9001, 52.3001}, {4.9, 52.3001}}}
	degenerate := geom.Polygon{{{4.9, 52.3}, {4.9001, 52.3}, {4.9002, 52.3}}}
	a := tiles.Address{Z: 17, X: 67326, Y: 43072}
	source := processing.DetectionSource{
		Tiles: []tiles.Address{a},
		Loader: detect.FeatureLoaderFunc(func(tiles.Address) (detect.FeatureCollection, error) {
			return detect.FeatureCollection{Features: []detect.Feature{
				{Class: "cars", Geometry: car},
				{Class: "trucks", Geometry: geom.MultiPolygon{car}},
				{Class: "cars", Geometry: degenerate},
			}}, nil
		}),
	}
	file := filepath.Join(t.TempDir(), "detections.gpkg")

	// pagesize 1 forces a transaction per feature; exporting twice must not duplicate
	for i := 0; i < 2; i++ {
		counts, err := ExportDetections(file, source, 1, 0)
		require.NoError(t, err)
		assert.Equal(t, uint64(3), counts.Total)
		assert.Equal(t, uint64(2), counts.Kept)
	}

	src, err := OpenSource(file, DetectionsTable())
	require.NoError(t, err)
	defer src.Close()

	c := &collector{}
	_, err = processing.ProcessFeatures(src, c, sieve.Filter(0))
	require.NoError(t, err)
	require.Len(t, c.features, 2)

	assert.Equal(t, []interface{}{"cars", int64(17), int64(67326), int64(43072)}, c.features[0].Columns())
	assert.Equal(t, []interface{}{"trucks", int64(17), int64(67326), int64(43072)}, c.features[1].Columns())

	for _, f := range c.features {
		polygons := geomhelp.Polygons(f.Geometry())
		require.Len(t, polygons, 1, "got %T", f.Geometry())
		assert.InDelta(t, car[0][2][0], polygons[0][0][2][0], 1e-9)
		assert.InDelta(t, car[0][2][1], polygons[0][0][2][1], 1e-9)
	}
}
