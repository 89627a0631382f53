// Package gpkg writes (and reads back) detection features in a GeoPackage.
package gpkg

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/go-spatial/geom"
	"github.com/go-spatial/geom/encoding/gpkg"
	"github.com/pdok/skmosaic/processing"
)

const (
	DetectionsTableName = "detections"
	geometryColumn      = "geom"
	defaultPagesize     = 1000
)

// WGS84 is the reference system of the detection polygons
var WGS84 = gpkg.SpatialReferenceSystem{
	Name:                   "WGS 84 geodetic",
	ID:                     4326,
	Organization:           "EPSG",
	OrganizationCoordsysID: 4326,
	Definition:             `GEOGCS["WGS 84",DATUM["WGS_1984",SPHEROID["WGS 84",6378137,298.257223563,AUTHORITY["EPSG","7030"]],AUTHORITY["EPSG","6326"]],PRIMEM["Greenwich",0,AUTHORITY["EPSG","8901"]],UNIT["degree",0.0174532925199433,AUTHORITY["EPSG","9122"]],AUTHORITY["EPSG","4326"]]`,
	Description:            "longitude/latitude coordinates in decimal degrees on the WGS 84 spheroid",
}

type featureGPKG struct {
	columns  []interface{}
	geometry geom.Geometry
}

func (f featureGPKG) Columns() []interface{} {
	return f.columns
}

func (f featureGPKG) Geometry() geom.Geometry {
	return f.geometry
}

type column struct {
	name    string
	ctype   string
	notnull int
	pk      int
}

type Table struct {
	Name    string
	columns []column
	gcolumn string
	gtype   gpkg.GeometryType
	srs     gpkg.SpatialReferenceSystem
}

// DetectionsTable describes the table holding detections, see processing.DetectionColumns
func DetectionsTable() Table {
	return Table{
		Name: DetectionsTableName,
		columns: []column{
			{name: "fid", ctype: "INTEGER", notnull: 1, pk: 1},
			{name: "class", ctype: "TEXT"},
			{name: "tile_z", ctype: "INTEGER"},
			{name: "tile_x", ctype: "INTEGER"},
			{name: "tile_y", ctype: "INTEGER"},
			{name: geometryColumn, ctype: "GEOMETRY"},
		},
		gcolumn: geometryColumn,
		gtype:   gpkg.Geometry,
		srs:     WGS84,
	}
}

// TargetGeopackage writes features in pages, each page in one transaction.
type TargetGeopackage struct {
	Table    Table
	pagesize int
	handle   *gpkg.Handle
}

// NewTarget opens (or creates) the GeoPackage and prepares the table.
func NewTarget(file string, table Table, pagesize int) (*TargetGeopackage, error) {
	if pagesize <= 0 {
		pagesize = defaultPagesize
	}
	handle, err := gpkg.Open(file)
	if err != nil {
		return nil, fmt.Errorf("error opening GeoPackage: %w", err)
	}
	target := &TargetGeopackage{Table: table, pagesize: pagesize, handle: handle}
	if err = target.createTable(); err != nil {
		handle.Close()
		return nil, err
	}
	return target, nil
}

func (target *TargetGeopackage) Close() error {
	return target.handle.Close()
}

func (target *TargetGeopackage) createTable() error {
	if err := target.handle.UpdateSRS(target.Table.srs); err != nil {
		return fmt.Errorf("could not register srs %d: %w", target.Table.srs.ID, err)
	}
	return buildTable(target.handle, target.Table)
}

// WriteFeatures implements processing.Target. After the first error the
// remaining features are drained without writing.
func (target *TargetGeopackage) WriteFeatures(features <-chan processing.Feature) error {
	var page []processing.Feature
	var err error
	for feature := range features {
		if err != nil {
			continue
		}
		page = append(page, feature)
		if len(page)%target.pagesize == 0 {
			err = target.writeFeatures(page)
			page = nil
		}
	}
	if err != nil {
		return err
	}
	return target.writeFeatures(page)
}

func (target *TargetGeopackage) writeFeatures(features []processing.Feature) (err error) {
	if len(features) == 0 {
		return nil
	}
	tx, err := target.handle.Begin()
	if err != nil {
		return fmt.Errorf("could not start a transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	stmt, err := tx.Prepare(target.Table.insertSQL())
	if err != nil {
		return fmt.Errorf("could not prepare a statement: %w", err)
	}
	defer stmt.Close()

	var ext *geom.Extent
	for _, f := range features {
		sb, err := gpkg.NewBinary(int32(target.Table.srs.ID), f.Geometry())
		if err != nil {
			return fmt.Errorf("could not create a binary geometry: %w", err)
		}

		data := append(append([]interface{}{}, f.Columns()...), sb)
		if _, err = stmt.Exec(data...); err != nil {
			return fmt.Errorf("could not insert feature %v: %w", f.Columns(), err)
		}

		if ext == nil {
			ext, err = geom.NewExtentFromGeometry(f.Geometry())
			if err != nil {
				ext = nil
				log.Println("    failed to create new extent:", err)
			}
		} else {
			ext.AddGeometry(f.Geometry())
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("could not commit: %w", err)
	}
	if ext == nil {
		return nil
	}
	if err = target.handle.UpdateGeometryExtent(target.Table.Name, ext); err != nil {
		return fmt.Errorf("failed to update extent: %w", err)
	}
	return nil
}

// SourceGeopackage reads the features of a table.
type SourceGeopackage struct {
	Table  Table
	handle *gpkg.Handle
}

func OpenSource(file string, table Table) (*SourceGeopackage, error) {
	handle, err := gpkg.Open(file)
	if err != nil {
		return nil, fmt.Errorf("error opening GeoPackage: %w", err)
	}
	return &SourceGeopackage{Table: table, handle: handle}, nil
}

func (source *SourceGeopackage) Close() error {
	return source.handle.Close()
}

// ReadFeatures implements processing.Source. The primary key is not part of the columns.
func (source *SourceGeopackage) ReadFeatures(features chan<- processing.Feature) error {
	rows, err := source.handle.Query(source.Table.selectSQL())
	if err != nil {
		return fmt.Errorf("could not query %v: %w", source.Table.Name, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return fmt.Errorf("error reading the columns: %w", err)
	}

	for rows.Next() {
		vals := make([]interface{}, len(cols))
		valPtrs := make([]interface{}, len(cols))
		for i := 0; i < len(cols); i++ {
			valPtrs[i] = &vals[i]
		}
		if err = rows.Scan(valPtrs...); err != nil {
			return fmt.Errorf("err reading row values: %w", err)
		}

		var f featureGPKG
		for i, colName := range cols {
			if colName == source.Table.gcolumn {
				raw, ok := vals[i].([]byte)
				if !ok {
					return fmt.Errorf("unexpected geometry value %T", vals[i])
				}
				sb, err := gpkg.DecodeGeometry(raw)
				if err != nil {
					return fmt.Errorf("error decoding the geometry: %w", err)
				}
				f.geometry = sb.Geometry
				continue
			}
			switch v := vals[i].(type) {
			case []byte:
				f.columns = append(f.columns, string(v))
			case int64, float64, time.Time, string, nil:
				f.columns = append(f.columns, v)
			default:
				return fmt.Errorf("unexpected type for sqlite column data: %v: %T", colName, v)
			}
		}
		features <- f
	}
	return rows.Err()
}

// createSQL creates a CREATE statement on the given table and column information
func (t Table) createSQL() string {
	create := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS "%v"`, t.Name)
	var columnparts []string
	for _, column := range t.columns {
		columnpart := column.name + ` ` + column.ctype
		if column.notnull == 1 {
			columnpart = columnpart + ` NOT NULL`
		}
		if column.pk == 1 {
			columnpart = columnpart + ` PRIMARY KEY`
		}
		columnparts = append(columnparts, columnpart)
	}
	return create + `(` + strings.Join(columnparts, `, `) + `);`
}

// selectSQL builds a SELECT of the attribute columns followed by the geometry
func (t Table) selectSQL() string {
	return `SELECT ` + strings.Join(t.attributeColumns(), `,`) + `,` + t.gcolumn + ` FROM "` + t.Name + `";`
}

// insertSQL builds an INSERT of the attribute columns followed by the geometry.
// The primary key is assigned by sqlite.
func (t Table) insertSQL() string {
	csql := append(t.attributeColumns(), t.gcolumn)
	vsql := strings.TrimSuffix(strings.Repeat(`?,`, len(csql)), `,`)
	return `INSERT INTO "` + t.Name + `"(` + strings.Join(csql, `,`) + `) VALUES(` + vsql + `)`
}

func (t Table) attributeColumns() []string {
	var names []string
	for _, c := range t.columns {
		if c.name != t.gcolumn && c.pk != 1 {
			names = append(names, c.name)
		}
	}
	return names
}

// buildTable creates a given destination table with the necessary gpkg_ information
func buildTable(h *gpkg.Handle, t Table) error {
	if t.gcolumn == "" {
		return errors.New("table has no geometry column")
	}
	if _, err := h.Exec(t.createSQL()); err != nil {
		return fmt.Errorf("error building table in target GeoPackage: %w", err)
	}

	err := h.AddGeometryTable(gpkg.TableDescription{
		Name:          t.Name,
		ShortName:     t.Name,
		Description:   t.Name,
		GeometryField: t.gcolumn,
		GeometryType:  t.gtype,
		SRS:           int32(t.srs.ID),
		//
		Z: gpkg.Prohibited,
		M: gpkg.Prohibited,
	})
	if err != nil {
		return fmt.Errorf("error adding geometry table in target GeoPackage: %w", err)
	}
	return nil
}
