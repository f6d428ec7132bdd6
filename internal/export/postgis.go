package export

import (
	"context"
	"fmt"
	"regexp"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/soil-explorer/internal/db"
	"github.com/sells-group/soil-explorer/internal/grid"
)

var tableNamePattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*(\.[a-z_][a-z0-9_]*)?$`)

// ValidTableName reports whether name is a lower-case table name, optionally
// schema-qualified, that the exporter accepts.
func ValidTableName(name string) bool {
	return tableNamePattern.MatchString(name)
}

var postgisColumns = []string{"run_id", "cell_index", "lon1", "lat1", "lon2", "lat2", "soil_type", "geom"}

// PostGISExporter loads cells into a PostGIS table keyed by (run_id, cell_index).
type PostGISExporter struct {
	Pool  db.Pool
	Table string // optionally schema-qualified, e.g. "soil.cells"
	RunID string
}

// EnsureTable creates the target table if it does not exist.
func (e *PostGISExporter) EnsureTable(ctx context.Context, crs CRS) error {
	if !ValidTableName(e.Table) {
		return eris.Errorf("export: invalid table name %q", e.Table)
	}
	ident := db.Identifier(e.Table)
	if len(ident) == 2 {
		if _, err := e.Pool.Exec(ctx, fmt.Sprintf(`CREATE SCHEMA IF NOT EXISTS %s`, ident[:1].Sanitize())); err != nil {
			return eris.Wrapf(err, "export: create schema %s", ident[0])
		}
	}

	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		run_id     TEXT NOT NULL,
		cell_index INTEGER NOT NULL,
		lon1       DOUBLE PRECISION NOT NULL,
		lat1       DOUBLE PRECISION NOT NULL,
		lon2       DOUBLE PRECISION NOT NULL,
		lat2       DOUBLE PRECISION NOT NULL,
		soil_type  TEXT,
		geom       geometry(Polygon, %d) NOT NULL,
		PRIMARY KEY (run_id, cell_index)
	)`, ident.Sanitize(), crs.EPSG)
	if _, err := e.Pool.Exec(ctx, ddl); err != nil {
		return eris.Wrapf(err, "export: create table %s", e.Table)
	}
	return nil
}

// Export creates the table when needed and COPYs one row per cell.
func (e *PostGISExporter) Export(ctx context.Context, cells []grid.Cell, crs CRS) error {
	if e.Pool == nil {
		return eris.New("export: postgis pool is required")
	}
	if e.RunID == "" {
		return eris.New("export: postgis run id is required")
	}
	if err := e.EnsureTable(ctx, crs); err != nil {
		return err
	}

	rows := make([][]any, 0, len(cells))
	for i, c := range cells {
		wkb, err := EncodeEWKB(c, crs.EPSG)
		if err != nil {
			return eris.Wrapf(err, "export: cell %d", i)
		}
		rows = append(rows, []any{e.RunID, i, c.Lon1, c.Lat1, c.Lon2, c.Lat2, attributeValue(c), wkb})
	}

	n, err := db.CopyFrom(ctx, e.Pool, e.Table, postgisColumns, rows)
	if err != nil {
		return err
	}

	zap.L().Info("export: loaded cells into postgis",
		zap.String("table", e.Table),
		zap.String("run_id", e.RunID),
		zap.Int64("rows", n),
	)
	return nil
}
