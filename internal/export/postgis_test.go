package export

import (
	"context"
	"fmt"
	"regexp"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostGISExporter_Export(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec(regexp.QuoteMeta(`CREATE SCHEMA IF NOT EXISTS "soil"`)).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec(regexp.QuoteMeta(`CREATE TABLE IF NOT EXISTS "soil"."cells"`)).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"soil", "cells"}, postgisColumns).WillReturnResult(3)

	e := &PostGISExporter{Pool: mock, Table: "soil.cells", RunID: "run-1"}
	require.NoError(t, e.Export(context.Background(), sampleCells(), NAD83))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostGISExporter_UnqualifiedTable(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec(`geometry\(Polygon, 4326\)`).WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"cells"}, postgisColumns).WillReturnResult(3)

	e := &PostGISExporter{Pool: mock, Table: "cells", RunID: "run-1"}
	require.NoError(t, e.Export(context.Background(), sampleCells(), WGS84))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostGISExporter_CreateTableError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("CREATE TABLE").WillReturnError(fmt.Errorf("permission denied"))

	e := &PostGISExporter{Pool: mock, Table: "cells", RunID: "run-1"}
	err = e.Export(context.Background(), sampleCells(), WGS84)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "create table cells")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostGISExporter_Validation(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	ctx := context.Background()
	assert.Error(t, (&PostGISExporter{Table: "cells", RunID: "r"}).Export(ctx, sampleCells(), WGS84))
	assert.Error(t, (&PostGISExporter{Pool: mock, Table: "cells"}).Export(ctx, sampleCells(), WGS84))
	assert.Error(t, (&PostGISExporter{Pool: mock, Table: "bad;table", RunID: "r"}).Export(ctx, sampleCells(), WGS84))
	assert.Error(t, (&PostGISExporter{Pool: mock, Table: "Cells", RunID: "r"}).Export(ctx, sampleCells(), WGS84))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestValidTableName(t *testing.T) {
	for _, name := range []string{"soil_cells", "soil.cells", "_tmp2"} {
		assert.True(t, ValidTableName(name), name)
	}
	for _, name := range []string{"", "Cells", "soil.cells.x", "1cells", "cells; drop table runs", "../cells"} {
		assert.False(t, ValidTableName(name), name)
	}
}
