package db

import (
	"context"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
)

// Identifier splits a possibly schema-qualified table name ("soil.cells")
// into a pgx identifier.
func Identifier(table string) pgx.Identifier {
	return pgx.Identifier(strings.Split(table, "."))
}

// CopyFrom bulk-inserts rows into table with the COPY protocol. The table may
// be schema-qualified.
func CopyFrom(ctx context.Context, pool Pool, table string, columns []string, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	n, err := pool.CopyFrom(ctx, Identifier(table), columns, pgx.CopyFromRows(rows))
	if err != nil {
		return 0, eris.Wrapf(err, "db: COPY INTO %s", table)
	}
	return n, nil
}
