package main

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sells-group/soil-explorer/internal/config"
	"github.com/sells-group/soil-explorer/internal/enrich"
	"github.com/sells-group/soil-explorer/internal/grid"
	"github.com/sells-group/soil-explorer/internal/store"
)

// useTestConfig installs a config for the duration of a test.
func useTestConfig(t *testing.T) *config.Config {
	t.Helper()
	prev := cfg
	cfg = &config.Config{}
	cfg.Grid.Resolution = 250
	cfg.Grid.MaxCells = 1000
	cfg.Enrich.Workers = 3
	cfg.Export.Format = "geojson"
	cfg.Export.CRS = "NAD 1983"
	cfg.Export.Table = "soil_cells"
	cfg.Store.Path = filepath.Join(t.TempDir(), "soil.db")
	cfg.Store.CacheTTL = 48
	cfg.Server.Port = 8080
	cfg.Server.MaxCells = 1000
	cfg.Server.AllowedOrigins = []string{"*"}
	cfg.Server.OutputDir = t.TempDir()
	t.Cleanup(func() { cfg = prev })
	return cfg
}

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

// testBBox divides into 5 x 5 cells at 250 m.
var testBBox = grid.BBox{Lon1: 0, Lat1: 0, Lon2: 0.009, Lat2: 0.009}

// fakeFetcher answers every cell except the one anchored at the origin
// when failOrigin is set.
func fakeFetcher(failOrigin bool) enrich.Fetcher {
	return enrich.FetcherFunc(func(_ context.Context, b grid.BBox) (string, error) {
		if failOrigin && b.Lon1 == 0 && b.Lat1 == 0 {
			return "", errors.New("no map unit")
		}
		return "Yolo, silt loam, 0 to 2 percent slopes", nil
	})
}
