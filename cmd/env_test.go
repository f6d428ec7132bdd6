package main

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/soil-explorer/internal/export"
	"github.com/sells-group/soil-explorer/internal/grid"
	"github.com/sells-group/soil-explorer/internal/store"
)

func TestParseBBox(t *testing.T) {
	b, err := parseBBox("-121.8, 38.5,-121.7,38.6")
	require.NoError(t, err)
	assert.Equal(t, grid.BBox{Lon1: -121.8, Lat1: 38.5, Lon2: -121.7, Lat2: 38.6}, b)

	_, err = parseBBox("-121.8,38.5,-121.7")
	assert.Error(t, err)

	_, err = parseBBox("a,b,c,d")
	assert.Error(t, err)
}

func TestResolveTarget(t *testing.T) {
	target, err := resolveTarget("shapefile", "nad83", "out/soils.shp", "soil_cells")
	require.NoError(t, err)
	assert.Equal(t, export.FormatShapefile, target.Format)
	assert.Equal(t, 4269, target.CRS.EPSG)
	assert.Equal(t, "out/soils.shp", target.Output)

	target, err = resolveTarget("postgis", "wgs84", "out/soils.shp", "soil.cells")
	require.NoError(t, err)
	assert.Equal(t, "soil.cells", target.Output)

	_, err = resolveTarget("geojson", "wgs84", "", "")
	assert.Error(t, err)

	_, err = resolveTarget("kml", "wgs84", "a.kml", "")
	assert.Error(t, err)

	_, err = resolveTarget("geojson", "EPSG:3857", "a.geojson", "")
	assert.Error(t, err)
}

func TestNewExporter_FileFormats(t *testing.T) {
	useTestConfig(t)
	ctx := context.Background()

	for format, want := range map[export.Format]any{
		export.FormatShapefile: &export.ShapefileExporter{},
		export.FormatGeoJSON:   &export.GeoJSONExporter{},
		export.FormatXLSX:      &export.XLSXExporter{},
	} {
		e, closeFn, err := newExporter(ctx, exportTarget{Format: format, CRS: export.WGS84, Output: "x"}, "run")
		require.NoError(t, err)
		assert.IsType(t, want, e)
		closeFn()
	}
}

func TestNewExporter_PostGISNeedsDatabase(t *testing.T) {
	useTestConfig(t)

	_, closeFn, err := newExporter(context.Background(), exportTarget{Format: export.FormatPostGIS, Output: "cells"}, "run")
	require.Error(t, err)
	closeFn()
}

func TestInitFetcher_CacheWrapping(t *testing.T) {
	c := useTestConfig(t)
	c.SoilWeb.BaseURL = "http://127.0.0.1:1/soils.php"
	c.SoilWeb.RatePerSec = 5
	c.SoilWeb.TimeoutSecs = 1

	st := newTestStore(t)

	f, err := initFetcher(st, true)
	require.NoError(t, err)
	require.IsType(t, &store.CachingFetcher{}, f)
	assert.Equal(t, 48*time.Hour, f.(*store.CachingFetcher).TTL)

	c.Store.CacheTTL = 0
	f, err = initFetcher(st, true)
	require.NoError(t, err)
	require.IsType(t, &store.CachingFetcher{}, f)
	assert.Equal(t, store.DefaultLookupTTL, f.(*store.CachingFetcher).TTL)

	f, err = initFetcher(st, false)
	require.NoError(t, err)
	_, cached := f.(*store.CachingFetcher)
	assert.False(t, cached)
}

func TestInitStore_PrunesExpiredLookups(t *testing.T) {
	useTestConfig(t)
	ctx := context.Background()

	seed, err := store.NewSQLite(cfg.Store.Path)
	require.NoError(t, err)
	require.NoError(t, seed.Migrate(ctx))
	require.NoError(t, seed.SetCachedLookup(ctx, "stale", "Yolo", -time.Hour))
	require.NoError(t, seed.SetCachedLookup(ctx, "fresh", "Capay", time.Hour))
	require.NoError(t, seed.Close())

	st, err := initStore(ctx)
	require.NoError(t, err)
	defer st.Close() //nolint:errcheck

	n, err := st.DeleteExpiredLookups(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n, "expired entries were pruned on open")

	raw, ok, err := st.GetCachedLookup(ctx, "fresh")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "Capay", raw)
}
