package main

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/soil-explorer/internal/db"
	"github.com/sells-group/soil-explorer/internal/enrich"
	"github.com/sells-group/soil-explorer/internal/export"
	"github.com/sells-group/soil-explorer/internal/grid"
	"github.com/sells-group/soil-explorer/internal/resilience"
	"github.com/sells-group/soil-explorer/internal/soilweb"
	"github.com/sells-group/soil-explorer/internal/store"
)

// initStore opens and migrates the local run store and prunes expired
// lookup cache entries.
func initStore(ctx context.Context) (*store.SQLiteStore, error) {
	st, err := store.NewSQLite(cfg.Store.Path)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close() //nolint:errcheck
		return nil, eris.Wrap(err, "migrate store")
	}

	n, err := st.DeleteExpiredLookups(ctx)
	if err != nil {
		zap.L().Warn("prune lookup cache", zap.Error(err))
	} else if n > 0 {
		zap.L().Info("pruned expired lookups", zap.Int("entries", n))
	}
	return st, nil
}

// cacheTTL returns the configured lookup cache lifetime.
func cacheTTL() time.Duration {
	if cfg.Store.CacheTTL <= 0 {
		return store.DefaultLookupTTL
	}
	return time.Duration(cfg.Store.CacheTTL) * time.Hour
}

// initFetcher builds the SoilWeb client, wrapped in the lookup cache unless
// disabled.
func initFetcher(cache store.LookupCache, useCache bool) (enrich.Fetcher, error) {
	retry := resilience.DefaultRetryConfig()
	retry.MaxAttempts = cfg.SoilWeb.MaxRetries + 1

	client, err := soilweb.NewClient(soilweb.Options{
		BaseURL:       cfg.SoilWeb.BaseURL,
		UserAgent:     cfg.SoilWeb.UserAgent,
		Timeout:       cfg.SoilWeb.Timeout(),
		RatePerSecond: cfg.SoilWeb.RatePerSec,
		Burst:         cfg.SoilWeb.Burst,
		Retry:         retry,
	})
	if err != nil {
		return nil, err
	}
	if !useCache || cache == nil {
		return client, nil
	}
	return &store.CachingFetcher{
		Next:  client,
		Cache: cache,
		TTL:   cacheTTL(),
	}, nil
}

// exportTarget names where a run's cells go.
type exportTarget struct {
	Format export.Format
	CRS    export.CRS
	Output string // file path, or table name for postgis
}

func resolveTarget(format, crs, path, table string) (exportTarget, error) {
	f, err := export.ParseFormat(format)
	if err != nil {
		return exportTarget{}, err
	}
	c, err := export.ParseCRS(crs)
	if err != nil {
		return exportTarget{}, err
	}
	output := path
	if f == export.FormatPostGIS {
		output = table
	}
	if output == "" {
		return exportTarget{}, eris.Errorf("an output is required for %s", f)
	}
	return exportTarget{Format: f, CRS: c, Output: output}, nil
}

// newExporter returns the exporter for t and a close func for any resources
// it holds.
func newExporter(ctx context.Context, t exportTarget, runID string) (export.Exporter, func(), error) {
	noop := func() {}
	switch t.Format {
	case export.FormatShapefile:
		return &export.ShapefileExporter{Path: t.Output}, noop, nil
	case export.FormatGeoJSON:
		return &export.GeoJSONExporter{Path: t.Output}, noop, nil
	case export.FormatXLSX:
		return &export.XLSXExporter{Path: t.Output}, noop, nil
	case export.FormatPostGIS:
		pool, err := db.Connect(ctx, cfg.Export.DatabaseURL)
		if err != nil {
			return nil, noop, err
		}
		return &export.PostGISExporter{Pool: pool, Table: t.Output, RunID: runID}, pool.Close, nil
	default:
		return nil, noop, eris.Errorf("unsupported format %q", t.Format)
	}
}

// parseBBox parses "lon1,lat1,lon2,lat2".
func parseBBox(s string) (grid.BBox, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return grid.BBox{}, eris.Errorf("bbox %q must be lon1,lat1,lon2,lat2", s)
	}
	var v [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return grid.BBox{}, eris.Wrapf(err, "bbox %q: value %d", s, i+1)
		}
		v[i] = f
	}
	return grid.BBox{Lon1: v[0], Lat1: v[1], Lon2: v[2], Lat2: v[3]}, nil
}
