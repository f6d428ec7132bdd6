package store

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/soil-explorer/internal/enrich"
	"github.com/sells-group/soil-explorer/internal/grid"
)

type failingCache struct{}

func (failingCache) GetCachedLookup(context.Context, string) (string, bool, error) {
	return "", false, errors.New("database is locked")
}

func (failingCache) SetCachedLookup(context.Context, string, string, time.Duration) error {
	return errors.New("database is locked")
}

func (failingCache) DeleteExpiredLookups(context.Context) (int, error) { return 0, nil }

func countingFetcher(calls *atomic.Int32, raw string, err error) enrich.Fetcher {
	return enrich.FetcherFunc(func(context.Context, grid.BBox) (string, error) {
		calls.Add(1)
		return raw, err
	})
}

var cacheBBox = grid.BBox{Lon1: -121.8, Lat1: 38.5, Lon2: -121.79, Lat2: 38.51}

func TestCachingFetcher_HitAfterMiss(t *testing.T) {
	st := newTestSQLiteStore(t)
	var calls atomic.Int32
	f := &CachingFetcher{Next: countingFetcher(&calls, "Yolo, silt loam", nil), Cache: st}

	for range 3 {
		raw, err := f.Fetch(context.Background(), cacheBBox)
		require.NoError(t, err)
		assert.Equal(t, "Yolo, silt loam", raw)
	}
	assert.Equal(t, int32(1), calls.Load())

	raw, ok, err := st.GetCachedLookup(context.Background(), cacheBBox.String())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "Yolo, silt loam", raw)
}

func TestCachingFetcher_ErrorsNotCached(t *testing.T) {
	st := newTestSQLiteStore(t)
	var calls atomic.Int32
	f := &CachingFetcher{Next: countingFetcher(&calls, "", errors.New("503")), Cache: st}

	for range 2 {
		_, err := f.Fetch(context.Background(), cacheBBox)
		assert.Error(t, err)
	}
	assert.Equal(t, int32(2), calls.Load())
}

func TestCachingFetcher_BlankNotCached(t *testing.T) {
	st := newTestSQLiteStore(t)
	var calls atomic.Int32
	f := &CachingFetcher{Next: countingFetcher(&calls, "  ", nil), Cache: st}

	for range 2 {
		raw, err := f.Fetch(context.Background(), cacheBBox)
		require.NoError(t, err)
		assert.Equal(t, "  ", raw)
	}
	assert.Equal(t, int32(2), calls.Load())
}

func TestCachingFetcher_CacheFailureFallsThrough(t *testing.T) {
	var calls atomic.Int32
	f := &CachingFetcher{Next: countingFetcher(&calls, "Capay", nil), Cache: failingCache{}}

	raw, err := f.Fetch(context.Background(), cacheBBox)
	require.NoError(t, err)
	assert.Equal(t, "Capay", raw)
	assert.Equal(t, int32(1), calls.Load())
}
