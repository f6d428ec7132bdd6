package store

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/soil-explorer/internal/enrich"
	"github.com/sells-group/soil-explorer/internal/grid"
)

// DefaultLookupTTL is how long a cached lookup stays valid.
const DefaultLookupTTL = 30 * 24 * time.Hour

// CachingFetcher serves lookups from a LookupCache and falls through to Next
// on a miss. Only successful, non-blank responses are cached. Cache errors
// are logged and never fail the lookup.
type CachingFetcher struct {
	Next  enrich.Fetcher
	Cache LookupCache
	TTL   time.Duration
}

var _ enrich.Fetcher = (*CachingFetcher)(nil)

// Fetch implements enrich.Fetcher.
func (f *CachingFetcher) Fetch(ctx context.Context, bbox grid.BBox) (string, error) {
	key := bbox.String()
	log := zap.L().With(zap.String("component", "store.cache"), zap.String("bbox", key))

	raw, ok, err := f.Cache.GetCachedLookup(ctx, key)
	switch {
	case err != nil:
		log.Warn("lookup cache read failed", zap.Error(err))
	case ok:
		log.Debug("lookup cache hit")
		return raw, nil
	}

	raw, err = f.Next.Fetch(ctx, bbox)
	if err != nil {
		return "", err
	}
	if _, perr := enrich.ParseAttribute(raw); perr != nil {
		return raw, nil
	}

	ttl := f.TTL
	if ttl <= 0 {
		ttl = DefaultLookupTTL
	}
	if err := f.Cache.SetCachedLookup(ctx, key, raw, ttl); err != nil {
		log.Warn("lookup cache write failed", zap.Error(err))
	}
	return raw, nil
}
