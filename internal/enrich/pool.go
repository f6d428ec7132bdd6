package enrich

import (
	"context"
	"slices"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/soil-explorer/internal/grid"
)

// ErrFetcherPanic marks a cell whose lookup panicked.
var ErrFetcherPanic = eris.New("enrich: fetcher panicked")

// Fetcher looks up the raw attribute text for a cell's bounding box.
// Retries and backoff are the implementation's concern.
type Fetcher interface {
	Fetch(ctx context.Context, bbox grid.BBox) (string, error)
}

// FetcherFunc adapts a function to the Fetcher interface.
type FetcherFunc func(ctx context.Context, bbox grid.BBox) (string, error)

// Fetch calls f.
func (f FetcherFunc) Fetch(ctx context.Context, bbox grid.BBox) (string, error) {
	return f(ctx, bbox)
}

// Options configures a Pool.
type Options struct {
	Workers int
	Metrics *Metrics // optional
}

// Pool runs one worker per partition range. Each worker fetches and writes
// the attributes of the cells in its own range only.
type Pool struct {
	fetcher Fetcher
	workers int
	metrics *Metrics
}

// NewPool creates a pool of opts.Workers workers.
func NewPool(f Fetcher, opts Options) (*Pool, error) {
	if f == nil {
		return nil, eris.New("enrich: fetcher is required")
	}
	if opts.Workers < 1 {
		return nil, eris.Wrapf(ErrInvalidWorkers, "got %d", opts.Workers)
	}
	return &Pool{fetcher: f, workers: opts.Workers, metrics: opts.Metrics}, nil
}

// Run fetches an attribute for every cell of a divided AOI and blocks until
// all workers finish. A failed lookup is recorded in the report and the
// cell's attribute stays unset; it never stops other cells from being
// fetched. The returned error is non-nil only when the run cannot start.
func (p *Pool) Run(ctx context.Context, aoi *grid.AreaOfInterest) (*Report, error) {
	if aoi.State() != grid.Divided {
		return nil, grid.ErrNotDivided
	}

	n := aoi.Len()
	ranges, err := Partition(n, p.workers)
	if err != nil {
		return nil, err
	}

	log := zap.L().With(zap.String("component", "enrich.pool"))
	log.Info("starting enrichment",
		zap.Int("cells", n),
		zap.Int("workers", p.workers),
	)

	start := time.Now()
	failures := make([][]*FetchError, len(ranges))
	populated := make([]int, len(ranges))

	var g errgroup.Group
	for w, r := range ranges {
		if r.Empty() {
			continue
		}
		g.Go(func() error {
			failures[w], populated[w] = p.work(ctx, aoi, r, log.With(zap.Int("worker", w)))
			return nil
		})
	}
	_ = g.Wait()

	report := &Report{
		Total:   n,
		Workers: p.workers,
		Elapsed: time.Since(start),
	}
	for w := range ranges {
		report.Failures = append(report.Failures, failures[w]...)
		report.Populated += populated[w]
	}
	slices.SortFunc(report.Failures, func(a, b *FetchError) int { return a.Index - b.Index })
	p.metrics.runDone()

	log.Info("enrichment complete",
		zap.Int("populated", report.Populated),
		zap.Int("failed", report.Failed()),
		zap.Duration("elapsed", report.Elapsed),
	)
	return report, nil
}

// work processes one range. Only this goroutine touches cells in r.
func (p *Pool) work(ctx context.Context, aoi *grid.AreaOfInterest, r Range, log *zap.Logger) ([]*FetchError, int) {
	var failed []*FetchError
	populated := 0

	for i := r.Start; i < r.End; i++ {
		bbox, err := aoi.CellBBox(i)
		if err != nil {
			failed = append(failed, &FetchError{Index: i, Err: err})
			continue
		}

		begin := time.Now()
		err = p.fetchOne(ctx, aoi, i, bbox)
		p.metrics.observe(err == nil, time.Since(begin))
		if err != nil {
			log.Warn("cell lookup failed",
				zap.Int("cell", i),
				zap.String("bbox", bbox.String()),
				zap.Error(err),
			)
			failed = append(failed, &FetchError{Index: i, BBox: bbox, Err: err})
			continue
		}
		populated++
	}

	log.Debug("worker finished",
		zap.Int("start", r.Start),
		zap.Int("end", r.End),
		zap.Int("failed", len(failed)),
	)
	return failed, populated
}

// fetchOne looks up and records one cell. A panicking fetcher fails only
// this cell.
func (p *Pool) fetchOne(ctx context.Context, aoi *grid.AreaOfInterest, i int, bbox grid.BBox) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = eris.Wrapf(ErrFetcherPanic, "%v", r)
		}
	}()

	if err := ctx.Err(); err != nil {
		return err
	}
	raw, err := p.fetcher.Fetch(ctx, bbox)
	if err != nil {
		return err
	}
	attr, err := ParseAttribute(raw)
	if err != nil {
		return err
	}
	return aoi.SetAttribute(i, attr)
}
