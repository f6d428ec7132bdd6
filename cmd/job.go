package main

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/soil-explorer/internal/enrich"
	"github.com/sells-group/soil-explorer/internal/grid"
	"github.com/sells-group/soil-explorer/internal/store"
)

// jobSpec is one divide, enrich, export request.
type jobSpec struct {
	Name       string
	BBox       grid.BBox
	Resolution float64
	Workers    int
	MaxCells   int // 0 means grid.DefaultMaxCells
	Target     exportTarget
}

// jobRunner executes jobs against a store and fetcher. It is shared by the
// run, batch and serve commands.
type jobRunner struct {
	store   store.Store
	fetcher enrich.Fetcher
	metrics *enrich.Metrics // optional
}

// run executes a job to completion.
func (r *jobRunner) run(ctx context.Context, spec jobSpec) (*store.Run, *enrich.Report, error) {
	run, aoi, err := r.start(ctx, spec)
	if err != nil {
		return nil, nil, err
	}
	report, err := r.process(ctx, run, aoi, spec)
	return run, report, err
}

// start validates the area and records a running run.
func (r *jobRunner) start(ctx context.Context, spec jobSpec) (*store.Run, *grid.AreaOfInterest, error) {
	aoi, err := grid.NewFromBBox(spec.BBox, spec.Resolution)
	if err != nil {
		return nil, nil, err
	}
	aoi.MaxCells = spec.MaxCells
	if _, _, err := aoi.PlannedDimensions(); err != nil {
		return nil, nil, err
	}
	run, err := r.store.CreateRun(ctx, store.RunSpec{
		Name:       spec.Name,
		AOI:        aoi.BBox(),
		Resolution: spec.Resolution,
		Workers:    spec.Workers,
	})
	if err != nil {
		return nil, nil, eris.Wrap(err, "create run")
	}
	return run, aoi, nil
}

// process divides, enriches, stores and exports. Any error after the run
// was recorded marks it failed.
func (r *jobRunner) process(ctx context.Context, run *store.Run, aoi *grid.AreaOfInterest, spec jobSpec) (*enrich.Report, error) {
	log := zap.L().With(zap.String("run_id", run.ID), zap.String("name", spec.Name))

	report, err := r.enrich(ctx, run, aoi, spec)
	if err != nil {
		if ferr := r.store.FailRun(context.WithoutCancel(ctx), run.ID, err); ferr != nil {
			log.Warn("record run failure", zap.Error(ferr))
		}
		return report, err
	}

	if err := r.store.CompleteRun(ctx, run.ID, report); err != nil {
		return report, eris.Wrap(err, "complete run")
	}
	log.Info("run finished",
		zap.String("status", string(store.StatusFor(report))),
		zap.Int("cells", report.Total),
		zap.Int("populated", report.Populated),
		zap.Int("failed", report.Failed()),
		zap.Duration("elapsed", report.Elapsed),
	)
	return report, nil
}

func (r *jobRunner) enrich(ctx context.Context, run *store.Run, aoi *grid.AreaOfInterest, spec jobSpec) (*enrich.Report, error) {
	if err := aoi.Divide(); err != nil {
		return nil, eris.Wrap(err, "divide")
	}
	cols, rows := aoi.Dimensions()
	zap.L().Info("area divided",
		zap.String("run_id", run.ID),
		zap.Int("cols", cols),
		zap.Int("rows", rows),
	)

	pool, err := enrich.NewPool(r.fetcher, enrich.Options{Workers: spec.Workers, Metrics: r.metrics})
	if err != nil {
		return nil, err
	}
	report, err := pool.Run(ctx, aoi)
	if err != nil {
		return nil, eris.Wrap(err, "enrich")
	}
	if err := ctx.Err(); err != nil {
		return report, eris.Wrap(err, "enrich interrupted")
	}

	cells := aoi.Cells()
	if err := r.store.SaveCells(ctx, run.ID, cells); err != nil {
		return report, eris.Wrap(err, "save cells")
	}

	exporter, closeFn, err := newExporter(ctx, spec.Target, run.ID)
	if err != nil {
		return report, err
	}
	defer closeFn()
	if err := exporter.Export(ctx, cells, spec.Target.CRS); err != nil {
		return report, eris.Wrap(err, "export")
	}
	return report, nil
}
