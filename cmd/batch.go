package main

import (
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/soil-explorer/internal/jobfile"
)

var (
	batchFile     string
	batchNoCache  bool
	batchFailFast bool
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Run every job in a YAML batch file",
	Long:  "Runs the jobs of a batch file one after another. Each job divides its own area, looks up every cell and writes its own output.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("batch"); err != nil {
			return err
		}

		file, err := jobfile.Load(batchFile)
		if err != nil {
			return err
		}
		specs, err := batchSpecs(file)
		if err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		fetcher, err := initFetcher(st, cfg.Store.Cache && !batchNoCache)
		if err != nil {
			return err
		}
		runner := &jobRunner{store: st, fetcher: fetcher}

		log := zap.L().With(zap.String("command", "batch"))
		var summaries []summary
		var failed int
		for _, spec := range specs {
			if ctx.Err() != nil {
				break
			}
			run, report, err := runner.run(ctx, spec)
			if err != nil {
				failed++
				log.Error("job failed", zap.String("job", spec.Name), zap.Error(err))
				if batchFailFast {
					return eris.Wrapf(err, "job %s", spec.Name)
				}
				continue
			}
			summaries = append(summaries, runSummary(run.ID, spec.Target.Output, report))
		}

		log.Info("batch complete",
			zap.Int("jobs", len(specs)),
			zap.Int("succeeded", len(summaries)),
			zap.Int("failed", failed),
		)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(summaries); err != nil {
			return err
		}
		if failed > 0 {
			return eris.Errorf("%d of %d jobs failed", failed, len(specs))
		}
		return ctx.Err()
	},
}

// batchSpecs resolves every job against config defaults before anything runs.
func batchSpecs(file *jobfile.File) ([]jobSpec, error) {
	specs := make([]jobSpec, 0, len(file.Jobs))
	for _, j := range file.Jobs {
		resolution := j.Resolution
		if resolution == 0 {
			resolution = cfg.Grid.Resolution
		}
		workers := j.Workers
		if workers == 0 {
			workers = cfg.Enrich.Workers
		}
		format := j.Format
		if format == "" {
			format = cfg.Export.Format
		}
		crs := j.CRS
		if crs == "" {
			crs = cfg.Export.CRS
		}
		target, err := resolveTarget(format, crs, j.Output, j.Output)
		if err != nil {
			return nil, eris.Wrapf(err, "job %s", j.Name)
		}
		specs = append(specs, jobSpec{
			Name:       j.Name,
			BBox:       j.Extent(),
			Resolution: resolution,
			Workers:    workers,
			MaxCells:   cfg.Grid.MaxCells,
			Target:     target,
		})
	}
	return specs, nil
}

func init() {
	batchCmd.Flags().StringVar(&batchFile, "file", "jobs.yaml", "batch file path")
	batchCmd.Flags().BoolVar(&batchNoCache, "no-cache", false, "bypass the local lookup cache")
	batchCmd.Flags().BoolVar(&batchFailFast, "fail-fast", false, "stop at the first failed job")
	rootCmd.AddCommand(batchCmd)
}
