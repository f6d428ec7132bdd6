package main

import (
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/soil-explorer/internal/enrich"
)

var (
	runArea    areaFlags
	runName    string
	runWorkers int
	runNoCache bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Divide an area, look up the soil map unit of every cell, and export",
	Example: `  soil-explorer run --bbox -121.8,38.5,-121.7,38.6 --resolution 250 --workers 8 --out yolo.shp
  soil-explorer run --bbox -121.8,38.5,-121.7,38.6 --format postgis --out soil.cells`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		runArea.apply(cmd)
		if cmd.Flags().Changed("workers") {
			cfg.Enrich.Workers = runWorkers
		}
		if err := cfg.Validate("run"); err != nil {
			return err
		}

		bbox, err := parseBBox(runArea.bbox)
		if err != nil {
			return err
		}
		target, err := resolveTarget(cfg.Export.Format, cfg.Export.CRS, cfg.Export.Path, cfg.Export.Table)
		if err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		fetcher, err := initFetcher(st, cfg.Store.Cache && !runNoCache)
		if err != nil {
			return err
		}

		runner := &jobRunner{store: st, fetcher: fetcher}
		run, report, err := runner.run(ctx, jobSpec{
			Name:       runName,
			BBox:       bbox,
			Resolution: cfg.Grid.Resolution,
			Workers:    cfg.Enrich.Workers,
			MaxCells:   cfg.Grid.MaxCells,
			Target:     target,
		})
		if err != nil {
			return eris.Wrap(err, "run")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(runSummary(run.ID, target.Output, report))
	},
}

type summary struct {
	RunID     string        `json:"run_id"`
	Output    string        `json:"output"`
	Cells     int           `json:"cells"`
	Populated int           `json:"populated"`
	Failed    int           `json:"failed"`
	Failures  []cellFailure `json:"failures,omitempty"`
	Elapsed   string        `json:"elapsed"`
}

type cellFailure struct {
	Index int    `json:"index"`
	BBox  string `json:"bbox"`
	Error string `json:"error"`
}

func runSummary(runID, output string, report *enrich.Report) summary {
	s := summary{
		RunID:     runID,
		Output:    output,
		Cells:     report.Total,
		Populated: report.Populated,
		Failed:    report.Failed(),
		Elapsed:   report.Elapsed.String(),
	}
	for _, f := range report.Failures {
		s.Failures = append(s.Failures, cellFailure{Index: f.Index, BBox: f.BBox.String(), Error: f.Err.Error()})
	}
	return s
}

func init() {
	runArea.register(runCmd)
	runCmd.Flags().StringVar(&runName, "name", "", "label recorded with the run")
	runCmd.Flags().IntVar(&runWorkers, "workers", 0, "parallel lookup workers (default from config)")
	runCmd.Flags().BoolVar(&runNoCache, "no-cache", false, "bypass the local lookup cache")
	rootCmd.AddCommand(runCmd)
}
