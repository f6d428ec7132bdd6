package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/soil-explorer/internal/store"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect run history",
	Long:  "Commands for listing, viewing, and re-exporting recorded runs.",
}

// -- runs list --

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent runs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("runs"); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		status, _ := cmd.Flags().GetString("status")
		limit, _ := cmd.Flags().GetInt("limit")

		runs, err := st.ListRuns(ctx, store.RunFilter{
			Status: store.RunStatus(status),
			Limit:  limit,
		})
		if err != nil {
			return eris.Wrap(err, "runs list")
		}

		if len(runs) == 0 {
			fmt.Fprintln(os.Stderr, "No runs found.")
			return nil
		}

		formatRunsList(os.Stdout, runs)
		return nil
	},
}

// -- runs show --

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show full details of a run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("runs"); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		run, err := st.GetRun(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "runs show")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(run)
	},
}

// -- runs export --

var runsExportCmd = &cobra.Command{
	Use:   "export <run-id>",
	Short: "Write the stored cells of a run to a new output",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("runs"); err != nil {
			return err
		}

		format, _ := cmd.Flags().GetString("format")
		crs, _ := cmd.Flags().GetString("crs")
		out, _ := cmd.Flags().GetString("out")
		if format == "" {
			format = cfg.Export.Format
		}
		if crs == "" {
			crs = cfg.Export.CRS
		}
		target, err := resolveTarget(format, crs, out, out)
		if err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		run, err := st.GetRun(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "runs export")
		}
		cells, err := st.GetCells(ctx, run.ID)
		if err != nil {
			return eris.Wrap(err, "runs export")
		}

		exporter, closeFn, err := newExporter(ctx, target, run.ID)
		if err != nil {
			return err
		}
		defer closeFn()
		if err := exporter.Export(ctx, cells, target.CRS); err != nil {
			return eris.Wrap(err, "runs export")
		}

		fmt.Fprintf(os.Stdout, "%d cells written to %s\n", len(cells), target.Output)
		return nil
	},
}

func init() {
	runsListCmd.Flags().String("status", "", "filter by run status (running, complete, partial, failed)")
	runsListCmd.Flags().Int("limit", 50, "max number of runs to display")

	runsExportCmd.Flags().String("format", "", "output format (default from config)")
	runsExportCmd.Flags().String("crs", "", "spatial reference (default from config)")
	runsExportCmd.Flags().String("out", "", "output path, or table name for postgis (required)")
	_ = runsExportCmd.MarkFlagRequired("out")

	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsShowCmd)
	runsCmd.AddCommand(runsExportCmd)
	rootCmd.AddCommand(runsCmd)
}

// formatRunsList writes a tabular list of runs to w.
func formatRunsList(out io.Writer, runs []store.Run) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tNAME\tSTATUS\tCELLS\tFAILED\tRES_M\tCREATED\tDURATION")
	_, _ = fmt.Fprintln(w, "--\t----\t------\t-----\t------\t-----\t-------\t--------")

	for _, r := range runs {
		dur := r.UpdatedAt.Sub(r.CreatedAt).Round(time.Second).String()

		name := r.Name
		if name == "" {
			name = r.AOI.String()
		}
		if len(name) > 30 {
			name = name[:27] + "..."
		}

		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%g\t%s\t%s\n",
			truncateID(r.ID),
			name,
			r.Status,
			r.Cells,
			r.Failed,
			r.Resolution,
			r.CreatedAt.Format("2006-01-02 15:04"),
			dur,
		)
	}
	_ = w.Flush()
}

// truncateID returns the first 8 characters of a UUID for compact display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
