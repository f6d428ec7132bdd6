package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/soil-explorer/internal/grid"
)

var gridArea areaFlags

var gridCmd = &cobra.Command{
	Use:   "grid",
	Short: "Divide an area into cells and export them without lookups",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		gridArea.apply(cmd)
		if err := cfg.Validate("grid"); err != nil {
			return err
		}

		bbox, err := parseBBox(gridArea.bbox)
		if err != nil {
			return err
		}
		target, err := resolveTarget(cfg.Export.Format, cfg.Export.CRS, cfg.Export.Path, cfg.Export.Table)
		if err != nil {
			return err
		}

		aoi, err := grid.NewFromBBox(bbox, cfg.Grid.Resolution)
		if err != nil {
			return err
		}
		aoi.MaxCells = cfg.Grid.MaxCells
		if err := aoi.Divide(); err != nil {
			return eris.Wrap(err, "divide")
		}
		cols, rows := aoi.Dimensions()

		exporter, closeFn, err := newExporter(ctx, target, uuid.New().String())
		if err != nil {
			return err
		}
		defer closeFn()
		if err := exporter.Export(ctx, aoi.Cells(), target.CRS); err != nil {
			return eris.Wrap(err, "export")
		}

		zap.L().Info("grid exported",
			zap.Int("cols", cols),
			zap.Int("rows", rows),
			zap.String("output", target.Output),
		)
		fmt.Fprintf(os.Stdout, "%d cells (%d x %d) written to %s\n", aoi.Len(), cols, rows, target.Output)
		return nil
	},
}

func init() {
	gridArea.register(gridCmd)
	rootCmd.AddCommand(gridCmd)
}
