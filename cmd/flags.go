package main

import (
	"github.com/spf13/cobra"
)

// areaFlags are the flags shared by commands that divide and export an area.
type areaFlags struct {
	bbox       string
	resolution float64
	format     string
	crs        string
	out        string
}

func (f *areaFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.bbox, "bbox", "", "area of interest as lon1,lat1,lon2,lat2 (required)")
	cmd.Flags().Float64Var(&f.resolution, "resolution", 0, "cell side in meters (default from config)")
	cmd.Flags().StringVar(&f.format, "format", "", "output format: shp, geojson, xlsx, postgis (default from config)")
	cmd.Flags().StringVar(&f.crs, "crs", "", "spatial reference, e.g. \"NAD 1983\" or EPSG:4326 (default from config)")
	cmd.Flags().StringVar(&f.out, "out", "", "output path, or table name for postgis (default from config)")
	_ = cmd.MarkFlagRequired("bbox")
}

// apply lets explicitly set flags override config values.
func (f *areaFlags) apply(cmd *cobra.Command) {
	flags := cmd.Flags()
	if flags.Changed("resolution") {
		cfg.Grid.Resolution = f.resolution
	}
	if flags.Changed("format") {
		cfg.Export.Format = f.format
	}
	if flags.Changed("crs") {
		cfg.Export.CRS = f.crs
	}
	if flags.Changed("out") {
		cfg.Export.Path = f.out
		cfg.Export.Table = f.out
	}
}
