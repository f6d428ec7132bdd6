package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/soil-explorer/internal/export"
	"github.com/sells-group/soil-explorer/internal/jobfile"
)

func TestBatchSpecs_FallsBackToConfig(t *testing.T) {
	useTestConfig(t)

	file, err := jobfile.Parse([]byte(`
jobs:
  - name: yolo
    bbox: [-121.8, 38.5, -121.7, 38.6]
    output: out/yolo.geojson
  - name: davis
    bbox: [-121.76, 38.53, -121.72, 38.56]
    resolution: 50
    workers: 16
    format: shp
    crs: wgs84
    output: out/davis.shp
`))
	require.NoError(t, err)

	specs, err := batchSpecs(file)
	require.NoError(t, err)
	require.Len(t, specs, 2)

	assert.Equal(t, "yolo", specs[0].Name)
	assert.InDelta(t, 250.0, specs[0].Resolution, 0.001)
	assert.Equal(t, 3, specs[0].Workers)
	assert.Equal(t, export.FormatGeoJSON, specs[0].Target.Format)
	assert.Equal(t, 4269, specs[0].Target.CRS.EPSG)
	assert.Equal(t, "out/yolo.geojson", specs[0].Target.Output)
	assert.Equal(t, 1000, specs[0].MaxCells)

	assert.InDelta(t, 50.0, specs[1].Resolution, 0.001)
	assert.Equal(t, 16, specs[1].Workers)
	assert.Equal(t, export.FormatShapefile, specs[1].Target.Format)
	assert.Equal(t, 4326, specs[1].Target.CRS.EPSG)
}

func TestBatchSpecs_InvalidFormat(t *testing.T) {
	useTestConfig(t)

	file, err := jobfile.Parse([]byte(`
jobs:
  - name: bad
    bbox: [0, 0, 1, 1]
    format: kml
    output: out/bad.kml
`))
	require.NoError(t, err)

	_, err = batchSpecs(file)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "job bad")
}
