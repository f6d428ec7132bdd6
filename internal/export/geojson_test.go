package export

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFeatureCollection(t *testing.T) {
	fc := FeatureCollection(sampleCells(), WGS84)
	require.Len(t, fc.Features, 3)

	f := fc.Features[2]
	assert.Equal(t, "2", f.ID)
	assert.Equal(t, 2, f.Properties["index"])
	assert.Equal(t, "Capay", f.Properties["soiltype"])
	assert.Nil(t, fc.Features[1].Properties["soiltype"])
}

func TestGeoJSONExporter_Export(t *testing.T) {
	path := filepath.Join(t.TempDir(), "soils.geojson")
	require.NoError(t, (&GeoJSONExporter{Path: path}).Export(context.Background(), sampleCells(), WGS84))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var doc struct {
		Type     string `json:"type"`
		Features []struct {
			Geometry struct {
				Type        string         `json:"type"`
				Coordinates [][][2]float64 `json:"coordinates"`
			} `json:"geometry"`
			Properties map[string]any `json:"properties"`
		} `json:"features"`
	}
	require.NoError(t, json.Unmarshal(data, &doc))

	assert.Equal(t, "FeatureCollection", doc.Type)
	require.Len(t, doc.Features, 3)
	assert.Equal(t, "Polygon", doc.Features[0].Geometry.Type)
	require.Len(t, doc.Features[0].Geometry.Coordinates, 1)
	assert.Equal(t, [2]float64{-121, 38}, doc.Features[0].Geometry.Coordinates[0][0])
	assert.Equal(t, "Yolo", doc.Features[0].Properties["soiltype"])
}

func TestGeoJSONExporter_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	path := filepath.Join(t.TempDir(), "soils.geojson")
	err := (&GeoJSONExporter{Path: path}).Export(ctx, sampleCells(), WGS84)
	assert.ErrorIs(t, err, context.Canceled)
}
