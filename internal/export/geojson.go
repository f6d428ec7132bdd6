package export

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom/encoding/geojson"
	"go.uber.org/zap"

	"github.com/sells-group/soil-explorer/internal/grid"
)

// FeatureCollection converts cells to GeoJSON features. Feature IDs are the
// cell indices.
func FeatureCollection(cells []grid.Cell, crs CRS) *geojson.FeatureCollection {
	fc := &geojson.FeatureCollection{Features: make([]*geojson.Feature, 0, len(cells))}
	for i, c := range cells {
		fc.Features = append(fc.Features, &geojson.Feature{
			ID:       strconv.Itoa(i),
			Geometry: CellPolygon(c, crs.EPSG),
			Properties: map[string]any{
				"index":    i,
				"lon1":     c.Lon1,
				"lat1":     c.Lat1,
				"lon2":     c.Lon2,
				"lat2":     c.Lat2,
				"soiltype": attributeValue(c),
			},
		})
	}
	return fc
}

// GeoJSONExporter writes a FeatureCollection file.
type GeoJSONExporter struct {
	Path string
}

// Export writes the cells.
func (e *GeoJSONExporter) Export(ctx context.Context, cells []grid.Cell, crs CRS) error {
	if e.Path == "" {
		return eris.New("export: geojson path is required")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(FeatureCollection(cells, crs))
	if err != nil {
		return eris.Wrap(err, "export: marshal geojson")
	}
	if err := os.MkdirAll(filepath.Dir(e.Path), 0o755); err != nil {
		return eris.Wrapf(err, "export: create directory for %s", e.Path)
	}
	if err := os.WriteFile(e.Path, data, 0o644); err != nil {
		return eris.Wrapf(err, "export: write %s", e.Path)
	}

	zap.L().Info("export: wrote geojson", zap.String("path", e.Path), zap.Int("cells", len(cells)))
	return nil
}
