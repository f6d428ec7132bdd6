package export

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/soil-explorer/internal/grid"
)

// attributeWidth is the dBASE character field limit.
const attributeWidth = 254

// ShapefileExporter writes one polygon per cell to an ESRI shapefile with a
// SOILTYPE text field and a .prj sidecar.
type ShapefileExporter struct {
	Path string // .shp path; .shx, .dbf and .prj are written next to it
}

// Export writes the cells. Rings are written clockwise as the shapefile
// format requires for outer rings.
func (e *ShapefileExporter) Export(ctx context.Context, cells []grid.Cell, crs CRS) error {
	if e.Path == "" {
		return eris.New("export: shapefile path is required")
	}
	if err := os.MkdirAll(filepath.Dir(e.Path), 0o755); err != nil {
		return eris.Wrapf(err, "export: create directory for %s", e.Path)
	}

	w, err := shp.Create(e.Path, shp.POLYGON)
	if err != nil {
		return eris.Wrapf(err, "export: create shapefile %s", e.Path)
	}
	defer w.Close()

	if err := w.SetFields([]shp.Field{shp.StringField(AttributeField, attributeWidth)}); err != nil {
		return eris.Wrap(err, "export: set shapefile fields")
	}

	for i, c := range cells {
		if i%1000 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		row := w.Write(shapePolygon(c))
		value := ""
		if c.HasAttribute {
			value = truncate(c.Attribute, attributeWidth)
		}
		if err := w.WriteAttribute(int(row), 0, value); err != nil {
			return eris.Wrapf(err, "export: write attribute for cell %d", i)
		}
	}

	if err := writePRJ(e.Path, crs); err != nil {
		return err
	}

	zap.L().Info("export: wrote shapefile",
		zap.String("path", e.Path),
		zap.Int("cells", len(cells)),
		zap.String("crs", crs.Name),
	)
	return nil
}

func shapePolygon(c grid.Cell) *shp.Polygon {
	ring := c.Ring()
	points := make([]shp.Point, 0, len(ring))
	for i := len(ring) - 1; i >= 0; i-- {
		points = append(points, shp.Point{X: ring[i][0], Y: ring[i][1]})
	}
	poly := shp.Polygon(*shp.NewPolyLine([][]shp.Point{points}))
	return &poly
}

// writePRJ writes the spatial reference sidecar. go-shp has no support for
// .prj files, which hold a single WKT string.
func writePRJ(shpPath string, crs CRS) error {
	if crs.WKT == "" {
		return nil
	}
	prj := strings.TrimSuffix(shpPath, filepath.Ext(shpPath)) + ".prj"
	if err := os.WriteFile(prj, []byte(crs.WKT), 0o644); err != nil {
		return eris.Wrapf(err, "export: write %s", prj)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
