package export

import (
	"context"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"

	"github.com/sells-group/soil-explorer/internal/grid"
)

var xlsxHeader = []string{"INDEX", "LON1", "LAT1", "LON2", "LAT2", AttributeField}

// XLSXExporter writes the attribute table of the cells to a spreadsheet, one
// row per cell after a header row.
type XLSXExporter struct {
	Path  string
	Sheet string // default "cells"
}

// Export writes the cells.
func (e *XLSXExporter) Export(ctx context.Context, cells []grid.Cell, crs CRS) error {
	if e.Path == "" {
		return eris.New("export: xlsx path is required")
	}
	sheetName := e.Sheet
	if sheetName == "" {
		sheetName = "cells"
	}

	f := xlsx.NewFile()
	sheet, err := f.AddSheet(sheetName)
	if err != nil {
		return eris.Wrapf(err, "export: add sheet %s", sheetName)
	}

	header := sheet.AddRow()
	for _, h := range xlsxHeader {
		header.AddCell().SetString(h)
	}

	for i, c := range cells {
		if i%1000 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		row := sheet.AddRow()
		row.AddCell().SetInt(i)
		for _, v := range []float64{c.Lon1, c.Lat1, c.Lon2, c.Lat2} {
			row.AddCell().SetFloat(v)
		}
		attr := row.AddCell()
		if c.HasAttribute {
			attr.SetString(c.Attribute)
		}
	}

	if err := os.MkdirAll(filepath.Dir(e.Path), 0o755); err != nil {
		return eris.Wrapf(err, "export: create directory for %s", e.Path)
	}
	if err := f.Save(e.Path); err != nil {
		return eris.Wrapf(err, "export: save %s", e.Path)
	}

	zap.L().Info("export: wrote spreadsheet",
		zap.String("path", e.Path),
		zap.Int("cells", len(cells)),
		zap.String("crs", crs.Name),
	)
	return nil
}
