package export

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"
)

func TestXLSXExporter_Export(t *testing.T) {
	path := filepath.Join(t.TempDir(), "soils.xlsx")
	require.NoError(t, (&XLSXExporter{Path: path}).Export(context.Background(), sampleCells(), NAD83))

	f, err := xlsx.OpenFile(path)
	require.NoError(t, err)
	sheet, ok := f.Sheet["cells"]
	require.True(t, ok)
	require.Len(t, sheet.Rows, 4)

	header := make([]string, 0, len(xlsxHeader))
	for _, c := range sheet.Rows[0].Cells {
		header = append(header, c.String())
	}
	assert.Equal(t, xlsxHeader, header)

	row := sheet.Rows[3].Cells
	assert.Equal(t, "2", row[0].String())
	lon1, err := row[1].Float()
	require.NoError(t, err)
	assert.InDelta(t, -121.0, lon1, 1e-12)
	lat2, err := row[4].Float()
	require.NoError(t, err)
	assert.InDelta(t, 38.02, lat2, 1e-12)
	assert.Equal(t, "Capay", row[5].String())

	unset := sheet.Rows[2].Cells
	if len(unset) > 5 {
		assert.Empty(t, unset[5].String())
	}
}

func TestXLSXExporter_SheetName(t *testing.T) {
	path := filepath.Join(t.TempDir(), "soils.xlsx")
	require.NoError(t, (&XLSXExporter{Path: path, Sheet: "yolo"}).Export(context.Background(), sampleCells(), NAD83))

	f, err := xlsx.OpenFile(path)
	require.NoError(t, err)
	_, ok := f.Sheet["yolo"]
	assert.True(t, ok)
}
