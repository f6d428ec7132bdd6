package export

import (
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"

	"github.com/sells-group/soil-explorer/internal/grid"
)

// CellPolygon builds the cell's polygon with the ring
// (lon1,lat1), (lon2,lat1), (lon2,lat2), (lon1,lat2), closed.
func CellPolygon(c grid.Cell, srid int) *geom.Polygon {
	ring := c.Ring()
	flat := make([]float64, 0, len(ring)*2)
	for _, p := range ring {
		flat = append(flat, p[0], p[1])
	}
	return geom.NewPolygonFlat(geom.XY, flat, []int{len(flat)}).SetSRID(srid)
}

// EncodeEWKB returns the cell polygon as little-endian EWKB carrying srid.
func EncodeEWKB(c grid.Cell, srid int) ([]byte, error) {
	data, err := ewkb.Marshal(CellPolygon(c, srid), ewkb.NDR)
	if err != nil {
		return nil, eris.Wrap(err, "export: encode EWKB")
	}
	return data, nil
}
