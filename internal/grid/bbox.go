package grid

import (
	"fmt"
	"strconv"
)

// BBox is a lon/lat bounding box given by two corners.
type BBox struct {
	Lon1 float64 `json:"lon1"`
	Lat1 float64 `json:"lat1"`
	Lon2 float64 `json:"lon2"`
	Lat2 float64 `json:"lat2"`
}

// Contains reports whether o lies entirely inside b. Both boxes are
// normalized first so corner order does not matter.
func (b BBox) Contains(o BBox) bool {
	bn, on := b.Normalize(), o.Normalize()
	return bn.Lon1 <= on.Lon1 && bn.Lat1 <= on.Lat1 &&
		bn.Lon2 >= on.Lon2 && bn.Lat2 >= on.Lat2
}

// Normalize returns the box with (Lon1, Lat1) as the lower-left corner.
func (b BBox) Normalize() BBox {
	if b.Lon1 > b.Lon2 {
		b.Lon1, b.Lon2 = b.Lon2, b.Lon1
	}
	if b.Lat1 > b.Lat2 {
		b.Lat1, b.Lat2 = b.Lat2, b.Lat1
	}
	return b
}

// Ring returns the closed polygon ring for the box in the winding
// (lon1,lat1), (lon2,lat1), (lon2,lat2), (lon1,lat2).
func (b BBox) Ring() [][2]float64 {
	return [][2]float64{
		{b.Lon1, b.Lat1},
		{b.Lon2, b.Lat1},
		{b.Lon2, b.Lat2},
		{b.Lon1, b.Lat2},
		{b.Lon1, b.Lat1},
	}
}

// String formats the box as "lon1,lat1,lon2,lat2", the form lookup services
// take as a bbox query parameter.
func (b BBox) String() string {
	return fmt.Sprintf("%s,%s,%s,%s",
		formatCoord(b.Lon1), formatCoord(b.Lat1),
		formatCoord(b.Lon2), formatCoord(b.Lat2))
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
