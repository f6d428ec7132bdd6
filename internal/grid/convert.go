package grid

import (
	"math"

	"github.com/rotisserie/eris"
)

const (
	// KMPerLonDegreeEquator is the length of one degree of longitude at the equator.
	KMPerLonDegreeEquator = 111.20
	// EarthCircumferenceKM is the meridional circumference used for the latitude scale.
	EarthCircumferenceKM = 40030.8
)

// Axis selects which degree scale a conversion applies to.
type Axis int

const (
	// Lon converts along the east-west axis; the scale shrinks with cos(latitude).
	Lon Axis = iota + 1
	// Lat converts along the north-south axis; the scale is constant.
	Lat
)

// String returns the short axis name.
func (a Axis) String() string {
	switch a {
	case Lon:
		return "lon"
	case Lat:
		return "lat"
	default:
		return "unknown"
	}
}

// ErrConversionUnit is returned when a conversion is asked for an axis outside
// the Lon/Lat enumeration.
var ErrConversionUnit = eris.New("grid: unknown conversion axis")

// MidLatitude returns the reference latitude used for both conversions: the
// mean of the absolute latitudes of the two corners.
func MidLatitude(lat1, lat2 float64) float64 {
	return (math.Abs(lat1) + math.Abs(lat2)) / 2.0
}

func lonMetersPerDegree(midLat float64) float64 {
	return KMPerLonDegreeEquator * math.Cos(radians(midLat)) * 1000
}

func latMetersPerDegree() float64 {
	return EarthCircumferenceKM / 360.0 * 1000
}

// ToEuclideanDistance converts the degree spans of a bounding box into
// approximate meters using a flat local projection around midLat.
// Accuracy degrades for boxes spanning large latitude ranges or near the poles.
func ToEuclideanDistance(b BBox, midLat float64) (lonMeters, latMeters float64) {
	lonMeters = math.Abs(b.Lon2-b.Lon1) * lonMetersPerDegree(midLat)
	latMeters = math.Abs(b.Lat2-b.Lat1) * latMetersPerDegree()
	return lonMeters, latMeters
}

// ToDegrees converts a distance in meters along axis into degrees at midLat.
func ToDegrees(meters float64, axis Axis, midLat float64) (float64, error) {
	switch axis {
	case Lon:
		return meters / lonMetersPerDegree(midLat), nil
	case Lat:
		return meters / latMetersPerDegree(), nil
	default:
		return 0, eris.Wrapf(ErrConversionUnit, "axis %d", int(axis))
	}
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180.0
}
