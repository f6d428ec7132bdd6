// Package export writes a tessellated, enriched cell sequence to persistent
// feature stores: shapefiles, GeoJSON, spreadsheets, and PostGIS. Every
// exporter writes one record per cell in the order of the input sequence,
// so record i always describes cell i.
package export

import (
	"context"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/soil-explorer/internal/grid"
)

// AttributeField is the name of the text field holding each cell's attribute.
const AttributeField = "SOILTYPE"

// Exporter persists cells in input order.
type Exporter interface {
	Export(ctx context.Context, cells []grid.Cell, crs CRS) error
}

// CRS identifies a geographic coordinate reference system.
type CRS struct {
	Name string
	EPSG int
	WKT  string // ESRI WKT written to .prj sidecars
}

var (
	// NAD83 is the North American Datum 1983 geographic system.
	NAD83 = CRS{
		Name: "NAD 1983",
		EPSG: 4269,
		WKT:  `GEOGCS["GCS_North_American_1983",DATUM["D_North_American_1983",SPHEROID["GRS_1980",6378137.0,298.257222101]],PRIMEM["Greenwich",0.0],UNIT["Degree",0.0174532925199433]]`,
	}
	// WGS84 is the World Geodetic System 1984 geographic system.
	WGS84 = CRS{
		Name: "WGS 1984",
		EPSG: 4326,
		WKT:  `GEOGCS["GCS_WGS_1984",DATUM["D_WGS_1984",SPHEROID["WGS_1984",6378137.0,298.257223563]],PRIMEM["Greenwich",0.0],UNIT["Degree",0.0174532925199433]]`,
	}
)

// ParseCRS accepts a name ("NAD 1983", "nad83", "wgs84") or EPSG code
// ("EPSG:4269", "4326").
func ParseCRS(s string) (CRS, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	key = strings.TrimPrefix(key, "epsg:")
	key = strings.NewReplacer(" ", "", "_", "", "-", "").Replace(key)

	switch key {
	case "nad1983", "nad83", "4269":
		return NAD83, nil
	case "wgs1984", "wgs84", "4326":
		return WGS84, nil
	}
	if code, err := strconv.Atoi(key); err == nil {
		return CRS{}, eris.Errorf("export: unsupported EPSG code %d (supported: 4269, 4326)", code)
	}
	return CRS{}, eris.Errorf("export: unknown spatial reference %q", s)
}

// Format names an output kind.
type Format string

const (
	FormatShapefile Format = "shp"
	FormatGeoJSON   Format = "geojson"
	FormatXLSX      Format = "xlsx"
	FormatPostGIS   Format = "postgis"
)

// ParseFormat validates an output format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatShapefile, FormatGeoJSON, FormatXLSX, FormatPostGIS:
		return f, nil
	case "shapefile":
		return FormatShapefile, nil
	default:
		return "", eris.Errorf("export: unknown format %q (valid: shp, geojson, xlsx, postgis)", s)
	}
}

// attributeValue returns the cell attribute or nil when it was never set.
func attributeValue(c grid.Cell) any {
	if !c.HasAttribute {
		return nil
	}
	return c.Attribute
}
