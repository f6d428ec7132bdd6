// Package soilweb looks up the soil map unit covering a bounding box from the
// UC Davis SoilWeb reflector API. A lookup is two requests: the bbox query
// returns a page whose first link points at the map unit report, and the
// report's second table holds the map unit records.
package soilweb
