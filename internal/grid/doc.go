// Package grid tessellates a lon/lat area of interest into a row-major grid
// of square cells of a fixed size in meters. Degree/meter conversion uses a
// spherical local approximation that is valid for regional extents.
package grid
