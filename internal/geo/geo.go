// Package geo validates and projects device coordinates.
//
// Telemetry coordinates arrive as WGS84 (EPSG:4326) decimal degrees and
// are untrusted. Marker output for slippy-map consumers additionally
// carries a Web-Mercator (EPSG:3857) projection, computed here.
package geo

import (
	"errors"
	"math"

	geom "github.com/peterstace/simplefeatures/geom"
	"github.com/wroge/wgs84"
)

// ErrInvalidCoordinates is returned when the coordinates are invalid
var ErrInvalidCoordinates = errors.New("invalid coordinates provided")

// CoordEpsilon is the comparison quantum for positions, roughly 0.11 m
// at the equator. Two coordinates closer than this are the same position
// for diffing purposes.
const CoordEpsilon = 1e-6

// ValidCoordinates reports whether lat/lon are finite and inside the
// WGS84 domain.
func ValidCoordinates(lat, lon float64) bool {
	if math.IsNaN(lat) || math.IsInf(lat, 0) {
		return false
	}
	if math.IsNaN(lon) || math.IsInf(lon, 0) {
		return false
	}
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}

// SamePosition reports whether two coordinate pairs are within
// CoordEpsilon of each other on both axes.
func SamePosition(aLat, aLon, bLat, bLon float64) bool {
	return math.Abs(aLat-bLat) < CoordEpsilon && math.Abs(aLon-bLon) < CoordEpsilon
}

// Quantize snaps a coordinate to the CoordEpsilon grid so that
// signatures over positions are stable against sub-epsilon jitter.
func Quantize(deg float64) float64 {
	return math.Round(deg/CoordEpsilon) * CoordEpsilon
}

// Mercator transforms a WGS84 lat/lon into EPSG:3857 X/Y metres.
func Mercator(lat, lon float64) (x, y float64, err error) {
	if !ValidCoordinates(lat, lon) {
		return 0, 0, ErrInvalidCoordinates
	}
	epsg := wgs84.EPSG()
	f := epsg.Transform(4326, 3857)
	x, y, _ = f(lon, lat, 0)
	return x, y, nil
}

// MercatorPoint builds an EPSG:3857 point geometry from a WGS84 lat/lon.
// Used where downstream consumers want a simplefeatures geometry rather
// than raw coordinates.
func MercatorPoint(lat, lon float64) (geom.Point, error) {
	x, y, err := Mercator(lat, lon)
	if err != nil {
		return geom.Point{}, err
	}
	point, err := geom.NewPoint(
		geom.Coordinates{
			XY: geom.XY{X: x, Y: y},
		},
	)
	if err != nil {
		return geom.Point{}, err
	}
	return point, nil
}
