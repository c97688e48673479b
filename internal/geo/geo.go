// Package geo holds the geometry primitives shared by the spatial index and
// trip matching: geodesic measurement, a local meter-based projection, gap
// splitting of GPS tracks, and decoding of the trip geometry shapes that
// appear in stored trip documents.
package geo

import (
	"math"

	"github.com/paulmach/orb"
	orbgeo "github.com/paulmach/orb/geo"
)

// MetersPerDegree is the coarse degrees↔meters conversion used only for
// bounding-box padding ahead of R-tree candidate queries. Precise distance
// work always happens in a projected meter frame.
const MetersPerDegree = 111139.0

// MetersPerMile converts street lengths between the stored mile unit and the
// meter frame the matcher works in.
const MetersPerMile = 1609.344

// Distance returns the geodesic distance between two WGS84 points in meters.
func Distance(a, b orb.Point) float64 {
	return orbgeo.Distance(a, b)
}

// LineLengthMeters returns the geodesic length of a WGS84 line in meters.
func LineLengthMeters(line orb.LineString) float64 {
	return orbgeo.Length(line)
}

// Projection converts a point between coordinate frames.
type Projection func(orb.Point) orb.Point

// LocalProjection is an equidistant projection centered on a fixed origin.
// Within a city-scale coverage area the distortion is negligible, and one
// shared origin lets every segment in an area index live in the same meter
// frame without re-deriving a projection per query.
type LocalProjection struct {
	origin orb.Point
	cosLat float64
}

// NewLocalProjection builds a projection centered on origin (WGS84).
func NewLocalProjection(origin orb.Point) *LocalProjection {
	return &LocalProjection{
		origin: origin,
		cosLat: math.Cos(origin.Lat() * math.Pi / 180),
	}
}

// ToMeters projects a WGS84 point into the local meter frame.
func (p *LocalProjection) ToMeters(pt orb.Point) orb.Point {
	return orb.Point{
		(pt.Lon() - p.origin.Lon()) * p.cosLat * MetersPerDegree,
		(pt.Lat() - p.origin.Lat()) * MetersPerDegree,
	}
}

// ToWGS84 is the inverse of ToMeters.
func (p *LocalProjection) ToWGS84(pt orb.Point) orb.Point {
	return orb.Point{
		pt[0]/(p.cosLat*MetersPerDegree) + p.origin.Lon(),
		pt[1]/MetersPerDegree + p.origin.Lat(),
	}
}

// ProjectLine applies ToMeters to every point of a line.
func (p *LocalProjection) ProjectLine(line orb.LineString) orb.LineString {
	out := make(orb.LineString, len(line))
	for i, pt := range line {
		out[i] = p.ToMeters(pt)
	}
	return out
}

// PadBound expands a WGS84 bound by meters on every side using the coarse
// degrees-per-meter approximation. Good enough for candidate pruning.
func PadBound(b orb.Bound, meters float64) orb.Bound {
	d := meters / MetersPerDegree
	return orb.Bound{
		Min: orb.Point{b.Min[0] - d, b.Min[1] - d},
		Max: orb.Point{b.Max[0] + d, b.Max[1] + d},
	}
}
