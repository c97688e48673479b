package geo

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// ErrNoGeometry marks a trip document that carries no usable geometry.
// Callers skip the trip; it is not a batch-aborting failure.
var ErrNoGeometry = errors.New("geo: trip has no usable geometry")

// TrackShape tags which stored shape a trip geometry was decoded from.
type TrackShape string

const (
	ShapeGeoJSON        TrackShape = "geojson"
	ShapeCoordinateList TrackShape = "coordinate_list"
	ShapeLocations      TrackShape = "locations"
)

// legacyLocation is the oldest stored trip shape: an array of objects with
// lat/lon fields (sometimes lng) and an optional timestamp.
type legacyLocation struct {
	Lat float64  `json:"lat"`
	Lon *float64 `json:"lon"`
	Lng *float64 `json:"lng"`
}

// DecodeTripGeometry resolves the known trip geometry shapes
// (GeoJSON LineString/MultiLineString/Point, a raw coordinate list, or a
// legacy locations array) into a single canonical orb.Geometry. The caller
// never sees the source shape again except for logging.
func DecodeTripGeometry(raw []byte) (orb.Geometry, TrackShape, error) {
	if len(raw) == 0 {
		return nil, "", ErrNoGeometry
	}

	// Peek at the top-level JSON kind without committing to a schema.
	var probe any
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, "", fmt.Errorf("geo: malformed trip geometry: %w", err)
	}

	switch v := probe.(type) {
	case []any:
		line, err := coordinateList(v)
		if err != nil {
			return nil, "", err
		}
		return line, ShapeCoordinateList, nil

	case map[string]any:
		if _, hasType := v["type"]; hasType {
			g, err := geojson.UnmarshalGeometry(raw)
			if err != nil {
				return nil, "", fmt.Errorf("geo: malformed geojson geometry: %w", err)
			}
			geom := g.Geometry()
			if geom == nil || geometryEmpty(geom) {
				return nil, "", ErrNoGeometry
			}
			return geom, ShapeGeoJSON, nil
		}
		if coords, ok := v["coordinates"].([]any); ok {
			line, err := coordinateList(coords)
			if err != nil {
				return nil, "", err
			}
			return line, ShapeCoordinateList, nil
		}
		if _, ok := v["locations"]; ok {
			return decodeLocations(raw)
		}
		return nil, "", ErrNoGeometry

	default:
		return nil, "", ErrNoGeometry
	}
}

func decodeLocations(raw []byte) (orb.Geometry, TrackShape, error) {
	var doc struct {
		Locations []legacyLocation `json:"locations"`
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, "", fmt.Errorf("geo: malformed locations array: %w", err)
	}
	line := make(orb.LineString, 0, len(doc.Locations))
	for _, loc := range doc.Locations {
		switch {
		case loc.Lon != nil:
			line = append(line, orb.Point{*loc.Lon, loc.Lat})
		case loc.Lng != nil:
			line = append(line, orb.Point{*loc.Lng, loc.Lat})
		}
	}
	if len(line) == 0 {
		return nil, "", ErrNoGeometry
	}
	if len(line) == 1 {
		return line[0], ShapeLocations, nil
	}
	return line, ShapeLocations, nil
}

// coordinateList parses a bare [[lon, lat], ...] array.
func coordinateList(items []any) (orb.LineString, error) {
	line := make(orb.LineString, 0, len(items))
	for _, item := range items {
		pair, ok := item.([]any)
		if !ok || len(pair) < 2 {
			return nil, fmt.Errorf("geo: coordinate entry is not a [lon, lat] pair")
		}
		lon, okLon := pair[0].(float64)
		lat, okLat := pair[1].(float64)
		if !okLon || !okLat {
			return nil, fmt.Errorf("geo: non-numeric coordinate pair")
		}
		line = append(line, orb.Point{lon, lat})
	}
	if len(line) < 2 {
		return nil, ErrNoGeometry
	}
	return line, nil
}

func geometryEmpty(g orb.Geometry) bool {
	switch g := g.(type) {
	case orb.LineString:
		return len(g) < 2
	case orb.MultiLineString:
		for _, part := range g {
			if len(part) >= 2 {
				return false
			}
		}
		return true
	case orb.Point:
		return false
	default:
		// Polygons etc. never describe a drivable trace.
		return true
	}
}

// GeometryLines flattens a decoded trip geometry into gap-split line parts
// in WGS84. Point geometries yield nothing matchable.
func GeometryLines(g orb.Geometry, policy GapPolicy) []orb.LineString {
	switch g := g.(type) {
	case orb.LineString:
		return SplitOnGaps([]orb.Point(g), policy)
	case orb.MultiLineString:
		var out []orb.LineString
		for _, part := range g {
			out = append(out, SplitOnGaps([]orb.Point(part), policy)...)
		}
		return out
	default:
		return nil
	}
}
