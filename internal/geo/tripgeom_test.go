package geo_test

import (
	"errors"
	"testing"

	"github.com/paulmach/orb"

	"github.com/realronaldrump/everystreet-new-sub000/internal/geo"
)

func TestDecodeTripGeometry_GeoJSONLineString(t *testing.T) {
	raw := []byte(`{"type":"LineString","coordinates":[[-97.15,31.54],[-97.14,31.55]]}`)

	g, shape, err := geo.DecodeTripGeometry(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if shape != geo.ShapeGeoJSON {
		t.Errorf("expected shape %q, got %q", geo.ShapeGeoJSON, shape)
	}
	line, ok := g.(orb.LineString)
	if !ok {
		t.Fatalf("expected LineString, got %T", g)
	}
	if len(line) != 2 {
		t.Errorf("expected 2 points, got %d", len(line))
	}
}

func TestDecodeTripGeometry_RawCoordinateList(t *testing.T) {
	raw := []byte(`[[-97.15,31.54],[-97.14,31.55],[-97.13,31.56]]`)

	g, shape, err := geo.DecodeTripGeometry(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if shape != geo.ShapeCoordinateList {
		t.Errorf("expected shape %q, got %q", geo.ShapeCoordinateList, shape)
	}
	if line := g.(orb.LineString); len(line) != 3 {
		t.Errorf("expected 3 points, got %d", len(line))
	}
}

func TestDecodeTripGeometry_BareCoordinatesObject(t *testing.T) {
	raw := []byte(`{"coordinates":[[-97.15,31.54],[-97.14,31.55]]}`)

	g, shape, err := geo.DecodeTripGeometry(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if shape != geo.ShapeCoordinateList {
		t.Errorf("expected shape %q, got %q", geo.ShapeCoordinateList, shape)
	}
	if line := g.(orb.LineString); len(line) != 2 {
		t.Errorf("expected 2 points, got %d", len(line))
	}
}

func TestDecodeTripGeometry_LegacyLocations(t *testing.T) {
	raw := []byte(`{"locations":[{"lat":31.54,"lon":-97.15},{"lat":31.55,"lng":-97.14}]}`)

	g, shape, err := geo.DecodeTripGeometry(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if shape != geo.ShapeLocations {
		t.Errorf("expected shape %q, got %q", geo.ShapeLocations, shape)
	}
	line, ok := g.(orb.LineString)
	if !ok {
		t.Fatalf("expected LineString, got %T", g)
	}
	if line[0].Lon() != -97.15 || line[1].Lon() != -97.14 {
		t.Errorf("lon/lng fields decoded wrong: %v", line)
	}
}

func TestDecodeTripGeometry_SingleLocationIsPoint(t *testing.T) {
	raw := []byte(`{"locations":[{"lat":31.54,"lon":-97.15}]}`)

	g, _, err := geo.DecodeTripGeometry(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := g.(orb.Point); !ok {
		t.Errorf("expected Point for a single location, got %T", g)
	}
}

func TestDecodeTripGeometry_NoGeometry(t *testing.T) {
	cases := map[string][]byte{
		"empty input":       nil,
		"empty object":      []byte(`{}`),
		"empty coords":      []byte(`[]`),
		"single coordinate": []byte(`[[-97.15,31.54]]`),
		"empty locations":   []byte(`{"locations":[]}`),
		"scalar":            []byte(`42`),
	}
	for name, raw := range cases {
		if _, _, err := geo.DecodeTripGeometry(raw); !errors.Is(err, geo.ErrNoGeometry) {
			t.Errorf("%s: expected ErrNoGeometry, got %v", name, err)
		}
	}
}

func TestDecodeTripGeometry_Malformed(t *testing.T) {
	cases := map[string][]byte{
		"broken json":      []byte(`{"type":`),
		"non-numeric pair": []byte(`[["a","b"],["c","d"]]`),
	}
	for name, raw := range cases {
		_, _, err := geo.DecodeTripGeometry(raw)
		if err == nil || errors.Is(err, geo.ErrNoGeometry) {
			t.Errorf("%s: expected a decode error, got %v", name, err)
		}
	}
}

// TestGeometryLines_PointYieldsNothing confirms that point geometries are not
// matchable.
func TestGeometryLines_PointYieldsNothing(t *testing.T) {
	lines := geo.GeometryLines(orb.Point{-97.15, 31.54}, geo.DefaultGapPolicy)
	if lines != nil {
		t.Errorf("expected nil, got %v", lines)
	}
}

func TestGeometryLines_MultiLineString(t *testing.T) {
	mls := orb.MultiLineString{
		{{0, 0}, {0, 0.0002}, {0, 0.0004}},
		{{1, 1}, {1, 1.0002}},
	}
	lines := geo.GeometryLines(mls, geo.DefaultGapPolicy)
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
}
