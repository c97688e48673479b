package coverage

import (
	"errors"
	"testing"

	"gorm.io/datatypes"

	"github.com/realronaldrump/everystreet-new-sub000/internal/geo"
	"github.com/realronaldrump/everystreet-new-sub000/internal/spatial"
	"github.com/realronaldrump/everystreet-new-sub000/internal/trips"
)

func testMatcher() *Matcher {
	return NewMatcher(nil, spatial.NewIndexCache(), MatchConfigFromEnv())
}

// TestTripLines_PrefersMatchedGeometry verifies the default source policy:
// map-matched geometry wins when present.
func TestTripLines_PrefersMatchedGeometry(t *testing.T) {
	m := testMatcher()
	trip := &trips.Trip{
		GPS:        datatypes.JSON(`[[-97.15,31.54],[-97.14,31.55]]`),
		MatchedGPS: datatypes.JSON(`[[-10.0,10.0],[-10.0,10.001]]`),
	}

	lines, err := m.TripLines(trip, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if lines[0][0].Lon() != -10.0 {
		t.Errorf("expected matched geometry to win, got %v", lines[0][0])
	}
}

// TestTripLines_RawOnly verifies the backfill policy: the raw trace is used
// even when matched geometry exists.
func TestTripLines_RawOnly(t *testing.T) {
	m := testMatcher()
	trip := &trips.Trip{
		GPS:        datatypes.JSON(`[[-97.15,31.54],[-97.14,31.55]]`),
		MatchedGPS: datatypes.JSON(`[[-10.0,10.0],[-10.0,10.001]]`),
	}

	lines, err := m.TripLines(trip, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if lines[0][0].Lon() != -97.15 {
		t.Errorf("expected raw geometry, got %v", lines[0][0])
	}
}

// TestTripLines_RawOnlyWithoutRawTrace verifies that rawOnly does not fall
// back to matched geometry when the raw trace is missing.
func TestTripLines_RawOnlyWithoutRawTrace(t *testing.T) {
	m := testMatcher()
	trip := &trips.Trip{
		MatchedGPS: datatypes.JSON(`[[-10.0,10.0],[-10.0,10.001]]`),
	}

	_, err := m.TripLines(trip, true)
	if !errors.Is(err, geo.ErrNoGeometry) {
		t.Errorf("expected ErrNoGeometry, got %v", err)
	}
}

func TestTripLines_PointGeometry(t *testing.T) {
	m := testMatcher()
	trip := &trips.Trip{
		GPS: datatypes.JSON(`{"type":"Point","coordinates":[-97.15,31.54]}`),
	}

	_, err := m.TripLines(trip, false)
	if !errors.Is(err, geo.ErrNoGeometry) {
		t.Errorf("expected ErrNoGeometry for a point trip, got %v", err)
	}
}
