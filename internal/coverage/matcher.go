package coverage

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/google/uuid"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"gorm.io/gorm"

	"github.com/realronaldrump/everystreet-new-sub000/internal/geo"
	"github.com/realronaldrump/everystreet-new-sub000/internal/spatial"
	"github.com/realronaldrump/everystreet-new-sub000/internal/trips"
)

// Matcher converts trip documents into line geometries and resolves them to
// street segments through per-area spatial indexes. The index cache is
// injected; Matcher owns no global state.
type Matcher struct {
	db    *gorm.DB
	cache *spatial.IndexCache
	cfg   MatchConfig
}

func NewMatcher(d *gorm.DB, cache *spatial.IndexCache, cfg MatchConfig) *Matcher {
	return &Matcher{db: d, cache: cache, cfg: cfg}
}

func (m *Matcher) params() spatial.MatchParams {
	return spatial.MatchParams{
		BufferMeters:      m.cfg.BufferMeters,
		MinOverlapMeters:  m.cfg.MinOverlapMeters,
		ShortSegmentRatio: m.cfg.ShortSegmentRatio,
	}
}

// TripLines decodes a trip into gap-split WGS84 line parts. Map-matched
// geometry is preferred when present; rawOnly forces the raw GPS trace;
// backfill always sets it, because historical matched data can be stale or
// absent and coverage reflects the ground truth trace.
func (m *Matcher) TripLines(trip *trips.Trip, rawOnly bool) ([]orb.LineString, error) {
	raw := []byte(trip.GPS)
	if !rawOnly && len(trip.MatchedGPS) > 0 {
		raw = []byte(trip.MatchedGPS)
	}

	geom, _, err := geo.DecodeTripGeometry(raw)
	if err != nil {
		return nil, err
	}
	lines := geo.GeometryLines(geom, m.cfg.Gaps)
	if len(lines) == 0 {
		return nil, geo.ErrNoGeometry
	}
	return lines, nil
}

// indexForArea returns the shared segment index for the area's current
// version, building it from the streets table on a miss or version bump.
func (m *Matcher) indexForArea(ctx context.Context, area *CoverageArea) (*spatial.SegmentIndex, error) {
	return m.cache.Get(area.ID, area.AreaVersion, func() (*spatial.SegmentIndex, error) {
		var streets []Street
		err := m.db.WithContext(ctx).
			Where("area_id = ? AND area_version = ?", area.ID, area.AreaVersion).
			Find(&streets).Error
		if err != nil {
			return nil, fmt.Errorf("load streets for index: %w", err)
		}

		segments := make([]spatial.Segment, 0, len(streets))
		for _, st := range streets {
			g, err := geojson.UnmarshalGeometry([]byte(st.Geometry))
			if err != nil {
				log.Printf("[coverage] skipping segment %s: bad geometry: %v", st.SegmentID, err)
				continue
			}
			line, ok := g.Geometry().(orb.LineString)
			if !ok {
				continue
			}
			segments = append(segments, spatial.Segment{ID: st.SegmentID, Line: line})
		}
		return spatial.NewSegmentIndex(area.ID, area.AreaVersion, segments)
	})
}

// candidateAreas returns the ready areas whose bounding box intersects the
// trip's, as a cheap pre-filter before any spatial index is consulted.
func (m *Matcher) candidateAreas(ctx context.Context, tripBound orb.Bound) ([]CoverageArea, error) {
	var areas []CoverageArea
	err := m.db.WithContext(ctx).
		Where("status = ?", AreaReady).
		Where("NOT (max_lon < ? OR min_lon > ? OR max_lat < ? OR min_lat > ?)",
			tripBound.Min[0], tripBound.Max[0], tripBound.Min[1], tripBound.Max[1]).
		Find(&areas).Error
	return areas, err
}

func linesBound(lines []orb.LineString) orb.Bound {
	bound := lines[0].Bound()
	for _, line := range lines[1:] {
		bound = bound.Union(line.Bound())
	}
	return bound
}

// MatchTripToStreets resolves a trip to matched segment ids per area. With
// no explicit areaIDs, all ready areas whose bounding box intersects the
// trip's are tried. Areas that produce no matches are omitted.
func (m *Matcher) MatchTripToStreets(ctx context.Context, trip *trips.Trip, areaIDs []uuid.UUID) (map[uuid.UUID][]string, error) {
	lines, err := m.TripLines(trip, false)
	if err != nil {
		return nil, err
	}

	var areas []CoverageArea
	if len(areaIDs) == 0 {
		areas, err = m.candidateAreas(ctx, linesBound(lines))
		if err != nil {
			return nil, fmt.Errorf("find candidate areas: %w", err)
		}
	} else {
		err = m.db.WithContext(ctx).Where("id IN ?", areaIDs).Find(&areas).Error
		if err != nil {
			return nil, err
		}
	}

	results := make(map[uuid.UUID][]string)
	for i := range areas {
		area := &areas[i]
		idx, err := m.indexForArea(ctx, area)
		if errors.Is(err, spatial.ErrNoSegments) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if matched := idx.FindMatchingSegmentsBatch(lines, m.params(), nil); len(matched) > 0 {
			results[area.ID] = matched
		}
	}
	return results, nil
}

// UpdateCoverageForTrip runs matching for a completed trip and applies the
// driven transitions, then refreshes each touched area's cached stats.
// Returns the total number of state rows updated. Geometry failures skip
// the trip with zero updates rather than erroring the pipeline.
func (m *Matcher) UpdateCoverageForTrip(ctx context.Context, svc *Service, trip *trips.Trip) (int, error) {
	matches, err := m.MatchTripToStreets(ctx, trip, nil)
	if errors.Is(err, geo.ErrNoGeometry) {
		log.Printf("[coverage] trip %s has no matchable geometry, skipping", trip.ID)
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	total := 0
	for areaID, segmentIDs := range matches {
		n, err := svc.UpdateCoverageForSegments(ctx, areaID, segmentIDs, trip.ID, trip.DrivenAt())
		if err != nil {
			return total, err
		}
		total += n
		if _, err := svc.UpdateAreaStats(ctx, areaID); err != nil {
			return total, err
		}
	}
	return total, nil
}
