package coverage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrNotFound is returned when an area or segment is absent. Propagated to
// the caller, never retried.
var ErrNotFound = errors.New("coverage: not found")

// Service is the coverage state engine: it applies matched segment ids as
// status transitions with multi-writer-safe, monotonic merge semantics. All
// mutation goes through atomic upserts, never application-level
// read-modify-write, so concurrent trip ingestion and backfill cannot lose
// updates.
type Service struct {
	db *gorm.DB
}

func NewService(d *gorm.DB) *Service {
	return &Service{db: d}
}

// upsertDrivenSQL merges driven transitions into coverage_state. Sourcing
// the insert from coverage.streets at the area's current version silently
// drops unknown segment ids instead of creating orphan state rows. The
// conflict update holds the dual monotonic rule atomically per row even
// under concurrent writers: first_driven_at only ever moves earlier (LEAST),
// last_driven_at only ever moves later (GREATEST), and driven_by_trip_id
// follows whichever write carries the latest last_driven_at. Rows manually
// marked undriveable are never overwritten by automatic matches.
const upsertDrivenSQL = `
INSERT INTO coverage.coverage_state
	(area_id, segment_id, status, first_driven_at, last_driven_at, driven_by_trip_id, manually_marked, created_at, updated_at)
SELECT s.area_id, s.segment_id, 'driven', u.first_at, u.last_at, u.trip_id, false, now(), now()
FROM unnest(?::text[], ?::timestamptz[], ?::timestamptz[], ?::uuid[]) AS u(segment_id, first_at, last_at, trip_id)
JOIN coverage.streets s
	ON s.area_id = ?
	AND s.segment_id = u.segment_id
	AND s.area_version = (SELECT area_version FROM coverage.coverage_areas WHERE id = ?)
ON CONFLICT (area_id, segment_id) DO UPDATE SET
	status = 'driven',
	first_driven_at = LEAST(coverage_state.first_driven_at, EXCLUDED.first_driven_at),
	last_driven_at = GREATEST(coverage_state.last_driven_at, EXCLUDED.last_driven_at),
	driven_by_trip_id = CASE
		WHEN coverage_state.last_driven_at IS NULL OR EXCLUDED.last_driven_at >= coverage_state.last_driven_at
		THEN EXCLUDED.driven_by_trip_id
		ELSE coverage_state.driven_by_trip_id
	END,
	manually_marked = false,
	marked_at = NULL,
	updated_at = now()
WHERE coverage_state.status <> 'undriveable'
`

// SegmentUpdate is one segment's accumulated drive window for a bulk write.
type SegmentUpdate struct {
	SegmentID     string
	FirstDrivenAt time.Time
	LastDrivenAt  time.Time
	TripID        uuid.UUID
}

// UpdateCoverageForSegments marks segments driven by one trip. Unknown
// segment ids are ignored; undriveable segments stay undriveable. Returns
// how many state rows were inserted or updated.
func (s *Service) UpdateCoverageForSegments(ctx context.Context, areaID uuid.UUID, segmentIDs []string, tripID uuid.UUID, drivenAt time.Time) (int, error) {
	if len(segmentIDs) == 0 {
		return 0, nil
	}
	updates := make([]SegmentUpdate, len(segmentIDs))
	for i, id := range segmentIDs {
		updates[i] = SegmentUpdate{SegmentID: id, FirstDrivenAt: drivenAt, LastDrivenAt: drivenAt, TripID: tripID}
	}
	return s.BulkUpsertSegmentStates(ctx, areaID, updates)
}

// mergeSegmentUpdates collapses duplicate segment ids into one window with
// the same min/max semantics as the upsert. Postgres rejects an upsert whose
// source affects the same row twice in one statement, so the arrays fed to
// unnest must be unique per segment. Order of first occurrence is preserved.
func mergeSegmentUpdates(updates []SegmentUpdate) []SegmentUpdate {
	index := make(map[string]int, len(updates))
	out := make([]SegmentUpdate, 0, len(updates))
	for _, u := range updates {
		i, seen := index[u.SegmentID]
		if !seen {
			index[u.SegmentID] = len(out)
			out = append(out, u)
			continue
		}
		if u.FirstDrivenAt.Before(out[i].FirstDrivenAt) {
			out[i].FirstDrivenAt = u.FirstDrivenAt
		}
		if !u.LastDrivenAt.Before(out[i].LastDrivenAt) {
			out[i].LastDrivenAt = u.LastDrivenAt
			out[i].TripID = u.TripID
		}
	}
	return out
}

// BulkUpsertSegmentStates applies per-segment drive windows in one
// statement. Backfill calls this with windows accumulated across the whole
// run so first-driven timestamps stay historically accurate. Duplicate
// segment ids in one call are merged before the write.
func (s *Service) BulkUpsertSegmentStates(ctx context.Context, areaID uuid.UUID, updates []SegmentUpdate) (int, error) {
	if len(updates) == 0 {
		return 0, nil
	}
	updates = mergeSegmentUpdates(updates)

	ids := make([]string, len(updates))
	firsts := make([]time.Time, len(updates))
	lasts := make([]time.Time, len(updates))
	tripIDs := make([]string, len(updates))
	for i, u := range updates {
		ids[i] = u.SegmentID
		firsts[i] = u.FirstDrivenAt
		lasts[i] = u.LastDrivenAt
		tripIDs[i] = u.TripID.String()
	}

	res := s.db.WithContext(ctx).Exec(upsertDrivenSQL,
		pq.Array(ids), pq.Array(firsts), pq.Array(lasts), pq.Array(tripIDs),
		areaID, areaID,
	)
	if res.Error != nil {
		return 0, fmt.Errorf("upsert coverage state: %w", res.Error)
	}
	return int(res.RowsAffected), nil
}

// MarkSegmentUndriveable manually flags a segment as impossible to drive
// (private road, stairs, demolished). Manual undriveable marking always wins
// over automated driving detection.
func (s *Service) MarkSegmentUndriveable(ctx context.Context, areaID uuid.UUID, segmentID string) error {
	return s.markSegment(ctx, areaID, segmentID, SegmentUndriveable)
}

// MarkSegmentUndriven manually resets a segment to undriven, clearing drive
// provenance. The row is reset, not deleted.
func (s *Service) MarkSegmentUndriven(ctx context.Context, areaID uuid.UUID, segmentID string) error {
	return s.markSegment(ctx, areaID, segmentID, SegmentUndriven)
}

func (s *Service) markSegment(ctx context.Context, areaID uuid.UUID, segmentID, status string) error {
	// The stats delta below depends on the status read before the upsert, so
	// the whole mark runs in one transaction with the street row locked.
	// Concurrent manual marks on the same segment serialize on that lock and
	// each one sees the previous mark's status.
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Manual marks only apply to segments that exist at the current version.
		var street Street
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("area_id = ? AND segment_id = ? AND area_version = (SELECT area_version FROM coverage.coverage_areas WHERE id = ?)",
				areaID, segmentID, areaID).
			First(&street).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: segment %s in area %s", ErrNotFound, segmentID, areaID)
		}
		if err != nil {
			return fmt.Errorf("lookup segment: %w", err)
		}

		prevStatus := SegmentUndriven
		var prior CoverageState
		err = tx.First(&prior, "area_id = ? AND segment_id = ?", areaID, segmentID).Error
		if err == nil {
			prevStatus = prior.Status
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		res := tx.Exec(`
INSERT INTO coverage.coverage_state
	(area_id, segment_id, status, manually_marked, marked_at, created_at, updated_at)
VALUES (?, ?, ?, true, now(), now(), now())
ON CONFLICT (area_id, segment_id) DO UPDATE SET
	status = EXCLUDED.status,
	manually_marked = true,
	marked_at = now(),
	first_driven_at = CASE WHEN EXCLUDED.status = 'undriven' THEN NULL ELSE coverage_state.first_driven_at END,
	last_driven_at = CASE WHEN EXCLUDED.status = 'undriven' THEN NULL ELSE coverage_state.last_driven_at END,
	driven_by_trip_id = CASE WHEN EXCLUDED.status = 'undriven' THEN NULL ELSE coverage_state.driven_by_trip_id END,
	updated_at = now()
`, areaID, segmentID, status)
		if res.Error != nil {
			return fmt.Errorf("mark segment %s: %w", status, res.Error)
		}

		// Single-segment manual marks take the incremental stats path; a full
		// aggregation per click would be wasteful.
		if delta := markDelta(prevStatus, status, street.LengthMiles); delta != (StatsDelta{}) {
			if err := applyAreaStatsDelta(tx, areaID, delta); err != nil {
				return err
			}
		}
		return nil
	})
}

// markDelta translates a manual status change into a signed stats nudge.
func markDelta(prev, next string, lengthMiles float64) StatsDelta {
	if prev == next {
		return StatsDelta{}
	}
	var d StatsDelta
	switch prev {
	case SegmentDriven:
		d.DrivenSegments--
		d.DrivenLengthMiles -= lengthMiles
	case SegmentUndriveable:
		d.UndriveableSegments--
		d.UndriveableLengthMiles -= lengthMiles
	}
	switch next {
	case SegmentDriven:
		d.DrivenSegments++
		d.DrivenLengthMiles += lengthMiles
	case SegmentUndriveable:
		d.UndriveableSegments++
		d.UndriveableLengthMiles += lengthMiles
	}
	return d
}

// GetSegmentState returns a segment's state row, or nil when the segment
// has never transitioned (equivalent to undriven).
func (s *Service) GetSegmentState(ctx context.Context, areaID uuid.UUID, segmentID string) (*CoverageState, error) {
	var state CoverageState
	err := s.db.WithContext(ctx).
		First(&state, "area_id = ? AND segment_id = ?", areaID, segmentID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &state, nil
}

// UndriveableSegmentIDs lists segments manually excluded from coverage for
// an area. Backfill filters its final write against this set.
func (s *Service) UndriveableSegmentIDs(ctx context.Context, areaID uuid.UUID) (map[string]struct{}, error) {
	var ids []string
	err := s.db.WithContext(ctx).Model(&CoverageState{}).
		Where("area_id = ? AND status = ?", areaID, SegmentUndriveable).
		Pluck("segment_id", &ids).Error
	if err != nil {
		return nil, err
	}
	out := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		out[id] = struct{}{}
	}
	return out, nil
}

// GetArea loads an area by id.
func (s *Service) GetArea(ctx context.Context, areaID uuid.UUID) (*CoverageArea, error) {
	var area CoverageArea
	err := s.db.WithContext(ctx).First(&area, "id = ?", areaID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: area %s", ErrNotFound, areaID)
	}
	if err != nil {
		return nil, err
	}
	return &area, nil
}

// ListAreas returns all coverage areas.
func (s *Service) ListAreas(ctx context.Context) ([]CoverageArea, error) {
	var areas []CoverageArea
	err := s.db.WithContext(ctx).Order("name").Find(&areas).Error
	return areas, err
}
