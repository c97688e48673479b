package coverage

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AreaStats is one full aggregation of an area's coverage.
type AreaStats struct {
	TotalSegments          int     `json:"total_segments"`
	DrivenSegments         int     `json:"driven_segments"`
	UndriveableSegments    int     `json:"undriveable_segments"`
	UndrivenSegments       int     `json:"undriven_segments"`
	TotalLengthMiles       float64 `json:"total_length_miles"`
	DrivenLengthMiles      float64 `json:"driven_length_miles"`
	UndriveableLengthMiles float64 `json:"undriveable_length_miles"`
	DriveableLengthMiles   float64 `json:"driveable_length_miles"`
	CoveragePercentage     float64 `json:"coverage_percentage"`
}

// CoveragePercentage derives driven/driveable as a percentage, clamped to
// [0, 100]. The denominator is driveable length (total minus undriveable);
// marking a segment undriveable shrinks the denominator. The 100 clamp
// guards against floating-point drift in accumulated lengths.
func CoveragePercentage(totalLengthMiles, drivenLengthMiles, undriveableLengthMiles float64) float64 {
	driveable := totalLengthMiles - undriveableLengthMiles
	if driveable <= 0 {
		return 0
	}
	pct := drivenLengthMiles / driveable * 100
	if pct < 0 {
		return 0
	}
	if pct > 100 {
		return 100
	}
	return pct
}

// UpdateAreaStats recomputes an area's cached statistics with a full
// streets-to-state join and persists them on the area row. Undriven counts
// are derived by subtraction since state rows only exist after a first
// transition.
func (s *Service) UpdateAreaStats(ctx context.Context, areaID uuid.UUID) (*AreaStats, error) {
	var row struct {
		TotalSegments          int
		TotalLengthMiles       float64
		DrivenSegments         int
		DrivenLengthMiles      float64
		UndriveableSegments    int
		UndriveableLengthMiles float64
	}

	err := s.db.WithContext(ctx).Raw(`
SELECT
	COUNT(*) AS total_segments,
	COALESCE(SUM(s.length_miles), 0) AS total_length_miles,
	COUNT(*) FILTER (WHERE cs.status = 'driven') AS driven_segments,
	COALESCE(SUM(s.length_miles) FILTER (WHERE cs.status = 'driven'), 0) AS driven_length_miles,
	COUNT(*) FILTER (WHERE cs.status = 'undriveable') AS undriveable_segments,
	COALESCE(SUM(s.length_miles) FILTER (WHERE cs.status = 'undriveable'), 0) AS undriveable_length_miles
FROM coverage.streets s
LEFT JOIN coverage.coverage_state cs
	ON cs.area_id = s.area_id AND cs.segment_id = s.segment_id
WHERE s.area_id = ?
	AND s.area_version = (SELECT area_version FROM coverage.coverage_areas WHERE id = ?)
`, areaID, areaID).Scan(&row).Error
	if err != nil {
		return nil, fmt.Errorf("aggregate area stats: %w", err)
	}

	stats := &AreaStats{
		TotalSegments:          row.TotalSegments,
		DrivenSegments:         row.DrivenSegments,
		UndriveableSegments:    row.UndriveableSegments,
		UndrivenSegments:       row.TotalSegments - row.DrivenSegments - row.UndriveableSegments,
		TotalLengthMiles:       row.TotalLengthMiles,
		DrivenLengthMiles:      row.DrivenLengthMiles,
		UndriveableLengthMiles: row.UndriveableLengthMiles,
		DriveableLengthMiles:   row.TotalLengthMiles - row.UndriveableLengthMiles,
		CoveragePercentage:     CoveragePercentage(row.TotalLengthMiles, row.DrivenLengthMiles, row.UndriveableLengthMiles),
	}

	err = s.db.WithContext(ctx).Model(&CoverageArea{}).Where("id = ?", areaID).Updates(map[string]any{
		"total_segments":           stats.TotalSegments,
		"driven_segments":          stats.DrivenSegments,
		"undriveable_segments":     stats.UndriveableSegments,
		"total_length_miles":       stats.TotalLengthMiles,
		"driven_length_miles":      stats.DrivenLengthMiles,
		"undriveable_length_miles": stats.UndriveableLengthMiles,
		"coverage_percentage":      stats.CoveragePercentage,
	}).Error
	if err != nil {
		return nil, fmt.Errorf("persist area stats: %w", err)
	}
	return stats, nil
}

// StatsDelta is a signed nudge to an area's cached statistics, used for
// high-frequency single-segment updates (manual marks) where a full
// aggregation per change would be wasteful.
type StatsDelta struct {
	DrivenSegments         int
	DrivenLengthMiles      float64
	UndriveableSegments    int
	UndriveableLengthMiles float64
}

// ApplyAreaStatsDelta increments the cached totals and re-derives
// coverage_percentage inside the same statement, with the same clamped
// formula as the full recompute. The two paths must never drift.
func (s *Service) ApplyAreaStatsDelta(ctx context.Context, areaID uuid.UUID, d StatsDelta) error {
	return applyAreaStatsDelta(s.db.WithContext(ctx), areaID, d)
}

// applyAreaStatsDelta is the transaction-aware form; markSegment runs it on
// the same tx as the state upsert.
func applyAreaStatsDelta(db *gorm.DB, areaID uuid.UUID, d StatsDelta) error {
	res := db.Exec(`
UPDATE coverage.coverage_areas SET
	driven_segments = driven_segments + ?,
	driven_length_miles = driven_length_miles + ?,
	undriveable_segments = undriveable_segments + ?,
	undriveable_length_miles = undriveable_length_miles + ?,
	coverage_percentage = LEAST(100, GREATEST(0,
		CASE WHEN total_length_miles - (undriveable_length_miles + ?) > 0
			THEN (driven_length_miles + ?) / (total_length_miles - (undriveable_length_miles + ?)) * 100
			ELSE 0
		END)),
	updated_at = now()
WHERE id = ?
`,
		d.DrivenSegments, d.DrivenLengthMiles,
		d.UndriveableSegments, d.UndriveableLengthMiles,
		d.UndriveableLengthMiles, d.DrivenLengthMiles, d.UndriveableLengthMiles,
		areaID,
	)
	if res.Error != nil {
		return fmt.Errorf("apply stats delta: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: area %s", ErrNotFound, areaID)
	}
	return nil
}
