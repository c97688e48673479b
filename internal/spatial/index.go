// Package spatial provides the per-area street segment index: an R-tree over
// WGS84 segment geometries for coarse candidate pruning, with precise overlap
// measurement done in a shared local meter frame.
package spatial

import (
	"errors"
	"fmt"
	"math"

	"github.com/google/uuid"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"github.com/tidwall/rtree"

	"github.com/realronaldrump/everystreet-new-sub000/internal/geo"
)

// ErrNoSegments is returned when an area version has no valid street
// geometry to index.
var ErrNoSegments = errors.New("spatial: no valid street geometries")

// Segment is one indexable street segment in WGS84.
type Segment struct {
	ID   string
	Line orb.LineString
}

// MatchParams is the overlap threshold policy applied per candidate.
type MatchParams struct {
	// BufferMeters is the tolerance band around the trip line.
	BufferMeters float64
	// MinOverlapMeters is the fixed overlap a segment must reach to count
	// as driven.
	MinOverlapMeters float64
	// ShortSegmentRatio relaxes the fixed overlap for stub segments: the
	// effective threshold is min(MinOverlapMeters, length * ratio), so a
	// 3-meter stub is not required to produce an unrealistic fixed overlap.
	ShortSegmentRatio float64
}

// overlapStepMeters is the sampling resolution for overlap measurement.
const overlapStepMeters = 2.0

type indexedSegment struct {
	id        string
	line      orb.LineString
	projected orb.LineString
	lengthM   float64
}

// SegmentIndex answers "which segments does this buffered trip line cover"
// for one (area, version). It is immutable after NewSegmentIndex returns and
// safe for concurrent readers.
type SegmentIndex struct {
	AreaID      uuid.UUID
	AreaVersion int

	proj     *geo.LocalProjection
	tree     rtree.RTree
	segments []indexedSegment
}

// NewSegmentIndex builds the index from an area version's street segments.
// Invalid or degenerate geometries are discarded. The local projection is
// derived once, from the centroid of the first valid geometry; the whole
// index shares it since the index covers one bounded area.
func NewSegmentIndex(areaID uuid.UUID, areaVersion int, segments []Segment) (*SegmentIndex, error) {
	idx := &SegmentIndex{
		AreaID:      areaID,
		AreaVersion: areaVersion,
	}

	for _, seg := range segments {
		if !validLine(seg.Line) {
			continue
		}
		if idx.proj == nil {
			idx.proj = geo.NewLocalProjection(seg.Line.Bound().Center())
		}
		projected := idx.proj.ProjectLine(seg.Line)
		length := planar.Length(projected)
		if length <= 0 {
			continue
		}
		idx.segments = append(idx.segments, indexedSegment{
			id:        seg.ID,
			line:      seg.Line,
			projected: projected,
			lengthM:   length,
		})
	}
	if len(idx.segments) == 0 {
		return nil, ErrNoSegments
	}

	// The tree stores unprojected bounds; it only prunes candidates.
	for i, seg := range idx.segments {
		b := seg.line.Bound()
		idx.tree.Insert(
			[2]float64{b.Min[0], b.Min[1]},
			[2]float64{b.Max[0], b.Max[1]},
			i,
		)
	}
	return idx, nil
}

// Len reports how many segments the index holds.
func (idx *SegmentIndex) Len() int {
	return len(idx.segments)
}

// SegmentLengthMeters returns a segment's projected length, or false when
// the id is not in the index.
func (idx *SegmentIndex) SegmentLengthMeters(id string) (float64, bool) {
	for _, seg := range idx.segments {
		if seg.id == id {
			return seg.lengthM, true
		}
	}
	return 0, false
}

// FindMatchingSegments returns the ids of segments whose overlap with the
// buffered trip line meets the threshold policy.
func (idx *SegmentIndex) FindMatchingSegments(line orb.LineString, p MatchParams) []string {
	return idx.FindMatchingSegmentsBatch([]orb.LineString{line}, p, nil)
}

// FindMatchingSegmentsBatch applies the matching rule across many trip
// lines, deduplicating matched ids as it goes: a segment is never re-tested
// once matched. exclude (optional) seeds ids to skip entirely; backfill
// passes segments matched by earlier batches. This is the hot path, called
// with tens of thousands of lines against one shared index.
func (idx *SegmentIndex) FindMatchingSegmentsBatch(lines []orb.LineString, p MatchParams, exclude map[string]struct{}) []string {
	matched := make(map[string]struct{})
	var out []string

	for _, line := range lines {
		if len(line) < 2 {
			continue
		}
		projLine := idx.proj.ProjectLine(line)
		bound := geo.PadBound(line.Bound(), p.BufferMeters)

		idx.tree.Search(
			[2]float64{bound.Min[0], bound.Min[1]},
			[2]float64{bound.Max[0], bound.Max[1]},
			func(min, max [2]float64, data interface{}) bool {
				seg := idx.segments[data.(int)]
				if _, ok := matched[seg.id]; ok {
					return true
				}
				if exclude != nil {
					if _, ok := exclude[seg.id]; ok {
						return true
					}
				}
				threshold := math.Min(p.MinOverlapMeters, seg.lengthM*p.ShortSegmentRatio)
				if overlapReaches(seg.projected, projLine, p.BufferMeters, threshold) {
					matched[seg.id] = struct{}{}
					out = append(out, seg.id)
				}
				return true
			},
		)
	}
	return out
}

// overlapReaches reports whether at least threshold meters of the segment
// lie within buffer meters of the trip line, both in the meter frame. The
// segment is walked at a fixed sampling step with early exit; equivalent to
// buffer-polygon intersection length at sampling resolution.
func overlapReaches(segment, trip orb.LineString, buffer, threshold float64) bool {
	if threshold <= 0 {
		threshold = overlapStepMeters
	}
	total := 0.0
	for i := 1; i < len(segment); i++ {
		a, b := segment[i-1], segment[i]
		edge := planar.Distance(a, b)
		if edge == 0 {
			continue
		}
		steps := int(math.Ceil(edge / overlapStepMeters))
		sub := edge / float64(steps)
		for k := 0; k < steps; k++ {
			t := (float64(k) + 0.5) / float64(steps)
			mid := orb.Point{a[0] + (b[0]-a[0])*t, a[1] + (b[1]-a[1])*t}
			if planar.DistanceFrom(trip, mid) <= buffer {
				total += sub
				if total >= threshold {
					return true
				}
			}
		}
	}
	return total >= threshold
}

func validLine(line orb.LineString) bool {
	if len(line) < 2 {
		return false
	}
	for _, pt := range line {
		if math.IsNaN(pt[0]) || math.IsNaN(pt[1]) || math.IsInf(pt[0], 0) || math.IsInf(pt[1], 0) {
			return false
		}
	}
	return true
}

// String implements fmt.Stringer for log lines.
func (idx *SegmentIndex) String() string {
	return fmt.Sprintf("SegmentIndex(area=%s v%d, %d segments)", idx.AreaID, idx.AreaVersion, len(idx.segments))
}
