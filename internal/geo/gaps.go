package geo

import (
	"sort"

	"github.com/paulmach/orb"
)

// GapPolicy controls where a GPS point sequence is broken into separate line
// parts. The threshold adapts to the track's own sampling density so a dense
// urban trace and a sparse highway trace both split only on real dropouts.
type GapPolicy struct {
	// MinGapMeters is the floor below which consecutive points are never split.
	MinGapMeters float64
	// Multiplier scales the median point-to-point distance to form the
	// adaptive threshold.
	Multiplier float64
	// MaxGapMeters caps the adaptive threshold so one long hop in an
	// otherwise sparse track still splits.
	MaxGapMeters float64
}

// DefaultGapPolicy mirrors the deployed matching defaults. These are policy
// values, tunable per deployment via MatchConfigFromEnv.
var DefaultGapPolicy = GapPolicy{
	MinGapMeters: 100,
	Multiplier:   5,
	MaxGapMeters: 500,
}

// SplitOnGaps breaks a point sequence into line parts wherever the geodesic
// hop between consecutive points exceeds the adaptive threshold
// max(MinGapMeters, median(hops) * Multiplier), capped at MaxGapMeters.
// Parts with fewer than two points are dropped; a GPS dropout must not draw
// a straight line across unrelated geography.
func SplitOnGaps(points []orb.Point, policy GapPolicy) []orb.LineString {
	if len(points) < 2 {
		return nil
	}

	hops := make([]float64, len(points)-1)
	for i := 1; i < len(points); i++ {
		hops[i-1] = Distance(points[i-1], points[i])
	}

	threshold := policy.MinGapMeters
	if m := median(hops) * policy.Multiplier; m > threshold {
		threshold = m
	}
	if threshold > policy.MaxGapMeters {
		threshold = policy.MaxGapMeters
	}

	var parts []orb.LineString
	current := orb.LineString{points[0]}
	for i := 1; i < len(points); i++ {
		if hops[i-1] > threshold {
			if len(current) >= 2 {
				parts = append(parts, current)
			}
			current = orb.LineString{points[i]}
			continue
		}
		current = append(current, points[i])
	}
	if len(current) >= 2 {
		parts = append(parts, current)
	}
	return parts
}

func median(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	sorted := make([]float64, len(vals))
	copy(sorted, vals)
	sort.Float64s(sorted)
	return sorted[len(sorted)/2]
}
