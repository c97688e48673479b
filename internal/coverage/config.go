package coverage

import (
	"os"
	"strconv"

	"github.com/realronaldrump/everystreet-new-sub000/internal/geo"
)

// MatchConfig carries the matching policy knobs and backfill batch sizing.
// The overlap/buffer constants are deployment policy, not physical law, so
// every one of them is env-tunable.
type MatchConfig struct {
	// BufferMeters is the tolerance band around a trip line.
	BufferMeters float64
	// MinOverlapMeters is the fixed overlap a segment must reach.
	MinOverlapMeters float64
	// ShortSegmentRatio relaxes MinOverlapMeters for stub segments.
	ShortSegmentRatio float64

	// Gap splitting policy for raw GPS tracks.
	Gaps geo.GapPolicy

	// BatchSize is the trip page size streamed from the database.
	BatchSize int
	// MegaBatchSize bounds how many trips are buffered as geometry at once;
	// smaller than BatchSize to bound peak memory.
	MegaBatchSize int
	// Concurrency gates the parallel matching tasks per mega-batch.
	Concurrency int
}

// MatchConfigFromEnv loads the matching configuration.
//
// Environment variables:
//   - COVERAGE_BUFFER_METERS: match tolerance band (default: 15)
//   - COVERAGE_MIN_OVERLAP_METERS: fixed overlap threshold (default: 5)
//   - COVERAGE_SHORT_SEGMENT_RATIO: stub-segment overlap ratio (default: 0.5)
//   - COVERAGE_GAP_MIN_METERS: gap split floor (default: 100)
//   - COVERAGE_GAP_MULTIPLIER: gap split median multiplier (default: 5)
//   - COVERAGE_GAP_MAX_METERS: gap split cap (default: 500)
//   - COVERAGE_BATCH_SIZE: trip page size (default: 500)
//   - COVERAGE_MEGA_BATCH_SIZE: trips buffered per matching wave (default: 100)
//   - COVERAGE_CONCURRENCY: parallel matching tasks (default: 4)
func MatchConfigFromEnv() MatchConfig {
	cfg := MatchConfig{
		BufferMeters:      15,
		MinOverlapMeters:  5,
		ShortSegmentRatio: 0.5,
		Gaps:              geo.DefaultGapPolicy,
		BatchSize:         500,
		MegaBatchSize:     100,
		Concurrency:       4,
	}
	envFloat("COVERAGE_BUFFER_METERS", &cfg.BufferMeters)
	envFloat("COVERAGE_MIN_OVERLAP_METERS", &cfg.MinOverlapMeters)
	envFloat("COVERAGE_SHORT_SEGMENT_RATIO", &cfg.ShortSegmentRatio)
	envFloat("COVERAGE_GAP_MIN_METERS", &cfg.Gaps.MinGapMeters)
	envFloat("COVERAGE_GAP_MULTIPLIER", &cfg.Gaps.Multiplier)
	envFloat("COVERAGE_GAP_MAX_METERS", &cfg.Gaps.MaxGapMeters)
	envInt("COVERAGE_BATCH_SIZE", &cfg.BatchSize)
	envInt("COVERAGE_MEGA_BATCH_SIZE", &cfg.MegaBatchSize)
	envInt("COVERAGE_CONCURRENCY", &cfg.Concurrency)
	return cfg
}

func envFloat(name string, dst *float64) {
	if raw := os.Getenv(name); raw != "" {
		if v, err := strconv.ParseFloat(raw, 64); err == nil && v > 0 {
			*dst = v
		}
	}
}

func envInt(name string, dst *int) {
	if raw := os.Getenv(name); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			*dst = v
		}
	}
}
