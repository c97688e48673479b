package coverage

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// CoverageArea statuses.
const (
	AreaInitializing = "initializing"
	AreaReady        = "ready"
	AreaError        = "error"
	AreaRebuilding   = "rebuilding"
)

// Segment statuses. A missing CoverageState row is equivalent to undriven;
// rows are only materialized on the first transition.
const (
	SegmentUndriven    = "undriven"
	SegmentDriven      = "driven"
	SegmentUndriveable = "undriveable"
)

// CoverageArea is a named geographic region whose streets are tracked.
// AreaVersion increments whenever the street geometry is rebuilt from source
// data, so stale in-flight computations can be detected and discarded rather
// than silently corrupting state.
type CoverageArea struct {
	ID          uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	Name        string         `gorm:"uniqueIndex;not null" json:"name"`
	Boundary    datatypes.JSON `gorm:"type:jsonb" json:"boundary"`
	MinLon      float64        `json:"min_lon"`
	MinLat      float64        `json:"min_lat"`
	MaxLon      float64        `json:"max_lon"`
	MaxLat      float64        `json:"max_lat"`
	AreaVersion int            `gorm:"not null;default:1" json:"area_version"`
	Status      string         `gorm:"not null;default:initializing" json:"status"`

	// Cached aggregate statistics, refreshed by UpdateAreaStats and nudged
	// by ApplyAreaStatsDelta between full recomputes.
	TotalLengthMiles       float64 `gorm:"not null;default:0" json:"total_length_miles"`
	DrivenLengthMiles      float64 `gorm:"not null;default:0" json:"driven_length_miles"`
	UndriveableLengthMiles float64 `gorm:"not null;default:0" json:"undriveable_length_miles"`
	TotalSegments          int     `gorm:"not null;default:0" json:"total_segments"`
	DrivenSegments         int     `gorm:"not null;default:0" json:"driven_segments"`
	UndriveableSegments    int     `gorm:"not null;default:0" json:"undriveable_segments"`
	CoveragePercentage     float64 `gorm:"not null;default:0" json:"coverage_percentage"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (CoverageArea) TableName() string {
	return "coverage.coverage_areas"
}

// Street is one immutable street segment for a given (area, version).
// A rebuild inserts rows under a new version and orphans the old ones.
type Street struct {
	ID           uint           `gorm:"primaryKey" json:"-"`
	AreaID       uuid.UUID      `gorm:"type:uuid;not null;index" json:"area_id"`
	AreaVersion  int            `gorm:"not null" json:"area_version"`
	SegmentID    string         `gorm:"not null" json:"segment_id"`
	Geometry     datatypes.JSON `gorm:"type:jsonb" json:"geometry"`
	StreetName   string         `json:"street_name"`
	HighwayClass string         `json:"highway_class"`
	LengthMiles  float64        `gorm:"not null;default:0" json:"length_miles"`
	CreatedAt    time.Time      `json:"-"`
}

func (Street) TableName() string {
	return "coverage.streets"
}

// CoverageState is the mutable per-segment record, keyed (area_id,
// segment_id). It survives a street rebuild referencing the previous
// version until migrated, which is why streets and state are never
// denormalized into one row.
type CoverageState struct {
	ID             uint       `gorm:"primaryKey" json:"-"`
	AreaID         uuid.UUID  `gorm:"type:uuid;not null;index" json:"area_id"`
	SegmentID      string     `gorm:"not null" json:"segment_id"`
	Status         string     `gorm:"not null;default:undriven" json:"status"`
	FirstDrivenAt  *time.Time `json:"first_driven_at,omitempty"`
	LastDrivenAt   *time.Time `json:"last_driven_at,omitempty"`
	DrivenByTripID *uuid.UUID `gorm:"type:uuid" json:"driven_by_trip_id,omitempty"`
	ManuallyMarked bool       `gorm:"not null;default:false" json:"manually_marked"`
	MarkedAt       *time.Time `json:"marked_at,omitempty"`
	CreatedAt      time.Time  `json:"-"`
	UpdatedAt      time.Time  `json:"-"`
}

func (CoverageState) TableName() string {
	return "coverage.coverage_state"
}
