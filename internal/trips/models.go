// Package trips is the minimal trip store the coverage engine consumes.
// Trip ingestion (upload, denoising, map matching) happens upstream; this
// package only persists the documents and pages them out for matching.
package trips

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Trip is one recorded drive. GPS carries the raw trace in whatever legacy
// shape the source produced (GeoJSON, coordinate list, locations array);
// MatchedGPS, when present, is the map-matched reinterpretation. Coverage
// backfill reads GPS only, since matched geometry can be stale or absent for
// historical trips and coverage must reflect the ground-truth trace.
type Trip struct {
	ID            uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	TransactionID string         `gorm:"uniqueIndex;not null" json:"transaction_id"`
	GPS           datatypes.JSON `gorm:"type:jsonb" json:"gps"`
	MatchedGPS    datatypes.JSON `gorm:"type:jsonb" json:"matched_gps,omitempty"`
	StartTime     time.Time      `gorm:"not null;index:idx_trips_start_time_id,priority:1" json:"start_time"`
	EndTime       time.Time      `gorm:"not null" json:"end_time"`
	CreatedAt     time.Time      `json:"created_at"`
}

func (Trip) TableName() string {
	return "coverage.trips"
}

// DrivenAt is the timestamp coverage transitions are stamped with: the end
// of the trip, falling back to the start for trips missing an end time.
func (t *Trip) DrivenAt() time.Time {
	if !t.EndTime.IsZero() {
		return t.EndTime
	}
	return t.StartTime
}
