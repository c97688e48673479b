package missions

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/datatypes"
)

// Mission statuses. active and paused may transition; completed and
// cancelled are terminal.
const (
	StatusActive    = "active"
	StatusPaused    = "paused"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
)

// maxCheckpoints caps the checkpoint log; the oldest entries are dropped so
// a long session cannot grow the row without bound.
const maxCheckpoints = 200

// CoverageMission is one bounded "out driving" session over a coverage
// area. AreaVersion is captured at creation: a mission outliving a street
// rebuild is stale and gets cancelled rather than accepting progress
// against geometry that no longer exists. At most one mission may be active
// per area, enforced by a partial unique index.
type CoverageMission struct {
	ID          uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	AreaID      uuid.UUID `gorm:"type:uuid;not null;index" json:"area_id"`
	AreaVersion int       `gorm:"not null" json:"area_version"`
	Status      string    `gorm:"not null;default:active" json:"status"`

	StartedAt       time.Time  `gorm:"not null;default:now()" json:"started_at"`
	EndedAt         *time.Time `json:"ended_at,omitempty"`
	LastHeartbeatAt *time.Time `json:"last_heartbeat_at,omitempty"`

	SessionSegmentsCompleted int            `gorm:"not null;default:0" json:"session_segments_completed"`
	SessionGainMiles         float64        `gorm:"not null;default:0" json:"session_gain_miles"`
	CompletedSegmentIDs      pq.StringArray `gorm:"type:text[]" json:"completed_segment_ids"`
	Checkpoints              datatypes.JSON `gorm:"type:jsonb" json:"checkpoints,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (CoverageMission) TableName() string {
	return "coverage.coverage_missions"
}

// Terminal reports whether the mission accepts no further transitions.
func (m *CoverageMission) Terminal() bool {
	return m.Status == StatusCompleted || m.Status == StatusCancelled
}

// Checkpoint is one append-only audit event in a mission's log.
type Checkpoint struct {
	Event    string         `json:"event"`
	At       time.Time      `json:"at"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// decodeCheckpoints reads the stored log; a missing or corrupt log decodes
// as empty rather than failing the operation it rides on.
func decodeCheckpoints(raw datatypes.JSON) []Checkpoint {
	if len(raw) == 0 {
		return nil
	}
	var out []Checkpoint
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil
	}
	return out
}

// appendCheckpoint appends an event and enforces the length cap.
func appendCheckpoint(raw datatypes.JSON, cp Checkpoint) datatypes.JSON {
	log := append(decodeCheckpoints(raw), cp)
	if len(log) > maxCheckpoints {
		log = log[len(log)-maxCheckpoints:]
	}
	encoded, err := json.Marshal(log)
	if err != nil {
		return raw
	}
	return datatypes.JSON(encoded)
}
