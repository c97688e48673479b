package jobs

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Job statuses. Stage carries the finer-grained pipeline position
// (e.g. queued → matching → finalizing for a coverage backfill).
const (
	StatusQueued    = "queued"
	StatusRunning   = "running"
	StatusComplete  = "complete"
	StatusError     = "error"
	StatusCancelled = "cancelled"
)

// Job is the generic background-work record through which long-running
// engine operations report liveness and observe cancellation. Cancellation
// is durable; a checker in another process instance reads the same row.
type Job struct {
	ID              uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	JobType         string         `gorm:"not null;index" json:"job_type"`
	Status          string         `gorm:"not null;default:queued;index" json:"status"`
	Stage           string         `json:"stage"`
	Progress        int            `gorm:"not null;default:0" json:"progress"` // 0-100
	Message         string         `json:"message"`
	Error           string         `json:"error"`
	CancelRequested bool           `gorm:"not null;default:false" json:"cancel_requested"`
	Metrics         datatypes.JSON `gorm:"type:jsonb" json:"metrics,omitempty"`
	StartedAt       time.Time      `gorm:"not null;default:now()" json:"started_at"`
	CompletedAt     *time.Time     `json:"completed_at,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

func (Job) TableName() string {
	return "coverage.jobs"
}
