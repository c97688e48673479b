package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ErrNotFound is returned when a job id resolves to no row.
var ErrNotFound = errors.New("jobs: job not found")

type Store struct {
	db *gorm.DB
}

func NewStore(d *gorm.DB) *Store {
	return &Store{db: d}
}

// Create inserts a queued job and returns it.
func (s *Store) Create(ctx context.Context, jobType string) (*Job, error) {
	job := &Job{
		JobType:   jobType,
		Status:    StatusQueued,
		Stage:     StatusQueued,
		StartedAt: time.Now().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(job).Error; err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}
	return job, nil
}

// Update records stage/progress/message and optional metrics. This is the
// whole contract the engine has with progress reporting; job creation policy
// belongs to callers. A job that already reached a terminal status is left
// untouched: every terminal writer sets completed_at, and a late progress
// write must never resurrect the row to running.
func (s *Store) Update(ctx context.Context, id uuid.UUID, stage string, progress int, message string, metrics map[string]any) error {
	updates := map[string]any{
		"status":   StatusRunning,
		"stage":    stage,
		"progress": progress,
		"message":  message,
	}
	if metrics != nil {
		raw, err := json.Marshal(metrics)
		if err != nil {
			return fmt.Errorf("marshal job metrics: %w", err)
		}
		updates["metrics"] = datatypes.JSON(raw)
	}
	return s.db.WithContext(ctx).Model(&Job{}).
		Where("id = ? AND completed_at IS NULL", id).Updates(updates).Error
}

// Complete marks the job finished. The terminal stage is kept as "complete"
// so progress readers see a consistent final state.
func (s *Store) Complete(ctx context.Context, id uuid.UUID, message string) error {
	now := time.Now().UTC()
	return s.db.WithContext(ctx).Model(&Job{}).Where("id = ?", id).Updates(map[string]any{
		"status":       StatusComplete,
		"stage":        StatusComplete,
		"progress":     100,
		"message":      message,
		"completed_at": &now,
	}).Error
}

// Fail marks the job terminally failed with a human-readable error string.
// Internal causes stay in server logs, not in the row.
func (s *Store) Fail(ctx context.Context, id uuid.UUID, errMsg string) error {
	now := time.Now().UTC()
	return s.db.WithContext(ctx).Model(&Job{}).Where("id = ?", id).Updates(map[string]any{
		"status":       StatusError,
		"error":        errMsg,
		"completed_at": &now,
	}).Error
}

// MarkCancelled records a clean cooperative stop. Work applied before the
// stop stays committed; a cancelled job is a valid paused state, not a
// failure.
func (s *Store) MarkCancelled(ctx context.Context, id uuid.UUID, message string) error {
	now := time.Now().UTC()
	return s.db.WithContext(ctx).Model(&Job{}).Where("id = ?", id).Updates(map[string]any{
		"status":       StatusCancelled,
		"message":      message,
		"completed_at": &now,
	}).Error
}

// RequestCancel sets the durable cancellation flag.
func (s *Store) RequestCancel(ctx context.Context, id uuid.UUID) error {
	res := s.db.WithContext(ctx).Model(&Job{}).Where("id = ?", id).Update("cancel_requested", true)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// IsCancelRequested reads the durable cancellation flag. A deleted job row
// is an error, not an implicit "keep going".
func (s *Store) IsCancelRequested(ctx context.Context, id uuid.UUID) (bool, error) {
	var flag bool
	res := s.db.WithContext(ctx).Model(&Job{}).Where("id = ?", id).
		Pluck("cancel_requested", &flag)
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected == 0 {
		return false, ErrNotFound
	}
	return flag, nil
}

// Get returns a job by id.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (*Job, error) {
	var job Job
	err := s.db.WithContext(ctx).First(&job, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// List returns recent jobs, most recent first.
func (s *Store) List(ctx context.Context, limit int) ([]Job, error) {
	if limit <= 0 {
		limit = 50
	}
	var out []Job
	err := s.db.WithContext(ctx).Order("started_at DESC").Limit(limit).Find(&out).Error
	return out, err
}
