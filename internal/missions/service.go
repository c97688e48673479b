package missions

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/realronaldrump/everystreet-new-sub000/internal/coverage"
)

var (
	// ErrNotFound is returned when a mission or its area is absent.
	ErrNotFound = errors.New("missions: not found")
	// ErrAreaNotReady is a Conflict: missions only start on ready areas.
	ErrAreaNotReady = errors.New("missions: coverage area is not ready")
	// ErrActiveMissionExists is a Conflict: at most one active mission per
	// area, and the caller declined to resume it.
	ErrActiveMissionExists = errors.New("missions: an active mission already exists for this area")
	// ErrMissionNotActive is a Conflict: the operation requires an active
	// mission.
	ErrMissionNotActive = errors.New("missions: mission is not active")
)

// Service is the mission lifecycle engine layered on top of coverage state.
type Service struct {
	db *gorm.DB
}

func NewService(d *gorm.DB) *Service {
	return &Service{db: d}
}

// CreateMission starts a session on a ready area. When an active mission
// already exists: resumeIfActive returns it unchanged, otherwise the call
// is rejected. A creation race against another caller is resolved by the
// partial unique index; the duplicate-key loser re-reads and returns the
// winner's mission instead of surfacing the race.
func (s *Service) CreateMission(ctx context.Context, areaID uuid.UUID, resumeIfActive bool) (*CoverageMission, error) {
	var area coverage.CoverageArea
	err := s.db.WithContext(ctx).First(&area, "id = ?", areaID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: area %s", ErrNotFound, areaID)
	}
	if err != nil {
		return nil, err
	}
	if area.Status != coverage.AreaReady {
		return nil, fmt.Errorf("%w: area %s is %s", ErrAreaNotReady, areaID, area.Status)
	}

	if existing, err := s.GetActiveMission(ctx, areaID); err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	} else if existing != nil {
		if resumeIfActive {
			return existing, nil
		}
		return nil, fmt.Errorf("%w: mission %s", ErrActiveMissionExists, existing.ID)
	}

	now := time.Now().UTC()
	mission := &CoverageMission{
		AreaID:              areaID,
		AreaVersion:         area.AreaVersion,
		Status:              StatusActive,
		StartedAt:           now,
		LastHeartbeatAt:     &now,
		CompletedSegmentIDs: pq.StringArray{},
		Checkpoints: appendCheckpoint(nil, Checkpoint{
			Event: "mission_started",
			At:    now,
			Metadata: map[string]any{
				"area_version": area.AreaVersion,
			},
		}),
	}
	err = s.db.WithContext(ctx).Create(mission).Error
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			// Someone else just created the active mission; return theirs.
			winner, readErr := s.GetActiveMission(ctx, areaID)
			if readErr != nil {
				return nil, fmt.Errorf("lost creation race and re-read failed: %w", readErr)
			}
			if resumeIfActive {
				return winner, nil
			}
			return nil, fmt.Errorf("%w: mission %s", ErrActiveMissionExists, winner.ID)
		}
		return nil, fmt.Errorf("create mission: %w", err)
	}
	return mission, nil
}

// GetActiveMission returns the area's active mission. A mission whose
// captured area version no longer matches the area's current version is
// stale: it is cancelled with an explanatory checkpoint and no active
// mission is reported; callers must never keep marking progress against
// dead geometry.
func (s *Service) GetActiveMission(ctx context.Context, areaID uuid.UUID) (*CoverageMission, error) {
	var mission CoverageMission
	err := s.db.WithContext(ctx).
		First(&mission, "area_id = ? AND status = ?", areaID, StatusActive).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: no active mission for area %s", ErrNotFound, areaID)
	}
	if err != nil {
		return nil, err
	}

	var currentVersion int
	err = s.db.WithContext(ctx).Model(&coverage.CoverageArea{}).
		Where("id = ?", areaID).Pluck("area_version", &currentVersion).Error
	if err != nil {
		return nil, err
	}
	if mission.AreaVersion != currentVersion {
		log.Printf("[missions] mission %s is stale (v%d, area now v%d), cancelling", mission.ID, mission.AreaVersion, currentVersion)
		if err := s.cancelStale(ctx, &mission, currentVersion); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: active mission for area %s was stale and has been cancelled", ErrNotFound, areaID)
	}
	return &mission, nil
}

func (s *Service) cancelStale(ctx context.Context, mission *CoverageMission, currentVersion int) error {
	now := time.Now().UTC()
	// The status predicate keeps this from clobbering a mission that a
	// concurrent transition already moved out of active; in that case there
	// is nothing left to cancel and zero rows match.
	return s.db.WithContext(ctx).Model(&CoverageMission{}).
		Where("id = ? AND status = ?", mission.ID, StatusActive).
		Updates(map[string]any{
			"status":   StatusCancelled,
			"ended_at": &now,
			"checkpoints": appendCheckpoint(mission.Checkpoints, Checkpoint{
				Event: "cancelled_stale_area_version",
				At:    now,
				Metadata: map[string]any{
					"mission_area_version": mission.AreaVersion,
					"current_area_version": currentVersion,
				},
			}),
		}).Error
}

// Heartbeat refreshes liveness on an active mission without touching
// progress counters.
func (s *Service) Heartbeat(ctx context.Context, missionID uuid.UUID) error {
	res := s.db.WithContext(ctx).Model(&CoverageMission{}).
		Where("id = ? AND status = ?", missionID, StatusActive).
		Update("last_heartbeat_at", time.Now().UTC())
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		// Distinguish a missing mission from a non-active one.
		if _, err := s.Get(ctx, missionID); err != nil {
			return err
		}
		return fmt.Errorf("%w: %s", ErrMissionNotActive, missionID)
	}
	return nil
}

// TransitionStatus moves the mission through the state machine. Terminal
// states stamp ended_at; every transition appends a checkpoint.
func (s *Service) TransitionStatus(ctx context.Context, missionID uuid.UUID, to string) (*CoverageMission, error) {
	var mission CoverageMission
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&mission, "id = ?", missionID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: mission %s", ErrNotFound, missionID)
		}
		if err != nil {
			return err
		}
		if err := validateTransition(mission.Status, to); err != nil {
			return err
		}

		now := time.Now().UTC()
		from := mission.Status
		mission.Status = to
		if terminalStatus(to) {
			mission.EndedAt = &now
		}
		mission.Checkpoints = appendCheckpoint(mission.Checkpoints, Checkpoint{
			Event: "status_changed",
			At:    now,
			Metadata: map[string]any{
				"from": from,
				"to":   to,
			},
		})
		return tx.Save(&mission).Error
	})
	if err != nil {
		return nil, err
	}
	return &mission, nil
}

// ApplySegmentProgress records newly completed segments for an active
// mission. Incoming ids are deduplicated against both the call's own
// duplicates and the mission's stored set; ids that do not resolve to a
// street at the mission's area version (stale or unknown) are skipped. The
// row lock serializes concurrent progress calls so neither racer loses its
// newly completed segments.
func (s *Service) ApplySegmentProgress(ctx context.Context, missionID uuid.UUID, segmentIDs []string) (*CoverageMission, error) {
	var mission CoverageMission
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&mission, "id = ?", missionID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: mission %s", ErrNotFound, missionID)
		}
		if err != nil {
			return err
		}
		if mission.Status != StatusActive {
			return fmt.Errorf("%w: %s is %s", ErrMissionNotActive, missionID, mission.Status)
		}

		newIDs := dedupeNew(mission.CompletedSegmentIDs, segmentIDs)
		if len(newIDs) == 0 {
			return nil
		}

		// Resolve lengths; an id belonging to a stale area version simply
		// does not resolve and is dropped.
		type segLen struct {
			SegmentID   string
			LengthMiles float64
		}
		var resolved []segLen
		err = tx.Model(&coverage.Street{}).
			Select("segment_id, length_miles").
			Where("area_id = ? AND area_version = ? AND segment_id IN ?",
				mission.AreaID, mission.AreaVersion, newIDs).
			Scan(&resolved).Error
		if err != nil {
			return fmt.Errorf("resolve segment lengths: %w", err)
		}
		if len(resolved) == 0 {
			return nil
		}

		now := time.Now().UTC()
		gain := 0.0
		for _, r := range resolved {
			mission.CompletedSegmentIDs = append(mission.CompletedSegmentIDs, r.SegmentID)
			gain += r.LengthMiles
		}
		mission.SessionSegmentsCompleted += len(resolved)
		mission.SessionGainMiles += gain
		mission.LastHeartbeatAt = &now
		mission.Checkpoints = appendCheckpoint(mission.Checkpoints, Checkpoint{
			Event: "segments_completed",
			At:    now,
			Metadata: map[string]any{
				"count":      len(resolved),
				"gain_miles": gain,
			},
		})
		return tx.Save(&mission).Error
	})
	if err != nil {
		return nil, err
	}
	return &mission, nil
}

// Get returns a mission by id.
func (s *Service) Get(ctx context.Context, missionID uuid.UUID) (*CoverageMission, error) {
	var mission CoverageMission
	err := s.db.WithContext(ctx).First(&mission, "id = ?", missionID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: mission %s", ErrNotFound, missionID)
	}
	if err != nil {
		return nil, err
	}
	return &mission, nil
}

// ListMissions returns an area's missions, most recent first.
func (s *Service) ListMissions(ctx context.Context, areaID uuid.UUID, limit int) ([]CoverageMission, error) {
	if limit <= 0 {
		limit = 50
	}
	var out []CoverageMission
	err := s.db.WithContext(ctx).
		Where("area_id = ?", areaID).
		Order("started_at DESC").Limit(limit).
		Find(&out).Error
	return out, err
}

// dedupeNew returns the incoming ids that are neither repeated within the
// call nor already present in existing, preserving first-seen order.
func dedupeNew(existing []string, incoming []string) []string {
	seen := make(map[string]struct{}, len(existing)+len(incoming))
	for _, id := range existing {
		seen[id] = struct{}{}
	}
	var out []string
	for _, id := range incoming {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
