package missions_test

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/realronaldrump/everystreet-new-sub000/internal/coverage"
	"github.com/realronaldrump/everystreet-new-sub000/internal/db"
	"github.com/realronaldrump/everystreet-new-sub000/internal/missions"
)

var dbAvailable bool

var testDB *gorm.DB

func TestMain(m *testing.M) {
	_ = godotenv.Load("../../.env.local")

	if os.Getenv("DATABASE_URL") == "" {
		os.Exit(m.Run())
	}

	testDB = db.Connect()
	dbAvailable = true
	coverage.Init(testDB)
	missions.Init(testDB)

	os.Exit(m.Run())
}

func requireDB(t *testing.T) {
	t.Helper()
	if !dbAvailable {
		t.Skip("DATABASE_URL not set; skipping integration test")
	}
}

// seedReadyArea inserts a ready area with two 0.1-mile segments.
func seedReadyArea(t *testing.T) *coverage.CoverageArea {
	t.Helper()
	ctx := context.Background()

	area := &coverage.CoverageArea{
		Name:        "mission-test-area-" + uuid.NewString(),
		AreaVersion: 1,
		Status:      coverage.AreaReady,
	}
	if err := testDB.WithContext(ctx).Create(area).Error; err != nil {
		t.Fatalf("create area: %v", err)
	}
	for i := 0; i < 2; i++ {
		street := &coverage.Street{
			AreaID:      area.ID,
			AreaVersion: 1,
			SegmentID:   fmt.Sprintf("seg-%d", i),
			Geometry:    datatypes.JSON(`{"type":"LineString","coordinates":[[0,0],[0.001,0]]}`),
			LengthMiles: 0.1,
		}
		if err := testDB.WithContext(ctx).Create(street).Error; err != nil {
			t.Fatalf("create street: %v", err)
		}
	}

	t.Cleanup(func() {
		testDB.Where("area_id = ?", area.ID).Delete(&missions.CoverageMission{})
		testDB.Where("area_id = ?", area.ID).Delete(&coverage.Street{})
		testDB.Delete(area)
	})
	return area
}

func TestCreateMission_SingleActivePerArea(t *testing.T) {
	requireDB(t)
	area := seedReadyArea(t)
	svc := missions.NewService(testDB)
	ctx := context.Background()

	first, err := svc.CreateMission(ctx, area.ID, false)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if first.Status != missions.StatusActive {
		t.Errorf("status = %q, want active", first.Status)
	}
	if first.AreaVersion != 1 {
		t.Errorf("area_version = %d, want the area's version captured", first.AreaVersion)
	}

	// A second create without resume conflicts.
	_, err = svc.CreateMission(ctx, area.ID, false)
	if !errors.Is(err, missions.ErrActiveMissionExists) {
		t.Errorf("expected ErrActiveMissionExists, got %v", err)
	}

	// With resume, the existing mission comes back instead.
	resumed, err := svc.CreateMission(ctx, area.ID, true)
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if resumed.ID != first.ID {
		t.Errorf("resume returned %s, want the original %s", resumed.ID, first.ID)
	}
}

func TestCreateMission_AreaNotReady(t *testing.T) {
	requireDB(t)
	area := seedReadyArea(t)
	svc := missions.NewService(testDB)
	ctx := context.Background()

	if err := testDB.Model(area).Update("status", coverage.AreaRebuilding).Error; err != nil {
		t.Fatalf("set rebuilding: %v", err)
	}
	_, err := svc.CreateMission(ctx, area.ID, false)
	if !errors.Is(err, missions.ErrAreaNotReady) {
		t.Errorf("expected ErrAreaNotReady, got %v", err)
	}
}

func TestApplySegmentProgress(t *testing.T) {
	requireDB(t)
	area := seedReadyArea(t)
	svc := missions.NewService(testDB)
	ctx := context.Background()

	mission, err := svc.CreateMission(ctx, area.ID, false)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	// seg-0 twice in one call, plus an unknown id.
	mission, err = svc.ApplySegmentProgress(ctx, mission.ID, []string{"seg-0", "seg-0", "ghost"})
	if err != nil {
		t.Fatalf("progress: %v", err)
	}
	if mission.SessionSegmentsCompleted != 1 {
		t.Errorf("completed = %d, want 1", mission.SessionSegmentsCompleted)
	}
	if math.Abs(mission.SessionGainMiles-0.1) > 1e-9 {
		t.Errorf("gain = %v, want 0.1", mission.SessionGainMiles)
	}

	// Re-reporting seg-0 is a no-op; seg-1 adds.
	mission, err = svc.ApplySegmentProgress(ctx, mission.ID, []string{"seg-0", "seg-1"})
	if err != nil {
		t.Fatalf("progress: %v", err)
	}
	if mission.SessionSegmentsCompleted != 2 {
		t.Errorf("completed = %d, want 2", mission.SessionSegmentsCompleted)
	}
	if len(mission.CompletedSegmentIDs) != 2 {
		t.Errorf("stored ids = %v, want exactly two", mission.CompletedSegmentIDs)
	}
}

func TestApplySegmentProgress_NotActive(t *testing.T) {
	requireDB(t)
	area := seedReadyArea(t)
	svc := missions.NewService(testDB)
	ctx := context.Background()

	mission, err := svc.CreateMission(ctx, area.ID, false)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.TransitionStatus(ctx, mission.ID, missions.StatusPaused); err != nil {
		t.Fatalf("pause: %v", err)
	}

	_, err = svc.ApplySegmentProgress(ctx, mission.ID, []string{"seg-0"})
	if !errors.Is(err, missions.ErrMissionNotActive) {
		t.Errorf("expected ErrMissionNotActive, got %v", err)
	}
}

func TestTransitionStatus_Lifecycle(t *testing.T) {
	requireDB(t)
	area := seedReadyArea(t)
	svc := missions.NewService(testDB)
	ctx := context.Background()

	mission, err := svc.CreateMission(ctx, area.ID, false)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	mission, err = svc.TransitionStatus(ctx, mission.ID, missions.StatusPaused)
	if err != nil {
		t.Fatalf("pause: %v", err)
	}
	mission, err = svc.TransitionStatus(ctx, mission.ID, missions.StatusActive)
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	mission, err = svc.TransitionStatus(ctx, mission.ID, missions.StatusCompleted)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if mission.EndedAt == nil {
		t.Error("expected ended_at stamped on completion")
	}

	_, err = svc.TransitionStatus(ctx, mission.ID, missions.StatusActive)
	if !errors.Is(err, missions.ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition out of a terminal state, got %v", err)
	}
}

func TestHeartbeat(t *testing.T) {
	requireDB(t)
	area := seedReadyArea(t)
	svc := missions.NewService(testDB)
	ctx := context.Background()

	mission, err := svc.CreateMission(ctx, area.ID, false)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := svc.Heartbeat(ctx, mission.ID); err != nil {
		t.Fatalf("heartbeat: %v", err)
	}

	got, err := svc.Get(ctx, mission.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.LastHeartbeatAt == nil {
		t.Error("expected last_heartbeat_at set")
	}

	if _, err := svc.TransitionStatus(ctx, mission.ID, missions.StatusCancelled); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if err := svc.Heartbeat(ctx, mission.ID); !errors.Is(err, missions.ErrMissionNotActive) {
		t.Errorf("expected ErrMissionNotActive on a cancelled mission, got %v", err)
	}

	if err := svc.Heartbeat(ctx, uuid.New()); !errors.Is(err, missions.ErrNotFound) {
		t.Errorf("expected ErrNotFound for an unknown mission, got %v", err)
	}
}

// TestGetActiveMission_StaleVersionCancelled bumps the area version under an
// active mission and verifies the mission gets cancelled instead of served.
func TestGetActiveMission_StaleVersionCancelled(t *testing.T) {
	requireDB(t)
	area := seedReadyArea(t)
	svc := missions.NewService(testDB)
	ctx := context.Background()

	mission, err := svc.CreateMission(ctx, area.ID, false)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := testDB.Model(area).Update("area_version", 2).Error; err != nil {
		t.Fatalf("bump version: %v", err)
	}

	_, err = svc.GetActiveMission(ctx, area.ID)
	if !errors.Is(err, missions.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after stale cancel, got %v", err)
	}

	got, err := svc.Get(ctx, mission.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != missions.StatusCancelled {
		t.Errorf("status = %q, want cancelled", got.Status)
	}
}

// TestStaleAreaBump_FinishedMissionStaysFinished completes a mission, then
// rebuilds the area underneath it. The stale check only cancels missions
// that are still active; a finished mission keeps its terminal status and
// end time.
func TestStaleAreaBump_FinishedMissionStaysFinished(t *testing.T) {
	requireDB(t)
	area := seedReadyArea(t)
	svc := missions.NewService(testDB)
	ctx := context.Background()

	mission, err := svc.CreateMission(ctx, area.ID, false)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	mission, err = svc.TransitionStatus(ctx, mission.ID, missions.StatusCompleted)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	endedAt := mission.EndedAt

	if err := testDB.Model(area).Update("area_version", 2).Error; err != nil {
		t.Fatalf("bump version: %v", err)
	}
	if _, err := svc.GetActiveMission(ctx, area.ID); !errors.Is(err, missions.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	got, err := svc.Get(ctx, mission.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != missions.StatusCompleted {
		t.Errorf("status = %q, want completed to survive the rebuild", got.Status)
	}
	if got.EndedAt == nil || endedAt == nil || !got.EndedAt.Equal(*endedAt) {
		t.Errorf("ended_at = %v, want unchanged %v", got.EndedAt, endedAt)
	}
}
