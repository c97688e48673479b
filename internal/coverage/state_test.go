package coverage

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

// TestMergeSegmentUpdates_CollapsesDuplicates verifies duplicate segment ids
// in one bulk call fold into a single window with the earliest first, latest
// last, and provenance following the latest. One upsert statement cannot
// touch the same row twice, so the merge has to happen before the write.
func TestMergeSegmentUpdates_CollapsesDuplicates(t *testing.T) {
	base := time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)
	tripA, tripB, tripC := uuid.New(), uuid.New(), uuid.New()

	updates := []SegmentUpdate{
		{SegmentID: "seg-0", FirstDrivenAt: base.Add(time.Hour), LastDrivenAt: base.Add(time.Hour), TripID: tripA},
		{SegmentID: "seg-1", FirstDrivenAt: base, LastDrivenAt: base, TripID: tripB},
		{SegmentID: "seg-0", FirstDrivenAt: base, LastDrivenAt: base, TripID: tripB},
		{SegmentID: "seg-0", FirstDrivenAt: base.Add(2 * time.Hour), LastDrivenAt: base.Add(2 * time.Hour), TripID: tripC},
	}

	merged := mergeSegmentUpdates(updates)
	if len(merged) != 2 {
		t.Fatalf("len = %d, want 2", len(merged))
	}
	if merged[0].SegmentID != "seg-0" || merged[1].SegmentID != "seg-1" {
		t.Fatalf("first-occurrence order not preserved: %v, %v", merged[0].SegmentID, merged[1].SegmentID)
	}

	seg0 := merged[0]
	if !seg0.FirstDrivenAt.Equal(base) {
		t.Errorf("first = %v, want the earliest %v", seg0.FirstDrivenAt, base)
	}
	if !seg0.LastDrivenAt.Equal(base.Add(2 * time.Hour)) {
		t.Errorf("last = %v, want the latest %v", seg0.LastDrivenAt, base.Add(2*time.Hour))
	}
	if seg0.TripID != tripC {
		t.Errorf("trip = %v, want the latest trip %v", seg0.TripID, tripC)
	}
}

func TestMergeSegmentUpdates_UniqueInputUnchanged(t *testing.T) {
	now := time.Now()
	updates := []SegmentUpdate{
		{SegmentID: "a", FirstDrivenAt: now, LastDrivenAt: now, TripID: uuid.New()},
		{SegmentID: "b", FirstDrivenAt: now, LastDrivenAt: now, TripID: uuid.New()},
	}
	merged := mergeSegmentUpdates(updates)
	if len(merged) != 2 {
		t.Fatalf("len = %d, want 2", len(merged))
	}
	for i := range updates {
		if merged[i] != updates[i] {
			t.Errorf("entry %d changed: %+v != %+v", i, merged[i], updates[i])
		}
	}
}
