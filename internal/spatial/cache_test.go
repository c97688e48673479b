package spatial_test

import (
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/realronaldrump/everystreet-new-sub000/internal/spatial"
)

func buildCounting(t *testing.T, version int, builds *int) spatial.BuildFunc {
	t.Helper()
	return func() (*spatial.SegmentIndex, error) {
		*builds++
		return spatial.NewSegmentIndex(uuid.New(), version, testSegments())
	}
}

func TestIndexCache_BuildsOnce(t *testing.T) {
	cache := spatial.NewIndexCache()
	areaID := uuid.New()
	builds := 0

	for i := 0; i < 3; i++ {
		if _, err := cache.Get(areaID, 1, buildCounting(t, 1, &builds)); err != nil {
			t.Fatalf("get: %v", err)
		}
	}
	if builds != 1 {
		t.Errorf("expected 1 build, got %d", builds)
	}
	if cache.Len() != 1 {
		t.Errorf("expected 1 cached area, got %d", cache.Len())
	}
}

// TestIndexCache_StaleVersionRebuilds verifies that an entry built against an
// older area version is never served once the version moves on.
func TestIndexCache_StaleVersionRebuilds(t *testing.T) {
	cache := spatial.NewIndexCache()
	areaID := uuid.New()
	builds := 0

	if _, err := cache.Get(areaID, 1, buildCounting(t, 1, &builds)); err != nil {
		t.Fatalf("get v1: %v", err)
	}
	idx, err := cache.Get(areaID, 2, buildCounting(t, 2, &builds))
	if err != nil {
		t.Fatalf("get v2: %v", err)
	}

	if builds != 2 {
		t.Errorf("expected 2 builds, got %d", builds)
	}
	if idx.AreaVersion != 2 {
		t.Errorf("expected version 2, got %d", idx.AreaVersion)
	}
}

func TestIndexCache_Invalidate(t *testing.T) {
	cache := spatial.NewIndexCache()
	areaID := uuid.New()
	builds := 0

	if _, err := cache.Get(areaID, 1, buildCounting(t, 1, &builds)); err != nil {
		t.Fatalf("get: %v", err)
	}
	cache.Invalidate(areaID)
	if cache.Len() != 0 {
		t.Errorf("expected empty cache, got %d entries", cache.Len())
	}

	if _, err := cache.Get(areaID, 1, buildCounting(t, 1, &builds)); err != nil {
		t.Fatalf("get after invalidate: %v", err)
	}
	if builds != 2 {
		t.Errorf("expected rebuild after invalidate, got %d builds", builds)
	}
}

// TestIndexCache_BuildErrorNotCached verifies that a failed build leaves no
// entry behind.
func TestIndexCache_BuildErrorNotCached(t *testing.T) {
	cache := spatial.NewIndexCache()
	areaID := uuid.New()
	boom := errors.New("storage down")

	_, err := cache.Get(areaID, 1, func() (*spatial.SegmentIndex, error) {
		return nil, boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected build error, got %v", err)
	}
	if cache.Len() != 0 {
		t.Errorf("expected no cached entry after failed build, got %d", cache.Len())
	}
}
