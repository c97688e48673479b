package spatial

import (
	"sync"

	"github.com/google/uuid"
)

// BuildFunc constructs a fresh index for an (area, version). It runs outside
// any request path that could tolerate staleness; callers pass a closure
// that loads segments from storage.
type BuildFunc func() (*SegmentIndex, error)

// IndexCache holds one SegmentIndex per area. It is an explicit object owned
// by the matcher service and injected where needed; there is no module-level
// singleton. An entry built against a version that no longer matches the
// requested one is treated as stale and rebuilt, never served to new callers.
type IndexCache struct {
	mu      sync.Mutex
	entries map[uuid.UUID]*SegmentIndex
}

func NewIndexCache() *IndexCache {
	return &IndexCache{entries: make(map[uuid.UUID]*SegmentIndex)}
}

// Get returns the cached index for areaID at exactly areaVersion, building
// (or rebuilding) it via build when missing or stale. The lock is held
// across the build so concurrent callers for the same area share one build.
func (c *IndexCache) Get(areaID uuid.UUID, areaVersion int, build BuildFunc) (*SegmentIndex, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if idx, ok := c.entries[areaID]; ok && idx.AreaVersion == areaVersion {
		return idx, nil
	}

	idx, err := build()
	if err != nil {
		return nil, err
	}
	c.entries[areaID] = idx
	return idx, nil
}

// Invalidate drops an area's cached index. Called on area version bumps.
func (c *IndexCache) Invalidate(areaID uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, areaID)
}

// Len reports how many areas currently have a cached index.
func (c *IndexCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
