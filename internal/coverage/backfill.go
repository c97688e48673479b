package coverage

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/realronaldrump/everystreet-new-sub000/internal/geo"
	"github.com/realronaldrump/everystreet-new-sub000/internal/jobs"
	"github.com/realronaldrump/everystreet-new-sub000/internal/trips"
)

const (
	// progressTripInterval and progressWallInterval throttle progress
	// writes: a report fires when either has elapsed, whichever comes
	// first. Keeps the job store quiet during fast matching while
	// guaranteeing liveness during slow batches.
	progressTripInterval = 500
	progressWallInterval = 5 * time.Second

	// cancelCheckPages bounds how often the durable cancellation flag is
	// polled. Not per-trip; a backfill stops within a few pages.
	cancelCheckPages = 5

	// upsertChunkSize bounds one bulk write statement.
	upsertChunkSize = 1000
)

// Backfill stages, observable through the job record.
const (
	StageQueued     = "queued"
	StageMatching   = "matching"
	StageFinalizing = "finalizing"
	StageComplete   = "complete"
)

// ProgressFunc receives throttled backfill progress.
type ProgressFunc func(stage string, progress int, message string)

// Backfiller runs coverage matching over an area's entire trip history in
// bounded batches, with bounded-concurrency geometry work and a single
// shared read-only index.
type Backfiller struct {
	matcher *Matcher
	service *Service
	jobs    *jobs.Store
	trips   *trips.Store
	cfg     MatchConfig
}

func NewBackfiller(matcher *Matcher, service *Service, jobStore *jobs.Store, tripStore *trips.Store, cfg MatchConfig) *Backfiller {
	return &Backfiller{
		matcher: matcher,
		service: service,
		jobs:    jobStore,
		trips:   tripStore,
		cfg:     cfg,
	}
}

// segmentWindow is one segment's accumulated drive window across the whole
// backfill, not per-batch, so the final write carries historically accurate
// first-driven timestamps.
type segmentWindow struct {
	first  time.Time
	last   time.Time
	tripID uuid.UUID
}

// mergeWindow folds one trip's match into the accumulator with min/max
// semantics: commutative and idempotent, so batch arrival order cannot
// change the outcome.
func mergeWindow(acc map[string]segmentWindow, segmentID string, drivenAt time.Time, tripID uuid.UUID) {
	w, ok := acc[segmentID]
	if !ok {
		acc[segmentID] = segmentWindow{first: drivenAt, last: drivenAt, tripID: tripID}
		return
	}
	if drivenAt.Before(w.first) {
		w.first = drivenAt
	}
	if !drivenAt.Before(w.last) {
		w.last = drivenAt
		w.tripID = tripID
	}
	acc[segmentID] = w
}

// throttle gates progress reporting on a trip-count interval or a
// wall-clock interval, whichever comes first.
type throttle struct {
	limiter      *rate.Limiter
	tripInterval int
	lastReported int
}

func newThrottle(tripInterval int, wallInterval time.Duration) *throttle {
	return &throttle{
		limiter:      rate.NewLimiter(rate.Every(wallInterval), 1),
		tripInterval: tripInterval,
	}
}

func (t *throttle) shouldReport(processed int) bool {
	if processed-t.lastReported >= t.tripInterval || t.limiter.Allow() {
		t.lastReported = processed
		return true
	}
	return false
}

// tripMatch is one trip's matching result inside a mega-batch.
type tripMatch struct {
	tripID     uuid.UUID
	drivenAt   time.Time
	segmentIDs []string
}

// BackfillCoverageForArea streams the trip history (optionally bounded by
// since), matches raw GPS traces against the area's shared segment index,
// and bulk-writes the accumulated transitions. Progress is reported through
// the job record and the optional callback; cancellation is cooperative and
// leaves everything matched so far committed. Returns the number of state
// rows written.
func (b *Backfiller) BackfillCoverageForArea(ctx context.Context, areaID uuid.UUID, since *time.Time, jobID uuid.UUID, progress ProgressFunc) (int, error) {
	report := func(stage string, pct int, msg string) {
		if jobID != uuid.Nil {
			if err := b.jobs.Update(ctx, jobID, stage, pct, msg, nil); err != nil {
				log.Printf("[backfill] job update failed: %v", err)
			}
		}
		if progress != nil {
			progress(stage, pct, msg)
		}
	}

	fail := func(err error, msg string) (int, error) {
		if jobID != uuid.Nil {
			_ = b.jobs.Fail(ctx, jobID, msg)
		}
		return 0, err
	}

	area, err := b.service.GetArea(ctx, areaID)
	if err != nil {
		return fail(err, "coverage area not found")
	}

	idx, err := b.matcher.indexForArea(ctx, area)
	if err != nil {
		return fail(err, "failed to build street index")
	}

	total, err := b.trips.Count(ctx, since)
	if err != nil {
		return fail(err, "failed to count trips")
	}
	report(StageMatching, 0, fmt.Sprintf("matching %d trips", total))

	acc := make(map[string]segmentWindow)
	thr := newThrottle(progressTripInterval, progressWallInterval)

	var (
		processed int
		skipped   int
		cancelled bool
		cursor    time.Time
		cursorID  uuid.UUID
		pages     int
	)

	for {
		if err := ctx.Err(); err != nil {
			cancelled = true
			break
		}
		if jobID != uuid.Nil && pages%cancelCheckPages == 0 && pages > 0 {
			requested, err := b.jobs.IsCancelRequested(ctx, jobID)
			if err != nil {
				log.Printf("[backfill] cancel check failed: %v", err)
			} else if requested {
				cancelled = true
				break
			}
		}

		page, err := b.trips.PageAfter(ctx, since, cursor, cursorID, b.cfg.BatchSize)
		if err != nil {
			return fail(err, "failed to load trip page")
		}
		if len(page) == 0 {
			break
		}
		pages++
		last := page[len(page)-1]
		cursor, cursorID = last.StartTime, last.ID

		// Mega-batches bound how many trips hold buffered geometry at
		// once; the index is shared read-only across the tasks.
		for start := 0; start < len(page); start += b.cfg.MegaBatchSize {
			end := start + b.cfg.MegaBatchSize
			if end > len(page) {
				end = len(page)
			}
			batch := page[start:end]

			// Segments already accumulated never need re-testing.
			exclude := make(map[string]struct{}, len(acc))
			for id := range acc {
				exclude[id] = struct{}{}
			}

			var (
				mu      sync.Mutex
				results []tripMatch
			)
			g, gctx := errgroup.WithContext(ctx)
			g.SetLimit(b.cfg.Concurrency)
			for i := range batch {
				trip := &batch[i]
				g.Go(func() error {
					if gctx.Err() != nil {
						return gctx.Err()
					}
					// Backfill matches the raw GPS trace only; a stale
					// map-matched geometry must not leak into coverage.
					lines, err := b.matcher.TripLines(trip, true)
					if err != nil {
						if !errors.Is(err, geo.ErrNoGeometry) {
							log.Printf("[backfill] trip %s geometry error, skipping: %v", trip.ID, err)
						}
						mu.Lock()
						skipped++
						mu.Unlock()
						return nil
					}
					matched := idx.FindMatchingSegmentsBatch(lines, b.matcher.params(), exclude)
					if len(matched) > 0 {
						mu.Lock()
						results = append(results, tripMatch{tripID: trip.ID, drivenAt: trip.DrivenAt(), segmentIDs: matched})
						mu.Unlock()
					}
					return nil
				})
			}
			if err := g.Wait(); err != nil {
				return fail(err, "matching interrupted")
			}

			for _, r := range results {
				for _, segID := range r.segmentIDs {
					mergeWindow(acc, segID, r.drivenAt, r.tripID)
				}
			}
		}

		processed += len(page)
		if thr.shouldReport(processed) {
			pct := 0
			if total > 0 {
				pct = int(float64(processed) / float64(total) * 95) // last 5% is the write
			}
			report(StageMatching, pct, fmt.Sprintf("matched %d/%d trips, %d segments so far", processed, total, len(acc)))
		}
	}

	// The index was built once at the start; if the area was rebuilt while
	// we matched, everything accumulated is against dead geometry.
	current, err := b.service.GetArea(ctx, areaID)
	if err != nil {
		return fail(err, "coverage area vanished during backfill")
	}
	if current.AreaVersion != idx.AreaVersion {
		log.Printf("[backfill] area %s rebuilt (v%d -> v%d) mid-run, discarding results", areaID, idx.AreaVersion, current.AreaVersion)
		if jobID != uuid.Nil {
			_ = b.jobs.MarkCancelled(ctx, jobID, "area was rebuilt during backfill; results discarded")
		}
		return 0, nil
	}

	report(StageFinalizing, 95, fmt.Sprintf("writing %d segment transitions", len(acc)))

	written, err := b.finalize(ctx, areaID, acc)
	if err != nil {
		return fail(err, "failed to write coverage state")
	}

	if _, err := b.service.UpdateAreaStats(ctx, areaID); err != nil {
		return fail(err, "failed to refresh area stats")
	}

	summary := fmt.Sprintf("backfill matched %d trips (%d skipped), wrote %d segments", processed, skipped, written)
	if cancelled {
		// Cancellation is a valid paused state: everything matched so far
		// is committed, nothing is rolled back.
		log.Printf("[backfill] cancelled for area %s: %s", areaID, summary)
		if jobID != uuid.Nil {
			_ = b.jobs.MarkCancelled(ctx, jobID, summary)
		}
		return written, nil
	}

	log.Printf("[backfill] complete for area %s: %s", areaID, summary)
	if jobID != uuid.Nil {
		// Complete is the last job-store write; a progress update after it
		// would flip the terminal status back to running.
		_ = b.jobs.Complete(ctx, jobID, summary)
	}
	if progress != nil {
		progress(StageComplete, 100, summary)
	}
	return written, nil
}

// finalize bulk-writes the accumulated windows, excluding segments manually
// marked undriveable. Chunks are independent: one failing chunk is logged
// and skipped, never aborting the others.
func (b *Backfiller) finalize(ctx context.Context, areaID uuid.UUID, acc map[string]segmentWindow) (int, error) {
	undriveable, err := b.service.UndriveableSegmentIDs(ctx, areaID)
	if err != nil {
		return 0, err
	}

	updates := make([]SegmentUpdate, 0, len(acc))
	for segID, w := range acc {
		if _, manual := undriveable[segID]; manual {
			continue
		}
		updates = append(updates, SegmentUpdate{
			SegmentID:     segID,
			FirstDrivenAt: w.first,
			LastDrivenAt:  w.last,
			TripID:        w.tripID,
		})
	}

	written := 0
	for start := 0; start < len(updates); start += upsertChunkSize {
		end := start + upsertChunkSize
		if end > len(updates) {
			end = len(updates)
		}
		n, err := b.service.BulkUpsertSegmentStates(ctx, areaID, updates[start:end])
		if err != nil {
			log.Printf("[backfill] chunk write failed (%d segments), continuing: %v", end-start, err)
			continue
		}
		written += n
	}
	return written, nil
}
