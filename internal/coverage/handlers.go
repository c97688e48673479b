package coverage

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/realronaldrump/everystreet-new-sub000/internal/jobs"
	"github.com/realronaldrump/everystreet-new-sub000/internal/trips"
)

// Handlers carries the coverage services the HTTP surface delegates to.
type Handlers struct {
	Service    *Service
	Matcher    *Matcher
	Backfiller *Backfiller
	Jobs       *jobs.Store
	Trips      *trips.Store
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[coverage] failed to encode response: %v", err)
	}
}

func (h *Handlers) ListAreasHandler(w http.ResponseWriter, r *http.Request) {
	areas, err := h.Service.ListAreas(r.Context())
	if err != nil {
		http.Error(w, "DB error: "+err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, areas)
}

func (h *Handlers) GetAreaHandler(w http.ResponseWriter, r *http.Request) {
	areaID, err := uuid.Parse(chi.URLParam(r, "area_id"))
	if err != nil {
		http.Error(w, "Invalid area id", http.StatusBadRequest)
		return
	}
	area, err := h.Service.GetArea(r.Context(), areaID)
	if errors.Is(err, ErrNotFound) {
		http.Error(w, "Area not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, "DB error: "+err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, area)
}

func (h *Handlers) RefreshStatsHandler(w http.ResponseWriter, r *http.Request) {
	areaID, err := uuid.Parse(chi.URLParam(r, "area_id"))
	if err != nil {
		http.Error(w, "Invalid area id", http.StatusBadRequest)
		return
	}
	stats, err := h.Service.UpdateAreaStats(r.Context(), areaID)
	if err != nil {
		http.Error(w, "Failed to refresh stats: "+err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// StartBackfillHandler creates a job and runs the backfill in the
// background; the response carries the job id for polling.
func (h *Handlers) StartBackfillHandler(w http.ResponseWriter, r *http.Request) {
	areaID, err := uuid.Parse(chi.URLParam(r, "area_id"))
	if err != nil {
		http.Error(w, "Invalid area id", http.StatusBadRequest)
		return
	}

	var input struct {
		Since *time.Time `json:"since,omitempty"`
	}
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&input)
	}

	if _, err := h.Service.GetArea(r.Context(), areaID); err != nil {
		if errors.Is(err, ErrNotFound) {
			http.Error(w, "Area not found", http.StatusNotFound)
			return
		}
		http.Error(w, "DB error: "+err.Error(), http.StatusInternalServerError)
		return
	}

	job, err := h.Jobs.Create(r.Context(), "coverage_backfill")
	if err != nil {
		http.Error(w, "Failed to create job", http.StatusInternalServerError)
		return
	}

	go func() {
		// Detached from the request; the job record is the progress channel.
		ctx := context.Background()
		if _, err := h.Backfiller.BackfillCoverageForArea(ctx, areaID, input.Since, job.ID, nil); err != nil {
			log.Printf("[coverage] backfill for area %s failed: %v", areaID, err)
		}
	}()

	writeJSON(w, http.StatusAccepted, map[string]any{"job_id": job.ID})
}

func (h *Handlers) CancelJobHandler(w http.ResponseWriter, r *http.Request) {
	jobID, err := uuid.Parse(chi.URLParam(r, "job_id"))
	if err != nil {
		http.Error(w, "Invalid job id", http.StatusBadRequest)
		return
	}
	if err := h.Jobs.RequestCancel(r.Context(), jobID); err != nil {
		if errors.Is(err, jobs.ErrNotFound) {
			http.Error(w, "Job not found", http.StatusNotFound)
			return
		}
		http.Error(w, "Failed to request cancel", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) ListJobsHandler(w http.ResponseWriter, r *http.Request) {
	recent, err := h.Jobs.List(r.Context(), 50)
	if err != nil {
		http.Error(w, "DB error: "+err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, recent)
}

func (h *Handlers) GetJobHandler(w http.ResponseWriter, r *http.Request) {
	jobID, err := uuid.Parse(chi.URLParam(r, "job_id"))
	if err != nil {
		http.Error(w, "Invalid job id", http.StatusBadRequest)
		return
	}
	job, err := h.Jobs.Get(r.Context(), jobID)
	if errors.Is(err, jobs.ErrNotFound) {
		http.Error(w, "Job not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, "DB error: "+err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (h *Handlers) markSegmentHandler(w http.ResponseWriter, r *http.Request, status string) {
	areaID, err := uuid.Parse(chi.URLParam(r, "area_id"))
	if err != nil {
		http.Error(w, "Invalid area id", http.StatusBadRequest)
		return
	}
	segmentID := chi.URLParam(r, "segment_id")

	if status == SegmentUndriveable {
		err = h.Service.MarkSegmentUndriveable(r.Context(), areaID, segmentID)
	} else {
		err = h.Service.MarkSegmentUndriven(r.Context(), areaID, segmentID)
	}
	if errors.Is(err, ErrNotFound) {
		http.Error(w, "Segment not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, "Failed to mark segment: "+err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) MarkUndriveableHandler(w http.ResponseWriter, r *http.Request) {
	h.markSegmentHandler(w, r, SegmentUndriveable)
}

func (h *Handlers) MarkUndrivenHandler(w http.ResponseWriter, r *http.Request) {
	h.markSegmentHandler(w, r, SegmentUndriven)
}

func (h *Handlers) GetSegmentStateHandler(w http.ResponseWriter, r *http.Request) {
	areaID, err := uuid.Parse(chi.URLParam(r, "area_id"))
	if err != nil {
		http.Error(w, "Invalid area id", http.StatusBadRequest)
		return
	}
	segmentID := chi.URLParam(r, "segment_id")
	state, err := h.Service.GetSegmentState(r.Context(), areaID, segmentID)
	if err != nil {
		http.Error(w, "DB error: "+err.Error(), http.StatusInternalServerError)
		return
	}
	if state == nil {
		// No row means the segment has never transitioned.
		writeJSON(w, http.StatusOK, map[string]any{
			"area_id":    areaID,
			"segment_id": segmentID,
			"status":     SegmentUndriven,
		})
		return
	}
	writeJSON(w, http.StatusOK, state)
}

// MatchTripHandler applies one stored trip to coverage, the same entry
// point the trip-ingestion pipeline calls on trip completion.
func (h *Handlers) MatchTripHandler(w http.ResponseWriter, r *http.Request) {
	tripID, err := uuid.Parse(chi.URLParam(r, "trip_id"))
	if err != nil {
		http.Error(w, "Invalid trip id", http.StatusBadRequest)
		return
	}
	trip, err := h.Trips.GetByID(r.Context(), tripID)
	if errors.Is(err, trips.ErrNotFound) {
		http.Error(w, "Trip not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, "DB error: "+err.Error(), http.StatusInternalServerError)
		return
	}

	updated, err := h.Matcher.UpdateCoverageForTrip(r.Context(), h.Service, trip)
	if err != nil {
		http.Error(w, "Failed to update coverage: "+err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"updated": updated})
}
