package coverage

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

func SetupRoutes(h *Handlers) http.Handler {
	r := chi.NewRouter()

	// Read-only access to areas and coverage state
	r.Get("/areas", h.ListAreasHandler)
	r.Get("/areas/{area_id}", h.GetAreaHandler)
	r.Get("/areas/{area_id}/segments/{segment_id}", h.GetSegmentStateHandler)

	// Mutations
	r.Post("/areas/{area_id}/refresh-stats", h.RefreshStatsHandler)
	r.Post("/areas/{area_id}/backfill", h.StartBackfillHandler)
	r.Post("/areas/{area_id}/segments/{segment_id}/undriveable", h.MarkUndriveableHandler)
	r.Post("/areas/{area_id}/segments/{segment_id}/undriven", h.MarkUndrivenHandler)
	r.Post("/trips/{trip_id}/match", h.MatchTripHandler)

	// Job polling and cancellation
	r.Get("/jobs", h.ListJobsHandler)
	r.Get("/jobs/{job_id}", h.GetJobHandler)
	r.Post("/jobs/{job_id}/cancel", h.CancelJobHandler)

	return r
}
