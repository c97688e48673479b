package missions

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

func SetupRoutes(h *Handlers) http.Handler {
	r := chi.NewRouter()

	r.Post("/", h.CreateMissionHandler)
	r.Get("/areas/{area_id}/active", h.GetActiveMissionHandler)
	r.Get("/areas/{area_id}", h.ListMissionsHandler)
	r.Get("/{mission_id}", h.GetMissionHandler)
	r.Post("/{mission_id}/heartbeat", h.HeartbeatHandler)
	r.Post("/{mission_id}/progress", h.ProgressHandler)
	r.Post("/{mission_id}/transition", h.TransitionHandler)

	return r
}
