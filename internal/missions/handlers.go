package missions

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type Handlers struct {
	Service *Service
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[missions] failed to encode response: %v", err)
	}
}

func (h *Handlers) CreateMissionHandler(w http.ResponseWriter, r *http.Request) {
	var input struct {
		AreaID         uuid.UUID `json:"area_id"`
		ResumeIfActive bool      `json:"resume_if_active"`
	}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		http.Error(w, "Invalid JSON body", http.StatusBadRequest)
		return
	}
	if input.AreaID == uuid.Nil {
		http.Error(w, "Missing area_id", http.StatusBadRequest)
		return
	}

	mission, err := h.Service.CreateMission(r.Context(), input.AreaID, input.ResumeIfActive)
	switch {
	case errors.Is(err, ErrNotFound):
		http.Error(w, "Area not found", http.StatusNotFound)
		return
	case errors.Is(err, ErrAreaNotReady):
		http.Error(w, "Area is not ready", http.StatusConflict)
		return
	case errors.Is(err, ErrActiveMissionExists):
		http.Error(w, "An active mission already exists for this area", http.StatusConflict)
		return
	case err != nil:
		http.Error(w, "Failed to create mission: "+err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, mission)
}

func (h *Handlers) GetActiveMissionHandler(w http.ResponseWriter, r *http.Request) {
	areaID, err := uuid.Parse(chi.URLParam(r, "area_id"))
	if err != nil {
		http.Error(w, "Invalid area id", http.StatusBadRequest)
		return
	}
	mission, err := h.Service.GetActiveMission(r.Context(), areaID)
	if errors.Is(err, ErrNotFound) {
		http.Error(w, "No active mission", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, "DB error: "+err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, mission)
}

func (h *Handlers) GetMissionHandler(w http.ResponseWriter, r *http.Request) {
	missionID, err := uuid.Parse(chi.URLParam(r, "mission_id"))
	if err != nil {
		http.Error(w, "Invalid mission id", http.StatusBadRequest)
		return
	}
	mission, err := h.Service.Get(r.Context(), missionID)
	if errors.Is(err, ErrNotFound) {
		http.Error(w, "Mission not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, "DB error: "+err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, mission)
}

func (h *Handlers) HeartbeatHandler(w http.ResponseWriter, r *http.Request) {
	missionID, err := uuid.Parse(chi.URLParam(r, "mission_id"))
	if err != nil {
		http.Error(w, "Invalid mission id", http.StatusBadRequest)
		return
	}
	err = h.Service.Heartbeat(r.Context(), missionID)
	switch {
	case errors.Is(err, ErrNotFound):
		http.Error(w, "Mission not found", http.StatusNotFound)
		return
	case errors.Is(err, ErrMissionNotActive):
		http.Error(w, "Mission is not active", http.StatusConflict)
		return
	case err != nil:
		http.Error(w, "Failed to record heartbeat", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) ProgressHandler(w http.ResponseWriter, r *http.Request) {
	missionID, err := uuid.Parse(chi.URLParam(r, "mission_id"))
	if err != nil {
		http.Error(w, "Invalid mission id", http.StatusBadRequest)
		return
	}
	var input struct {
		SegmentIDs []string `json:"segment_ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		http.Error(w, "Invalid JSON body", http.StatusBadRequest)
		return
	}

	mission, err := h.Service.ApplySegmentProgress(r.Context(), missionID, input.SegmentIDs)
	switch {
	case errors.Is(err, ErrNotFound):
		http.Error(w, "Mission not found", http.StatusNotFound)
		return
	case errors.Is(err, ErrMissionNotActive):
		http.Error(w, "Mission is not active", http.StatusConflict)
		return
	case err != nil:
		http.Error(w, "Failed to apply progress: "+err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, mission)
}

func (h *Handlers) TransitionHandler(w http.ResponseWriter, r *http.Request) {
	missionID, err := uuid.Parse(chi.URLParam(r, "mission_id"))
	if err != nil {
		http.Error(w, "Invalid mission id", http.StatusBadRequest)
		return
	}
	var input struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		http.Error(w, "Invalid JSON body", http.StatusBadRequest)
		return
	}

	mission, err := h.Service.TransitionStatus(r.Context(), missionID, input.Status)
	switch {
	case errors.Is(err, ErrNotFound):
		http.Error(w, "Mission not found", http.StatusNotFound)
		return
	case errors.Is(err, ErrInvalidTransition):
		http.Error(w, "Invalid status transition: "+err.Error(), http.StatusConflict)
		return
	case err != nil:
		http.Error(w, "Failed to transition mission: "+err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, mission)
}

func (h *Handlers) ListMissionsHandler(w http.ResponseWriter, r *http.Request) {
	areaID, err := uuid.Parse(chi.URLParam(r, "area_id"))
	if err != nil {
		http.Error(w, "Invalid area id", http.StatusBadRequest)
		return
	}
	missions, err := h.Service.ListMissions(r.Context(), areaID, 50)
	if err != nil {
		http.Error(w, "DB error: "+err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, missions)
}
