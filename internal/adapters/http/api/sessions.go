package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// SessionsHandler handles the session lifecycle.
type SessionsHandler struct {
	deps SessionDependencies
}

// NewSessionsHandler creates a new sessions handler.
func NewSessionsHandler(deps SessionDependencies) *SessionsHandler {
	return &SessionsHandler{deps: deps}
}

// startSessionRequest mirrors the OpenAPI schema for POST /sessions.
type startSessionRequest struct {
	ElevatorID string `json:"elevator_id"`
	Technician string `json:"technician"`
}

// HandleListElevators handles GET /elevators.
func (h *SessionsHandler) HandleListElevators(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.deps.Elevators(r.Context()))
}

// HandleStartSession handles POST /sessions.
func (h *SessionsHandler) HandleStartSession(w http.ResponseWriter, r *http.Request) {
	var req startSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", fmt.Errorf("%w: %w", ErrBadRequest, err))
		return
	}
	if strings.TrimSpace(req.ElevatorID) == "" {
		writeError(w, http.StatusBadRequest, "bad_request", fmt.Errorf("%w: missing elevator_id", ErrBadRequest))
		return
	}
	sess, err := h.deps.StartSession(r.Context(), req.ElevatorID, strings.TrimSpace(req.Technician))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sess)
}

// HandleListSessions handles GET /sessions.
func (h *SessionsHandler) HandleListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.deps.ListSessions(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sessions)
}

// HandleGetSession handles GET /sessions/{id}.
func (h *SessionsHandler) HandleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := h.deps.Session(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// HandleFinishSession handles POST /sessions/{id}/finish and returns the report.
func (h *SessionsHandler) HandleFinishSession(w http.ResponseWriter, r *http.Request) {
	report, err := h.deps.FinishSession(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// HandleResetSession handles POST /sessions/{id}/reset.
func (h *SessionsHandler) HandleResetSession(w http.ResponseWriter, r *http.Request) {
	if err := h.deps.ResetSession(r.Context(), r.PathValue("id")); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
