package handler

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"rollcall/internal/model"
	"rollcall/internal/service"
	"rollcall/internal/transport/rest/middleware"
)

// SessionHandler handles session lifecycle and token endpoints
type SessionHandler struct {
	sessionSvc *service.SessionService
	authSvc    *service.AuthService
}

// NewSessionHandler creates a new session handler
func NewSessionHandler(sessionSvc *service.SessionService, authSvc *service.AuthService) *SessionHandler {
	return &SessionHandler{
		sessionSvc: sessionSvc,
		authSvc:    authSvc,
	}
}

// OpenSessionRequest is the request body for opening a session
type OpenSessionRequest struct {
	ClassID string              `json:"classId"`
	Config  model.SessionConfig `json:"config"`
}

// Open handles POST /v1/sessions
func (h *SessionHandler) Open(w http.ResponseWriter, r *http.Request) {
	instructorID := middleware.GetInstructorID(r.Context())
	if instructorID == "" {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req OpenSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ClassID == "" {
		writeError(w, http.StatusBadRequest, "classId is required")
		return
	}

	session, err := h.sessionSvc.Open(r.Context(), req.ClassID, instructorID, req.Config)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, session)
}

// Get handles GET /v1/sessions/{id}
func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	session, err := h.sessionSvc.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, session)
}

// Close handles POST /v1/sessions/{id}/close
func (h *SessionHandler) Close(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	if err := h.sessionSvc.Close(r.Context(), id); err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": string(model.SessionClosed)})
}

// LateModeRequest is the request body for toggling late mode
type LateModeRequest struct {
	Enabled bool `json:"enabled"`
}

// SetLateMode handles PUT /v1/sessions/{id}/late-mode
func (h *SessionHandler) SetLateMode(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var req LateModeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.sessionSvc.SetLateMode(r.Context(), id, req.Enabled); err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"lateModeEnabled": req.Enabled})
}

// Sweep handles POST /v1/sessions/{id}/sweep
func (h *SessionHandler) Sweep(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	created, err := h.sessionSvc.Sweep(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]int{"absentMarksCreated": created})
}

// Token handles GET /v1/sessions/{id}/token
func (h *SessionHandler) Token(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	snapshot, stalled, err := h.sessionSvc.CurrentToken(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"token":           snapshot.Token,
		"fallbackCode":    snapshot.FallbackCode,
		"issuedAt":        snapshot.IssuedAt,
		"rotationStalled": stalled,
	})
}

// JoinRequest is the request body for a subject joining a session
type JoinRequest struct {
	SubjectID string `json:"subjectId"`
}

// Join handles POST /v1/sessions/{id}/join: verifies enrollment and mints
// the session-scoped subject token used to submit scans.
func (h *SessionHandler) Join(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var req JoinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.SubjectID == "" {
		writeError(w, http.StatusBadRequest, "subjectId is required")
		return
	}

	session, err := h.sessionSvc.Join(r.Context(), id, req.SubjectID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	token, err := h.authSvc.GenerateSubjectToken(session.ID, req.SubjectID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"token":     token,
		"sessionId": session.ID,
		"subjectId": req.SubjectID,
	})
}
