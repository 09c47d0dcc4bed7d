package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"rollcall/internal/service"
	"rollcall/internal/transport/rest/middleware"
)

// ScanHandler handles scan submission
type ScanHandler struct {
	scanSvc *service.ScanService
}

// NewScanHandler creates a new scan handler
func NewScanHandler(scanSvc *service.ScanService) *ScanHandler {
	return &ScanHandler{scanSvc: scanSvc}
}

// SubmitScanRequest is the request body for submitting a scan
type SubmitScanRequest struct {
	Token             string `json:"token"`
	DeviceFingerprint string `json:"deviceFingerprint"`
}

// Submit handles POST /v1/sessions/{id}/scans. The subject identity comes
// from the session-scoped token, never from the body.
func (h *ScanHandler) Submit(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]
	subjectID := middleware.GetSubjectID(r.Context())
	if subjectID == "" {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if scope := middleware.GetSessionID(r.Context()); scope != sessionID {
		writeError(w, http.StatusForbidden, "token not valid for this session")
		return
	}

	var req SubmitScanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	mark, err := h.scanSvc.Submit(r.Context(), service.ScanRequest{
		SessionID:         sessionID,
		Token:             req.Token,
		SubjectID:         subjectID,
		DeviceFingerprint: req.DeviceFingerprint,
	})
	if err != nil {
		// Already recorded is not a failure for the person scanning; report
		// it as a normal outcome.
		if errors.Is(err, service.ErrAlreadyMarked) {
			writeJSON(w, http.StatusOK, map[string]string{
				"result": "already_recorded",
			})
			return
		}
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"result":     "recorded",
		"status":     mark.Status,
		"recordedAt": mark.RecordedAt,
	})
}
