package handler

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"rollcall/internal/model"
	"rollcall/internal/service"
	"rollcall/internal/transport/rest/middleware"
)

// ReportHandler handles aggregate and mark reporting endpoints
type ReportHandler struct {
	aggregateSvc *service.AggregateService
	markSvc      *service.MarkService
}

// NewReportHandler creates a new report handler
func NewReportHandler(aggregateSvc *service.AggregateService, markSvc *service.MarkService) *ReportHandler {
	return &ReportHandler{
		aggregateSvc: aggregateSvc,
		markSvc:      markSvc,
	}
}

// SessionAggregate handles GET /v1/sessions/{id}/aggregate
func (h *ReportHandler) SessionAggregate(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	combined := r.URL.Query().Get("combined") == "true"

	agg, err := h.aggregateSvc.Session(r.Context(), id, combined)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, agg)
}

// ClassAggregate handles GET /v1/classes/{id}/aggregate
func (h *ReportHandler) ClassAggregate(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	combined := r.URL.Query().Get("combined") == "true"

	agg, err := h.aggregateSvc.Class(r.Context(), id, combined)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, agg)
}

// Marks handles GET /v1/sessions/{id}/marks
func (h *ReportHandler) Marks(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	marks, err := h.markSvc.List(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, marks)
}

// CorrectMarkRequest is the request body for a manual correction
type CorrectMarkRequest struct {
	Status   model.MarkStatus `json:"status"`
	Reason   string           `json:"reason,omitempty"`
	Feedback string           `json:"feedback,omitempty"`
}

// CorrectMark handles PATCH /v1/sessions/{id}/marks/{subjectId}
func (h *ReportHandler) CorrectMark(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	sessionID := vars["id"]
	subjectID := vars["subjectId"]
	instructorID := middleware.GetInstructorID(r.Context())
	if instructorID == "" {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req CorrectMarkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	mark, err := h.markSvc.Correct(r.Context(), sessionID, subjectID, req.Status, req.Reason, req.Feedback, instructorID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, mark)
}
