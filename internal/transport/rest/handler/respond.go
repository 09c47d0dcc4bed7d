package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"rollcall/internal/service"
)

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

func writeRejection(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message, "code": code})
}

// writeServiceError maps the service error taxonomy to stable status codes
// and machine-readable rejection codes.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrSessionNotFound):
		writeRejection(w, http.StatusNotFound, "SESSION_NOT_FOUND", "session not found")
	case errors.Is(err, service.ErrClassNotFound):
		writeRejection(w, http.StatusNotFound, "CLASS_NOT_FOUND", "class not found")
	case errors.Is(err, service.ErrMarkNotFound):
		writeRejection(w, http.StatusNotFound, "MARK_NOT_FOUND", "no mark recorded for this subject")
	case errors.Is(err, service.ErrSessionConflict):
		writeRejection(w, http.StatusConflict, "SESSION_CONFLICT", "class already has an open session")
	case errors.Is(err, service.ErrSessionClosed):
		writeRejection(w, http.StatusConflict, "SESSION_CLOSED", "session is closed, check-ins are no longer accepted")
	case errors.Is(err, service.ErrSessionNotClosed):
		writeRejection(w, http.StatusConflict, "SESSION_NOT_CLOSED", "session is still open, close it before sweeping")
	case errors.Is(err, service.ErrTokenExpired):
		writeRejection(w, http.StatusGone, "TOKEN_EXPIRED", "this code has expired, ask your instructor to refresh")
	case errors.Is(err, service.ErrDeviceMismatch):
		writeRejection(w, http.StatusForbidden, "DEVICE_MISMATCH", "attendance for this session is bound to another device")
	case errors.Is(err, service.ErrNotEnrolled):
		writeRejection(w, http.StatusForbidden, "NOT_ENROLLED", "subject is not enrolled in this class")
	case errors.Is(err, service.ErrInvalidConfig), errors.Is(err, service.ErrInvalidStatus):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrInvalidCredentials), errors.Is(err, service.ErrInvalidToken):
		writeError(w, http.StatusUnauthorized, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
