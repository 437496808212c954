package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nerrad567/annunciator-core/internal/device"
	"github.com/nerrad567/annunciator-core/internal/dispatch"
	"github.com/nerrad567/annunciator-core/internal/speaker"
)

// ErrorDetail is the body of every error response, wrapped as
// {"error": {...}}.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error ErrorDetail `json:"error"`
}

// Common error codes.
const (
	ErrCodeBadRequest        = "bad_request"
	ErrCodeNotFound          = "not_found"
	ErrCodeUnauthorized      = "unauthorised"
	ErrCodeInternal          = "internal_error"
	ErrCodeValidation        = "validation_error"
	ErrCodePersistence       = "persistence_error"
	ErrCodeDeviceUnreachable = "device_unreachable"
	ErrCodeUnavailable       = "unavailable"
)

// writeJSON writes a JSON response with the given status code and payload.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // Best-effort write to response; connection may be closed
		json.NewEncoder(w).Encode(v)
	}
}

// writeError writes a structured error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Error: ErrorDetail{Code: code, Message: message}})
}

// writeBadRequest writes a 400 error response.
func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

// writeNotFound writes a 404 error response.
func writeNotFound(w http.ResponseWriter, message string) {
	writeError(w, http.StatusNotFound, ErrCodeNotFound, message)
}

// writeUnauthorized writes a 401 error response.
func writeUnauthorized(w http.ResponseWriter, message string) {
	writeError(w, http.StatusUnauthorized, ErrCodeUnauthorized, message)
}

// writeInternalError writes a 500 error response.
func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}

// writeDomainError maps registry and dispatch errors onto HTTP statuses.
// Persistence failures are logged in full by the registry and summarised here.
func (s *Server) writeDomainError(w http.ResponseWriter, err error) {
	var transport *speaker.TransportError

	switch {
	case errors.Is(err, device.ErrValidation), errors.Is(err, dispatch.ErrInvalidCommand):
		writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
	case errors.Is(err, device.ErrDeviceNotFound):
		writeNotFound(w, "speaker not found")
	case errors.Is(err, device.ErrGroupNotFound):
		writeNotFound(w, "group not found")
	case errors.Is(err, device.ErrPersistence):
		writeError(w, http.StatusInternalServerError, ErrCodePersistence,
			"change applied but could not be saved; it will be lost on restart unless a later save succeeds")
	case errors.As(err, &transport):
		status := http.StatusBadGateway
		if transport.Timeout {
			status = http.StatusGatewayTimeout
		}
		writeError(w, status, ErrCodeDeviceUnreachable, transport.Error())
	default:
		s.logger.Error("unhandled API error", "error", err)
		writeInternalError(w, "internal server error")
	}
}

// decodeJSON reads a JSON request body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, ErrCodeBadRequest, "request body too large")
			return false
		}
		writeBadRequest(w, "invalid JSON body")
		return false
	}
	return true
}
