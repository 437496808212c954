package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/annunciator-core/internal/device"
	"github.com/nerrad567/annunciator-core/internal/dispatch"
)

// handleDeviceCommand runs one command against one speaker.
//
// Query parameters (play only): pattern or pattern_number, playcount,
// interval, duration.
//
// Responses:
//   - 200 with the Result when the speaker answered 2xx
//   - 502 with the same Result when it answered with an error status
//   - 502/504 device_unreachable when no HTTP exchange completed
func (s *Server) handleDeviceCommand(kind dispatch.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cmd, err := dispatch.Parse(string(kind), r.URL.Query())
		if err != nil {
			s.writeDomainError(w, err)
			return
		}

		res, err := s.dispatcher.RunOnDevice(r.Context(), chi.URLParam(r, "id"), cmd)
		if err != nil {
			s.writeDomainError(w, err)
			return
		}

		status := http.StatusOK
		if !res.Outcome.Success {
			status = http.StatusBadGateway
		}
		writeJSON(w, status, res)
	}
}

// handleGroupCommand runs one command against every member of a group.
// Per-member failures are part of the 200 response, never an HTTP error.
func (s *Server) handleGroupCommand(kind dispatch.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cmd, err := dispatch.Parse(string(kind), r.URL.Query())
		if err != nil {
			s.writeDomainError(w, err)
			return
		}

		agg, err := s.dispatcher.RunOnGroup(r.Context(), chi.URLParam(r, "id"), cmd)
		if err != nil {
			s.writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, agg)
	}
}

// handleTestConnection queries a speaker's status and reports
// {success, message, status}. Only an unknown speaker is an HTTP error.
func (s *Server) handleTestConnection(w http.ResponseWriter, r *http.Request) {
	res, err := s.dispatcher.TestConnection(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, device.ErrDeviceNotFound) {
			writeNotFound(w, "speaker not found")
			return
		}
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
