package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/annunciator-core/internal/device"
)

// handleListSpeakers returns every speaker without credentials.
func (s *Server) handleListSpeakers(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.registry.ListDevices())
}

// handleCreateSpeaker adds a speaker.
//
// Body: {"name", "ip", "username", "password"}, all required.
func (s *Server) handleCreateSpeaker(w http.ResponseWriter, r *http.Request) {
	var in device.NewDevice
	if !decodeJSON(w, r, &in) {
		return
	}

	view, err := s.registry.AddDevice(r.Context(), in)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

// handleGetSpeaker returns one speaker without credentials.
func (s *Server) handleGetSpeaker(w http.ResponseWriter, r *http.Request) {
	view, err := s.registry.GetDevice(chi.URLParam(r, "id"))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// handleUpdateSpeaker applies a partial update. Empty or absent fields are
// left unchanged, so the UI can save a name without re-entering the password.
func (s *Server) handleUpdateSpeaker(w http.ResponseWriter, r *http.Request) {
	var upd device.DeviceUpdate
	if !decodeJSON(w, r, &upd) {
		return
	}

	view, err := s.registry.UpdateDevice(r.Context(), chi.URLParam(r, "id"), upd)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// handleDeleteSpeaker removes a speaker and strips it from every group.
func (s *Server) handleDeleteSpeaker(w http.ResponseWriter, r *http.Request) {
	if err := s.registry.RemoveDevice(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}
