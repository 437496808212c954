package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/annunciator-core/internal/device"
)

// groupRequest is the body of POST /api/groups.
type groupRequest struct {
	Name      string   `json:"name"`
	MemberIDs []string `json:"speakerIds"`
}

func (s *Server) handleListGroups(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.registry.ListGroups())
}

// handleCreateGroup adds a group. speakerIds is stored verbatim: order and
// duplicates are kept and unknown IDs are not rejected.
func (s *Server) handleCreateGroup(w http.ResponseWriter, r *http.Request) {
	var req groupRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	view, err := s.registry.AddGroup(r.Context(), req.Name, req.MemberIDs)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

func (s *Server) handleGetGroup(w http.ResponseWriter, r *http.Request) {
	view, err := s.registry.GetGroup(chi.URLParam(r, "id"))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// handleUpdateGroup applies a partial update. An absent speakerIds leaves
// membership alone; an empty array clears it.
func (s *Server) handleUpdateGroup(w http.ResponseWriter, r *http.Request) {
	var upd device.GroupUpdate
	if !decodeJSON(w, r, &upd) {
		return
	}

	view, err := s.registry.UpdateGroup(r.Context(), chi.URLParam(r, "id"), upd)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleDeleteGroup(w http.ResponseWriter, r *http.Request) {
	if err := s.registry.RemoveGroup(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}
