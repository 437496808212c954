package api

import (
	"errors"
	"net/http"

	"github.com/nerrad567/annunciator-core/internal/auth"
	"github.com/nerrad567/annunciator-core/internal/events"
)

// loginRequest is the request body for POST /api/auth/login.
type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// handleLogin authenticates the admin and returns a JWT session.
//
// Responses:
//   - 200 {token, expires_at, username}
//   - 401 on wrong credentials
//   - 404 when authentication is disabled
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if s.auth == nil {
		writeNotFound(w, "authentication is disabled")
		return
	}

	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	session, err := s.auth.Login(req.Username, req.Password)
	if err != nil {
		s.emitLogin(req.Username, false)
		if errors.Is(err, auth.ErrInvalidCredentials) {
			writeUnauthorized(w, "invalid credentials")
			return
		}
		s.logger.Error("login failed", "error", err)
		writeInternalError(w, "login failed")
		return
	}

	s.emitLogin(session.Username, true)
	writeJSON(w, http.StatusOK, session)
}

func (s *Server) emitLogin(username string, success bool) {
	level, msg := events.LevelInfo, "admin login succeeded"
	if !success {
		level, msg = events.LevelWarn, "admin login rejected"
	}
	s.bus.Emit(events.Event{
		Level:   level,
		Type:    events.TypeLogin,
		Message: msg,
		Data:    map[string]any{"username": username, "success": success},
	})
}
