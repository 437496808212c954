package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/annunciator-core/internal/dispatch"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.eventsMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)
	r.Use(s.writeDeadlineMiddleware)

	r.Route("/api", func(r chi.Router) {
		// Open routes
		r.Get("/health", s.handleHealth)
		r.Post("/auth/login", s.handleLogin)
		r.Get("/test/{id}", s.handleTestConnection)

		// Management routes
		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Route("/speakers", func(r chi.Router) {
				r.Get("/", s.handleListSpeakers)
				r.Post("/", s.handleCreateSpeaker)
				r.Get("/{id}", s.handleGetSpeaker)
				r.Put("/{id}", s.handleUpdateSpeaker)
				r.Delete("/{id}", s.handleDeleteSpeaker)
			})

			r.Route("/groups", func(r chi.Router) {
				r.Get("/", s.handleListGroups)
				r.Post("/", s.handleCreateGroup)
				r.Get("/{id}", s.handleGetGroup)
				r.Put("/{id}", s.handleUpdateGroup)
				r.Delete("/{id}", s.handleDeleteGroup)
			})

			r.Get("/audit", s.handleListAuditLogs)
			r.Get("/logs/stream", s.handleLogStream)
			r.Get("/ws", s.handleWebSocket)
		})

		r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
			writeNotFound(w, "no such endpoint")
		})
	})

	// Command routes. VMS integrations issue GET; POST is accepted too.
	for _, kind := range []dispatch.Kind{dispatch.KindPlay, dispatch.KindStop, dispatch.KindStatus} {
		device := s.handleDeviceCommand(kind)
		group := s.handleGroupCommand(kind)
		r.Get("/"+string(kind)+"/{id}", device)
		r.Post("/"+string(kind)+"/{id}", device)
		r.Get("/group/"+string(kind)+"/{id}", group)
		r.Post("/group/"+string(kind)+"/{id}", group)
	}

	if s.ui != nil {
		r.Handle("/*", s.ui)
	}

	return r
}
