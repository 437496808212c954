package api

import (
	"context"
	"net/http"
	"time"

	"github.com/nerrad567/annunciator-core/internal/device"
)

// healthCheckTimeout bounds each component check on /api/health.
const healthCheckTimeout = 2 * time.Second

type componentHealth struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

type healthResponse struct {
	Status       string                     `json:"status"`
	Version      string                     `json:"version"`
	Uptime       string                     `json:"uptime"`
	AuthRequired bool                       `json:"auth_required"`
	Registry     device.Stats               `json:"registry"`
	Subscribers  int                        `json:"subscribers"`
	Components   map[string]componentHealth `json:"components,omitempty"`
}

// handleHealth reports liveness plus the state of each optional component.
// A failing component degrades the status but the route still answers 200.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:       "ok",
		Version:      s.version,
		Uptime:       time.Since(s.started).Round(time.Second).String(),
		AuthRequired: s.auth != nil,
		Registry:     s.registry.Stats(),
		Subscribers:  s.bus.SubscriberCount(),
	}

	if len(s.checks) > 0 {
		resp.Components = make(map[string]componentHealth, len(s.checks))
		for name, check := range s.checks {
			ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
			err := check.HealthCheck(ctx)
			cancel()

			if err != nil {
				resp.Status = "degraded"
				resp.Components[name] = componentHealth{Status: "error", Error: err.Error()}
				continue
			}
			resp.Components[name] = componentHealth{Status: "ok"}
		}
	}

	writeJSON(w, http.StatusOK, resp)
}
