package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/nerrad567/annunciator-core/internal/audit"
	"github.com/nerrad567/annunciator-core/internal/auth"
	"github.com/nerrad567/annunciator-core/internal/device"
	"github.com/nerrad567/annunciator-core/internal/dispatch"
	"github.com/nerrad567/annunciator-core/internal/events"
	"github.com/nerrad567/annunciator-core/internal/infrastructure/config"
	"github.com/nerrad567/annunciator-core/internal/infrastructure/logging"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// HealthChecker is implemented by infrastructure clients reported on
// /api/health (database, MQTT, InfluxDB).
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config     config.APIConfig
	WS         config.WebSocketConfig
	Logger     *logging.Logger
	Registry   *device.Registry
	Dispatcher *dispatch.Dispatcher
	Bus        *events.Bus

	// Auth gates management routes. Nil leaves them open.
	Auth *auth.Authenticator

	// Audit backs GET /api/audit. Nil makes the route answer 503.
	Audit audit.Repository

	// Checks are reported by name on /api/health. Optional.
	Checks map[string]HealthChecker

	// UI is mounted on the catch-all route. Nil disables it.
	UI http.Handler

	Version string
}

// Server is the HTTP API server.
//
// It manages the HTTP listener, routes, middleware, and WebSocket hub.
// The server is created with New() and started with Start().
type Server struct {
	cfg        config.APIConfig
	logger     *logging.Logger
	registry   *device.Registry
	dispatcher *dispatch.Dispatcher
	bus        *events.Bus
	auth       *auth.Authenticator
	audit      audit.Repository
	checks     map[string]HealthChecker
	ui         http.Handler
	version    string
	started    time.Time

	router    http.Handler
	hub       *Hub
	closing   chan struct{}
	closeOnce sync.Once

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
	cancel   context.CancelFunc
	done     chan struct{}
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
//
// Parameters:
//   - deps: Logger, Registry, Dispatcher and Bus are required
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If required dependencies are missing
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Registry == nil {
		return nil, fmt.Errorf("registry is required")
	}
	if deps.Dispatcher == nil {
		return nil, fmt.Errorf("dispatcher is required")
	}
	if deps.Bus == nil {
		return nil, fmt.Errorf("event bus is required")
	}

	s := &Server{
		cfg:        deps.Config,
		logger:     deps.Logger.With("component", "api"),
		registry:   deps.Registry,
		dispatcher: deps.Dispatcher,
		bus:        deps.Bus,
		auth:       deps.Auth,
		audit:      deps.Audit,
		checks:     deps.Checks,
		ui:         deps.UI,
		version:    deps.Version,
		started:    time.Now(),
		closing:    make(chan struct{}),
	}
	s.hub = NewHub(deps.WS, s.logger)
	s.router = s.buildRouter()
	return s, nil
}

// Handler returns the fully wired router. Useful for tests and for
// embedding the API in another server.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start binds the listener and serves in the background.
//
// Binding happens before Start returns, so a port already in use is
// reported here rather than logged later. The WebSocket hub is fed from the
// event bus until Close is called or ctx is cancelled.
//
// Parameters:
//   - ctx: parent of the hub's lifetime (not the listener's)
//
// Returns:
//   - error: If the address cannot be bound or the server is already running
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.server != nil {
		return fmt.Errorf("api server already started")
	}

	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("binding %s: %w", addr, err)
	}

	var hubCtx context.Context
	hubCtx, s.cancel = context.WithCancel(ctx)
	go s.hub.Run(hubCtx, s.bus)

	s.listener = ln
	s.done = make(chan struct{})
	s.server = &http.Server{
		Handler:           s.router,
		ReadTimeout:       s.cfg.GetReadTimeout(),
		ReadHeaderTimeout: s.cfg.GetReadTimeout(),
		// WriteTimeout stays zero: SSE and WebSocket responses are long-lived.
		// writeDeadlineMiddleware applies api.timeouts.write to everything else.
		IdleTimeout: s.cfg.GetIdleTimeout(),
	}

	s.logger.Info("API server listening", "address", ln.Addr().String())

	srv, done := s.server, s.done
	go func() {
		defer close(done)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Addr returns the bound listen address, or "" before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections. Event streams are ended
// first so they do not hold the shutdown open.
//
// Returns:
//   - error: If shutdown encounters an error
func (s *Server) Close() error {
	s.closeOnce.Do(func() { close(s.closing) })

	s.mu.Lock()
	srv, done, cancel := s.server, s.done, s.cancel
	s.server, s.listener, s.cancel = nil, nil, nil
	s.mu.Unlock()

	if srv == nil {
		return nil
	}
	if cancel != nil {
		cancel()
	}

	ctx, stop := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer stop()

	s.logger.Info("API server shutting down")
	srv.RegisterOnShutdown(s.hub.closeAll)
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	<-done
	return nil
}

// HealthCheck verifies the API server is running.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.Addr() == "" {
		return fmt.Errorf("api server not started")
	}
	return nil
}
