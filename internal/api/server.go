package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/nerrad567/atc-bridge/internal/discovery"
	"github.com/nerrad567/atc-bridge/internal/health"
	"github.com/nerrad567/atc-bridge/internal/infrastructure/config"
	"github.com/nerrad567/atc-bridge/internal/infrastructure/logging"
	"github.com/nerrad567/atc-bridge/internal/sightings"
	"github.com/nerrad567/atc-bridge/internal/supervisor"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// HealthSource provides the latest health snapshot.
type HealthSource interface {
	Snapshot() health.Snapshot
}

// TaskSource provides supervised task statistics.
type TaskSource interface {
	Tasks() []supervisor.Stats
	QueueDepth() int
}

// SightingSource lists stored sensor sightings.
type SightingSource interface {
	List(ctx context.Context) ([]sightings.Sighting, error)
}

// SensorSource lists Home Assistant entities.
type SensorSource interface {
	Sensors() []*discovery.Sensor
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config  config.APIConfig
	Logger  *logging.Logger
	Version string

	// Devices is the configured sensor list.
	Devices []config.DeviceConfig

	// Health and Tasks are required.
	Health HealthSource
	Tasks  TaskSource

	// Sightings, Sensors and Metrics are optional.
	Sightings SightingSource
	Sensors   SensorSource
	Metrics   http.Handler
}

// Server is the HTTP status server.
type Server struct {
	cfg       config.APIConfig
	logger    *logging.Logger
	version   string
	devices   []config.DeviceConfig
	health    HealthSource
	tasks     TaskSource
	sightings SightingSource
	sensors   SensorSource
	metrics   http.Handler
	server    *http.Server
	listener  net.Listener
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If required dependencies are missing
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Health == nil {
		return nil, fmt.Errorf("health source is required")
	}
	if deps.Tasks == nil {
		return nil, fmt.Errorf("task source is required")
	}

	return &Server{
		cfg:       deps.Config,
		logger:    deps.Logger,
		version:   deps.Version,
		devices:   deps.Devices,
		health:    deps.Health,
		tasks:     deps.Tasks,
		sightings: deps.Sightings,
		sensors:   deps.Sensors,
		metrics:   deps.Metrics,
	}, nil
}

// Start binds the listener and serves in a background goroutine.
//
// Returns:
//   - error: If the address cannot be bound (port in use, etc.)
func (s *Server) Start(_ context.Context) error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       s.cfg.Timeouts.ReadTimeout(),
		ReadHeaderTimeout: s.cfg.Timeouts.ReadTimeout(),
		WriteTimeout:      s.cfg.Timeouts.WriteTimeout(),
		IdleTimeout:       s.cfg.Timeouts.IdleTimeout(),
	}

	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return fmt.Errorf("binding API listener: %w", err)
	}
	s.listener = ln
	s.logger.Info("API server listening", "address", ln.Addr().String())

	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}
	return nil
}
