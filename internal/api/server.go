package api

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/nerrad567/aircloud-bridge/internal/aircloud"
	"github.com/nerrad567/aircloud-bridge/internal/audit"
	"github.com/nerrad567/aircloud-bridge/internal/climate"
	"github.com/nerrad567/aircloud-bridge/internal/control"
	"github.com/nerrad567/aircloud-bridge/internal/coordinator"
	"github.com/nerrad567/aircloud-bridge/internal/history"
	"github.com/nerrad567/aircloud-bridge/internal/infrastructure/config"
	"github.com/nerrad567/aircloud-bridge/internal/infrastructure/logging"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Coordinator is the refresh coordinator as used by the API.
type Coordinator interface {
	Snapshot() coordinator.Snapshot
	Device(id int64) (climate.DeviceState, bool)
	Status() coordinator.Status
	Subscribe(fn func(coordinator.Snapshot)) (unsubscribe func())
	Refresh(ctx context.Context) (coordinator.Result, error)
}

// Controller applies control intents. *control.Controller implements it.
type Controller interface {
	Apply(ctx context.Context, id int64, in control.Intent) (control.Result, error)
}

// HistoryStore lists recorded unit states.
type HistoryStore interface {
	List(ctx context.Context, q history.Query) ([]history.Entry, error)
}

// CommandStore lists the command log.
type CommandStore interface {
	List(ctx context.Context, filter audit.Filter) (*audit.ListResult, error)
}

// HealthChecker is implemented by every infrastructure client.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// ReauthFunc validates new account credentials and, on success, switches
// the bridge over to them.
type ReauthFunc func(ctx context.Context, creds aircloud.Credentials) error

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config      config.APIConfig
	WS          config.WebSocketConfig
	Logger      *logging.Logger
	Coordinator Coordinator // required
	Controller  Controller  // required

	// Optional collaborators; the matching endpoints answer 503 without them.
	History  HistoryStore
	Commands CommandStore
	Reauth   ReauthFunc

	// Checks are reported by /api/v1/health, keyed by component name.
	Checks map[string]HealthChecker

	// DBStats feeds the database section of /api/v1/metrics.
	DBStats func() sql.DBStats

	// Gatherer backs /metrics. Nil uses prometheus.DefaultGatherer.
	Gatherer prometheus.Gatherer

	Version string
}

// Server is the HTTP API server for the bridge.
//
// It manages the HTTP listener, routes, middleware, and WebSocket hub.
// The server is created with New() and started with Start().
type Server struct {
	cfg         config.APIConfig
	wsCfg       config.WebSocketConfig
	logger      *logging.Logger
	coordinator Coordinator
	controller  Controller
	history     HistoryStore
	commands    CommandStore
	reauth      ReauthFunc
	checks      map[string]HealthChecker
	dbStats     func() sql.DBStats
	gatherer    prometheus.Gatherer
	version     string
	startTime   time.Time

	server *http.Server
	hub    *Hub
	cancel context.CancelFunc

	// broadcast holds the last view sent to WebSocket clients per unit.
	broadcastMu sync.Mutex
	broadcast   map[int64]DeviceView
	unsubscribe func()
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
//
// Parameters:
//   - deps: Required dependencies (config, logger, coordinator, controller)
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If required dependencies are missing
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Coordinator == nil {
		return nil, fmt.Errorf("coordinator is required")
	}
	if deps.Controller == nil {
		return nil, fmt.Errorf("controller is required")
	}
	gatherer := deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	return &Server{
		cfg:         deps.Config,
		wsCfg:       deps.WS,
		logger:      deps.Logger,
		coordinator: deps.Coordinator,
		controller:  deps.Controller,
		history:     deps.History,
		commands:    deps.Commands,
		reauth:      deps.Reauth,
		checks:      deps.Checks,
		dbStats:     deps.DBStats,
		gatherer:    gatherer,
		version:     deps.Version,
		startTime:   time.Now(),
		hub:         NewHub(deps.WS, deps.Logger),
		broadcast:   make(map[int64]DeviceView),
	}, nil
}

// Start begins listening for HTTP connections.
//
// It starts the WebSocket hub, relays coordinator snapshots to WebSocket
// clients, and launches the HTTP listener in a background goroutine. The
// server can be stopped with Close().
//
// Parameters:
//   - ctx: Context for cancellation (not used for listener lifetime)
//
// Returns:
//   - error: If the server fails to start
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	go s.hub.Run(srvCtx)
	s.unsubscribe = s.coordinator.Subscribe(s.relaySnapshot)

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		var err error
		if s.cfg.TLS.Enabled {
			s.logger.Info("API server starting with TLS",
				"address", s.server.Addr,
				"cert", s.cfg.TLS.CertFile,
			)
			err = s.server.ListenAndServeTLS(s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		} else {
			s.logger.Info("API server starting", "address", s.server.Addr)
			err = s.server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
//
// Returns:
//   - error: If shutdown encounters an error
func (s *Server) Close() error {
	if s.unsubscribe != nil {
		s.unsubscribe()
	}
	if s.cancel != nil {
		s.cancel()
	}
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

// Handler returns the router without starting a listener.
func (s *Server) Handler() http.Handler {
	return s.buildRouter()
}

// Hub returns the WebSocket hub.
func (s *Server) Hub() *Hub {
	return s.hub
}
