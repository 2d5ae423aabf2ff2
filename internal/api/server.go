package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/openhwp/navibridge/internal/bridge"
	"github.com/openhwp/navibridge/internal/infrastructure/config"
	"github.com/openhwp/navibridge/internal/infrastructure/logging"
	"github.com/openhwp/navibridge/internal/navien"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Coordinator is the surface the API server needs from the bridge
// coordinator. Defined here so handlers can be tested against a mock.
type Coordinator interface {
	Ready() bool
	Devices() []navien.Device
	GetDeviceState(mac string) *bridge.DeviceState
	SendControlCommand(mac, command string, params bridge.CommandParams) error
	Refresh(ctx context.Context) error
	Diagnostics() bridge.CoordinatorDiagnostics
	AddListener(listener bridge.UpdateListener) func()
}

// HistoryReader provides read access to recorded status snapshots.
type HistoryReader interface {
	GetHistory(ctx context.Context, macAddress string, limit int) ([]navien.StatusHistoryEntry, error)
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config      config.APIConfig
	WS          config.WebSocketConfig
	Logger      *logging.Logger
	Coordinator Coordinator
	History     HistoryReader // optional; history endpoint returns 503 when nil
	Version     string
}

// Server is the HTTP API server for NaviBridge.
//
// It manages the HTTP listener, routes, middleware, and WebSocket hub.
// The server is created with New() and started with Start().
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
type Server struct {
	cfg            config.APIConfig
	wsCfg          config.WebSocketConfig
	logger         *logging.Logger
	coordinator    Coordinator
	history        HistoryReader
	version        string
	server         *http.Server
	hub            *Hub
	cancel         context.CancelFunc // cancels background goroutines on Close()
	removeListener func()             // unregisters the hub from the coordinator
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
//
// Parameters:
//   - deps: Required dependencies (config, logger, coordinator)
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

	return &Server{
		cfg:         deps.Config,
		wsCfg:       deps.WS,
		logger:      deps.Logger,
		coordinator: deps.Coordinator,
		history:     deps.History,
		version:     deps.Version,
	}, nil
}

// Start begins listening for HTTP connections.
//
// It sets up the router, starts the WebSocket hub, registers the hub as a
// coordinator update listener for real-time broadcast, and launches the HTTP
// listener in a background goroutine. The server is stopped with Close().
//
// Parameters:
//   - ctx: Context for background goroutine lifetime (not the listener)
//
// Returns:
//   - error: If the server fails to start
func (s *Server) Start(ctx context.Context) error {
	// Internal context so Close() can stop background goroutines
	// independently of the parent context.
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	s.hub = NewHub(s.wsCfg, s.logger)
	go s.hub.Run(srvCtx)

	// Every applied state update is pushed to subscribed WebSocket clients.
	s.removeListener = s.coordinator.AddListener(s.broadcastStateUpdate)

	router := s.buildRouter()

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           router,
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	s.logger.Info("API server started", "address", s.server.Addr)
	return nil
}

// Close gracefully shuts down the API server.
//
// It unregisters the coordinator listener, stops the WebSocket hub, and waits
// up to 10 seconds for in-flight requests to complete.
//
// Returns:
//   - error: If shutdown encounters an error
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	if s.removeListener != nil {
		s.removeListener()
	}
	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// broadcastStateUpdate pushes the current state snapshot for a device to all
// WebSocket clients subscribed to the state update channel.
func (s *Server) broadcastStateUpdate(mac string) {
	if s.hub == nil {
		return
	}
	state := s.coordinator.GetDeviceState(mac)
	if state == nil {
		return
	}
	s.hub.Broadcast(wsChannelStateUpdated, state)
}
