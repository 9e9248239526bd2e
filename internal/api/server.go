package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nerrad567/garage-relay/internal/actuator"
	"github.com/nerrad567/garage-relay/internal/audit"
	"github.com/nerrad567/garage-relay/internal/events"
	"github.com/nerrad567/garage-relay/internal/infrastructure/config"
	"github.com/nerrad567/garage-relay/internal/infrastructure/database"
	"github.com/nerrad567/garage-relay/internal/infrastructure/logging"
	"github.com/nerrad567/garage-relay/internal/metrics"
	"github.com/nerrad567/garage-relay/internal/user"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown. It covers at least one full pulse.
const gracefulShutdownTimeout = 10 * time.Second

// UserStore is the part of the user repository the handlers need.
type UserStore interface {
	Register(ctx context.Context, name string) (*user.User, error)
	GetByKey(ctx context.Context, key string) (*user.User, error)
	Count(ctx context.Context) (int, error)
}

// ConnectionState reports whether an optional backend is reachable.
type ConnectionState interface {
	IsConnected() bool
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config   config.APIConfig
	WS       config.WebSocketConfig
	Security config.SecurityConfig
	Logger   *logging.Logger
	Actuator actuator.Actuator
	Users    UserStore

	// Optional.
	Events    events.Publisher
	AuditRepo audit.Repository
	DB        *database.DB
	Metrics   *metrics.Metrics
	MQTT      ConnectionState
	Hub       *Hub // if set, the server uses this hub instead of creating its own
	Version   string
}

// Server is the relay's HTTP server.
//
// It manages the HTTP listener, routes, middleware, and WebSocket hub.
// The server is created with New() and started with Start().
type Server struct {
	cfg       config.APIConfig
	wsCfg     config.WebSocketConfig
	secCfg    config.SecurityConfig
	logger    *logging.Logger
	actuator  actuator.Actuator
	users     UserStore
	events    events.Publisher
	auditRepo audit.Repository
	db        *database.DB
	metrics   *metrics.Metrics
	mqtt      ConnectionState
	version   string
	startTime time.Time

	server      *http.Server
	hub         *Hub
	externalHub bool
	cancel      context.CancelFunc
}

// New creates a new API server with the given dependencies.
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Actuator == nil {
		return nil, fmt.Errorf("actuator is required")
	}
	if deps.Users == nil {
		return nil, fmt.Errorf("user store is required")
	}

	s := &Server{
		cfg:       deps.Config,
		wsCfg:     deps.WS,
		secCfg:    deps.Security,
		logger:    deps.Logger,
		actuator:  deps.Actuator,
		users:     deps.Users,
		events:    deps.Events,
		auditRepo: deps.AuditRepo,
		db:        deps.DB,
		metrics:   deps.Metrics,
		mqtt:      deps.MQTT,
		version:   deps.Version,
		startTime: time.Now(),
	}
	if s.events == nil {
		s.events = events.Discard{}
	}

	if deps.Hub != nil {
		s.hub = deps.Hub
		s.externalHub = true
	} else {
		s.hub = NewHub(deps.WS, deps.Logger, deps.Metrics)
	}

	return s, nil
}

// Hub returns the server's WebSocket hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Start begins listening for HTTP connections in a background goroutine.
// The server can be stopped with Close().
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	if !s.externalHub {
		go s.hub.Run(srvCtx)
	}

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       s.cfg.Timeouts.ReadDuration(),
		ReadHeaderTimeout: s.cfg.Timeouts.ReadDuration(),
		WriteTimeout:      s.cfg.Timeouts.WriteDuration(),
		IdleTimeout:       s.cfg.Timeouts.IdleDuration(),
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
// It waits up to 10 seconds for in-flight requests, including any pulse
// that is holding the relay, then forcefully closes remaining connections.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
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

// HealthCheck reports an error until Start has been called.
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
