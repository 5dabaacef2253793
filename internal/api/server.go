package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/nerrad567/chardev-core/internal/audit"
	"github.com/nerrad567/chardev-core/internal/chardev"
	"github.com/nerrad567/chardev-core/internal/infrastructure/config"
	"github.com/nerrad567/chardev-core/internal/infrastructure/logging"
	"github.com/nerrad567/chardev-core/internal/iometrics"
	"github.com/nerrad567/chardev-core/internal/nodes"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// ConnectionChecker reports broker connectivity for the metrics endpoint.
type ConnectionChecker interface {
	IsConnected() bool
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config   config.APIConfig
	Logger   *logging.Logger
	Registry *chardev.Registry

	// Optional components. Their endpoints answer 503 when nil.
	Metrics   *iometrics.Recorder
	AuditRepo audit.Repository
	Nodes     *nodes.Table
	MQTT      ConnectionChecker

	Version string
}

// Server is the HTTP API server for chardevd.
type Server struct {
	cfg       config.APIConfig
	logger    *logging.Logger
	registry  *chardev.Registry
	metrics   *iometrics.Recorder
	auditRepo audit.Repository
	nodes     *nodes.Table
	mqtt      ConnectionChecker
	version   string
	startTime time.Time

	handles *handleTable

	mu     sync.Mutex
	server *http.Server
	addr   net.Addr
}

// New creates a new API server. It is not listening until Start is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Registry == nil {
		return nil, fmt.Errorf("device registry is required")
	}

	return &Server{
		cfg:       deps.Config,
		logger:    deps.Logger,
		registry:  deps.Registry,
		metrics:   deps.Metrics,
		auditRepo: deps.AuditRepo,
		nodes:     deps.Nodes,
		mqtt:      deps.MQTT,
		version:   deps.Version,
		startTime: time.Now(),
		handles:   newHandleTable(),
	}, nil
}

// Start binds the listener and serves in a background goroutine. A bind
// failure (port in use, bad host) is returned directly.
func (s *Server) Start(ctx context.Context) error {
	addr := net.JoinHostPort(s.cfg.Host, fmt.Sprint(s.cfg.Port))

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("binding API listener on %s: %w", addr, err)
	}

	srv := &http.Server{
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	s.mu.Lock()
	s.server = srv
	s.addr = ln.Addr()
	s.mu.Unlock()

	s.logger.Info("API server listening", "address", ln.Addr().String())
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Addr returns the bound listen address, or nil before Start.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// Close gracefully shuts down the server, then releases every handle that
// clients left open.
func (s *Server) Close() error {
	s.mu.Lock()
	srv := s.server
	s.server = nil
	s.mu.Unlock()

	var shutdownErr error
	if srv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
		defer cancel()

		s.logger.Info("API server shutting down")
		if err := srv.Shutdown(ctx); err != nil {
			shutdownErr = fmt.Errorf("shutting down API server: %w", err)
		}
	}

	if n := s.handles.releaseAll(); n > 0 {
		s.logger.Info("released handles left open by API clients", "count", n)
	}
	return shutdownErr
}

// HealthCheck reports whether the server is listening.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.server == nil {
		return fmt.Errorf("api server not started")
	}
	return nil
}
