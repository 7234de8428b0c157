package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/efebarandurmaz/callsight/internal/observability"
)

// Config configures the HTTP server.
type Config struct {
	Addr            string
	Version         string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	// Signals trigger a graceful shutdown. Empty means only context
	// cancellation stops the server.
	Signals []os.Signal
}

// Server combines the query API, health probes, metrics and graceful
// shutdown behind one listener.
type Server struct {
	Health   *HealthServer
	Shutdown *ShutdownHandler

	cfg     Config
	http    *http.Server
	logger  *slog.Logger
	mu      sync.Mutex
	address string
}

// New assembles a server. api and metrics may be nil.
func New(cfg Config, api *API, metrics *observability.Metrics, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}

	health := NewHealthServer(&HealthConfig{Version: cfg.Version})
	mux := http.NewServeMux()
	health.Register(mux)
	if api != nil {
		api.Register(mux)
	}
	if metrics != nil {
		mux.Handle("GET /metrics", metrics.Handler())
	}

	s := &Server{
		Health: health,
		Shutdown: NewShutdownHandler(&ShutdownConfig{
			Timeout: cfg.ShutdownTimeout,
			Signals: cfg.Signals,
			Logger:  logger,
		}),
		cfg:    cfg,
		logger: logger,
		http: &http.Server{
			Addr:         cfg.Addr,
			Handler:      mux,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		},
	}
	if api != nil {
		s.http.RegisterOnShutdown(api.Events().Close)
	}
	s.Shutdown.Add(HTTPServerShutdownHook("http-server", s.http.Shutdown))
	return s
}

// Handler returns the server's routes, for tests.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// Addr returns the bound address once Run is listening.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.address
}

// Run serves until ctx is cancelled or a configured signal arrives, then runs
// the shutdown hooks and returns.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.cfg.Addr, err)
	}
	s.mu.Lock()
	s.address = ln.Addr().String()
	s.mu.Unlock()

	s.Shutdown.Start()
	go func() {
		select {
		case <-ctx.Done():
			s.Shutdown.Shutdown()
		case <-s.Shutdown.ShutdownCh():
		}
	}()

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- s.http.Serve(ln)
	}()

	s.Health.SetReady(true)
	s.logger.Info("http server listening", "addr", s.Addr())

	select {
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			s.Health.SetReady(false)
			s.Shutdown.Shutdown()
			s.Shutdown.Wait()
			return fmt.Errorf("http server: %w", err)
		}
	case <-s.Shutdown.ShutdownCh():
	}

	s.Health.SetReady(false)
	s.Shutdown.Wait()
	s.logger.Info("http server stopped")
	return nil
}
