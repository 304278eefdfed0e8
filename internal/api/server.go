// Package api provides the read-only northbound diagnostic surface:
// switches, links with capacity and usage, flows with path and rate, the
// topology view, and the Prometheus metrics endpoint.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/reflowd/reflowd/internal/config"
	"github.com/reflowd/reflowd/internal/flow"
	"github.com/reflowd/reflowd/internal/link"
	"github.com/reflowd/reflowd/internal/southbound"
	"github.com/reflowd/reflowd/internal/topology"
)

// Server is the HTTP diagnostic server for reflowd. Every endpoint reads
// shallow copies from the stores; nothing mutates controller state.
type Server struct {
	cfg        *config.Config
	registry   *southbound.Registry
	topo       *topology.Store
	hosts      *topology.HostTable
	flows      *flow.Store
	links      *link.Store
	logger     *slog.Logger
	httpServer *http.Server
	startTime  time.Time
}

// NewServer creates a diagnostic server over the controller's stores.
func NewServer(
	cfg *config.Config,
	registry *southbound.Registry,
	topo *topology.Store,
	hosts *topology.HostTable,
	flows *flow.Store,
	links *link.Store,
	logger *slog.Logger,
) *Server {
	return &Server{
		cfg:       cfg,
		registry:  registry,
		topo:      topo,
		hosts:     hosts,
		flows:     flows,
		links:     links,
		logger:    logger,
		startTime: time.Now(),
	}
}

// Listen binds the server to its configured address and prepares routes.
// Call synchronously to catch port conflicts before serving in background.
func (s *Server) Listen() (net.Listener, error) {
	mux := http.NewServeMux()
	s.registerRoutes(mux)

	s.httpServer = &http.Server{
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	ln, err := net.Listen("tcp", s.cfg.API.Listen)
	if err != nil {
		return nil, fmt.Errorf("binding API server to %s: %w", s.cfg.API.Listen, err)
	}

	s.logger.Info("API server listening", "address", ln.Addr().String())
	return ln, nil
}

// Serve accepts connections on the listener. Blocks until shutdown.
func (s *Server) Serve(ln net.Listener) error {
	if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("API server: %w", err)
	}
	return nil
}

// Start is a convenience that calls Listen + Serve. Blocks until shutdown.
func (s *Server) Start() error {
	ln, err := s.Listen()
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) registerRoutes(mux *http.ServeMux) {
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /api/v1/switches", s.handleListSwitches)
	mux.HandleFunc("GET /api/v1/hosts", s.handleListHosts)
	mux.HandleFunc("GET /api/v1/links", s.handleListLinks)
	mux.HandleFunc("GET /api/v1/flows", s.handleListFlows)
	mux.HandleFunc("GET /api/v1/topology", s.handleTopology)
}

// JSONResponse writes a JSON response with the given status code.
func JSONResponse(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
