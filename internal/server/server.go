// Package server provides the local HTTP side listener for the adapter.
//
// It runs next to the MCP stdio loop and serves a health probe plus the
// Prometheus scrape endpoint. Tool calls never go through it.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const shutdownTimeout = 5 * time.Second

type Server struct {
	addr    string
	backend string
	version string
	mux     *http.ServeMux
	metrics http.Handler
	listen  func(network, address string) (net.Listener, error)
	serve   func(*http.Server, net.Listener) error
}

// New returns a listener bound to addr. backend and version are reported by
// /health.
func New(addr, backend, version string) *Server {
	srv := &Server{
		addr:    addr,
		backend: backend,
		version: version,
		metrics: promhttp.Handler(),
		listen:  net.Listen,
		serve:   (*http.Server).Serve,
	}
	srv.mux = http.NewServeMux()
	srv.routes()
	return srv
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	listenFn := s.listen
	if listenFn == nil {
		listenFn = net.Listen
	}
	serveFn := s.serve
	if serveFn == nil {
		serveFn = (*http.Server).Serve
	}

	ln, err := listenFn("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("timeforged-mcp server: listen %s: %w", s.addr, err)
	}
	hs := &http.Server{Handler: s.mux, ReadHeaderTimeout: 10 * time.Second}

	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = hs.Shutdown(shutdownCtx)
	}()

	slog.Info("metrics listener started", "addr", ln.Addr().String())
	err = serveFn(hs, ln)
	if errors.Is(err, http.ErrServerClosed) {
		<-stopped
		return nil
	}
	return err
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.Handle("GET /metrics", s.metrics)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "timeforged-mcp",
		"version": s.version,
		"backend": s.backend,
	})
}

func jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
