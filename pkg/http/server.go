// Package http serves the local control API, the WebSocket event feed,
// health checks and Prometheus metrics.
package http

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"runtime/debug"
	"time"

	"speechcoach/pkg/config"
	"speechcoach/pkg/errors"
	"speechcoach/pkg/metrics"
	"speechcoach/pkg/version"

	"github.com/sirupsen/logrus"
)

// Server represents the HTTP server for the control API
type Server struct {
	config     *config.HTTPConfig
	logger     *logrus.Logger
	httpServer *http.Server
	mux        *http.ServeMux
	startTime  time.Time
	hub        *EventHub
	checks     map[string]HealthCheck
}

// NewServer creates a new HTTP server instance. hub may be nil.
func NewServer(logger *logrus.Logger, cfg *config.HTTPConfig, api *API, hub *EventHub) *Server {
	server := &Server{
		config:    cfg,
		logger:    logger,
		mux:       http.NewServeMux(),
		startTime: time.Now(),
		hub:       hub,
		checks:    make(map[string]HealthCheck),
	}

	server.mux.HandleFunc("GET /health", server.HealthHandler)
	server.mux.HandleFunc("GET /health/live", server.LivenessHandler)

	if api != nil {
		api.RegisterHandlers(server.mux)
	}
	if hub != nil {
		server.mux.HandleFunc("GET /ws", hub.ServeWs)
	}

	if cfg.EnableMetrics && metrics.IsMetricsEnabled() {
		metrics.RegisterHandler(server.mux)
		logger.Info("Prometheus metrics endpoint enabled at /metrics")
	} else {
		logger.Info("Metrics endpoint disabled")
	}

	server.httpServer = &http.Server{
		Addr:         cfg.Addr(),
		Handler:      server.Handler(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return server
}

// Handler returns the root handler with middleware applied
func (s *Server) Handler() http.Handler {
	return s.recoverPanics(s.logRequests(s.addServerHeader(s.mux)))
}

// RegisterHealthCheck adds a named component check to /health
func (s *Server) RegisterHealthCheck(name string, check HealthCheck) {
	s.checks[name] = check
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully
func (s *Server) ListenAndServe(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return errors.Wrapf(errors.ErrUnavailable, err, "failed to listen on %s", s.httpServer.Addr)
	}
	return s.Serve(ctx, listener)
}

// Serve serves on listener until ctx is cancelled
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	s.logger.WithField("addr", listener.Addr().String()).Info("HTTP server listening")

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- s.httpServer.Serve(listener)
	}()

	select {
	case err := <-serveErr:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("HTTP server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.Shutdown(shutdownCtx)
}

// Shutdown gracefully shuts down the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down HTTP server...")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) addServerHeader(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Server", version.ServerHeader())
		next.ServeHTTP(w, r)
	})
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.WithFields(logrus.Fields{
			"method":      r.Method,
			"path":        r.URL.Path,
			"duration_ms": time.Since(start).Milliseconds(),
		}).Debug("HTTP request handled")
	})
}

// recoverPanics keeps a panicking handler from taking down the server
func (s *Server) recoverPanics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				s.logger.WithFields(logrus.Fields{
					"panic_value": rec,
					"path":        r.URL.Path,
					"stack_trace": string(debug.Stack()),
				}).Error("Panic recovered")
				errors.WriteError(w, errors.New("internal server error").WithCode("INTERNAL"))
			}
		}()
		next.ServeHTTP(w, r)
	})
}
