// Package monitor serves the monitoring endpoints of the bot: the prometheus metrics and a health check
package monitor

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/weixuan0110/ctfbot/slog"
)

const (
	metricsPath     = "/metrics"
	healthPath      = "/healthz"
	shutdownTimeout = 5 * time.Second
)

// HealthCheck returns an error when the bot isn't healthy
type HealthCheck func() error

// Server exposes metrics gathered from a prometheus gatherer and a health check over http
type Server struct {
	server   *http.Server
	logger   slog.Logger
	health   HealthCheck
	listener net.Listener
}

// Option defines an option for a Server
type Option func(s *Server)

// OptionHealthCheck sets the check backing the health endpoint. Defaults to always healthy
func OptionHealthCheck(check HealthCheck) Option {
	return func(s *Server) {
		s.health = check
	}
}

// New returns a new Server listening on addr once started
func New(addr string, gatherer prometheus.Gatherer, logger slog.Logger, options ...Option) (s *Server) {
	s = new(Server)
	s.logger = logger
	s.health = func() error { return nil }

	for _, opt := range options {
		opt(s)
	}

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router(gatherer),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

func (s *Server) router(gatherer prometheus.Gatherer) *mux.Router {
	r := mux.NewRouter()
	r.Handle(metricsPath, promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	r.HandleFunc(healthPath, s.handleHealth).Methods(http.MethodGet)

	return r
}

// Handler returns the http handler serving the monitoring endpoints
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.health(); err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// Start binds the listening address and serves requests in the background
func (s *Server) Start() (err error) {
	s.listener, err = net.Listen("tcp", s.server.Addr)
	if err != nil {
		return errors.Wrapf(err, "failed to listen on [%s]", s.server.Addr)
	}

	s.logger.Printf("Serving monitoring endpoints on [%s]", s.listener.Addr())
	go func() {
		if err := s.server.Serve(s.listener); err != nil && err != http.ErrServerClosed {
			s.logger.Printf("Monitoring server stopped: %v", err)
		}
	}()

	return nil
}

// Addr returns the address the server listens on, empty before Start
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}

	return s.listener.Addr().String()
}

// Close gracefully shuts the server down
func (s *Server) Close() (err error) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	return s.server.Shutdown(ctx)
}
