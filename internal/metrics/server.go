package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Server exposes the default registry over HTTP, plus any extra status
// endpoints registered before Start. Off by default; when enabled it should
// listen on loopback only.
type Server struct {
	logger zerolog.Logger
	mux    *http.ServeMux
	srv    *http.Server
}

// NewServer creates a metrics server for addr (e.g. "127.0.0.1:9104").
func NewServer(addr string, logger zerolog.Logger) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return &Server{
		logger: logger.With().Str("component", "metrics").Logger(),
		mux:    mux,
		srv: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// HandleFunc registers an extra endpoint alongside /metrics. Call before
// Start.
func (s *Server) HandleFunc(pattern string, handler http.HandlerFunc) {
	s.mux.HandleFunc(pattern, handler)
}

// Handler returns the full route set, for serving through a test listener.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Start serves in the background until Stop.
func (s *Server) Start() {
	go func() {
		s.logger.Info().Str("addr", s.srv.Addr).Msg("Metrics exposition listening")
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error().Err(err).Msg("Metrics server failed")
		}
	}()
}

// Stop shuts the listener down, bounded by ctx.
func (s *Server) Stop(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
