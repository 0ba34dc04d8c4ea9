// Package observability provides the metrics and health HTTP server and gRPC interceptors.
package observability

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

const readyTimeout = 2 * time.Second

// ReadyFunc reports whether the service can take traffic.
type ReadyFunc func(ctx context.Context) error

// Server serves /metrics, /healthz and /readyz on its own port so scrapes and
// health checks never share the hub's listener.
type Server struct {
	http *http.Server
}

// NewServer creates the observability server. ready may be nil, in which
// case /readyz always succeeds.
func NewServer(addr string, ready ReadyFunc) *Server {
	return &Server{http: &http.Server{
		Addr:              addr,
		Handler:           Handler(ready),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}}
}

// Handler returns the observability mux.
func Handler(ready ReadyFunc) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeText(w, http.StatusOK, "ok")
	})
	mux.HandleFunc("GET /readyz", readyz(ready))
	return mux
}

func readyz(ready ReadyFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if ready == nil {
			writeText(w, http.StatusOK, "ready")
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
		defer cancel()
		if err := ready(ctx); err != nil {
			writeText(w, http.StatusServiceUnavailable, "not ready: "+err.Error())
			return
		}
		writeText(w, http.StatusOK, "ready")
	}
}

func writeText(w http.ResponseWriter, code int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(code)
	_, _ = w.Write([]byte(body))
}

// Start serves in a background goroutine.
func (s *Server) Start() {
	go func() {
		log.Info().Str("addr", s.http.Addr).Msg("Observability server listening")
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("Observability server failed")
		}
	}()
}

// Shutdown stops the server, waiting for in-flight scrapes until ctx is done.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
