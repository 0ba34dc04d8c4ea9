package http

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"dispatch-copilot-service/internal/app"
)

// NewRouter constructs the HTTP router for the hub.
func NewRouter(application *app.Application) http.Handler {
	r := chi.NewRouter()

	// Basic middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	// Websocket hub. Timeouts would cut long-lived connections, so it sits
	// outside any timeout middleware.
	r.Handle("/ws", application.Gateway)

	// Health endpoints
	r.Get("/v1/liveness", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/v1/readiness", func(w http.ResponseWriter, r *http.Request) {
		if err := application.Ready(r.Context()); err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	// API routes
	r.Route("/v1", func(r chi.Router) {
		r.Get("/session", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			_ = json.NewEncoder(w).Encode(application.Session())
		})
	})

	return r
}
