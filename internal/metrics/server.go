package metrics

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// Pinger reports whether the database is reachable.
type Pinger interface {
	HealthCheck(ctx context.Context) error
}

type healthResponse struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// Server serves /metrics, /healthz and /readyz.
type Server struct {
	httpServer *http.Server
}

// NewRouter builds the metrics and health routes.
func NewRouter(db Pinger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, healthResponse{Status: "ok"})
	})
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := db.HealthCheck(ctx); err != nil {
			log.Error().Err(err).Msg("Readiness check failed")
			writeJSON(w, http.StatusServiceUnavailable, healthResponse{
				Status:  "unavailable",
				Message: "database connection failed",
			})
			return
		}
		writeJSON(w, http.StatusOK, healthResponse{Status: "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())
	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// NewServer creates a server listening on addr.
func NewServer(addr string, db Pinger) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           NewRouter(db),
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// Start serves in the background until Shutdown.
func (s *Server) Start() {
	go func() {
		log.Info().Str("addr", s.httpServer.Addr).Msg("Metrics server listening")
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("Metrics server failed")
		}
	}()
}

// Shutdown stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
