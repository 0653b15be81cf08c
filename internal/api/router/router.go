package router

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/proposalbot/proposal-assistant/internal/status"
	"github.com/proposalbot/proposal-assistant/pkg/logging"
)

// Config holds router configuration.
type Config struct {
	Logger         *logging.Logger
	Tracker        *status.Tracker
	StateBackend   string
	MetricsHandler http.Handler
}

// New creates a Chi router exposing the operational endpoints.
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/health", healthHandler)
	r.Get("/status", statusHandler(cfg))

	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	return r
}

func healthHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func statusHandler(cfg *Config) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		snap := cfg.Tracker.Snapshot()
		writeJSON(w, http.StatusOK, map[string]any{
			"status":         "running",
			"state_backend":  cfg.StateBackend,
			"uptime":         snap.Uptime,
			"last_request":   snap.LastRequest,
			"total_requests": snap.TotalRequests,
		})
	}
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}
