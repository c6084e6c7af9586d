package rest

import (
	"database/sql"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/tgfetch/tgfetch/internal/logctx"
	"github.com/tgfetch/tgfetch/internal/telemetry"
)

// StatusHandler exposes the ops surface: health and metrics.
type StatusHandler struct {
	db      *sql.DB
	tel     *telemetry.Telemetry
	started time.Time
}

func NewStatusHandler(db *sql.DB, tel *telemetry.Telemetry) *StatusHandler {
	return &StatusHandler{db: db, tel: tel, started: time.Now()}
}

func (h *StatusHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/healthz", h.health)
	r.Method(http.MethodGet, "/metrics", h.tel.Handler())

	return r
}

func (h *StatusHandler) health(w http.ResponseWriter, r *http.Request) {
	if err := h.db.PingContext(r.Context()); err != nil {
		logctx.LoggerFromContext(r.Context()).Error("health check db ping failed", "err", err)
		http.Error(w, "database unavailable", http.StatusServiceUnavailable)

		return
	}

	w.Header().Set("Content-Type", "application/json")

	_ = json.NewEncoder(w).Encode(map[string]string{
		"status": "ok",
		"uptime": time.Since(h.started).String(),
	})
}
