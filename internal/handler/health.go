package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// pingTimeout bounds the store check so a hung database cannot hang the health check.
const pingTimeout = 2 * time.Second

// Pinger is the part of the store the health check needs.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler answers liveness checks.
type HealthHandler struct {
	store  Pinger
	logger *slog.Logger
	now    func() time.Time
}

func NewHealthHandler(store Pinger, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{store: store, logger: logger, now: time.Now}
}

type healthResponse struct {
	Success   bool      `json:"success"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
	Database  string    `json:"database"` // "connected" or "disconnected"
}

// HandleHealth reports that the process is up, plus the store's reachability.
//
// HTTP: GET /api/health
//
// The status is 200 even when the store is down: the process itself is
// alive, and restarting it would not bring the database back.
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), pingTimeout)
	defer cancel()

	database := "connected"
	if err := h.store.Ping(ctx); err != nil {
		h.logger.Warn("health check: store unreachable", slog.String("error", err.Error()))
		database = "disconnected"
	}

	writeJSON(w, http.StatusOK, healthResponse{
		Success:   true,
		Message:   "Server is running",
		Timestamp: h.now().UTC(),
		Database:  database,
	})
}
