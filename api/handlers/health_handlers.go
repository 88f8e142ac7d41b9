package handlers

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"tenantdesk/core/utils"
)

type HealthHandler struct {
	db     *sql.DB
	logger *utils.Logger
}

func NewHealthHandler(db *sql.DB, logger *utils.Logger) *HealthHandler {
	return &HealthHandler{db: db, logger: logger}
}

// Health reports liveness plus a database ping when a handle is configured.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	status, code := "ok", http.StatusOK
	if h.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.db.PingContext(ctx); err != nil {
			h.logger.Errorf("health ping: %v", err)
			status, code = "degraded", http.StatusServiceUnavailable
		}
	}
	writeJSON(w, code, map[string]string{
		"status":    status,
		"timestamp": utils.NowUTC().Format(time.RFC3339),
	})
}
