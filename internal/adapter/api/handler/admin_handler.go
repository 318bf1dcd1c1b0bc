package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/V4T54L/activetime/internal/domain"
)

// AdminHandler serves operational endpoints of the ingest service.
type AdminHandler struct {
	inspector domain.StreamInspector
	logger    *slog.Logger
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(inspector domain.StreamInspector, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{inspector: inspector, logger: logger.With("component", "admin_handler")}
}

// HealthCheck is a simple health check endpoint.
func (h *AdminHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	h.respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GetStreamStatus reports the raw event stream backlog.
// GET /admin/stream
func (h *AdminHandler) GetStreamStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.inspector.StreamStatus(r.Context())
	if err != nil {
		h.logger.Error("failed to get stream status", "error", err)
		h.respondWithJSON(w, http.StatusServiceUnavailable, status)
		return
	}
	h.respondWithJSON(w, http.StatusOK, status)
}

func (h *AdminHandler) respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		h.logger.Error("failed to marshal JSON response", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}
