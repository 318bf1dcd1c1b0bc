package api

import (
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/V4T54L/activetime/internal/adapter/api/handler"
	"github.com/V4T54L/activetime/internal/domain"
)

// NewAdminRouter serves health, stream backlog and Prometheus metrics for the ingest service.
func NewAdminRouter(inspector domain.StreamInspector, gatherer prometheus.Gatherer, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()
	adminHandler := handler.NewAdminHandler(inspector, logger)

	mux.HandleFunc("GET /health", adminHandler.HealthCheck)
	mux.HandleFunc("GET /admin/stream", adminHandler.GetStreamStatus)
	mux.Handle("GET /metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	return mux
}
