package api

import (
	"log/slog"
	"net/http"

	"github.com/V4T54L/activetime/internal/adapter/api/handler"
	"github.com/V4T54L/activetime/internal/adapter/api/middleware"
	"github.com/V4T54L/activetime/internal/adapter/metrics"
	"github.com/V4T54L/activetime/internal/domain"
	"github.com/V4T54L/activetime/internal/pkg/config"
)

// NewRouter creates and configures the main HTTP router for the ingest service.
func NewRouter(
	cfg *config.Config,
	logger *slog.Logger,
	apiKeyRepo domain.APIKeyRepository,
	ingestUseCase handler.EventIngester,
	m *metrics.IngestMetrics,
) http.Handler {
	mux := http.NewServeMux()

	ingestHandler := handler.NewIngestHandler(ingestUseCase, logger, cfg.MaxEventSize, m)
	authMiddleware := middleware.Auth(apiKeyRepo, logger)

	mux.Handle("POST /ingest", authMiddleware(ingestHandler))

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	return middleware.Logging(logger)(mux)
}
