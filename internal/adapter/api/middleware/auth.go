package middleware

import (
	"log/slog"
	"net/http"

	"github.com/V4T54L/activetime/internal/domain"
)

// APIKeyHeader carries the ingest credential.
const APIKeyHeader = "X-API-Key"

// Auth rejects requests whose X-API-Key header is missing or unknown to repo.
func Auth(repo domain.APIKeyRepository, logger *slog.Logger) func(http.Handler) http.Handler {
	log := logger.With("component", "auth")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			apiKey := r.Header.Get(APIKeyHeader)
			if apiKey == "" {
				log.Warn("API key missing from request", "remote_addr", r.RemoteAddr)
				http.Error(w, "Unauthorized: API key required", http.StatusUnauthorized)
				return
			}

			valid, err := repo.IsValid(r.Context(), apiKey)
			if err != nil {
				log.Error("failed to validate API key", "error", err)
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				return
			}

			if !valid {
				log.Warn("invalid API key provided", "remote_addr", r.RemoteAddr)
				http.Error(w, "Unauthorized: Invalid API key", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

