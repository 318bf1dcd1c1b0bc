package api

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/V4T54L/activetime/internal/adapter/metrics"
	"github.com/V4T54L/activetime/internal/adapter/repository/static"
	"github.com/V4T54L/activetime/internal/domain"
	"github.com/V4T54L/activetime/internal/domain/mocks"
	"github.com/V4T54L/activetime/internal/pkg/config"
	"github.com/V4T54L/activetime/internal/usecase"
)

func TestRouter_IngestFlow(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	buffer := &mocks.MockEventBuffer{}
	reg := prometheus.NewRegistry()
	router := NewRouter(
		&config.Config{MaxEventSize: 1 << 20},
		logger,
		static.NewAPIKeyRepository([]string{"supersecretkey"}),
		usecase.NewIngestEventsUseCase(buffer, logger),
		metrics.NewIngestMetrics(reg),
	)

	body := `{"amplitude_id": 1, "session_id": 10, "event_time": "2021-08-12 10:00:00"}` + "\n"

	req := httptest.NewRequest(http.MethodPost, "/ingest", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/x-ndjson")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without a key, got %d", rr.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/ingest", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/x-ndjson")
	req.Header.Set("X-API-Key", "supersecretkey")
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rr.Code, rr.Body.String())
	}
	if len(buffer.Buffered) != 1 {
		t.Fatalf("expected 1 buffered line, got %d", len(buffer.Buffered))
	}

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rr.Code != http.StatusOK {
		t.Errorf("health status = %d", rr.Code)
	}

	admin := NewAdminRouter(&mocks.MockStreamInspector{Status: domain.StreamStatus{Stream: "raw_events"}}, reg, logger)
	rr = httptest.NewRecorder()
	admin.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "activetime_ingest_events_total") {
		t.Errorf("metrics endpoint missing ingest counters: %d", rr.Code)
	}
}
