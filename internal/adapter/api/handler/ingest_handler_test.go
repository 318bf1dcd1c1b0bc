package handler

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/V4T54L/activetime/internal/adapter/metrics"
	"github.com/V4T54L/activetime/internal/domain"
)

// MockIngestUseCase validates like the real use case and records what it buffered.
type MockIngestUseCase struct {
	BufferErr error
	Buffered  [][]byte
}

func (m *MockIngestUseCase) Ingest(ctx context.Context, payload []byte) error {
	if _, err := domain.ParseRawEvent(payload); err != nil {
		return err
	}
	if m.BufferErr != nil {
		return m.BufferErr
	}
	m.Buffered = append(m.Buffered, append([]byte(nil), payload...))
	return nil
}

const (
	validEvent  = `{"amplitude_id": 1, "session_id": 10, "event_time": "2021-08-12 10:00:00"}`
	otherEvent  = `{"amplitude_id": 2, "session_id": 11, "event_time": "2021-08-12 11:00:00"}`
	noSessionID = `{"amplitude_id": 3, "event_time": "2021-08-12 11:00:00"}`
)

func TestIngestHandler(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	tests := []struct {
		name           string
		method         string
		contentType    string
		body           string
		bufferErr      error
		maxSize        int64
		expectedStatus int
		expectedBody   string
		expectBuffered int
	}{
		{
			name:           "Valid Single JSON",
			method:         http.MethodPost,
			contentType:    "application/json",
			body:           validEvent,
			expectedStatus: http.StatusAccepted,
			expectedBody:   `{"accepted":1,"rejected":0}` + "\n",
			expectBuffered: 1,
		},
		{
			name:           "Content-Type Parameters Are Ignored",
			method:         http.MethodPost,
			contentType:    "application/json; charset=utf-8",
			body:           validEvent,
			expectedStatus: http.StatusAccepted,
			expectedBody:   `{"accepted":1,"rejected":0}` + "\n",
			expectBuffered: 1,
		},
		{
			name:           "Valid NDJSON",
			method:         http.MethodPost,
			contentType:    "application/x-ndjson",
			body:           validEvent + "\n\n" + otherEvent + "\n",
			expectedStatus: http.StatusAccepted,
			expectedBody:   `{"accepted":2,"rejected":0}` + "\n",
			expectBuffered: 2,
		},
		{
			name:           "NDJSON Skips Malformed Lines",
			method:         http.MethodPost,
			contentType:    "application/x-ndjson",
			body:           validEvent + "\n" + noSessionID + "\n" + `{"amplitude_id": "bad` + "\n" + otherEvent,
			expectedStatus: http.StatusAccepted,
			expectedBody:   `{"accepted":2,"rejected":2}` + "\n",
			expectBuffered: 2,
		},
		{
			name:           "Invalid Method",
			method:         http.MethodGet,
			contentType:    "application/json",
			body:           `{}`,
			expectedStatus: http.StatusMethodNotAllowed,
			expectedBody:   "Method Not Allowed\n",
		},
		{
			name:           "Unsupported Content-Type",
			method:         http.MethodPost,
			contentType:    "text/plain",
			body:           `hello`,
			expectedStatus: http.StatusUnsupportedMediaType,
			expectedBody:   "Unsupported Media Type: text/plain\n",
		},
		{
			name:           "Malformed Single JSON",
			method:         http.MethodPost,
			contentType:    "application/json",
			body:           noSessionID,
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "Buffer Unavailable",
			method:         http.MethodPost,
			contentType:    "application/x-ndjson",
			body:           validEvent + "\n" + otherEvent,
			bufferErr:      errors.New("redis stream unavailable"),
			expectedStatus: http.StatusServiceUnavailable,
			expectedBody:   "Service Unavailable\n",
		},
		{
			name:           "Payload Too Large",
			method:         http.MethodPost,
			contentType:    "application/json",
			body:           validEvent,
			maxSize:        20,
			expectedStatus: http.StatusRequestEntityTooLarge,
			expectedBody:   "Payload Too Large\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockUseCase := &MockIngestUseCase{BufferErr: tt.bufferErr}
			maxSize := tt.maxSize
			if maxSize == 0 {
				maxSize = 1024
			}

			handler := NewIngestHandler(mockUseCase, logger, maxSize, nil)

			req := httptest.NewRequest(tt.method, "/ingest", bytes.NewBufferString(tt.body))
			req.Header.Set("Content-Type", tt.contentType)
			rr := httptest.NewRecorder()

			handler.ServeHTTP(rr, req)

			if status := rr.Code; status != tt.expectedStatus {
				t.Errorf("handler returned wrong status code: got %v want %v", status, tt.expectedStatus)
			}
			if tt.expectedBody != "" {
				if body := rr.Body.String(); body != tt.expectedBody {
					t.Errorf("handler returned unexpected body: got %q want %q", body, tt.expectedBody)
				}
			}
			if len(mockUseCase.Buffered) != tt.expectBuffered {
				t.Errorf("buffered %d events, want %d", len(mockUseCase.Buffered), tt.expectBuffered)
			}
		})
	}
}

func TestIngestHandler_Metrics(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	m := metrics.NewIngestMetrics(prometheus.NewRegistry())
	handler := NewIngestHandler(&MockIngestUseCase{}, logger, 1024, m)

	body := validEvent + "\n" + noSessionID + "\n"
	req := httptest.NewRequest(http.MethodPost, "/ingest", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/x-ndjson")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if v := testutil.ToFloat64(m.EventsTotal.WithLabelValues("accepted")); v != 1 {
		t.Errorf("accepted = %v, want 1", v)
	}
	if v := testutil.ToFloat64(m.EventsTotal.WithLabelValues("malformed")); v != 1 {
		t.Errorf("malformed = %v, want 1", v)
	}
	if v := testutil.ToFloat64(m.BytesTotal); v != float64(len(body)) {
		t.Errorf("bytes = %v, want %d", v, len(body))
	}
}
