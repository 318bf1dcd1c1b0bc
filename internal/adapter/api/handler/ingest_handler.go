package handler

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"

	"github.com/V4T54L/activetime/internal/adapter/metrics"
	"github.com/V4T54L/activetime/internal/domain"
)

// EventIngester validates and buffers one raw event.
type EventIngester interface {
	Ingest(ctx context.Context, payload []byte) error
}

// IngestResponse is returned for every accepted request.
type IngestResponse struct {
	Accepted int `json:"accepted"`
	Rejected int `json:"rejected"`
}

// IngestHandler handles HTTP requests for raw event ingestion.
type IngestHandler struct {
	useCase      EventIngester
	logger       *slog.Logger
	maxEventSize int64
	metrics      *metrics.IngestMetrics
}

// NewIngestHandler creates a new IngestHandler. m may be nil.
func NewIngestHandler(uc EventIngester, logger *slog.Logger, maxEventSize int64, m *metrics.IngestMetrics) *IngestHandler {
	return &IngestHandler{
		useCase:      uc,
		logger:       logger.With("component", "ingest_handler"),
		maxEventSize: maxEventSize,
		metrics:      m,
	}
}

// ServeHTTP processes incoming ingestion requests.
func (h *IngestHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}

	// Enforce max body size
	r.Body = http.MaxBytesReader(w, r.Body, h.maxEventSize)
	body := &countingReader{r: r.Body}

	contentType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	var (
		res IngestResponse
		err error
	)
	switch contentType {
	case "application/json":
		res, err = h.handleSingleJSON(r.Context(), body)
	case "application/x-ndjson":
		res, err = h.handleNDJSON(r.Context(), body)
	default:
		http.Error(w, "Unsupported Media Type: "+contentType, http.StatusUnsupportedMediaType)
		return
	}
	if h.metrics != nil {
		h.metrics.BytesTotal.Add(float64(body.n))
	}

	if err != nil {
		var maxBytesErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxBytesErr):
			http.Error(w, "Payload Too Large", http.StatusRequestEntityTooLarge)
		case errors.Is(err, domain.ErrMalformedEvent):
			http.Error(w, "Bad Request: "+err.Error(), http.StatusBadRequest)
		default:
			h.logger.Error("failed to process ingest request", "error", err, "accepted", res.Accepted)
			http.Error(w, "Service Unavailable", http.StatusServiceUnavailable)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(res)
}

func (h *IngestHandler) handleSingleJSON(ctx context.Context, body io.Reader) (IngestResponse, error) {
	payload, err := io.ReadAll(body)
	if err != nil {
		return IngestResponse{}, err
	}
	if err := h.ingest(ctx, payload); err != nil {
		return IngestResponse{}, err
	}
	return IngestResponse{Accepted: 1}, nil
}

// handleNDJSON buffers every valid line. Malformed lines are counted and
// skipped; a buffering failure stops the request.
func (h *IngestHandler) handleNDJSON(ctx context.Context, body io.Reader) (IngestResponse, error) {
	var res IngestResponse
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), int(h.maxEventSize))
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		err := h.ingest(ctx, line)
		switch {
		case err == nil:
			res.Accepted++
		case errors.Is(err, domain.ErrMalformedEvent):
			res.Rejected++
			h.logger.Debug("skipping malformed ndjson line", "error", err)
		default:
			return res, err
		}
	}

	return res, scanner.Err()
}

func (h *IngestHandler) ingest(ctx context.Context, payload []byte) error {
	err := h.useCase.Ingest(ctx, payload)
	if h.metrics != nil {
		status := "accepted"
		if errors.Is(err, domain.ErrMalformedEvent) {
			status = "malformed"
		} else if err != nil {
			status = "error_buffer"
		}
		h.metrics.EventsTotal.WithLabelValues(status).Inc()
	}
	return err
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
