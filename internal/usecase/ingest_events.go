package usecase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/V4T54L/activetime/internal/domain"
)

// IngestEventsUseCase validates raw events received over HTTP and buffers them.
type IngestEventsUseCase struct {
	buffer domain.EventBuffer
	logger *slog.Logger
}

// NewIngestEventsUseCase creates a new IngestEventsUseCase.
func NewIngestEventsUseCase(buffer domain.EventBuffer, logger *slog.Logger) *IngestEventsUseCase {
	return &IngestEventsUseCase{
		buffer: buffer,
		logger: logger,
	}
}

// Ingest checks that payload decodes into a raw event and buffers it as a
// single compact NDJSON line. Malformed payloads return an error wrapping
// domain.ErrMalformedEvent and are not buffered.
func (uc *IngestEventsUseCase) Ingest(ctx context.Context, payload []byte) error {
	ev, err := domain.ParseRawEvent(payload)
	if err != nil {
		return err
	}

	var line bytes.Buffer
	if err := json.Compact(&line, payload); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrMalformedEvent, err)
	}

	if err := uc.buffer.BufferEvent(ctx, line.Bytes()); err != nil {
		uc.logger.Error("failed to buffer raw event", "error", err, "subject_id", ev.SubjectID, "session_id", ev.SessionID)
		return err
	}
	return nil
}
