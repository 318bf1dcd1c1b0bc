package csvfile

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"github.com/V4T54L/activetime/internal/domain"
)

// DurationWriter writes day durations as CSV rows of
// (YYYY-MM-DD, subject_id, user_id, minutes), without a header.
type DurationWriter struct {
	path   string
	logger *slog.Logger
}

// NewDurationWriter creates a DurationWriter targeting path.
func NewDurationWriter(path string, logger *slog.Logger) *DurationWriter {
	return &DurationWriter{path: path, logger: logger.With("component", "csv_writer")}
}

// WriteDurations implements domain.DurationSink. The report is written to a
// temporary file in the same directory and renamed over path, so readers
// never observe a partial file.
func (w *DurationWriter) WriteDurations(ctx context.Context, runID string, rows []domain.DayDuration) error {
	dir := filepath.Dir(w.path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(w.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp report in %s: %w", dir, err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op after a successful rename

	if err := WriteRows(tmp, rows); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write report: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync report: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close report: %w", err)
	}
	if err := os.Rename(tmpPath, w.path); err != nil {
		return fmt.Errorf("failed to move report into place: %w", err)
	}

	w.logger.Info("report written", "path", w.path, "rows", len(rows), "run_id", runID)
	return nil
}

// WriteRows encodes rows to out in the report format.
func WriteRows(out io.Writer, rows []domain.DayDuration) error {
	cw := csv.NewWriter(out)
	for _, row := range rows {
		record := []string{
			row.Day(),
			row.SubjectID,
			row.UserID,
			strconv.FormatFloat(row.Minutes, 'f', 2, 64),
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
