package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/lib/pq"

	"github.com/V4T54L/activetime/internal/domain"
)

const (
	durationsTableName = "day_durations"
	stagingTableName   = "day_durations_import"
)

const schema = `
CREATE TABLE IF NOT EXISTS day_durations (
	calendar_day DATE NOT NULL,
	subject_id TEXT NOT NULL,
	user_id TEXT NOT NULL DEFAULT '',
	minutes NUMERIC(12, 2) NOT NULL,
	run_id UUID NOT NULL,
	computed_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (calendar_day, subject_id)
);`

// DurationRepository implements domain.DurationSink for PostgreSQL.
type DurationRepository struct {
	db     *sql.DB
	logger *slog.Logger
	now    func() time.Time
}

// NewDurationRepository creates a new PostgreSQL day duration repository.
func NewDurationRepository(db *sql.DB, logger *slog.Logger) *DurationRepository {
	return &DurationRepository{
		db:     db,
		logger: logger.With("component", "postgres_durations"),
		now:    time.Now,
	}
}

// EnsureSchema creates the day_durations table if it does not exist.
func (r *DurationRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create %s table: %w", durationsTableName, err)
	}
	return nil
}

// WriteDurations writes a pass's rows using the COPY protocol into a staging
// table, then upserts them keyed by (calendar_day, subject_id) so re-running
// a pass over the same events leaves the table unchanged apart from run_id.
func (r *DurationRepository) WriteDurations(ctx context.Context, runID string, rows []domain.DayDuration) error {
	if len(rows) == 0 {
		return nil
	}

	txn, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer txn.Rollback() // Rollback is a no-op if Commit() is called

	_, err = txn.ExecContext(ctx, `CREATE TEMP TABLE `+stagingTableName+` (LIKE `+durationsTableName+` INCLUDING DEFAULTS) ON COMMIT DROP;`)
	if err != nil {
		return fmt.Errorf("failed to create staging table: %w", err)
	}

	stmt, err := txn.PrepareContext(ctx, pq.CopyIn(stagingTableName, "calendar_day", "subject_id", "user_id", "minutes", "run_id", "computed_at"))
	if err != nil {
		return fmt.Errorf("failed to prepare COPY: %w", err)
	}

	computedAt := r.now().UTC()
	for _, row := range rows {
		_, err = stmt.ExecContext(ctx, row.Day(), row.SubjectID, row.UserID, row.Minutes, runID, computedAt)
		if err != nil {
			// Close the statement to avoid connection issues
			_ = stmt.Close()
			return fmt.Errorf("failed to COPY row (%s, %s): %w", row.Day(), row.SubjectID, err)
		}
	}

	// Flush the COPY buffer.
	if _, err := stmt.ExecContext(ctx); err != nil {
		_ = stmt.Close()
		return fmt.Errorf("failed to flush COPY: %w", err)
	}
	if err := stmt.Close(); err != nil {
		return fmt.Errorf("failed to close COPY: %w", err)
	}

	upsertQuery := `
		INSERT INTO ` + durationsTableName + ` (calendar_day, subject_id, user_id, minutes, run_id, computed_at)
		SELECT calendar_day, subject_id, user_id, minutes, run_id, computed_at FROM ` + stagingTableName + `
		ON CONFLICT (calendar_day, subject_id) DO UPDATE SET
			user_id = EXCLUDED.user_id,
			minutes = EXCLUDED.minutes,
			run_id = EXCLUDED.run_id,
			computed_at = EXCLUDED.computed_at;
	`
	res, err := txn.ExecContext(ctx, upsertQuery)
	if err != nil {
		return fmt.Errorf("failed to upsert day durations: %w", err)
	}

	if err := txn.Commit(); err != nil {
		return fmt.Errorf("failed to commit day durations: %w", err)
	}

	affected, _ := res.RowsAffected()
	r.logger.Info("Day durations written", "run_id", runID, "rows", len(rows), "affected", affected)
	return nil
}
