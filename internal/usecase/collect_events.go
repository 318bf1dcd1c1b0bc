package usecase

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/V4T54L/activetime/internal/domain"
)

// CollectEventsUseCase moves raw events out of a transient source, such as
// the ingest stream, into an event log. Aggregation then replays the whole
// log, so a session whose events arrive over several collections is still
// measured as one.
type CollectEventsUseCase struct {
	source domain.EventSource
	log    domain.EventLog
	logger *slog.Logger
}

// NewCollectEventsUseCase creates a new CollectEventsUseCase.
func NewCollectEventsUseCase(source domain.EventSource, log domain.EventLog, logger *slog.Logger) *CollectEventsUseCase {
	return &CollectEventsUseCase{
		source: source,
		log:    log,
		logger: logger.With("component", "collect_events"),
	}
}

// Run copies every pending line into the log, syncs it and only then
// commits the source. On error nothing is committed and the source hands the
// same lines out again next time; duplicates do not change session bounds.
func (uc *CollectEventsUseCase) Run(ctx context.Context) (int, error) {
	lines := 0
	err := uc.source.Replay(ctx, func(line []byte) error {
		if err := uc.log.Write(ctx, line); err != nil {
			return err
		}
		lines++
		return nil
	})
	if err != nil {
		return lines, fmt.Errorf("failed to collect events: %w", err)
	}

	if err := uc.log.Sync(); err != nil {
		return lines, fmt.Errorf("failed to sync collected events: %w", err)
	}

	if c, ok := uc.source.(domain.Committer); ok {
		if err := c.Commit(ctx); err != nil {
			return lines, fmt.Errorf("failed to commit event source: %w", err)
		}
	}

	uc.logger.Info("events collected", "lines", lines)
	return lines, nil
}
