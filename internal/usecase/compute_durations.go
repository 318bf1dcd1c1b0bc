package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/V4T54L/activetime/internal/activity"
	"github.com/V4T54L/activetime/internal/adapter/metrics"
	"github.com/V4T54L/activetime/internal/domain"
)

// ComputeConfig holds the tunables of an aggregation pass.
type ComputeConfig struct {
	Normalizer activity.NormalizerConfig
	Location   *time.Location
	Workers    int
}

// PassResult summarises one aggregation pass.
type PassResult struct {
	RunID     string
	Lines     int
	Malformed int
	Rejected  int
	Admitted  int
	Sessions  int
	Discarded int
	Rows      int
}

// ComputeDurationsUseCase runs aggregation passes: it replays raw events,
// folds them into a pass-scoped session table, aggregates day durations and
// hands them to every sink.
type ComputeDurationsUseCase struct {
	source     domain.EventSource
	subjects   domain.SubjectRepository
	sinks      []domain.DurationSink
	normalizer *activity.Normalizer
	cfg        ComputeConfig
	metrics    *metrics.AggregateMetrics
	base       *slog.Logger
	logger     *slog.Logger
}

// NewComputeDurationsUseCase creates a new ComputeDurationsUseCase. m may be nil.
func NewComputeDurationsUseCase(
	source domain.EventSource,
	subjects domain.SubjectRepository,
	sinks []domain.DurationSink,
	cfg ComputeConfig,
	m *metrics.AggregateMetrics,
	logger *slog.Logger,
) *ComputeDurationsUseCase {
	return &ComputeDurationsUseCase{
		source:     source,
		subjects:   subjects,
		sinks:      sinks,
		normalizer: activity.NewNormalizer(cfg.Normalizer),
		cfg:        cfg,
		metrics:    m,
		base:       logger,
		logger:     logger.With("component", "compute_durations"),
	}
}

// Run executes one pass. If ctx is cancelled or any step fails before the
// sinks are written, the session table is dropped and nothing is persisted
// or committed.
func (uc *ComputeDurationsUseCase) Run(ctx context.Context) (PassResult, error) {
	started := time.Now()
	res := PassResult{RunID: uuid.NewString()}
	log := uc.logger.With("run_id", res.RunID)

	tracked, err := uc.subjects.LoadSubjects(ctx)
	if err != nil {
		return res, fmt.Errorf("failed to load active subjects: %w", err)
	}
	log.Info("starting aggregation pass", "active_subjects", len(tracked))

	table := activity.NewSessionTable()
	err = uc.source.Replay(ctx, func(line []byte) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		res.Lines++

		raw, err := domain.ParseRawEvent(line)
		if err != nil {
			res.Malformed++
			uc.countEvent("malformed")
			log.Debug("skipping malformed event", "error", err)
			return nil
		}

		ev, rejection := uc.normalizer.Normalize(raw, tracked)
		if rejection != activity.Admitted {
			res.Rejected++
			uc.countEvent(string(rejection))
			return nil
		}
		res.Admitted++
		uc.countEvent("admitted")
		table.Fold(ev)
		return nil
	})
	if uc.metrics != nil {
		uc.metrics.LinesTotal.Add(float64(res.Lines))
	}
	if err != nil {
		table.Reset()
		return res, fmt.Errorf("failed to replay events: %w", err)
	}

	sessions := table.Sessions()
	table.Reset()
	res.Sessions = len(sessions)

	var discarded atomic.Int64
	agg := activity.NewAggregator(uc.base.With("run_id", res.RunID),
		activity.WithLocation(uc.cfg.Location),
		activity.WithWorkers(uc.cfg.Workers),
		activity.WithDiscardHook(func(domain.Session) {
			discarded.Add(1)
			if uc.metrics != nil {
				uc.metrics.DiscardedSessions.Inc()
			}
		}),
	)
	rows, err := agg.Aggregate(ctx, sessions)
	res.Discarded = int(discarded.Load())
	if err != nil {
		return res, fmt.Errorf("failed to aggregate sessions: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return res, err
	}

	for _, sink := range uc.sinks {
		if err := sink.WriteDurations(ctx, res.RunID, rows); err != nil {
			return res, fmt.Errorf("failed to write day durations: %w", err)
		}
	}
	res.Rows = len(rows)

	if c, ok := uc.source.(domain.Committer); ok {
		if err := c.Commit(ctx); err != nil {
			return res, fmt.Errorf("failed to commit event source: %w", err)
		}
	}

	if uc.metrics != nil {
		uc.metrics.Sessions.Set(float64(res.Sessions))
		uc.metrics.RowsWritten.Set(float64(res.Rows))
		uc.metrics.PassDuration.Observe(time.Since(started).Seconds())
		uc.metrics.LastSuccess.SetToCurrentTime()
	}

	log.Info("aggregation pass completed",
		"lines", res.Lines,
		"malformed", res.Malformed,
		"rejected", res.Rejected,
		"admitted", res.Admitted,
		"sessions", res.Sessions,
		"discarded_sessions", res.Discarded,
		"rows", res.Rows,
		"duration_ms", time.Since(started).Milliseconds(),
	)
	return res, nil
}

func (uc *ComputeDurationsUseCase) countEvent(outcome string) {
	if uc.metrics != nil {
		uc.metrics.EventsTotal.WithLabelValues(outcome).Inc()
	}
}
