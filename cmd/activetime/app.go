package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/V4T54L/activetime/internal/activity"
	"github.com/V4T54L/activetime/internal/adapter/csvfile"
	"github.com/V4T54L/activetime/internal/adapter/metrics"
	"github.com/V4T54L/activetime/internal/adapter/repository/postgres"
	redisrepo "github.com/V4T54L/activetime/internal/adapter/repository/redis"
	"github.com/V4T54L/activetime/internal/adapter/repository/spool"
	"github.com/V4T54L/activetime/internal/domain"
	"github.com/V4T54L/activetime/internal/pkg/config"
	"github.com/V4T54L/activetime/internal/pkg/logger"
	"github.com/V4T54L/activetime/internal/usecase"
)

const pushJob = "activetime"

// app holds the configuration and lazily opened resources of one command.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	registry *prometheus.Registry

	spool *spool.Spool
	redis *redis.Client
	db    *sql.DB
}

// newApp loads configuration, applies flag overrides and validates the result.
func newApp(cmd *cobra.Command) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	overrides := map[string]*string{
		"log-level":     &cfg.LogLevel,
		"source":        &cfg.EventSource,
		"cohort-source": &cfg.CohortSource,
		"cohort-file":   &cfg.CohortFile,
		"output":        &cfg.OutputFile,
		"spool-dir":     &cfg.SpoolDir,
	}
	for name, target := range overrides {
		if f := cmd.Flags().Lookup(name); f != nil && f.Changed {
			*target = f.Value.String()
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &app{
		cfg:      cfg,
		logger:   logger.New(cfg.LogLevel).With("command", cmd.Name()),
		registry: prometheus.NewRegistry(),
	}, nil
}

func (a *app) close() {
	if a.spool != nil {
		a.spool.Close()
	}
	if a.redis != nil {
		a.redis.Close()
	}
	if a.db != nil {
		a.db.Close()
	}
}

func (a *app) openSpool() (*spool.Spool, error) {
	if a.spool != nil {
		return a.spool, nil
	}
	s, err := spool.New(a.cfg.SpoolDir, a.cfg.SpoolSegmentSize, a.cfg.SpoolMaxDiskSize, a.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open spool: %w", err)
	}
	a.spool = s
	return s, nil
}

func (a *app) redisClient(ctx context.Context) (*redis.Client, error) {
	if a.redis != nil {
		return a.redis, nil
	}
	if a.cfg.RedisAddr == "" {
		return nil, errors.New("REDIS_ADDR is not set")
	}
	opts, err := redis.ParseURL(a.cfg.RedisAddr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	a.redis = client
	return client, nil
}

func (a *app) eventStream(ctx context.Context) (*redisrepo.EventStream, error) {
	client, err := a.redisClient(ctx)
	if err != nil {
		return nil, err
	}
	return redisrepo.NewEventStream(client, redisrepo.StreamConfig{
		Stream:    a.cfg.RedisStream,
		Group:     a.cfg.RedisGroup,
		Consumer:  a.cfg.RedisConsumer,
		DLQStream: a.cfg.RedisDLQStream,
	}, nil, a.logger), nil
}

func (a *app) subjects(ctx context.Context) (domain.SubjectRepository, error) {
	if a.cfg.CohortSource == config.CohortFromRedis {
		client, err := a.redisClient(ctx)
		if err != nil {
			return nil, err
		}
		return redisrepo.NewCohortRepository(client, a.cfg.RedisCohortKey, a.logger), nil
	}
	return csvfile.NewCohortFile(a.cfg.CohortFile, a.logger), nil
}

// eventSource returns the spool. In stream mode the pending stream entries
// are first collected into it, so a pass always covers every event seen so far.
func (a *app) eventSource(ctx context.Context) (domain.EventSource, error) {
	sp, err := a.openSpool()
	if err != nil {
		return nil, err
	}
	if a.cfg.EventSource != config.EventsFromStream {
		return sp, nil
	}

	stream, err := a.eventStream(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := usecase.NewCollectEventsUseCase(stream, sp, a.logger).Run(ctx); err != nil {
		return nil, err
	}
	return sp, nil
}

// sinks returns the CSV report writer and, when POSTGRES_URL is set, the
// Postgres sink.
func (a *app) sinks(ctx context.Context) ([]domain.DurationSink, error) {
	var sinks []domain.DurationSink
	if a.cfg.OutputFile != "" {
		sinks = append(sinks, csvfile.NewDurationWriter(a.cfg.OutputFile, a.logger))
	}

	if a.cfg.PostgresURL != "" {
		db, err := sql.Open("postgres", a.cfg.PostgresURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open postgres connection: %w", err)
		}
		if err := db.PingContext(ctx); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to connect to postgres: %w", err)
		}
		a.db = db

		repo := postgres.NewDurationRepository(db, a.logger)
		if err := repo.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		sinks = append(sinks, repo)
	}

	if len(sinks) == 0 {
		return nil, errors.New("no output configured: set OUTPUT_FILE or POSTGRES_URL")
	}
	return sinks, nil
}

func (a *app) computeConfig() (usecase.ComputeConfig, error) {
	admission, err := activity.ParseAdmissionKey(a.cfg.AdmissionKey)
	if err != nil {
		return usecase.ComputeConfig{}, err
	}
	loc, err := a.cfg.Location()
	if err != nil {
		return usecase.ComputeConfig{}, err
	}
	return usecase.ComputeConfig{
		Normalizer: activity.NormalizerConfig{
			Admission:        admission,
			SkewCorrection:   a.cfg.SkewCorrection,
			OutlierThreshold: a.cfg.SkewOutlierThreshold,
		},
		Location: loc,
		Workers:  a.cfg.AggregateWorkers,
	}, nil
}

// aggregate runs one pass over the configured event source.
func (a *app) aggregate(ctx context.Context) (usecase.PassResult, error) {
	source, err := a.eventSource(ctx)
	if err != nil {
		return usecase.PassResult{}, err
	}
	subjects, err := a.subjects(ctx)
	if err != nil {
		return usecase.PassResult{}, err
	}
	sinks, err := a.sinks(ctx)
	if err != nil {
		return usecase.PassResult{}, err
	}
	cfg, err := a.computeConfig()
	if err != nil {
		return usecase.PassResult{}, err
	}

	uc := usecase.NewComputeDurationsUseCase(source, subjects, sinks, cfg, metrics.NewAggregateMetrics(a.registry), a.logger)
	return uc.Run(ctx)
}

// push sends the command's metrics to the Pushgateway when one is configured.
// Failures are logged; they never fail the command.
func (a *app) push(ctx context.Context, command string) {
	if a.cfg.PushgatewayURL == "" {
		return
	}
	pushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	err := push.New(a.cfg.PushgatewayURL, pushJob).
		Gatherer(a.registry).
		Grouping("command", command).
		PushContext(pushCtx)
	if err != nil {
		a.logger.Error("failed to push metrics", "error", err, "pushgateway", a.cfg.PushgatewayURL)
		return
	}
	a.logger.Debug("metrics pushed", "pushgateway", a.cfg.PushgatewayURL)
}
