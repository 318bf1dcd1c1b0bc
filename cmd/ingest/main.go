package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/V4T54L/activetime/internal/adapter/api"
	"github.com/V4T54L/activetime/internal/adapter/metrics"
	redisrepo "github.com/V4T54L/activetime/internal/adapter/repository/redis"
	"github.com/V4T54L/activetime/internal/adapter/repository/spool"
	"github.com/V4T54L/activetime/internal/adapter/repository/static"
	"github.com/V4T54L/activetime/internal/pkg/config"
	"github.com/V4T54L/activetime/internal/pkg/logger"
	"github.com/V4T54L/activetime/internal/usecase"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := logger.New(cfg.LogLevel)
	slog.SetDefault(logger)

	if cfg.RedisAddr == "" {
		logger.Error("REDIS_ADDR is required by the ingest service")
		os.Exit(1)
	}
	apiKeyRepo := static.NewAPIKeyRepository(cfg.IngestAPIKeys)
	if apiKeyRepo.Len() == 0 {
		logger.Error("INGEST_API_KEYS is empty, refusing to start an unauthenticated ingest endpoint")
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewIngestMetrics(registry)

	// --- Graceful Shutdown Context ---
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Redis Connection ---
	redisOpts, err := redis.ParseURL(cfg.RedisAddr)
	if err != nil {
		logger.Error("failed to parse redis url", "error", err)
		os.Exit(1)
	}
	redisClient := redis.NewClient(redisOpts)
	defer redisClient.Close()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Warn("could not connect to redis, will proceed in spool-only mode", "error", err)
	}

	// --- Initialize Repositories ---
	spoolRepo, err := spool.New(cfg.IngestSpoolDir, cfg.SpoolSegmentSize, cfg.SpoolMaxDiskSize, logger)
	if err != nil {
		logger.Error("failed to initialize spool", "error", err)
		os.Exit(1)
	}
	defer spoolRepo.Close()

	stream := redisrepo.NewEventStream(redisClient, redisrepo.StreamConfig{
		Stream:    cfg.RedisStream,
		Group:     cfg.RedisGroup,
		Consumer:  cfg.RedisConsumer,
		DLQStream: cfg.RedisDLQStream,
	}, spoolRepo, logger)

	// Events spooled by a previous run go out first.
	if stream.Available() && spoolRepo.Size() > 0 {
		if err := stream.ReplaySpool(ctx); err != nil {
			logger.Error("failed to replay spool on startup", "error", err)
		}
	}

	// Start Redis health check and spool replay loop
	go stream.StartHealthCheck(ctx, cfg.HealthCheckPeriod)
	go reportSpooling(ctx, stream, m, cfg.HealthCheckPeriod)

	// --- Initialize Admin and Metrics Server ---
	adminServer := &http.Server{
		Addr:    cfg.AdminServerAddr,
		Handler: api.NewAdminRouter(stream, registry, logger),
	}

	go func() {
		logger.Info("starting admin & metrics server", "addr", adminServer.Addr)
		if err := adminServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("admin & metrics server failed", "error", err)
		}
	}()

	// --- Initialize Ingest Server ---
	ingestUseCase := usecase.NewIngestEventsUseCase(stream, logger)
	ingestServer := &http.Server{
		Addr:         cfg.IngestServerAddr,
		Handler:      api.NewRouter(cfg, logger, apiKeyRepo, ingestUseCase, m),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  15 * time.Second,
	}

	go func() {
		logger.Info("starting ingest server", "addr", ingestServer.Addr)
		if err := ingestServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("ingest server failed", "error", err)
			stop() // Trigger shutdown on server error
		}
	}()

	// --- Wait for shutdown signal ---
	<-ctx.Done()
	logger.Info("shutting down servers...")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()

	if err := ingestServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("ingest server shutdown failed", "error", err)
	}
	if err := adminServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("admin server shutdown failed", "error", err)
	}

	logger.Info("servers shut down gracefully")
}

// reportSpooling mirrors the stream's availability into the spool gauge.
func reportSpooling(ctx context.Context, stream *redisrepo.EventStream, m *metrics.IngestMetrics, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if stream.Available() {
				m.SpoolActive.Set(0)
			} else {
				m.SpoolActive.Set(1)
			}
		}
	}
}
