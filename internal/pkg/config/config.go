package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

// Config holds all application configuration.
type Config struct {
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	SpoolDir          string        `env:"SPOOL_DIR" envDefault:"data"`
	SpoolSegmentSize  int64         `env:"SPOOL_SEGMENT_SIZE_BYTES" envDefault:"104857600"`    // 100MB
	SpoolMaxDiskSize  int64         `env:"SPOOL_MAX_DISK_SIZE_BYTES" envDefault:"10737418240"` // 10GB
	RedisAddr         string        `env:"REDIS_ADDR"`
	RedisStream       string        `env:"REDIS_STREAM" envDefault:"raw_events"`
	RedisGroup        string        `env:"REDIS_GROUP" envDefault:"aggregators"`
	RedisConsumer     string        `env:"REDIS_CONSUMER" envDefault:"aggregator-1"`
	RedisDLQStream    string        `env:"REDIS_DLQ_STREAM" envDefault:"raw_events_dlq"`
	RedisCohortKey    string        `env:"REDIS_COHORT_KEY" envDefault:"active_subjects"`
	PostgresURL       string        `env:"POSTGRES_URL"`
	PushgatewayURL    string        `env:"PUSHGATEWAY_URL"`
	HealthCheckPeriod time.Duration `env:"REDIS_HEALTH_CHECK_INTERVAL" envDefault:"5s"`

	AmplitudeAPIKey         string        `env:"AMPLITUDE_API_KEY"`
	AmplitudeSecretKey      string        `env:"AMPLITUDE_SECRET_KEY"`
	AmplitudeBaseURL        string        `env:"AMPLITUDE_BASE_URL" envDefault:"https://amplitude.com/api/2/export"`
	ExportBatchDays         int           `env:"EXPORT_BATCH_DAYS" envDefault:"1"`
	ExportRequestsPerMinute int           `env:"EXPORT_REQUESTS_PER_MINUTE" envDefault:"30"`
	ExportTimeout           time.Duration `env:"EXPORT_TIMEOUT" envDefault:"10m"`

	CohortSource string `env:"COHORT_SOURCE" envDefault:"file"`
	CohortFile   string `env:"COHORT_FILE" envDefault:"active_users.csv"`
	EventSource  string `env:"EVENT_SOURCE" envDefault:"spool"`
	OutputFile   string `env:"OUTPUT_FILE" envDefault:"active_time.csv"`

	AdmissionKey         string        `env:"ADMISSION_KEY" envDefault:"subject"`
	SkewCorrection       bool          `env:"SKEW_CORRECTION" envDefault:"true"`
	SkewOutlierThreshold time.Duration `env:"SKEW_OUTLIER_THRESHOLD" envDefault:"90m"`
	ReportTimezone       string        `env:"REPORT_TIMEZONE" envDefault:"UTC"`
	AggregateWorkers     int           `env:"AGGREGATE_WORKERS" envDefault:"1"`

	IngestServerAddr string   `env:"INGEST_SERVER_ADDR" envDefault:":8080"`
	AdminServerAddr  string   `env:"ADMIN_SERVER_ADDR" envDefault:":8081"`
	IngestSpoolDir   string   `env:"INGEST_SPOOL_DIR" envDefault:"ingest-spool"`
	MaxEventSize     int64    `env:"MAX_EVENT_SIZE_BYTES" envDefault:"1048576"` // 1MB
	IngestAPIKeys    []string `env:"INGEST_API_KEYS" envSeparator:","`
}

// Cohort and event source selectors.
const (
	CohortFromFile  = "file"
	CohortFromRedis = "redis"

	EventsFromSpool  = "spool"
	EventsFromStream = "stream"
)

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	// Attempt to load .env file for local development.
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate rejects enumerations and values the binaries cannot act on.
func (c *Config) Validate() error {
	var errs []error
	switch c.AdmissionKey {
	case "subject", "user":
	default:
		errs = append(errs, fmt.Errorf("ADMISSION_KEY must be subject or user, got %q", c.AdmissionKey))
	}
	switch c.CohortSource {
	case CohortFromFile, CohortFromRedis:
	default:
		errs = append(errs, fmt.Errorf("COHORT_SOURCE must be file or redis, got %q", c.CohortSource))
	}
	switch c.EventSource {
	case EventsFromSpool, EventsFromStream:
	default:
		errs = append(errs, fmt.Errorf("EVENT_SOURCE must be spool or stream, got %q", c.EventSource))
	}
	if (c.CohortSource == CohortFromRedis || c.EventSource == EventsFromStream) && c.RedisAddr == "" {
		errs = append(errs, errors.New("REDIS_ADDR is required for redis cohort or stream event source"))
	}
	if _, err := c.Location(); err != nil {
		errs = append(errs, err)
	}
	if c.ExportBatchDays < 1 {
		errs = append(errs, errors.New("EXPORT_BATCH_DAYS must be at least 1"))
	}
	if c.ExportRequestsPerMinute < 1 {
		errs = append(errs, errors.New("EXPORT_REQUESTS_PER_MINUTE must be at least 1"))
	}
	if c.SkewOutlierThreshold <= 0 {
		errs = append(errs, errors.New("SKEW_OUTLIER_THRESHOLD must be positive"))
	}
	return errors.Join(errs...)
}

// Location resolves REPORT_TIMEZONE.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.ReportTimezone)
	if err != nil {
		return nil, fmt.Errorf("invalid REPORT_TIMEZONE %q: %w", c.ReportTimezone, err)
	}
	return loc, nil
}
