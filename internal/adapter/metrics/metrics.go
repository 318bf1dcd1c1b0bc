package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "activetime"

// IngestMetrics holds all Prometheus metrics for the ingest service.
type IngestMetrics struct {
	EventsTotal *prometheus.CounterVec
	BytesTotal  prometheus.Counter
	SpoolActive prometheus.Gauge
}

// NewIngestMetrics initializes and registers the ingest metrics on reg.
func NewIngestMetrics(reg prometheus.Registerer) *IngestMetrics {
	factory := promauto.With(reg)
	return &IngestMetrics{
		EventsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "events_total",
			Help:      "Total number of received raw events by status.",
		}, []string{"status"}), // status: accepted, malformed, error_buffer
		BytesTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "bytes_total",
			Help:      "Total number of request body bytes ingested.",
		}),
		SpoolActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "spool_active_gauge",
			Help:      "1 while events are diverted to the local spool because Redis is unavailable.",
		}),
	}
}

// AggregateMetrics describes one aggregation pass.
type AggregateMetrics struct {
	LinesTotal        prometheus.Counter
	EventsTotal       *prometheus.CounterVec
	Sessions          prometheus.Gauge
	DiscardedSessions prometheus.Counter
	RowsWritten       prometheus.Gauge
	PassDuration      prometheus.Histogram
	LastSuccess       prometheus.Gauge
}

// NewAggregateMetrics initializes and registers the aggregation metrics on reg.
// Batch runs use a dedicated registry so the result can be pushed to a Pushgateway.
func NewAggregateMetrics(reg prometheus.Registerer) *AggregateMetrics {
	factory := promauto.With(reg)
	return &AggregateMetrics{
		LinesTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "aggregate",
			Name:      "lines_total",
			Help:      "Raw event lines read from the event source.",
		}),
		EventsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "aggregate",
			Name:      "events_total",
			Help:      "Raw events by outcome.",
		}, []string{"outcome"}), // outcome: admitted, malformed, no_session, untracked
		Sessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "aggregate",
			Name:      "sessions",
			Help:      "Sessions built during the last pass.",
		}),
		DiscardedSessions: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "aggregate",
			Name:      "discarded_sessions_total",
			Help:      "Sessions discarded for spanning more than one midnight.",
		}),
		RowsWritten: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "aggregate",
			Name:      "rows_written",
			Help:      "Day duration rows written by the last pass.",
		}),
		PassDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "aggregate",
			Name:      "pass_duration_seconds",
			Help:      "Wall time of an aggregation pass.",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 12),
		}),
		LastSuccess: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "aggregate",
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last successful pass.",
		}),
	}
}

// ExportMetrics covers downloads from the event export API.
type ExportMetrics struct {
	RequestsTotal *prometheus.CounterVec
	LinesTotal    prometheus.Counter
	BytesTotal    prometheus.Counter
}

// NewExportMetrics initializes and registers the export metrics on reg.
func NewExportMetrics(reg prometheus.Registerer) *ExportMetrics {
	factory := promauto.With(reg)
	return &ExportMetrics{
		RequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "export",
			Name:      "requests_total",
			Help:      "Export API requests by result.",
		}, []string{"result"}), // result: ok, empty, error
		LinesTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "export",
			Name:      "lines_total",
			Help:      "Raw event lines extracted into the spool.",
		}),
		BytesTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "export",
			Name:      "archive_bytes_total",
			Help:      "Compressed archive bytes downloaded.",
		}),
	}
}
