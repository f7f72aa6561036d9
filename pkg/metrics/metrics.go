package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// Fetch metrics
	FetchAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scrape_fetch_attempts_total",
			Help: "HTTP fetch attempts per source and strategy",
		},
		[]string{"source", "strategy"},
	)
	FetchErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scrape_fetch_errors_total",
			Help: "Fetch failures after retries, per source and error kind",
		},
		[]string{"source", "kind"},
	)
	FetchLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "scrape_fetch_latency_seconds",
			Help:    "Time to fetch one document",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 40},
		},
		[]string{"source", "strategy"},
	)

	// Adapter metrics
	RowsParsed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scrape_rows_parsed_total",
			Help: "Raw quotes extracted per source",
		},
		[]string{"source"},
	)
	RowsSkipped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scrape_rows_skipped_total",
			Help: "Table rows dropped as uninterpretable, per source",
		},
		[]string{"source"},
	)
	AdapterFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scrape_adapter_failures_total",
			Help: "Adapter runs that contributed zero records due to an error",
		},
		[]string{"source", "window"},
	)

	// Merge / normalize metrics
	MergedQuotes = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "scrape_merged_quotes_total",
			Help: "Distinct symbols produced by reconciliation",
		})
	ValidationRejects = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "scrape_validation_rejects_total",
			Help: "Merged records dropped by normalization rules",
		})

	// Persistence metrics
	UpsertedQuotes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scrape_upserted_quotes_total",
			Help: "Canonical quotes upserted per window",
		},
		[]string{"window"},
	)
	PersistErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scrape_persist_errors_total",
			Help: "Window-store save failures",
		},
		[]string{"window"},
	)
	PersistLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "scrape_persist_latency_seconds",
			Help:    "Time to bulk-upsert one window's quotes",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"window"},
	)

	// Cycle metrics
	CyclesRun = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scrape_cycles_total",
			Help: "Orchestrator cycles per classified window (including none)",
		},
		[]string{"window"},
	)
	CyclesSkipped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "scrape_cycles_skipped_total",
			Help: "Ticks refused because a cycle was still in flight",
		})
	CycleDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "scrape_cycle_duration_seconds",
			Help:    "Wall time of one full orchestrator cycle",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300},
		},
		[]string{"window"},
	)

	// Redis metrics
	RedisOperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "redis_operation_duration_seconds",
			Help:    "Redis operation duration",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "status"},
	)
	RedisErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "redis_errors_total",
			Help: "Total Redis errors",
		},
		[]string{"operation"},
	)

	// Database metrics
	DatabaseHealthCheckDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "database_health_check_duration_seconds",
			Help:    "Database health check duration",
			Buckets: prometheus.DefBuckets,
		})
	DatabaseHealthCheckSuccess = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "database_health_check_success_total",
			Help: "Total successful database health checks",
		})
	DatabaseHealthCheckErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "database_health_check_errors_total",
			Help: "Total failed database health checks",
		})
)

func init() {
	// MustRegister panics if registration fails (e.g. duplicate)
	prometheus.MustRegister(
		FetchAttempts, FetchErrors, FetchLatency,
		RowsParsed, RowsSkipped, AdapterFailures,
		MergedQuotes, ValidationRejects,
		UpsertedQuotes, PersistErrors, PersistLatency,
		CyclesRun, CyclesSkipped, CycleDuration,
		RedisOperationDuration, RedisErrors,
		DatabaseHealthCheckDuration, DatabaseHealthCheckSuccess, DatabaseHealthCheckErrors,
	)
}
