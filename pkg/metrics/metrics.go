// Package metrics provides Prometheus metrics for the recomputation pipeline.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Manager owns every pipeline metric. A disabled manager records nothing.
type Manager struct {
	namespace string
	subsystem string
	buckets   []float64
	enabled   bool
	registry  *prometheus.Registry

	// Batch writer
	rowsWritten   *prometheus.CounterVec
	batchFailures *prometheus.CounterVec
	batchDropped  *prometheus.CounterVec

	// Score normalization
	scoresNormalized prometheus.Counter
	accuracyOverflow prometheus.Counter
	oracleNaN        prometheus.Counter
	skippedRows      *prometheus.CounterVec

	// Jobs
	jobRuns     *prometheus.CounterVec
	jobDuration *prometheus.HistogramVec
	jobLastRun  *prometheus.GaugeVec

	// Ranking mirror
	rankingPublished *prometheus.GaugeVec
}

// Option applies a configuration option to the Manager.
type Option func(*Manager)

// WithNamespace sets the namespace for all metrics.
func WithNamespace(namespace string) Option {
	return func(m *Manager) {
		if namespace != "" {
			m.namespace = namespace
		}
	}
}

// WithSubsystem sets the subsystem for all metrics.
func WithSubsystem(subsystem string) Option {
	return func(m *Manager) {
		if subsystem != "" {
			m.subsystem = subsystem
		}
	}
}

// WithHistogramBuckets sets custom buckets for duration histograms.
func WithHistogramBuckets(buckets []float64) Option {
	return func(m *Manager) {
		if len(buckets) > 0 {
			m.buckets = buckets
		}
	}
}

// WithEnabled enables or disables metrics collection.
func WithEnabled(enabled bool) Option {
	return func(m *Manager) {
		m.enabled = enabled
	}
}

// WithRegistry sets the Prometheus registry.
func WithRegistry(registry *prometheus.Registry) Option {
	return func(m *Manager) {
		if registry != nil {
			m.registry = registry
		}
	}
}

// NewManager creates a metrics manager registered on its own registry.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace: "ppcron",
		subsystem: "pipeline",
		buckets:   []float64{0.5, 1, 5, 15, 30, 60, 120, 300, 600, 1800},
		enabled:   true,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.registry == nil {
		m.registry = prometheus.NewRegistry()
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) initializeMetrics() {
	auto := promauto.With(m.registry)

	m.rowsWritten = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "rows_written_total",
		Help:      "Rows updated through the batch writer, by table.",
	}, []string{"table"})

	m.batchFailures = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "batch_failures_total",
		Help:      "Failed batch write attempts, by table.",
	}, []string{"table"})

	m.batchDropped = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "batches_dropped_total",
		Help:      "Batches dropped after the retry failed, by table.",
	}, []string{"table"})

	m.scoresNormalized = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "scores_normalized_total",
		Help:      "Scores recomputed by the normalizer.",
	})

	m.accuracyOverflow = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "accuracy_overflow_total",
		Help:      "Scores whose accuracy stayed above 1 after max score correction.",
	})

	m.oracleNaN = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "oracle_nan_total",
		Help:      "Rating oracle results that contained NaN and were zeroed.",
	})

	m.skippedRows = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "skipped_rows_total",
		Help:      "Rows skipped because of inconsistent data, by stage.",
	}, []string{"stage"})

	m.jobRuns = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "scheduler",
		Name:      "job_runs_total",
		Help:      "Scheduled job runs, by job and outcome.",
	}, []string{"job", "outcome"})

	m.jobDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: "scheduler",
		Name:      "job_duration_seconds",
		Help:      "Duration of scheduled job runs.",
		Buckets:   m.buckets,
	}, []string{"job"})

	m.jobLastRun = auto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: "scheduler",
		Name:      "job_last_run_unix",
		Help:      "Unix time of the last finished run, by job.",
	}, []string{"job"})

	m.rankingPublished = auto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "ranking_published_players",
		Help:      "Players in the last ranking mirrored to the cache, by context.",
	}, []string{"context"})
}

// Handler exposes the manager's registry over HTTP.
func (m *Manager) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry returns the underlying registry.
func (m *Manager) Registry() *prometheus.Registry {
	return m.registry
}

// RowsWritten counts rows written to a table.
func (m *Manager) RowsWritten(table string, n int) {
	if m == nil || !m.enabled {
		return
	}
	m.rowsWritten.WithLabelValues(table).Add(float64(n))
}

// BatchFailed counts one failed write attempt.
func (m *Manager) BatchFailed(table string) {
	if m == nil || !m.enabled {
		return
	}
	m.batchFailures.WithLabelValues(table).Inc()
}

// BatchDropped counts one batch given up on.
func (m *Manager) BatchDropped(table string) {
	if m == nil || !m.enabled {
		return
	}
	m.batchDropped.WithLabelValues(table).Inc()
}

// ScoresNormalized counts normalized scores.
func (m *Manager) ScoresNormalized(n int) {
	if m == nil || !m.enabled {
		return
	}
	m.scoresNormalized.Add(float64(n))
}

// AccuracyOverflow counts a score whose accuracy stayed above 1.
func (m *Manager) AccuracyOverflow() {
	if m == nil || !m.enabled {
		return
	}
	m.accuracyOverflow.Inc()
}

// OracleNaN counts an oracle result that had to be zeroed.
func (m *Manager) OracleNaN() {
	if m == nil || !m.enabled {
		return
	}
	m.oracleNaN.Inc()
}

// RowSkipped counts a row skipped at a stage.
func (m *Manager) RowSkipped(stage string) {
	if m == nil || !m.enabled {
		return
	}
	m.skippedRows.WithLabelValues(stage).Inc()
}

// JobFinished records a job run.
func (m *Manager) JobFinished(job string, duration time.Duration, err error) {
	if m == nil || !m.enabled {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	m.jobRuns.WithLabelValues(job, outcome).Inc()
	m.jobDuration.WithLabelValues(job).Observe(duration.Seconds())
	m.jobLastRun.WithLabelValues(job).Set(float64(time.Now().Unix()))
}

// RankingPublished records the size of a mirrored ranking.
func (m *Manager) RankingPublished(context string, players int) {
	if m == nil || !m.enabled {
		return
	}
	m.rankingPublished.WithLabelValues(context).Set(float64(players))
}
