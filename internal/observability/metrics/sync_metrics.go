// Package metrics exposes prometheus instruments for the billing sync
// pipeline.
package metrics

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"
)

// Config carries the constant labels applied to every sync metric.
type Config struct {
	ServiceName string
	Environment string
}

const (
	SyncJobReasonDeadlineExceeded     = "deadline_exceeded"
	SyncJobReasonDBLockTimeout        = "db_lock_timeout"
	SyncJobReasonSerializationFailure = "serialization_failure"
	SyncJobReasonUniqueViolation      = "unique_violation"
	SyncJobReasonUnknown              = "unknown"
)

const (
	UnitOutcomeSuccess = "success"
	UnitOutcomeFailure = "failure"
)

// SyncMetrics captures billing sync health signals.
type SyncMetrics struct {
	jobRuns        *prometheus.CounterVec
	jobDuration    *prometheus.HistogramVec
	jobErrors      *prometheus.CounterVec
	jobLockSkipped *prometheus.CounterVec
	unitsProcessed *prometheus.CounterVec
	unitDuration   *prometheus.HistogramVec
	fetchRetries   *prometheus.CounterVec
	rowsMerged     *prometheus.CounterVec
	rowsRejected   *prometheus.CounterVec
	runLoopLag     prometheus.Observer
}

var (
	syncMetricsOnce sync.Once
	syncMetrics     *SyncMetrics
)

// Sync returns the singleton sync metrics registry.
func Sync() *SyncMetrics {
	return SyncWithConfig(Config{})
}

// SyncWithConfig returns the singleton sync metrics registry using config labels.
func SyncWithConfig(cfg Config) *SyncMetrics {
	syncMetricsOnce.Do(func() {
		syncMetrics = newSyncMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return syncMetrics
}

// ResetSyncMetricsForTest resets the sync metrics singleton for tests.
func ResetSyncMetricsForTest() {
	syncMetricsOnce = sync.Once{}
	syncMetrics = nil
}

func newSyncMetrics(registerer prometheus.Registerer, cfg Config) *SyncMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "cloudledger"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	constLabels := prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}

	m := &SyncMetrics{
		jobRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "cloudledger_sync_job_runs_total",
			Help:        "Sync job runs by name.",
			ConstLabels: constLabels,
		}, []string{"job"}),
		jobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "cloudledger_sync_job_duration_seconds",
			Help:        "Sync job latency guarding ledger freshness.",
			Buckets:     []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600, 1800, 3600},
			ConstLabels: constLabels,
		}, []string{"job"}),
		jobErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "cloudledger_sync_job_errors_total",
			Help:        "Sync job failures by classified reason.",
			ConstLabels: constLabels,
		}, []string{"job", "reason"}),
		jobLockSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "cloudledger_sync_job_lock_skipped_total",
			Help:        "Runs skipped because a prior run of the job still holds the lock.",
			ConstLabels: constLabels,
		}, []string{"job"}),
		unitsProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "cloudledger_sync_units_total",
			Help:        "Work units processed by job and outcome.",
			ConstLabels: constLabels,
		}, []string{"job", "outcome"}),
		unitDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "cloudledger_sync_unit_duration_seconds",
			Help:        "Per work-unit fetch+merge latency.",
			Buckets:     []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600},
			ConstLabels: constLabels,
		}, []string{"job"}),
		fetchRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "cloudledger_sync_fetch_retries_total",
			Help:        "Transient provider fetch retries.",
			ConstLabels: constLabels,
		}, []string{"provider"}),
		rowsMerged: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "cloudledger_merge_rows_total",
			Help:        "Canonical rows upserted by provider.",
			ConstLabels: constLabels,
		}, []string{"provider"}),
		rowsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "cloudledger_merge_rows_rejected_total",
			Help:        "Raw rows rejected for missing natural-key fields.",
			ConstLabels: constLabels,
		}, []string{"provider"}),
	}

	runLoopLag := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:        "cloudledger_sync_run_loop_lag_seconds",
		Help:        "Delay between the scheduled and actual start of a sync pass.",
		Buckets:     []float64{0.1, 0.5, 1, 5, 15, 60, 300},
		ConstLabels: constLabels,
	})
	m.runLoopLag = runLoopLag

	for _, c := range []prometheus.Collector{
		m.jobRuns, m.jobDuration, m.jobErrors, m.jobLockSkipped,
		m.unitsProcessed, m.unitDuration, m.fetchRetries,
		m.rowsMerged, m.rowsRejected, runLoopLag,
	} {
		if err := registerer.Register(c); err != nil {
			var already prometheus.AlreadyRegisteredError
			if !errors.As(err, &already) {
				panic(err)
			}
		}
	}

	return m
}

func (m *SyncMetrics) IncJobRun(job string) {
	m.jobRuns.WithLabelValues(job).Inc()
}

func (m *SyncMetrics) ObserveJobDuration(job string, d time.Duration) {
	m.jobDuration.WithLabelValues(job).Observe(d.Seconds())
}

func (m *SyncMetrics) IncJobError(job string, err error) {
	m.jobErrors.WithLabelValues(job, ClassifySyncJobReason(err)).Inc()
}

func (m *SyncMetrics) IncJobLockSkipped(job string) {
	m.jobLockSkipped.WithLabelValues(job).Inc()
}

func (m *SyncMetrics) IncUnitOutcome(job, outcome string) {
	m.unitsProcessed.WithLabelValues(job, outcome).Inc()
}

func (m *SyncMetrics) ObserveUnitDuration(job string, d time.Duration) {
	m.unitDuration.WithLabelValues(job).Observe(d.Seconds())
}

func (m *SyncMetrics) IncFetchRetry(provider string) {
	m.fetchRetries.WithLabelValues(provider).Inc()
}

func (m *SyncMetrics) AddRowsMerged(provider string, count int) {
	if count > 0 {
		m.rowsMerged.WithLabelValues(provider).Add(float64(count))
	}
}

func (m *SyncMetrics) AddRowsRejected(provider string, count int) {
	if count > 0 {
		m.rowsRejected.WithLabelValues(provider).Add(float64(count))
	}
}

func (m *SyncMetrics) ObserveRunLoopLag(d time.Duration) {
	m.runLoopLag.Observe(d.Seconds())
}

// ClassifySyncJobReason maps an error to a bounded reason label.
func ClassifySyncJobReason(err error) string {
	if err == nil {
		return SyncJobReasonUnknown
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return SyncJobReasonDeadlineExceeded
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return SyncJobReasonUniqueViolation
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "55P03":
			return SyncJobReasonDBLockTimeout
		case "40001":
			return SyncJobReasonSerializationFailure
		case "23505":
			return SyncJobReasonUniqueViolation
		}
	}
	return SyncJobReasonUnknown
}
