package metrics

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/smallbiznis/obligo/internal/authorization"
	obligationdomain "github.com/smallbiznis/obligo/internal/obligation/domain"
	"gorm.io/gorm"
)

// Error types attached to scheduler log lines.
const (
	SchedulerErrorTypeDeadlineExceeded = "deadline_exceeded"
	SchedulerErrorTypeAuthorization    = "authorization"
	SchedulerErrorTypeConfiguration    = "configuration"
	SchedulerErrorTypeBusinessRule     = "business_rule"
	SchedulerErrorTypeDB               = "db"
	SchedulerErrorTypeUnknown          = "unknown"
)

// Reasons used as the obligo_scheduler_job_errors_total label.
const (
	SchedulerJobReasonDeadlineExceeded     = "deadline_exceeded"
	SchedulerJobReasonDBLockTimeout        = "db_lock_timeout"
	SchedulerJobReasonSerializationFailure = "serialization_failure"
	SchedulerJobReasonUniqueViolation      = "unique_violation"
	SchedulerJobReasonForbidden            = "forbidden"
	SchedulerJobReasonOwnerNotConfigured   = "owner_not_configured"
	SchedulerJobReasonPartialFailure       = "partial_failure"
	SchedulerJobReasonUnknown              = "unknown"
)

// ErrPartialFailure marks a batch that finished with per-item failures.
var ErrPartialFailure = errors.New("partial_failure")

type errorClass struct {
	kind      string
	reason    string
	retryable bool
}

// errorRules are checked in order; the first match classifies the error.
var errorRules = []struct {
	match func(error) bool
	class errorClass
}{
	{isCancellation, errorClass{SchedulerErrorTypeDeadlineExceeded, SchedulerJobReasonDeadlineExceeded, true}},
	{isAuthorizationError, errorClass{SchedulerErrorTypeAuthorization, SchedulerJobReasonForbidden, false}},
	{isOwnerMissing, errorClass{SchedulerErrorTypeConfiguration, SchedulerJobReasonOwnerNotConfigured, false}},
	{pgCode("55P03"), errorClass{SchedulerErrorTypeDB, SchedulerJobReasonDBLockTimeout, true}},
	{pgCode("40001"), errorClass{SchedulerErrorTypeDB, SchedulerJobReasonSerializationFailure, true}},
	{isUniqueViolation, errorClass{SchedulerErrorTypeDB, SchedulerJobReasonUniqueViolation, false}},
	{isPartialFailure, errorClass{SchedulerErrorTypeBusinessRule, SchedulerJobReasonPartialFailure, false}},
	{isDBError, errorClass{SchedulerErrorTypeDB, SchedulerJobReasonUnknown, true}},
}

func classify(err error) errorClass {
	for _, rule := range errorRules {
		if rule.match(err) {
			return rule.class
		}
	}
	return errorClass{SchedulerErrorTypeBusinessRule, SchedulerJobReasonUnknown, false}
}

func ClassifySchedulerErrorType(err error) string {
	if err == nil {
		return SchedulerErrorTypeUnknown
	}
	return classify(err).kind
}

func ClassifySchedulerJobReason(err error) string {
	if err == nil {
		return SchedulerJobReasonUnknown
	}
	return classify(err).reason
}

// IsSchedulerErrorRetryable reports whether the next tick can be expected to
// succeed without operator action.
func IsSchedulerErrorRetryable(err error) bool {
	return err != nil && classify(err).retryable
}

func isCancellation(err error) bool {
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
}

func isAuthorizationError(err error) bool {
	return errors.Is(err, authorization.ErrForbidden) ||
		errors.Is(err, authorization.ErrInvalidActor) ||
		errors.Is(err, authorization.ErrInvalidObject) ||
		errors.Is(err, authorization.ErrInvalidAction)
}

func isOwnerMissing(err error) bool {
	return errors.Is(err, obligationdomain.ErrOwnerNotConfigured)
}

func isPartialFailure(err error) bool {
	return errors.Is(err, ErrPartialFailure)
}

func isUniqueViolation(err error) bool {
	return errors.Is(err, gorm.ErrDuplicatedKey) || pgCode("23505")(err)
}

func pgCode(code string) func(error) bool {
	return func(err error) bool {
		var pgErr *pgconn.PgError
		return errors.As(err, &pgErr) && pgErr.Code == code
	}
}

func isDBError(err error) bool {
	for _, sentinel := range []error{
		gorm.ErrInvalidDB, gorm.ErrInvalidTransaction, gorm.ErrInvalidField,
		gorm.ErrInvalidData, gorm.ErrMissingWhereClause, gorm.ErrUnsupportedDriver,
		gorm.ErrInvalidValue, gorm.ErrNotImplemented,
	} {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr)
}

// SchedulerMetrics are prometheus collectors for the batch jobs. They live
// on the default registry next to the gorm pool stats.
type SchedulerMetrics struct {
	jobRuns        *prometheus.CounterVec
	jobDuration    *prometheus.HistogramVec
	jobTimeouts    *prometheus.CounterVec
	jobErrors      *prometheus.CounterVec
	batchProcessed *prometheus.CounterVec
	runLoopLag     prometheus.Histogram
}

var (
	schedulerOnce    sync.Once
	schedulerMetrics *SchedulerMetrics
)

func Scheduler() *SchedulerMetrics {
	return SchedulerWithConfig(Config{})
}

// SchedulerWithConfig registers the collectors on first use. Labels from
// later calls are ignored.
func SchedulerWithConfig(cfg Config) *SchedulerMetrics {
	schedulerOnce.Do(func() {
		schedulerMetrics = newSchedulerMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return schedulerMetrics
}

func ResetSchedulerMetricsForTest() {
	schedulerOnce = sync.Once{}
	schedulerMetrics = nil
}

func newSchedulerMetrics(registerer prometheus.Registerer, cfg Config) *SchedulerMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	labels := prometheus.Labels{
		"service": orDefault(cfg.ServiceName, "obligo"),
		"env":     orDefault(cfg.Environment, "unknown"),
	}
	counter := func(name, help string, vars ...string) *prometheus.CounterVec {
		return prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "obligo_scheduler_" + name, Help: help, ConstLabels: labels,
		}, vars)
	}

	m := &SchedulerMetrics{
		jobRuns:     counter("job_runs_total", "Scheduler job runs by name.", "job"),
		jobTimeouts: counter("job_timeouts_total", "Scheduler jobs cut short by their deadline.", "job"),
		jobErrors:   counter("job_errors_total", "Scheduler job errors by low-cardinality reason.", "job", "reason"),
		batchProcessed: counter("batch_processed_total",
			"Obligations and commissions written by scheduler jobs.", "job", "resource"),
		jobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "obligo_scheduler_job_duration_seconds",
			Help:        "Scheduler job latency.",
			Buckets:     []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600, 1800},
			ConstLabels: labels,
		}, []string{"job"}),
		runLoopLag: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:        "obligo_scheduler_runloop_lag_seconds",
			Help:        "How late a tick started compared to the configured interval.",
			Buckets:     prometheus.ExponentialBuckets(0.01, 4, 9),
			ConstLabels: labels,
		}),
	}
	registerer.MustRegister(m.jobRuns, m.jobDuration, m.jobTimeouts, m.jobErrors, m.batchProcessed, m.runLoopLag)
	return m
}

func (m *SchedulerMetrics) IncJobRun(job string) {
	if m != nil {
		m.jobRuns.WithLabelValues(job).Inc()
	}
}

func (m *SchedulerMetrics) ObserveJobDuration(job string, d time.Duration) {
	if m != nil {
		m.jobDuration.WithLabelValues(job).Observe(d.Seconds())
	}
}

func (m *SchedulerMetrics) IncJobTimeout(job string) {
	if m != nil {
		m.jobTimeouts.WithLabelValues(job).Inc()
	}
}

func (m *SchedulerMetrics) IncJobError(job string, err error) {
	if m != nil && err != nil {
		m.jobErrors.WithLabelValues(job, ClassifySchedulerJobReason(err)).Inc()
	}
}

func (m *SchedulerMetrics) AddBatchProcessed(job, resource string, count int) {
	if m != nil && count > 0 {
		m.batchProcessed.WithLabelValues(job, resource).Add(float64(count))
	}
}

func (m *SchedulerMetrics) ObserveRunLoopLag(d time.Duration) {
	if m != nil {
		m.runLoopLag.Observe(max(d, 0).Seconds())
	}
}

func orDefault(value, fallback string) string {
	if value = strings.TrimSpace(value); value != "" {
		return value
	}
	return fallback
}
