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

const (
	VerifierJobReasonDeadlineExceeded     = "deadline_exceeded"
	VerifierJobReasonDBLockTimeout        = "db_lock_timeout"
	VerifierJobReasonSerializationFailure = "serialization_failure"
	VerifierJobReasonUniqueViolation      = "unique_violation"
	VerifierJobReasonDNS                  = "dns"
	VerifierJobReasonUnknown              = "unknown"
)

// VerifierMetrics captures health of the custom domain verification loop.
type VerifierMetrics struct {
	jobRuns     *prometheus.CounterVec
	jobDuration *prometheus.HistogramVec
	jobTimeouts *prometheus.CounterVec
	jobErrors   *prometheus.CounterVec
	checks      *prometheus.CounterVec
	lockSkipped prometheus.Counter
	runLoopLag  prometheus.Observer
}

var (
	verifierMetricsOnce sync.Once
	verifierMetrics     *VerifierMetrics
)

// Verifier returns the singleton verifier metrics registry.
func Verifier() *VerifierMetrics {
	return VerifierWithConfig(Config{})
}

// VerifierWithConfig returns the singleton verifier metrics registry using config labels.
func VerifierWithConfig(cfg Config) *VerifierMetrics {
	verifierMetricsOnce.Do(func() {
		verifierMetrics = newVerifierMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return verifierMetrics
}

// ResetVerifierMetricsForTest resets the verifier metrics singleton for tests.
func ResetVerifierMetricsForTest() {
	verifierMetricsOnce = sync.Once{}
	verifierMetrics = nil
}

func newVerifierMetrics(registerer prometheus.Registerer, cfg Config) *VerifierMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "storefront"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	constLabels := prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}

	jobRuns := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "storefront_verifier_job_runs_total",
		Help:        "Verifier job runs by name.",
		ConstLabels: constLabels,
	}, []string{"job"})
	jobDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:        "storefront_verifier_job_duration_seconds",
		Help:        "Verifier job latency.",
		Buckets:     []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		ConstLabels: constLabels,
	}, []string{"job"})
	jobTimeouts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "storefront_verifier_job_timeouts_total",
		Help:        "Verifier job timeouts.",
		ConstLabels: constLabels,
	}, []string{"job"})
	jobErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "storefront_verifier_job_errors_total",
		Help:        "Verifier job errors by low-cardinality reason.",
		ConstLabels: constLabels,
	}, []string{"job", "reason"})
	checks := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "storefront_verifier_checks_total",
		Help:        "Domain verification checks by resulting status.",
		ConstLabels: constLabels,
	}, []string{"status"})
	lockSkipped := prometheus.NewCounter(prometheus.CounterOpts{
		Name:        "storefront_verifier_lock_skipped_total",
		Help:        "Verifier runs skipped because another instance held the lock.",
		ConstLabels: constLabels,
	})
	runLoopLag := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:        "storefront_verifier_runloop_lag_seconds",
		Help:        "Verifier run loop lag beyond the configured interval.",
		Buckets:     []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		ConstLabels: constLabels,
	})

	registerer.MustRegister(jobRuns, jobDuration, jobTimeouts, jobErrors, checks, lockSkipped, runLoopLag)

	return &VerifierMetrics{
		jobRuns:     jobRuns,
		jobDuration: jobDuration,
		jobTimeouts: jobTimeouts,
		jobErrors:   jobErrors,
		checks:      checks,
		lockSkipped: lockSkipped,
		runLoopLag:  runLoopLag,
	}
}

// IncJobRun increments the run counter for a verifier job.
func (m *VerifierMetrics) IncJobRun(job string) {
	if m == nil {
		return
	}
	m.jobRuns.WithLabelValues(job).Inc()
}

// ObserveJobDuration records verifier job latency in seconds.
func (m *VerifierMetrics) ObserveJobDuration(job string, duration time.Duration) {
	if m == nil {
		return
	}
	m.jobDuration.WithLabelValues(job).Observe(duration.Seconds())
}

func (m *VerifierMetrics) IncJobTimeout(job string) {
	if m == nil {
		return
	}
	m.jobTimeouts.WithLabelValues(job).Inc()
}

// IncJobError increments the job error counter with classification.
func (m *VerifierMetrics) IncJobError(job string, err error) {
	if m == nil || err == nil {
		return
	}
	m.jobErrors.WithLabelValues(job, ClassifyVerifierJobReason(err)).Inc()
}

// IncCheck counts a single hostname check by the status it left the binding in.
func (m *VerifierMetrics) IncCheck(status string) {
	if m == nil {
		return
	}
	m.checks.WithLabelValues(strings.ToLower(strings.TrimSpace(status))).Inc()
}

func (m *VerifierMetrics) IncLockSkipped() {
	if m == nil {
		return
	}
	m.lockSkipped.Inc()
}

// ObserveRunLoopLag records lag between the scheduled tick and actual run start.
func (m *VerifierMetrics) ObserveRunLoopLag(duration time.Duration) {
	if m == nil {
		return
	}
	if duration < 0 {
		duration = 0
	}
	m.runLoopLag.Observe(duration.Seconds())
}

// DNSError marks errors returned by the TXT lookup.
type DNSError struct {
	Err error
}

func (e *DNSError) Error() string { return "dns: " + e.Err.Error() }

func (e *DNSError) Unwrap() error { return e.Err }

// ClassifyVerifierJobReason maps job errors to low-cardinality reasons.
func ClassifyVerifierJobReason(err error) string {
	if err == nil {
		return VerifierJobReasonUnknown
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return VerifierJobReasonDeadlineExceeded
	}
	var dnsErr *DNSError
	if errors.As(err, &dnsErr) {
		return VerifierJobReasonDNS
	}
	if hasPGCode(err, "55P03") {
		return VerifierJobReasonDBLockTimeout
	}
	if hasPGCode(err, "40001") {
		return VerifierJobReasonSerializationFailure
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) || hasPGCode(err, "23505") {
		return VerifierJobReasonUniqueViolation
	}
	return VerifierJobReasonUnknown
}

func hasPGCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == code
	}
	return false
}
