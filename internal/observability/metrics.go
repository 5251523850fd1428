package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors for the service. Every method is
// safe to call on a nil receiver so services can run without metrics.
type Metrics struct {
	registry        *prometheus.Registry
	requestCount    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	errorCount      *prometheus.CounterVec
	escalations     *prometheus.CounterVec
	assignments     *prometheus.CounterVec
	overdueIssues   *prometheus.GaugeVec
	sweepDuration   prometheus.Histogram
}

// NewMetrics registers collectors on a private registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		requestCount: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "issue_sla_http_requests_total",
			Help: "HTTP requests by route, method and status.",
		}, []string{"path", "method", "status"}),
		requestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "issue_sla_http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"path", "method"}),
		errorCount: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "issue_sla_http_errors_total",
			Help: "HTTP errors by route, method and error code.",
		}, []string{"path", "method", "code"}),
		escalations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "issue_sla_escalation_transitions_total",
			Help: "Escalation transitions by action and trigger.",
		}, []string{"action", "trigger"}),
		assignments: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "issue_sla_assignments_total",
			Help: "Assignment attempts by mode and outcome.",
		}, []string{"mode", "outcome"}),
		overdueIssues: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "issue_sla_overdue_issues",
			Help: "Overdue issues seen by the latest classification, by severity.",
		}, []string{"severity"}),
		sweepDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "issue_sla_auto_escalate_duration_seconds",
			Help:    "Duration of auto-escalation sweeps.",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// RecordRequest increments counters for requests.
func (m *Metrics) RecordRequest(path, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.requestCount.WithLabelValues(path, method, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(path, method).Observe(duration.Seconds())
}

// RecordError increments error counters.
func (m *Metrics) RecordError(path, method, code string) {
	if m == nil {
		return
	}
	m.errorCount.WithLabelValues(path, method, code).Inc()
}

// RecordEscalation counts an escalation transition.
func (m *Metrics) RecordEscalation(action string, automatic bool) {
	if m == nil {
		return
	}
	trigger := "manual"
	if automatic {
		trigger = "auto"
	}
	m.escalations.WithLabelValues(action, trigger).Inc()
}

// RecordAssignment counts an assignment attempt.
func (m *Metrics) RecordAssignment(mode string, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "failed"
	}
	m.assignments.WithLabelValues(mode, outcome).Inc()
}

// SetOverdue replaces the overdue gauge with the given per-severity counts.
func (m *Metrics) SetOverdue(counts map[string]int) {
	if m == nil {
		return
	}
	m.overdueIssues.Reset()
	for severity, n := range counts {
		m.overdueIssues.WithLabelValues(severity).Set(float64(n))
	}
}

// ObserveSweep records how long an auto-escalation sweep took.
func (m *Metrics) ObserveSweep(duration time.Duration) {
	if m == nil {
		return
	}
	m.sweepDuration.Observe(duration.Seconds())
}
