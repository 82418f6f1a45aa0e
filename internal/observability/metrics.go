package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "workdesk"

// Decision labels for access checks
const (
	DecisionAllow = "allow"
	DecisionDeny  = "deny"
)

// Outcome labels for role label resolution
const (
	OutcomeResolved = "resolved"
	OutcomeFallback = "fallback"
	OutcomeRejected = "rejected"
)

// Metrics holds the Prometheus collectors for the service
type Metrics struct {
	registry *prometheus.Registry

	accessDecisions  *prometheus.CounterVec
	roleResolutions  *prometheus.CounterVec
	auditDropped     prometheus.Counter
	roleTableVersion prometheus.Gauge
	httpRequests     *prometheus.CounterVec
	httpDuration     *prometheus.HistogramVec
	rateLimited      *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them, along with the Go
// runtime and process collectors, in a fresh registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		accessDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "access_decisions_total",
			Help:      "Permission checks by permission and decision.",
		}, []string{"permission", "decision"}),
		roleResolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "role_resolutions_total",
			Help:      "Identity provider role labels resolved at login, by outcome.",
		}, []string{"outcome"}),
		auditDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audit_events_dropped_total",
			Help:      "Audit events dropped because the buffer was full or the service stopped.",
		}),
		roleTableVersion: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "role_table_version",
			Help:      "Version of the role permission table currently installed.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route pattern, method and status.",
		}, []string{"route", "method", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route pattern and method.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),
		rateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_total",
			Help:      "Requests rejected by the rate limiter, by path.",
		}, []string{"path"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.accessDecisions,
		m.roleResolutions,
		m.auditDropped,
		m.roleTableVersion,
		m.httpRequests,
		m.httpDuration,
		m.rateLimited,
	)
	return m
}

// Registry exposes the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// RecordAccessDecision counts one permission check
func (m *Metrics) RecordAccessDecision(permission string, allowed bool) {
	if m == nil {
		return
	}
	decision := DecisionDeny
	if allowed {
		decision = DecisionAllow
	}
	m.accessDecisions.WithLabelValues(permission, decision).Inc()
}

// RecordRoleResolution counts one role label resolution
func (m *Metrics) RecordRoleResolution(outcome string) {
	if m == nil {
		return
	}
	m.roleResolutions.WithLabelValues(outcome).Inc()
}

// RecordAuditDropped counts an audit event that was not persisted
func (m *Metrics) RecordAuditDropped() {
	if m == nil {
		return
	}
	m.auditDropped.Inc()
}

// SetRoleTableVersion publishes the installed table version
func (m *Metrics) SetRoleTableVersion(version int64) {
	if m == nil {
		return
	}
	m.roleTableVersion.Set(float64(version))
}

// RecordHTTPRequest counts a served request and observes its latency
func (m *Metrics) RecordHTTPRequest(route, method string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	m.httpRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(route, method).Observe(elapsed.Seconds())
}

// RecordRateLimited counts a request rejected by the rate limiter
func (m *Metrics) RecordRateLimited(path string) {
	if m == nil {
		return
	}
	m.rateLimited.WithLabelValues(path).Inc()
}

// RegisterGaugeFunc adds a gauge whose value is read at scrape time
func (m *Metrics) RegisterGaugeFunc(name, help string, fn func() float64) error {
	if m == nil {
		return nil
	}
	return m.registry.Register(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      name,
		Help:      help,
	}, fn))
}
