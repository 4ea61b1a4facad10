package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the simulation API.
type Metrics struct {
	// HTTP metrics
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Governance metrics
	governanceDecisions *prometheus.CounterVec
	hitlQueueDepth      prometheus.Gauge
	auditDeletions      prometheus.Counter

	// Engine metrics
	tasksTotal       *prometheus.CounterVec
	oracleErrors     prometheus.Counter
	cascadeEvents    *prometheus.CounterVec
	delegationsTotal *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewMetrics creates a new metrics instance backed by a private registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "maul_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status_code"},
		),

		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "maul_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),

		governanceDecisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "maul_governance_decisions_total",
				Help: "Total number of governance decisions by method and outcome",
			},
			[]string{"approval_method", "approved"},
		),

		hitlQueueDepth: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "maul_hitl_queue_depth",
				Help: "Number of actions currently pending human approval",
			},
		),

		auditDeletions: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "maul_audit_deletions_total",
				Help: "Total number of audit entries deleted or cleared",
			},
		),

		tasksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "maul_tasks_total",
				Help: "Total number of orchestrated tasks by final health",
			},
			[]string{"health"},
		),

		oracleErrors: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "maul_oracle_errors_total",
				Help: "Total number of failed oracle invocations surfaced over HTTP",
			},
		),

		cascadeEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "maul_cascade_events_total",
				Help: "Total number of cascade failure events by failure type",
			},
			[]string{"failure_type"},
		),

		delegationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "maul_delegations_total",
				Help: "Total number of delegations by kind",
			},
			[]string{"kind"},
		),

		registry: registry,
	}

	registry.MustRegister(
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.governanceDecisions,
		m.hitlQueueDepth,
		m.auditDeletions,
		m.tasksTotal,
		m.oracleErrors,
		m.cascadeEvents,
		m.delegationsTotal,
	)

	return m
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, duration time.Duration) {
	m.httpRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	m.httpRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// RecordDecision records a governance decision outcome
func (m *Metrics) RecordDecision(method string, approved bool) {
	m.governanceDecisions.WithLabelValues(method, strconv.FormatBool(approved)).Inc()
}

// SetHITLQueueDepth updates the pending-approval gauge
func (m *Metrics) SetHITLQueueDepth(depth int) {
	m.hitlQueueDepth.Set(float64(depth))
}

// RecordAuditDeletion records removed audit entries
func (m *Metrics) RecordAuditDeletion(count int) {
	m.auditDeletions.Add(float64(count))
}

// RecordTask records a completed orchestration task
func (m *Metrics) RecordTask(health string) {
	m.tasksTotal.WithLabelValues(health).Inc()
}

// RecordOracleError records a failed oracle invocation
func (m *Metrics) RecordOracleError() {
	m.oracleErrors.Inc()
}

// RecordCascadeEvents records cascade failure events
func (m *Metrics) RecordCascadeEvents(failureType string, count int) {
	m.cascadeEvents.WithLabelValues(failureType).Add(float64(count))
}

// RecordDelegation records a delegation by kind (direct or redelegation)
func (m *Metrics) RecordDelegation(kind string) {
	m.delegationsTotal.WithLabelValues(kind).Inc()
}

// Handler returns the Prometheus metrics HTTP handler
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the Prometheus registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// MetricsMiddleware creates HTTP middleware that records request metrics
func (m *Metrics) MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		duration := time.Since(start)
		endpoint := r.Pattern
		if endpoint == "" {
			endpoint = r.URL.Path
		}
		statusCode := strconv.Itoa(wrapped.statusCode)

		m.RecordHTTPRequest(r.Method, endpoint, statusCode, duration)
	})
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Flush() {
	if flusher, ok := rw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}
