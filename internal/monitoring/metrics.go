package monitoring

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors of the service. Every method is
// safe to call on a nil receiver so packages can take metrics optionally.
type Metrics struct {
	registry *prometheus.Registry

	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec

	assessments        *prometheus.CounterVec
	assessmentScore    prometheus.Histogram
	assessmentDuration prometheus.Histogram
	assessorRuns       *prometheus.CounterVec

	batchJobs        *prometheus.CounterVec
	batchJobDuration prometheus.Histogram

	cacheOps          *prometheus.CounterVec
	externalAPICalls  *prometheus.CounterVec
	rateLimitBlocks   *prometheus.CounterVec
	breakerTransition *prometheus.CounterVec
	eventsPublished   *prometheus.CounterVec
}

// NewMetrics creates collectors on a private registry
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "readiness_http_requests_total",
			Help: "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "readiness_http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		assessments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "readiness_assessments_total",
			Help: "Completed assessments by certification tier.",
		}, []string{"tier"}),
		assessmentScore: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "readiness_assessment_score",
			Help:    "Distribution of overall readiness scores.",
			Buckets: prometheus.LinearBuckets(0, 10, 11),
		}),
		assessmentDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "readiness_assessment_duration_seconds",
			Help:    "Wall time of a full repository scan.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
		assessorRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "readiness_assessor_runs_total",
			Help: "Assessor executions by assessor and status.",
		}, []string{"assessor", "status"}),
		batchJobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "readiness_batch_jobs_total",
			Help: "Benchmark jobs by outcome.",
		}, []string{"outcome"}),
		batchJobDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "readiness_batch_job_duration_seconds",
			Help:    "Benchmark job wall time.",
			Buckets: prometheus.ExponentialBuckets(0.1, 4, 10),
		}),
		cacheOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "readiness_cache_operations_total",
			Help: "Cache lookups by cache and result.",
		}, []string{"cache", "result"}),
		externalAPICalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "readiness_external_api_calls_total",
			Help: "Calls to external APIs.",
		}, []string{"api", "success"}),
		rateLimitBlocks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "readiness_rate_limit_blocks_total",
			Help: "Requests rejected by the rate limiter.",
		}, []string{"backend"}),
		breakerTransition: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "readiness_circuit_breaker_transitions_total",
			Help: "Circuit breaker state changes.",
		}, []string{"name", "state"}),
		eventsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "readiness_events_published_total",
			Help: "Events published to NATS.",
		}, []string{"subject", "success"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.requests, m.requestDuration,
		m.assessments, m.assessmentScore, m.assessmentDuration, m.assessorRuns,
		m.batchJobs, m.batchJobDuration,
		m.cacheOps, m.externalAPICalls, m.rateLimitBlocks, m.breakerTransition, m.eventsPublished,
	)
	return m
}

// Registry exposes the underlying registry, mainly for tests
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordRequest records one HTTP request
func (m *Metrics) RecordRequest(method, route string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(route).Observe(duration.Seconds())
}

// RecordAssessment records a completed scan
func (m *Metrics) RecordAssessment(tier string, score float64, duration time.Duration) {
	if m == nil {
		return
	}
	m.assessments.WithLabelValues(tier).Inc()
	m.assessmentScore.Observe(score)
	m.assessmentDuration.Observe(duration.Seconds())
}

// RecordAssessorRun records one assessor execution
func (m *Metrics) RecordAssessorRun(assessor, status string) {
	if m == nil {
		return
	}
	m.assessorRuns.WithLabelValues(assessor, status).Inc()
}

// RecordBatchJob records the outcome of a benchmark job
func (m *Metrics) RecordBatchJob(outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.batchJobs.WithLabelValues(outcome).Inc()
	m.batchJobDuration.Observe(duration.Seconds())
}

// RecordCache records a cache lookup result ("hit", "miss", "expired", "invalid")
func (m *Metrics) RecordCache(cache, result string) {
	if m == nil {
		return
	}
	m.cacheOps.WithLabelValues(cache, result).Inc()
}

// RecordExternalAPIRequest records a call to an upstream API
func (m *Metrics) RecordExternalAPIRequest(apiName string, success bool) {
	if m == nil {
		return
	}
	m.externalAPICalls.WithLabelValues(apiName, strconv.FormatBool(success)).Inc()
}

// RecordRateLimitBlock records a rejected request
func (m *Metrics) RecordRateLimitBlock(backend string) {
	if m == nil {
		return
	}
	m.rateLimitBlocks.WithLabelValues(backend).Inc()
}

// RecordCircuitBreakerTransition records a breaker state change
func (m *Metrics) RecordCircuitBreakerTransition(name, state string) {
	if m == nil {
		return
	}
	m.breakerTransition.WithLabelValues(name, state).Inc()
}

// RecordEventPublished records a NATS publish attempt
func (m *Metrics) RecordEventPublished(subject string, success bool) {
	if m == nil {
		return
	}
	m.eventsPublished.WithLabelValues(subject, strconv.FormatBool(success)).Inc()
}
