// Package metrics exposes Prometheus instrumentation for the assistant.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all collectors for the assistant. A nil *Metrics is not
// usable; callers that run without instrumentation hold a nil pointer and
// skip the calls.
type Metrics struct {
	invocationsTotal   *prometheus.CounterVec
	invocationDuration prometheus.Histogram
	iterationsTotal    prometheus.Counter
	iterationsPerRun   prometheus.Histogram
	verdictsTotal      *prometheus.CounterVec

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	cacheHitsTotal      prometheus.Counter
	cacheMissesTotal    prometheus.Counter
}

// New creates and registers all collectors on the given registerer.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		invocationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kubepilot",
			Name:      "invocations_total",
			Help:      "Completed assistant invocations by terminal state",
		}, []string{"state"}),
		invocationDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "kubepilot",
			Name:      "invocation_duration_seconds",
			Help:      "End-to-end duration of assistant invocations",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}),
		iterationsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "kubepilot",
			Name:      "loop_iterations_total",
			Help:      "Generation-evaluation loop iterations across all invocations",
		}),
		iterationsPerRun: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "kubepilot",
			Name:      "loop_iterations_per_invocation",
			Help:      "Loop iterations needed per invocation",
			Buckets:   []float64{1, 2, 3, 4, 5},
		}),
		verdictsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kubepilot",
			Name:      "evaluation_verdicts_total",
			Help:      "Evaluator verdicts by outcome",
		}, []string{"outcome"}),
		httpRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kubepilot",
			Name:      "http_requests_total",
			Help:      "HTTP requests by path and status code",
		}, []string{"path", "status"}),
		httpRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "kubepilot",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration by path",
			Buckets:   prometheus.DefBuckets,
		}, []string{"path"}),
		cacheHitsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "kubepilot",
			Name:      "answer_cache_hits_total",
			Help:      "Answer cache hits",
		}),
		cacheMissesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "kubepilot",
			Name:      "answer_cache_misses_total",
			Help:      "Answer cache misses",
		}),
	}

	reg.MustRegister(
		m.invocationsTotal,
		m.invocationDuration,
		m.iterationsTotal,
		m.iterationsPerRun,
		m.verdictsTotal,
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.cacheHitsTotal,
		m.cacheMissesTotal,
	)
	return m
}

// ObserveInvocation records one completed loop invocation.
func (m *Metrics) ObserveInvocation(state string, iterations int, duration time.Duration) {
	m.invocationsTotal.WithLabelValues(state).Inc()
	m.invocationDuration.Observe(duration.Seconds())
	m.iterationsPerRun.Observe(float64(iterations))
}

// IncIteration counts one loop pass.
func (m *Metrics) IncIteration() {
	m.iterationsTotal.Inc()
}

// IncVerdict counts one evaluator verdict.
func (m *Metrics) IncVerdict(pass bool) {
	outcome := "needs_improvement"
	if pass {
		outcome = "pass"
	}
	m.verdictsTotal.WithLabelValues(outcome).Inc()
}

// ObserveRequest records one HTTP request.
func (m *Metrics) ObserveRequest(path string, status int, duration time.Duration) {
	m.httpRequestsTotal.WithLabelValues(path, strconv.Itoa(status)).Inc()
	m.httpRequestDuration.WithLabelValues(path).Observe(duration.Seconds())
}

// IncCacheHit counts an answer cache hit.
func (m *Metrics) IncCacheHit() {
	m.cacheHitsTotal.Inc()
}

// IncCacheMiss counts an answer cache miss.
func (m *Metrics) IncCacheMiss() {
	m.cacheMissesTotal.Inc()
}
