package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nao1215/sitescope/internal/executor"
	"github.com/nao1215/sitescope/internal/model"
)

const namespace = "sitescope"

// Metrics holds the collectors of one pipeline.
type Metrics struct {
	registry *prometheus.Registry

	cacheOps        *prometheus.CounterVec
	rateRejections  prometheus.Counter
	stepResults     *prometheus.CounterVec
	stepDuration    *prometheus.HistogramVec
	breakerChanges  *prometheus.CounterVec
	breakerState    *prometheus.GaugeVec
	requests        *prometheus.CounterVec
	requestDuration prometheus.Histogram
}

// New creates Metrics registered on a fresh registry, including the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		cacheOps: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_operations_total",
			Help:      "Cache operations by backend and outcome (hit, miss, set, error).",
		}, []string{"backend", "outcome"}),
		rateRejections: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limit_rejections_total",
			Help:      "Requests rejected by the rate limiter.",
		}),
		stepResults: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "step_results_total",
			Help:      "Executed steps by name, status and error kind.",
		}, []string{"step", "status", "kind"}),
		stepDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "step_duration_seconds",
			Help:      "Wall-clock duration of executed steps, retries included.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"step"}),
		breakerChanges: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "circuit_breaker_transitions_total",
			Help:      "Circuit breaker state changes by endpoint and new state.",
		}, []string{"endpoint", "to"}),
		breakerState: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "circuit_breaker_state",
			Help:      "Current breaker state per endpoint (0 closed, 1 open, 2 half-open).",
		}, []string{"endpoint"}),
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Analysis requests by outcome (completed, partial, failed, rejected).",
		}, []string{"outcome", "cache"}),
		requestDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "Time to serve an analysis request.",
			Buckets:   []float64{0.001, 0.01, 0.1, 1, 5, 15, 30, 60, 180},
		}),
	}
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// CacheOp records a cache outcome. It matches cache.Observer.
func (m *Metrics) CacheOp(backend, outcome string) {
	m.cacheOps.WithLabelValues(backend, outcome).Inc()
}

// RateLimited records a rejected request. It matches the rate limiter's reject hook.
func (m *Metrics) RateLimited(string) {
	m.rateRejections.Inc()
}

// StepFinished records an executed step. It matches executor.Observer.
func (m *Metrics) StepFinished(r model.StepResult) {
	kind := ""
	if r.Error != nil {
		kind = string(r.Error.Kind)
	}
	m.stepResults.WithLabelValues(r.Name, string(r.Status), kind).Inc()
	m.stepDuration.WithLabelValues(r.Name).Observe(r.Duration.Seconds())
}

// BreakerChanged records a breaker transition. It matches the executor's breaker hook.
func (m *Metrics) BreakerChanged(endpoint string, _, to executor.State) {
	m.breakerChanges.WithLabelValues(endpoint, to.String()).Inc()
	m.breakerState.WithLabelValues(endpoint).Set(float64(to))
}

// RequestFinished records a served or rejected request.
func (m *Metrics) RequestFinished(outcome string, cacheHit bool, d time.Duration) {
	cache := "miss"
	if cacheHit {
		cache = "hit"
	}
	m.requests.WithLabelValues(outcome, cache).Inc()
	m.requestDuration.Observe(d.Seconds())
}
