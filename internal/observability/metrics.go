package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds all Prometheus metrics for the application. A nil
// *Collector is valid and records nothing.
type Collector struct {
	// Registry for this collector instance
	registry *prometheus.Registry

	// HTTP metrics
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec

	// Remote data service metrics
	RemoteCalls    *prometheus.CounterVec
	RemoteDuration *prometheus.HistogramVec

	// Hook metrics
	HookMutations   *prometheus.CounterVec
	CleanupFailures prometheus.Counter

	// Circuit breaker metrics
	BreakerTransitions *prometheus.CounterVec
	BreakerState       *prometheus.GaugeVec

	ActiveClients prometheus.Gauge
}

// NewCollector creates a new metrics collector with the given namespace
func NewCollector(namespace string) *Collector {
	registry := prometheus.NewRegistry()

	c := &Collector{
		registry: registry,
		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		RemoteCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "remote_calls_total",
				Help:      "Total number of calls to the remote data service",
			},
			[]string{"service", "operation", "outcome"},
		),
		RemoteDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "remote_call_duration_seconds",
				Help:      "Remote data service call duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"service", "operation"},
		),
		HookMutations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "hook_mutations_total",
				Help:      "Total number of data hook mutations",
			},
			[]string{"hook", "operation", "outcome"},
		),
		CleanupFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "storage_cleanup_failures_total",
				Help:      "Objects that could not be removed after their memo was deleted or replaced",
			},
		),
		BreakerTransitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "circuit_breaker_transitions_total",
				Help:      "Circuit breaker state changes",
			},
			[]string{"name", "from", "to"},
		),
		BreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "circuit_breaker_state",
				Help:      "Circuit breaker state (0 closed, 1 half-open, 2 open)",
			},
			[]string{"name"},
		),
		ActiveClients: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_clients",
				Help:      "Client instances currently held in memory",
			},
		),
	}

	registry.MustRegister(
		c.HTTPRequests,
		c.HTTPDuration,
		c.RemoteCalls,
		c.RemoteDuration,
		c.HookMutations,
		c.CleanupFailures,
		c.BreakerTransitions,
		c.BreakerState,
		c.ActiveClients,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return c
}

// Registry returns the registry the metrics are registered with.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// Outcome labels a result.
func Outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// RecordHTTP records one served request.
func (c *Collector) RecordHTTP(method, route string, status int, elapsed time.Duration) {
	if c == nil {
		return
	}
	c.HTTPRequests.WithLabelValues(method, route, statusClass(status)).Inc()
	c.HTTPDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// RecordRemote records one remote data service call.
func (c *Collector) RecordRemote(service, operation string, elapsed time.Duration, err error) {
	if c == nil {
		return
	}
	c.RemoteCalls.WithLabelValues(service, operation, Outcome(err)).Inc()
	c.RemoteDuration.WithLabelValues(service, operation).Observe(elapsed.Seconds())
}

// RecordMutation records one data hook mutation.
func (c *Collector) RecordMutation(hook, operation string, err error) {
	if c == nil {
		return
	}
	c.HookMutations.WithLabelValues(hook, operation, Outcome(err)).Inc()
}

// RecordCleanupFailure counts an object left behind in storage.
func (c *Collector) RecordCleanupFailure() {
	if c == nil {
		return
	}
	c.CleanupFailures.Inc()
}

// RecordBreakerState records a circuit breaker transition.
func (c *Collector) RecordBreakerState(name, from, to string, level float64) {
	if c == nil {
		return
	}
	c.BreakerTransitions.WithLabelValues(name, from, to).Inc()
	c.BreakerState.WithLabelValues(name).Set(level)
}

// ClientOpened and ClientClosed track registry size.
func (c *Collector) ClientOpened() {
	if c != nil {
		c.ActiveClients.Inc()
	}
}

func (c *Collector) ClientClosed() {
	if c != nil {
		c.ActiveClients.Dec()
	}
}

func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
