// Package metrics provides Prometheus metrics collection for the entity
// service.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector holds all Prometheus metrics for the entity service.
type Collector struct {
	// Request metrics
	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	RequestsInFlight prometheus.Gauge

	// Auth metrics
	AuthFailures *prometheus.CounterVec

	// Entity lifecycle metrics
	EntityWrites       *prometheus.CounterVec
	ValidationFailures *prometheus.CounterVec
	TriggerFailures    *prometheus.CounterVec

	// Graph store metrics
	QueryDuration *prometheus.HistogramVec

	// Cache metrics
	CacheHits   prometheus.Counter
	CacheMisses prometheus.Counter

	// Schema reload metrics
	SchemaReloads      prometheus.Counter
	SchemaReloadErrors prometheus.Counter
	SchemaLastReload   prometheus.Gauge
}

// New creates a new metrics collector registered on the default registry.
func New() *Collector {
	return newCollector(promauto.With(prometheus.DefaultRegisterer))
}

// NewWithRegistry creates a new metrics collector with a custom registry.
// Useful for testing to avoid global state.
func NewWithRegistry(reg prometheus.Registerer) *Collector {
	return newCollector(promauto.With(reg))
}

func newCollector(factory promauto.Factory) *Collector {
	return &Collector{
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "entity_api",
				Name:      "requests_total",
				Help:      "Total number of requests processed",
			},
			[]string{"method", "route", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "entity_api",
				Name:      "request_duration_seconds",
				Help:      "Request duration in seconds",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "route", "status"},
		),
		RequestsInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "entity_api",
				Name:      "requests_in_flight",
				Help:      "Number of requests currently being processed",
			},
		),

		AuthFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "entity_api",
				Name:      "auth_failures_total",
				Help:      "Total number of authentication failures",
			},
			[]string{"reason"},
		),

		EntityWrites: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "entity_api",
				Name:      "entity_writes_total",
				Help:      "Total entity creates and updates by type",
			},
			[]string{"entity_type", "operation"},
		),
		ValidationFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "entity_api",
				Name:      "validation_failures_total",
				Help:      "Total rejected request bodies by entity type",
			},
			[]string{"entity_type"},
		),
		TriggerFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "entity_api",
				Name:      "trigger_failures_total",
				Help:      "Total derived-property trigger failures",
			},
			[]string{"trigger"},
		),

		QueryDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "entity_api",
				Name:      "graph_query_duration_seconds",
				Help:      "Graph store query duration in seconds",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"op"},
		),

		CacheHits: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: "entity_api",
				Name:      "cache_hits_total",
				Help:      "Total completed-document cache hits",
			},
		),
		CacheMisses: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: "entity_api",
				Name:      "cache_misses_total",
				Help:      "Total completed-document cache misses",
			},
		),

		SchemaReloads: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: "entity_api",
				Name:      "schema_reloads_total",
				Help:      "Total number of successful schema reloads",
			},
		),
		SchemaReloadErrors: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: "entity_api",
				Name:      "schema_reload_errors_total",
				Help:      "Total number of schema reload errors",
			},
		),
		SchemaLastReload: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "entity_api",
				Name:      "schema_last_reload_timestamp",
				Help:      "Unix timestamp of last successful schema reload",
			},
		),
	}
}

// ObserveQuery records one graph store query; the store calls this through
// its observer hook.
func (c *Collector) ObserveQuery(op string, d time.Duration) {
	c.QueryDuration.WithLabelValues(op).Observe(d.Seconds())
}
