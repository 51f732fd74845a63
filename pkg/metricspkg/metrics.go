// Package metricspkg exposes Prometheus metrics of the HTTP layer and the money engine.
package metricspkg

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector owns a private registry so that tests can create as many as they need.
type Collector struct {
	registry *prometheus.Registry

	httpRequests  *prometheus.CounterVec
	httpDuration  *prometheus.HistogramVec
	operations    *prometheus.CounterVec
	operationTime *prometheus.HistogramVec
	retries       *prometheus.CounterVec
}

// New returns Collector with all metrics registered.
func New() *Collector {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Collector{
		registry: registry,
		httpRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of handled HTTP requests",
		}, []string{"method", "route", "status"}),
		httpDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Time taken to handle an HTTP request",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		operations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "money_operations_total",
			Help: "Total number of money operations by outcome",
		}, []string{"operation", "outcome"}),
		operationTime: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "money_operation_duration_seconds",
			Help:    "Time taken by a money operation including retries",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
		retries: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "money_operation_retries_total",
			Help: "Total number of optimistic retries",
		}, []string{"operation"}),
	}
}

// ObserveOperation records one finished money operation.
func (c *Collector) ObserveOperation(operation, outcome string, duration time.Duration) {
	c.operations.WithLabelValues(operation, outcome).Inc()
	c.operationTime.WithLabelValues(operation).Observe(duration.Seconds())
}

// IncRetry records one optimistic retry.
func (c *Collector) IncRetry(operation string) {
	c.retries.WithLabelValues(operation).Inc()
}

// ObserveHTTP records one handled HTTP request.
func (c *Collector) ObserveHTTP(method, route string, status int, duration time.Duration) {
	c.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	c.httpDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// Registry returns the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler returns the HTTP handler serving the registry in the exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
