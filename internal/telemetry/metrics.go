package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "gamesession"

// Metrics owns a private registry so tests can build as many as they like.
type Metrics struct {
	registry *prometheus.Registry

	operations        *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	moves             *prometheus.CounterVec
	sessionsCreated   *prometheus.CounterVec
	subscribers       prometheus.Gauge
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	metrics := &Metrics{
		registry: registry,
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Session operations by name and result code.",
		}, []string{"operation", "result"}),
		operationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Session operation latency.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
		}, []string{"operation"}),
		moves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "moves_total",
			Help:      "Submitted moves by variant and result code.",
		}, []string{"variant", "result"}),
		sessionsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_created_total",
			Help:      "Created sessions by variant.",
		}, []string{"variant"}),
		subscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "subscribers",
			Help:      "Open session feed subscriptions.",
		}),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		metrics.operations,
		metrics.operationDuration,
		metrics.moves,
		metrics.sessionsCreated,
		metrics.subscribers,
	)

	return metrics
}

func (that *Metrics) ObserveOperation(operation, result string, started time.Time) {
	that.operations.WithLabelValues(operation, result).Inc()
	that.operationDuration.WithLabelValues(operation).Observe(time.Since(started).Seconds())
}

func (that *Metrics) ObserveMove(variant, result string) {
	that.moves.WithLabelValues(variant, result).Inc()
}

func (that *Metrics) SessionCreated(variant string) {
	that.sessionsCreated.WithLabelValues(variant).Inc()
}

func (that *Metrics) SubscriberOpened() {
	that.subscribers.Inc()
}

func (that *Metrics) SubscriberClosed() {
	that.subscribers.Dec()
}

func (that *Metrics) Registry() *prometheus.Registry {
	return that.registry
}

// Handler serves the registry in the Prometheus text format.
func (that *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(that.registry, promhttp.HandlerOpts{})
}
