// Package observability exposes Prometheus metrics for the store and the
// chat stream.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds all Prometheus metrics for the application.
type Collector struct {
	registry *prometheus.Registry

	Store   *StoreMetrics
	Streams *StreamMetrics
}

// StoreMetrics counts KeyedStore operations by outcome.
type StoreMetrics struct {
	operations *prometheus.CounterVec
}

// StreamMetrics tracks live chat streams.
type StreamMetrics struct {
	Active    prometheus.Gauge
	Completed prometheus.Counter
	Aborted   prometheus.Counter
	Failed    prometheus.Counter
	Rejected  prometheus.Counter
	Chunks    prometheus.Counter
}

// NewCollector creates a metrics collector with its own registry.
func NewCollector(namespace string) *Collector {
	registry := prometheus.NewRegistry()

	storeOps := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_operations_total",
			Help:      "Total number of key-value store operations",
		},
		[]string{"operation", "status"},
	)

	streams := &StreamMetrics{
		Active: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "streams_active",
			Help:      "Number of chat streams currently open",
		}),
		Completed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "streams_completed_total",
			Help:      "Total number of chat streams finished successfully",
		}),
		Aborted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "streams_aborted_total",
			Help:      "Total number of chat streams cancelled by the client",
		}),
		Failed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "streams_failed_total",
			Help:      "Total number of chat streams that failed upstream",
		}),
		Rejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "streams_rejected_total",
			Help:      "Total number of stream requests rejected as busy",
		}),
		Chunks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_chunks_total",
			Help:      "Total number of chunk events emitted",
		}),
	}

	registry.MustRegister(
		storeOps,
		streams.Active, streams.Completed, streams.Aborted,
		streams.Failed, streams.Rejected, streams.Chunks,
	)

	return &Collector{
		registry: registry,
		Store:    &StoreMetrics{operations: storeOps},
		Streams:  streams,
	}
}

// Observe records one store operation outcome.
func (m *StoreMetrics) Observe(operation string, err error) {
	status := "success"
	if err != nil {
		status = "failure"
	}
	m.operations.WithLabelValues(operation, status).Inc()
}

// Handler returns the scrape endpoint for this collector's registry.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
