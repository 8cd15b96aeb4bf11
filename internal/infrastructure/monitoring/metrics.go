// Package monitoring exposes Prometheus metrics for the notebook engine.
package monitoring

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects engine-level counters and histograms.
type Metrics struct {
	registry *prometheus.Registry

	runsTotal      *prometheus.CounterVec
	cellExecutions *prometheus.HistogramVec
	subscribers    prometheus.Gauge
}

// New creates a metrics collector with its own registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		runsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "nbflow",
			Name:      "runs_total",
			Help:      "Completed scheduler runs by outcome.",
		}, []string{"outcome"}),
		cellExecutions: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "nbflow",
			Name:      "cell_execution_seconds",
			Help:      "Cell execution duration by cell type and status.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
		}, []string{"cell_type", "status"}),
		subscribers: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "nbflow",
			Name:      "event_subscribers",
			Help:      "Currently connected event stream subscribers.",
		}),
	}
}

// RunFinished records a completed run.
func (m *Metrics) RunFinished(outcome string) {
	m.runsTotal.WithLabelValues(outcome).Inc()
}

// CellExecuted records one cell execution.
func (m *Metrics) CellExecuted(cellType, status string, d time.Duration) {
	m.cellExecutions.WithLabelValues(cellType, status).Observe(d.Seconds())
}

// SubscriberConnected tracks a new event stream subscriber.
func (m *Metrics) SubscriberConnected() {
	m.subscribers.Inc()
}

// SubscriberDisconnected tracks a departed event stream subscriber.
func (m *Metrics) SubscriberDisconnected() {
	m.subscribers.Dec()
}

// Handler returns the scrape endpoint handler.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
