package ingest

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors for the ingestion service. Each
// instance carries its own registry so services can be constructed side by
// side in tests.
type Metrics struct {
	registry *prometheus.Registry

	EventsAccepted prometheus.Counter
	EventsRejected prometheus.Counter
	EventsConsumed prometheus.Counter
	QueueDepth     prometheus.Gauge
}

// NewMetrics creates and registers all collectors on a fresh registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		EventsAccepted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "floodgate_events_accepted_total",
			Help: "Events accepted into the backpressure queue.",
		}),
		EventsRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "floodgate_events_rejected_total",
			Help: "Events rejected because the queue was at capacity.",
		}),
		EventsConsumed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "floodgate_events_consumed_total",
			Help: "Events drained and processed by the consumer pool.",
		}),
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "floodgate_queue_depth",
			Help: "Current number of events resident in the queue.",
		}),
	}

	m.registry.MustRegister(
		m.EventsAccepted,
		m.EventsRejected,
		m.EventsConsumed,
		m.QueueDepth,
	)
	return m
}

// Handler exposes the registry for scraping.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
