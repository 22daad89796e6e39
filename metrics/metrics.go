// Package metrics holds the Prometheus collectors shared by the API and the
// worker.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors.
type Metrics struct {
	IngestTotal *prometheus.CounterVec

	QueueLength        prometheus.Gauge
	QueueDroppedTotal  prometheus.Counter
	QueueRejectedTotal prometheus.Counter

	WorkerEventsTotal   *prometheus.CounterVec
	WorkerWriteDuration prometheus.Histogram

	registry *prometheus.Registry
}

// Ingest results.
const (
	IngestAccepted   = "accepted"
	IngestInvalid    = "invalid"
	IngestTooLarge   = "too_large"
	IngestQueueError = "queue_error"
	IngestQueueFull  = "queue_full"
)

// Worker results.
const (
	WorkerPersisted = "persisted"
	WorkerFailed    = "failed"
	WorkerMalformed = "malformed"
)

// New creates and registers all collectors on registry. A nil registry gets a
// fresh one.
func New(registry *prometheus.Registry) *Metrics {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	m := &Metrics{
		IngestTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "eventpipe_ingest_total",
				Help: "Events submitted to POST /event by result",
			},
			[]string{"result"},
		),
		QueueLength: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "eventpipe_queue_length",
			Help: "Queue length observed after the last append",
		}),
		QueueDroppedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "eventpipe_queue_dropped_total",
			Help: "Oldest unpersisted events trimmed from the queue head on overflow",
		}),
		QueueRejectedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "eventpipe_queue_rejected_total",
			Help: "Events refused because the queue was at capacity",
		}),
		WorkerEventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "eventpipe_worker_events_total",
				Help: "Queue items handled by the persistence worker by result",
			},
			[]string{"result"},
		),
		WorkerWriteDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "eventpipe_worker_write_seconds",
			Help:    "Duration of single-row store inserts",
			Buckets: prometheus.DefBuckets,
		}),
		registry: registry,
	}

	registry.MustRegister(
		m.IngestTotal,
		m.QueueLength,
		m.QueueDroppedTotal,
		m.QueueRejectedTotal,
		m.WorkerEventsTotal,
		m.WorkerWriteDuration,
	)
	return m
}

// Registry returns the registry the collectors were registered on.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
