package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "possync"

// Metrics is safe to use through a nil pointer; every method is then a no-op.
type Metrics struct {
	syncEvents     *prometheus.CounterVec
	syncFailures   *prometheus.CounterVec
	ingestRequests *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		syncEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_events_total",
			Help:      "Processed sync events by direction, collection and outcome.",
		}, []string{"direction", "collection", "outcome"}),
		syncFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_failures_total",
			Help:      "Sync attempts aborted by a store or configuration error.",
		}, []string{"direction", "collection"}),
		ingestRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingest_requests_total",
			Help:      "Ingestion endpoint responses by endpoint and status code.",
		}, []string{"endpoint", "code"}),
	}
	reg.MustRegister(m.syncEvents, m.syncFailures, m.ingestRequests)
	return m
}

func (m *Metrics) ObserveSync(direction, collection, outcome string) {
	if m == nil {
		return
	}
	m.syncEvents.WithLabelValues(direction, collection, outcome).Inc()
}

func (m *Metrics) ObserveFailure(direction, collection string) {
	if m == nil {
		return
	}
	m.syncFailures.WithLabelValues(direction, collection).Inc()
}

func (m *Metrics) ObserveIngest(endpoint string, code int) {
	if m == nil {
		return
	}
	m.ingestRequests.WithLabelValues(endpoint, strconv.Itoa(code)).Inc()
}
