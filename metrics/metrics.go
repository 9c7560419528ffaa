// Package metrics holds the server's Prometheus collectors.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Batch results.
const (
	ResultApplied  = "applied"
	ResultRejected = "rejected"
	ResultStale    = "stale"
	ResultInvalid  = "invalid"
)

// Metrics is safe to use as a nil pointer, in which case nothing is
// recorded.
type Metrics struct {
	batches     *prometheus.CounterVec
	updates     *prometheus.CounterVec
	sessions    prometheus.Gauge
	flushErrors prometheus.Counter
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		batches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "notebook",
			Name:      "batches_total",
			Help:      "Update batches received, by result",
		}, []string{"result"}),
		updates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "notebook",
			Name:      "updates_total",
			Help:      "Updates committed, by type",
		}, []string{"type"}),
		sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "notebook",
			Name:      "sessions_active",
			Help:      "Notebooks with a running session",
		}),
		flushErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "notebook",
			Name:      "store_flush_errors_total",
			Help:      "Failed write-behind flushes to the backing store",
		}),
	}
	reg.MustRegister(m.batches, m.updates, m.sessions, m.flushErrors)
	return m
}

func (m *Metrics) Batch(result string) {
	if m == nil {
		return
	}
	m.batches.WithLabelValues(result).Inc()
}

func (m *Metrics) Update(kind string) {
	if m == nil {
		return
	}
	m.updates.WithLabelValues(kind).Inc()
}

func (m *Metrics) SessionStarted() {
	if m == nil {
		return
	}
	m.sessions.Inc()
}

func (m *Metrics) SessionStopped() {
	if m == nil {
		return
	}
	m.sessions.Dec()
}

func (m *Metrics) FlushError() {
	if m == nil {
		return
	}
	m.flushErrors.Inc()
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
