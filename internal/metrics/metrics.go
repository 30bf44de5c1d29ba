// Package metrics exposes the operational counters/gauges SPEC_FULL.md's
// ambient stack adds on top of the matching/signaling protocol: queue
// depth per pool, live connection count, pairs formed, and events dropped
// by reason. None of this feeds back into protocol behavior — it is
// read-only diagnostics, grounded on dantte-lp-gobfd's real dependency on
// github.com/prometheus/client_golang.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"matchsignal/internal/signaling"
)

// Recorder implements signaling.MetricsRecorder against Prometheus
// collectors registered in a single registry.
type Recorder struct {
	connectionsOpen prometheus.Gauge
	pairsFormed     prometheus.Counter
	eventsDropped   *prometheus.CounterVec
	queueDepth      *prometheus.GaugeVec
}

// New constructs a Recorder and registers its collectors with reg.
func New(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		connectionsOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "matchsignal",
			Name:      "connections_open",
			Help:      "Number of currently registered connections.",
		}),
		pairsFormed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "matchsignal",
			Name:      "pairs_formed_total",
			Help:      "Total number of pairs the matcher has formed.",
		}),
		eventsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "matchsignal",
			Name:      "events_dropped_total",
			Help:      "Total number of inbound events dropped, by reason.",
		}, []string{"reason"}),
		queueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "matchsignal",
			Name:      "queue_depth",
			Help:      "Current number of waiters in each queue bucket.",
		}, []string{"bucket"}),
	}

	reg.MustRegister(r.connectionsOpen, r.pairsFormed, r.eventsDropped, r.queueDepth)
	return r
}

// ConnectionOpened implements signaling.MetricsRecorder.
func (r *Recorder) ConnectionOpened() { r.connectionsOpen.Inc() }

// ConnectionClosed implements signaling.MetricsRecorder.
func (r *Recorder) ConnectionClosed() { r.connectionsOpen.Dec() }

// PairFormed implements signaling.MetricsRecorder.
func (r *Recorder) PairFormed() { r.pairsFormed.Inc() }

// EventDropped implements signaling.MetricsRecorder.
func (r *Recorder) EventDropped(reason string) { r.eventsDropped.WithLabelValues(reason).Inc() }

// QueueDepth implements signaling.MetricsRecorder.
func (r *Recorder) QueueDepth(bucket signaling.Gender, n int) {
	r.queueDepth.WithLabelValues(string(bucket)).Set(float64(n))
}
