package tree

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics exports cycle statistics to Prometheus.
type Metrics struct {
	nodeEvents    *prometheus.CounterVec
	cycles        *prometheus.CounterVec
	liveNodes     prometheus.Gauge
	cycleDuration prometheus.Histogram
}

// NewMetrics creates the tree collectors and registers them on reg. A nil
// reg creates unregistered collectors.
func NewMetrics(reg prometheus.Registerer, namespace string) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		nodeEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tree",
			Name:      "node_events_total",
			Help:      "Node events committed, by kind (start, stop, update).",
		}, []string{"kind"}),
		cycles: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tree",
			Name:      "cycles_total",
			Help:      "Update cycles run, by outcome (committed, discarded).",
		}, []string{"outcome"}),
		liveNodes: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "tree",
			Name:      "live_nodes",
			Help:      "Scopes live after the last committed cycle.",
		}),
		cycleDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "tree",
			Name:      "cycle_duration_seconds",
			Help:      "Time spent evaluating and committing one cycle.",
			Buckets:   prometheus.ExponentialBuckets(0.00005, 4, 10),
		}),
	}
}

func (m *Metrics) committed(c Counts, live int, d time.Duration) {
	m.nodeEvents.WithLabelValues("start").Add(float64(c.NodeStarts))
	m.nodeEvents.WithLabelValues("stop").Add(float64(c.NodeStops))
	m.nodeEvents.WithLabelValues("update").Add(float64(c.NodeUpdates))
	m.cycles.WithLabelValues("committed").Inc()
	m.liveNodes.Set(float64(live))
	m.cycleDuration.Observe(d.Seconds())
}

func (m *Metrics) discarded(d time.Duration) {
	m.cycles.WithLabelValues("discarded").Inc()
	m.cycleDuration.Observe(d.Seconds())
}
