package behavior

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the tracker's Prometheus collectors.
type Metrics struct {
	events  *prometheus.CounterVec
	tracked prometheus.Gauge
	waits   *prometheus.CounterVec
}

// NewMetrics registers the tracker collectors with reg. A nil reg yields
// working but unregistered collectors.
func NewMetrics(reg prometheus.Registerer, namespace string) *Metrics {
	if namespace == "" {
		namespace = "statetree"
	}
	factory := promauto.With(reg)
	return &Metrics{
		events: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "behavior",
			Name:      "events_total",
			Help:      "Behavior lifecycle events by kind.",
		}, []string{"kind"}),
		tracked: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "behavior",
			Name:      "tracked",
			Help:      "Behaviors currently in the tracked set.",
		}),
		waits: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "behavior",
			Name:      "waits_total",
			Help:      "Completed await calls by operation and outcome.",
		}, []string{"op", "outcome"}),
	}
}
