package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(engineLatency)
}

var engineLatency = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "orator_engine_request_duration_seconds",
		Help:    "Latency of calls to the speech and text engines.",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 300, 600},
	},
	[]string{"engine", "op", "outcome"},
)

// ObserveEngine records one engine call; outcome comes from port.Outcome.
func ObserveEngine(engine, op, outcome string, elapsed time.Duration) {
	engineLatency.WithLabelValues(engine, op, outcome).Observe(elapsed.Seconds())
}
