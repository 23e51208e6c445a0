package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(jobsTotal, stageDuration, activeJobs, readinessTotal)
}

var (
	jobsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orator_jobs_total",
			Help: "Jobs that left the pipeline, by outcome (complete, error, cancelled).",
		},
		[]string{"outcome"},
	)

	stageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "orator_stage_duration_seconds",
			Help:    "Time spent in each pipeline stage.",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600, 1800},
		},
		[]string{"stage"},
	)

	activeJobs = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "orator_active_jobs",
		Help: "Jobs currently being processed.",
	})

	readinessTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orator_readiness_total",
			Help: "Model readiness checks, by result (ready, unavailable, not_ready).",
		},
		[]string{"result"},
	)
)

func JobFinished(outcome string) {
	jobsTotal.WithLabelValues(outcome).Inc()
}

func ObserveStage(stage string, elapsed time.Duration) {
	stageDuration.WithLabelValues(stage).Observe(elapsed.Seconds())
}

func JobStarted() { activeJobs.Inc() }
func JobStopped() { activeJobs.Dec() }

func Readiness(result string) {
	readinessTotal.WithLabelValues(result).Inc()
}
