package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestJobFinished(t *testing.T) {
	before := testutil.ToFloat64(jobsTotal.WithLabelValues("complete"))
	JobFinished("complete")
	assert.Equal(t, before+1, testutil.ToFloat64(jobsTotal.WithLabelValues("complete")))
}

func TestActiveJobs(t *testing.T) {
	before := testutil.ToFloat64(activeJobs)
	JobStarted()
	JobStarted()
	JobStopped()
	assert.Equal(t, before+1, testutil.ToFloat64(activeJobs))
	JobStopped()
}

func TestObserveEngine(t *testing.T) {
	ObserveEngine("ollama", "generate", "ok", 120*time.Millisecond)
	assert.GreaterOrEqual(t, testutil.CollectAndCount(engineLatency, "orator_engine_request_duration_seconds"), 1)
}

func TestMustRegisterIsIdempotent(t *testing.T) {
	assert.NotPanics(t, func() {
		MustRegister()
		MustRegister()
	})
}
