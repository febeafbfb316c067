package telemetry

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

// newTestRegistry builds a Registry against its own throwaway
// prometheus.Registry rather than the process-global default, so
// repeated calls across this package's tests never collide on
// duplicate registration.
func newTestRegistry() *Registry {
	return NewRegistryWithRegisterer(prometheus.NewRegistry())
}

func TestPhaseTimer_RecordsDurationAndCount(t *testing.T) {
	r := newTestRegistry()
	timer := r.StartPhaseTimer("discovery")
	timer.Stop()

	assert.Equal(t, float64(1), testutil.ToFloat64(r.PhaseTotal.WithLabelValues("discovery")))
}

func TestRecordRunOutcome_SetsGaugesAndIncrementsCounter(t *testing.T) {
	r := newTestRegistry()
	r.RecordRunOutcome("completed", 5, 2, 1, true, 0.02, false)

	assert.Equal(t, float64(1), testutil.ToFloat64(r.RunsTotal.WithLabelValues("completed")))
	assert.Equal(t, 5.0, testutil.ToFloat64(r.DQPriceMissingPercent))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.DQPassed))
	assert.Equal(t, 0.0, testutil.ToFloat64(r.ErrorBudgetBreached))
}

func TestRecordPhaseError_IncrementsCounter(t *testing.T) {
	r := newTestRegistry()
	r.RecordPhaseError("fetch", "timeout")

	assert.Equal(t, float64(1), testutil.ToFloat64(r.PhaseErrors.WithLabelValues("fetch", "timeout")))
}

func TestBoolToFloat(t *testing.T) {
	assert.Equal(t, 1.0, boolToFloat(true))
	assert.Equal(t, 0.0, boolToFloat(false))
}
