package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkflowMetricsCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewWorkflowMetrics(reg)

	m.ObserveTransition("IDLE", "ANALYSIS_REQUESTED", "GENERATING_ANALYSIS", 0.01)
	m.ObserveTransition("IDLE", "ANALYSIS_REQUESTED", "GENERATING_ANALYSIS", 0.02)
	m.ObserveInvalidTransition("IDLE", "DECK_CREATED")
	m.ObserveThreadCreated()

	assert.Equal(t, float64(2), testutil.ToFloat64(
		m.transitionsTotal.WithLabelValues("IDLE", "ANALYSIS_REQUESTED", "GENERATING_ANALYSIS")))
	assert.Equal(t, float64(1), testutil.ToFloat64(
		m.invalidTotal.WithLabelValues("IDLE", "DECK_CREATED")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.threadsCreated))

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestNilReceiverIsSafe(t *testing.T) {
	var m *WorkflowMetrics
	m.ObserveTransition("a", "b", "c", 0)
	m.ObserveInvalidTransition("a", "b")
	m.ObserveThreadCreated()
}
