package metrics

import "github.com/prometheus/client_golang/prometheus"

// WorkflowMetrics exposes counters/histograms for the proposal workflow.
type WorkflowMetrics struct {
	transitionsTotal   *prometheus.CounterVec
	invalidTotal       *prometheus.CounterVec
	threadsCreated     prometheus.Counter
	transitionDuration *prometheus.HistogramVec
}

func NewWorkflowMetrics(reg prometheus.Registerer) *WorkflowMetrics {
	m := &WorkflowMetrics{
		transitionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "proposal",
			Subsystem: "workflow",
			Name:      "transitions_total",
			Help:      "Total successful state transitions",
		}, []string{"from", "event", "to"}),
		invalidTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "proposal",
			Subsystem: "workflow",
			Name:      "invalid_transitions_total",
			Help:      "Total rejected state transitions",
		}, []string{"state", "event"}),
		threadsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "proposal",
			Subsystem: "workflow",
			Name:      "threads_created_total",
			Help:      "Total thread states created",
		}),
		transitionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "proposal",
			Subsystem: "workflow",
			Name:      "transition_duration_seconds",
			Help:      "Latency of transition persistence",
			Buckets:   prometheus.DefBuckets,
		}, []string{"event"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.transitionsTotal, m.invalidTotal, m.threadsCreated, m.transitionDuration)
	return m
}

func (m *WorkflowMetrics) ObserveTransition(from, event, to string, seconds float64) {
	if m == nil {
		return
	}
	m.transitionsTotal.WithLabelValues(from, event, to).Inc()
	m.transitionDuration.WithLabelValues(event).Observe(seconds)
}

func (m *WorkflowMetrics) ObserveInvalidTransition(state, event string) {
	if m == nil {
		return
	}
	m.invalidTotal.WithLabelValues(state, event).Inc()
}

func (m *WorkflowMetrics) ObserveThreadCreated() {
	if m == nil {
		return
	}
	m.threadsCreated.Inc()
}
