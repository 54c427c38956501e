package orchestrator

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics exposes orchestration counters and latencies. All methods are
// nil-safe so instrumentation stays optional.
type Metrics struct {
	runs        *prometheus.CounterVec
	steps       *prometheus.CounterVec
	toolCalls   *prometheus.CounterVec
	handoffs    *prometheus.CounterVec
	runDuration prometheus.Histogram
}

// NewMetrics registers the orchestrator metrics with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		runs: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "obsmesh",
			Name:      "runs_total",
			Help:      "Completed orchestration runs by outcome.",
		}, []string{"outcome"}),
		steps: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "obsmesh",
			Name:      "steps_total",
			Help:      "Agent steps by agent and decision kind.",
		}, []string{"agent", "decision"}),
		toolCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "obsmesh",
			Name:      "tool_invocations_total",
			Help:      "Tool invocations by tool and status.",
		}, []string{"tool", "status"}),
		handoffs: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "obsmesh",
			Name:      "handoffs_total",
			Help:      "Agent handoffs by source and target.",
		}, []string{"from", "to"}),
		runDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "obsmesh",
			Name:      "run_duration_seconds",
			Help:      "End-to-end orchestration run latency.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
}

func (m *Metrics) observeRun(outcome string, dur time.Duration) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(outcome).Inc()
	m.runDuration.Observe(dur.Seconds())
}

func (m *Metrics) observeStep(agent, decision string) {
	if m == nil {
		return
	}
	m.steps.WithLabelValues(agent, decision).Inc()
}

func (m *Metrics) observeToolCall(tool string, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.toolCalls.WithLabelValues(tool, status).Inc()
}

func (m *Metrics) observeHandoff(from, to string) {
	if m == nil {
		return
	}
	m.handoffs.WithLabelValues(from, to).Inc()
}
