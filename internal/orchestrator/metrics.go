package orchestrator

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	globalMetrics *Metrics
	metricsOnce   sync.Once
)

// Metrics holds Prometheus metrics for the orchestrator.
type Metrics struct {
	IterationsTotal    *prometheus.CounterVec
	TerminationsTotal  *prometheus.CounterVec
	AgentDuration      prometheus.Histogram
	ConfirmationsTotal prometheus.Counter
	EmptyAnswersTotal  prometheus.Counter
}

// NewMetrics registers orchestrator metrics once per process.
//
// Metrics:
//   - relay_orchestrator_iterations_total{result} - iterations by outcome ("ok", "error")
//   - relay_orchestrator_terminations_total{reason} - finished turn sequences by reason
//   - relay_orchestrator_agent_duration_seconds - agent invocation latency
//   - relay_orchestrator_confirmations_total - inputs detected as confirmations
//   - relay_orchestrator_empty_answers_total - iterations where the agent produced no message
func NewMetrics() *Metrics {
	metricsOnce.Do(func() {
		globalMetrics = &Metrics{
			IterationsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: "relay",
					Subsystem: "orchestrator",
					Name:      "iterations_total",
					Help:      "Total number of orchestrator iterations",
				},
				[]string{"result"},
			),
			TerminationsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: "relay",
					Subsystem: "orchestrator",
					Name:      "terminations_total",
					Help:      "Total number of completed turn sequences by termination reason",
				},
				[]string{"reason"},
			),
			AgentDuration: promauto.NewHistogram(
				prometheus.HistogramOpts{
					Namespace: "relay",
					Subsystem: "orchestrator",
					Name:      "agent_duration_seconds",
					Help:      "Agent invocation latency",
					Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
				},
			),
			ConfirmationsTotal: promauto.NewCounter(
				prometheus.CounterOpts{
					Namespace: "relay",
					Subsystem: "orchestrator",
					Name:      "confirmations_total",
					Help:      "Total number of inputs detected as confirmations",
				},
			),
			EmptyAnswersTotal: promauto.NewCounter(
				prometheus.CounterOpts{
					Namespace: "relay",
					Subsystem: "orchestrator",
					Name:      "empty_answers_total",
					Help:      "Total number of iterations where the agent produced no message",
				},
			),
		}
	})
	return globalMetrics
}
