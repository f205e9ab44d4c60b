package agent

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	globalMetrics *Metrics
	metricsOnce   sync.Once
)

// Metrics holds Prometheus metrics for the agent adapter.
type Metrics struct {
	ModelCallsTotal   *prometheus.CounterVec
	ModelCallDuration prometheus.Histogram
	ToolCallsTotal    *prometheus.CounterVec
	StepsExhausted    prometheus.Counter
	SecretsRedacted   prometheus.Counter
}

// NewMetrics registers agent metrics once per process.
func NewMetrics() *Metrics {
	metricsOnce.Do(func() {
		globalMetrics = &Metrics{
			ModelCallsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: "relay",
					Subsystem: "agent",
					Name:      "model_calls_total",
					Help:      "Total number of model calls by outcome",
				},
				[]string{"result"},
			),
			ModelCallDuration: promauto.NewHistogram(
				prometheus.HistogramOpts{
					Namespace: "relay",
					Subsystem: "agent",
					Name:      "model_call_duration_seconds",
					Help:      "Model call latency",
					Buckets:   []float64{0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
				},
			),
			ToolCallsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: "relay",
					Subsystem: "agent",
					Name:      "tool_calls_total",
					Help:      "Total number of tool calls by tool and outcome",
				},
				[]string{"tool", "result"},
			),
			StepsExhausted: promauto.NewCounter(
				prometheus.CounterOpts{
					Namespace: "relay",
					Subsystem: "agent",
					Name:      "steps_exhausted_total",
					Help:      "Total number of invocations stopped by the step budget",
				},
			),
			SecretsRedacted: promauto.NewCounter(
				prometheus.CounterOpts{
					Namespace: "relay",
					Subsystem: "agent",
					Name:      "secrets_redacted_total",
					Help:      "Total number of secrets redacted from file contents",
				},
			),
		}
	})
	return globalMetrics
}
