package session

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	globalMetrics *Metrics
	metricsOnce   sync.Once
)

// Metrics holds Prometheus metrics for sessions.
type Metrics struct {
	TurnsTotal   *prometheus.CounterVec
	TurnDuration *prometheus.HistogramVec
	FilesTouched prometheus.Counter
}

// NewMetrics registers session metrics once per process.
func NewMetrics() *Metrics {
	metricsOnce.Do(func() {
		globalMetrics = &Metrics{
			TurnsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: "relay",
					Subsystem: "session",
					Name:      "turns_total",
					Help:      "Total number of user turns by mode and outcome",
				},
				[]string{"mode", "result"},
			),
			TurnDuration: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Namespace: "relay",
					Subsystem: "session",
					Name:      "turn_duration_seconds",
					Help:      "User turn latency",
					Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
				},
				[]string{"mode"},
			),
			FilesTouched: promauto.NewCounter(
				prometheus.CounterOpts{
					Namespace: "relay",
					Subsystem: "session",
					Name:      "files_touched_total",
					Help:      "Total number of files written by the agent",
				},
			),
		}
	})
	return globalMetrics
}
