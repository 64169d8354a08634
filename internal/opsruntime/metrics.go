package opsruntime

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks the ops runtime's own ticks, distinct from
// internal/observability.Metrics' request-path metrics: these describe the
// health of the background loops themselves.
type Metrics struct {
	// Healthy is 1 when the last health tick succeeded, 0 otherwise.
	Healthy prometheus.Gauge

	// TasksResumed counts tasks the watchdog has resumed.
	TasksResumed prometheus.Counter

	// TasksStale tracks how many stale tasks were found on the most recent
	// watchdog tick (including any left over after the batch cap).
	TasksStale prometheus.Gauge

	// DecisionsEvicted counts dedupe entries evicted by the
	// decision-dedupe tick.
	DecisionsEvicted prometheus.Counter
}

// NewMetrics registers the ops runtime's gauges/counters with reg. Pass
// prometheus.DefaultRegisterer in production (one Runtime per process);
// tests should pass a fresh prometheus.NewRegistry() so repeated
// construction within one test binary doesn't panic on duplicate
// registration.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Healthy: factory.NewGauge(prometheus.GaugeOpts{
			Name: "opsruntime_healthy",
			Help: "1 if the most recent health tick succeeded, 0 otherwise",
		}),
		TasksResumed: factory.NewCounter(prometheus.CounterOpts{
			Name: "opsruntime_tasks_resumed_total",
			Help: "Total number of tasks resumed by the watchdog tick",
		}),
		TasksStale: factory.NewGauge(prometheus.GaugeOpts{
			Name: "opsruntime_tasks_stale",
			Help: "Number of stale tasks found on the most recent watchdog tick",
		}),
		DecisionsEvicted: factory.NewCounter(prometheus.CounterOpts{
			Name: "opsruntime_decisions_evicted_total",
			Help: "Total number of decision-dedupe entries evicted",
		}),
	}
}
