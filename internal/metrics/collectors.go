package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Collectors holds the lifecycle metrics.
type Collectors struct {
	operations        *prometheus.CounterVec
	stepDuration      *prometheus.HistogramVec
	bestEffortFailure *prometheus.CounterVec
}

// NewCollectors creates the lifecycle collectors and registers them on reg.
// A nil reg leaves them unregistered.
func NewCollectors(reg prometheus.Registerer) *Collectors {
	c := &Collectors{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "database_manager_operations_total",
			Help: "Total lifecycle operations by operation and response status",
		}, []string{"operation", "status"}),
		stepDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "database_manager_step_duration_seconds",
			Help:    "Duration of lifecycle steps in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation", "step"}),
		bestEffortFailure: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "database_manager_best_effort_failures_total",
			Help: "Best-effort steps that failed and were skipped",
		}, []string{"step"}),
	}
	if reg != nil {
		reg.MustRegister(c.operations, c.stepDuration, c.bestEffortFailure)
	}
	return c
}

// ObserveOperation counts a finished operation by its response status code.
func (c *Collectors) ObserveOperation(operation string, status int) {
	if c == nil {
		return
	}
	c.operations.WithLabelValues(operation, statusClass(status)).Inc()
}

// ObserveStep records the duration of one step.
func (c *Collectors) ObserveStep(operation, step string, d time.Duration) {
	if c == nil {
		return
	}
	c.stepDuration.WithLabelValues(operation, step).Observe(d.Seconds())
}

// BestEffortFailure counts a skipped best-effort failure.
func (c *Collectors) BestEffortFailure(step string) {
	if c == nil {
		return
	}
	c.bestEffortFailure.WithLabelValues(step).Inc()
}

func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	default:
		return "2xx"
	}
}
