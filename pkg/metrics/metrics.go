// Package metrics exposes Prometheus collectors for the workflow engine.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "prism_workflow"

// Metrics groups the engine collectors. A nil *Metrics records nothing.
type Metrics struct {
	instancesStarted  prometheus.Counter
	instancesFinished *prometheus.CounterVec
	stepTransitions   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	unassignedSteps   prometheus.Gauge
	staleSteps        prometheus.Gauge
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		instancesStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "instances_started_total",
			Help:      "Total number of workflow instances started",
		}),
		instancesFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "instances_finished_total",
			Help:      "Total number of workflow instances that reached a terminal status",
		}, []string{"status"}), // status: completed, cancelled
		stepTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "step_transitions_total",
			Help:      "Total number of step status changes",
		}, []string{"status"}), // status: active, waiting, completed
		operationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Duration of instance manager operations in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		}, []string{"operation", "status"}), // status: success, error
		unassignedSteps: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "unassigned_steps",
			Help:      "Active steps without an assignee at the last sweep",
		}),
		staleSteps: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stale_steps",
			Help:      "Open steps older than the stale threshold at the last sweep",
		}),
	}

	reg.MustRegister(
		m.instancesStarted,
		m.instancesFinished,
		m.stepTransitions,
		m.operationDuration,
		m.unassignedSteps,
		m.staleSteps,
	)

	return m
}

func (m *Metrics) InstanceStarted() {
	if m == nil {
		return
	}

	m.instancesStarted.Inc()
}

func (m *Metrics) InstanceFinished(status string) {
	if m == nil {
		return
	}

	m.instancesFinished.WithLabelValues(status).Inc()
}

func (m *Metrics) StepTransition(status string, count int) {
	if m == nil || count == 0 {
		return
	}

	m.stepTransitions.WithLabelValues(status).Add(float64(count))
}

// ObserveOperation records the duration of an operation that began at start.
func (m *Metrics) ObserveOperation(operation string, start time.Time, err error) {
	if m == nil {
		return
	}

	status := "success"
	if err != nil {
		status = "error"
	}

	m.operationDuration.WithLabelValues(operation, status).Observe(time.Since(start).Seconds())
}

func (m *Metrics) SetSweepResult(unassigned, stale int) {
	if m == nil {
		return
	}

	m.unassignedSteps.Set(float64(unassigned))
	m.staleSteps.Set(float64(stale))
}
