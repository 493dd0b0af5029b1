// Package metrics exposes Prometheus instrumentation for trigger cycles.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	Namespace = "pingflow"
	Subsystem = "scheduler"
)

// Metrics holds the scheduler collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	CyclesTotal        *prometheus.CounterVec
	CycleDuration      prometheus.Histogram
	TasksEvaluated     prometheus.Counter
	TaskResultsTotal   *prometheus.CounterVec
	InvocationsTotal   *prometheus.CounterVec
	InvocationDuration prometheus.Histogram
}

func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		CyclesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: Subsystem,
			Name:      "cycles_total",
			Help:      "Trigger cycles run, by outcome",
		}, []string{"outcome"}),
		CycleDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: Subsystem,
			Name:      "cycle_duration_seconds",
			Help:      "Wall time of a trigger cycle",
			Buckets:   prometheus.DefBuckets,
		}),
		TasksEvaluated: factory.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: Subsystem,
			Name:      "tasks_evaluated_total",
			Help:      "Due tasks picked up by trigger cycles",
		}),
		TaskResultsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: Subsystem,
			Name:      "task_results_total",
			Help:      "Task-level results, by status and error kind",
		}, []string{"status", "kind"}),
		InvocationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: Subsystem,
			Name:      "invocations_total",
			Help:      "Outbound target calls, by status",
		}, []string{"status"}),
		InvocationDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: Subsystem,
			Name:      "invocation_duration_seconds",
			Help:      "Latency of outbound target calls",
			Buckets:   prometheus.DefBuckets,
		}),
	}
}

func (m *Metrics) ObserveCycle(outcome string, d time.Duration, evaluated int) {
	if m == nil {
		return
	}
	m.CyclesTotal.WithLabelValues(outcome).Inc()
	m.CycleDuration.Observe(d.Seconds())
	m.TasksEvaluated.Add(float64(evaluated))
}

func (m *Metrics) ObserveTask(status, kind string) {
	if m == nil {
		return
	}
	m.TaskResultsTotal.WithLabelValues(status, kind).Inc()
}

func (m *Metrics) ObserveInvocation(status string, d time.Duration) {
	if m == nil {
		return
	}
	m.InvocationsTotal.WithLabelValues(status).Inc()
	m.InvocationDuration.Observe(d.Seconds())
}
