// Package metrics defines the agent's Prometheus collectors.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "shigoto"

// Metrics groups the collectors recorded by the lifecycle components. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	operations          *prometheus.CounterVec
	operationDuration   *prometheus.HistogramVec
	workloadFailures    *prometheus.CounterVec
	hookAttempts        *prometheus.CounterVec
	checkpointSupported prometheus.Gauge
	simulating          prometheus.Gauge
	runs                *prometheus.GaugeVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "operations_total",
				Help:      "Lifecycle operations by operation and result",
			},
			[]string{"operation", "result"},
		),
		operationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "operation_duration_seconds",
				Help:      "Lifecycle operation latency",
				Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"operation"},
		),
		workloadFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "workload_exit_failures_total",
				Help:      "Index and create containers that exited non-zero",
			},
			[]string{"operation"},
		),
		hookAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "hook_attempts_total",
				Help:      "Lifecycle hook delivery attempts by hook kind and result",
			},
			[]string{"kind", "result"},
		),
		checkpointSupported: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "checkpoint_supported",
			Help:      "1 when real checkpoint/restore was detected on this machine",
		}),
		simulating: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "restore_simulated",
			Help:      "1 when restores use pause/unpause",
		}),
		runs: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "runs",
				Help:      "Run containers on this machine by state, as last observed",
			},
			[]string{"state"},
		),
	}
	reg.MustRegister(
		m.operations,
		m.operationDuration,
		m.workloadFailures,
		m.hookAttempts,
		m.checkpointSupported,
		m.simulating,
		m.runs,
	)
	return m
}

// ObserveOperation records one finished operation.
func (m *Metrics) ObserveOperation(op string, err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(op, resultLabel(err)).Inc()
	m.operationDuration.WithLabelValues(op).Observe(elapsed.Seconds())
}

// WorkloadExitFailure counts a non-zero container exit that was swallowed.
func (m *Metrics) WorkloadExitFailure(op string) {
	if m == nil {
		return
	}
	m.workloadFailures.WithLabelValues(op).Inc()
}

// HookAttempt records a single delivery attempt.
func (m *Metrics) HookAttempt(kind string, err error) {
	if m == nil {
		return
	}
	m.hookAttempts.WithLabelValues(kind, resultLabel(err)).Inc()
}

// SetCapability records the probe outcome.
func (m *Metrics) SetCapability(canCheckpoint, willSimulate bool) {
	if m == nil {
		return
	}
	m.checkpointSupported.Set(boolGauge(canCheckpoint))
	m.simulating.Set(boolGauge(willSimulate))
}

// SetRuns replaces the per-state run counts.
func (m *Metrics) SetRuns(counts map[string]int) {
	if m == nil {
		return
	}
	m.runs.Reset()
	for state, n := range counts {
		m.runs.WithLabelValues(state).Set(float64(n))
	}
}

func resultLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
