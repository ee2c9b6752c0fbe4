// Package metrics exposes scheduler activity as Prometheus metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/me/daymake/pkg/model"
)

const namespace = "daymake"

// Metrics holds the collectors updated by the scheduler loop.
type Metrics struct {
	transitions  *prometheus.CounterVec
	running      prometheus.Gauge
	waiting      prometheus.Gauge
	stuck        prometheus.Gauge
	tickDuration prometheus.Histogram
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "status_transitions_total",
			Help:      "Status events appended to the ledger, by new status.",
		}, []string{"status"}),
		running: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "running_processes",
			Help:      "Job processes launched and not yet reaped.",
		}),
		waiting: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "waiting_jobs",
			Help:      "Jobs in waiting status at the last readiness evaluation.",
		}),
		stuck: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stuck_jobs",
			Help:      "Waiting jobs past their start time with a dependency that can no longer succeed.",
		}),
		tickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tick_duration_seconds",
			Help:      "Duration of one reap, evaluate and launch iteration.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	reg.MustRegister(m.transitions, m.running, m.waiting, m.stuck, m.tickDuration)
	return m
}

// Discard returns Metrics registered with a private registry.
func Discard() *Metrics {
	return New(prometheus.NewRegistry())
}

// ObserveEvents counts committed events.
func (m *Metrics) ObserveEvents(events []*model.StatusEvent) {
	for _, ev := range events {
		m.transitions.WithLabelValues(ev.Status.String()).Inc()
	}
}

// SetRunning records the number of tracked processes.
func (m *Metrics) SetRunning(n int) {
	m.running.Set(float64(n))
}

// SetWaiting records the waiting and stuck job counts.
func (m *Metrics) SetWaiting(waiting, stuck int) {
	m.waiting.Set(float64(waiting))
	m.stuck.Set(float64(stuck))
}

// ObserveTick records the duration of one iteration.
func (m *Metrics) ObserveTick(d time.Duration) {
	m.tickDuration.Observe(d.Seconds())
}
