// Package metrics exposes Prometheus metrics for template runs and
// scheduler passes, and the HTTP server that serves them.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds Prometheus metrics for the scheduler.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// RunsTotal counts template runs by template and status.
	RunsTotal *prometheus.CounterVec
	// RunDuration tracks template run latency by template.
	RunDuration *prometheus.HistogramVec
	// PassesTotal counts completed scheduler passes.
	PassesTotal prometheus.Counter
	// PassSucceeded is the number of templates that succeeded in the last pass.
	PassSucceeded prometheus.Gauge
	// PassTemplates is the number of templates attempted in the last pass.
	PassTemplates prometheus.Gauge
	// LastPassTimestamp is the unix time the last pass finished.
	LastPassTimestamp prometheus.Gauge
}

// New creates scheduler metrics and registers them with reg
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "collector_template_runs_total",
			Help: "Total number of template runs",
		}, []string{"template", "status"}),

		RunDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "collector_template_run_duration_seconds",
			Help:    "Duration of template runs",
			Buckets: prometheus.DefBuckets,
		}, []string{"template"}),

		PassesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "collector_scheduler_passes_total",
			Help: "Total number of completed scheduler passes",
		}),

		PassSucceeded: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "collector_scheduler_last_pass_succeeded",
			Help: "Templates that succeeded in the last scheduler pass",
		}),

		PassTemplates: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "collector_scheduler_last_pass_templates",
			Help: "Templates attempted in the last scheduler pass",
		}),

		LastPassTimestamp: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "collector_scheduler_last_pass_timestamp_seconds",
			Help: "Unix time the last scheduler pass finished",
		}),
	}

	reg.MustRegister(
		m.RunsTotal, m.RunDuration, m.PassesTotal,
		m.PassSucceeded, m.PassTemplates, m.LastPassTimestamp,
	)

	return m
}

// ObserveRun records one template run
func (m *Metrics) ObserveRun(template, status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.RunsTotal.WithLabelValues(template, status).Inc()
	m.RunDuration.WithLabelValues(template).Observe(elapsed.Seconds())
}

// ObservePass records a finished scheduler pass
func (m *Metrics) ObservePass(succeeded, total int, at time.Time) {
	if m == nil {
		return
	}
	m.PassesTotal.Inc()
	m.PassSucceeded.Set(float64(succeeded))
	m.PassTemplates.Set(float64(total))
	m.LastPassTimestamp.Set(float64(at.Unix()))
}
