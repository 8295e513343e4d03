// Package metrics exposes Prometheus collectors for pipeline runs.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const namespace = "weather_pipeline"

// Metrics holds the pipeline collectors registered on one registry.
type Metrics struct {
	registry *prometheus.Registry

	runs          *prometheus.CounterVec
	stepAttempts  *prometheus.CounterVec
	stepDuration  *prometheus.HistogramVec
	locations     *prometheus.CounterVec
	rowsUploaded  prometheus.Counter
	lastSuccessTS prometheus.Gauge
}

// New creates the collectors on a fresh registry, together with the Go and
// process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Pipeline runs by final status.",
		}, []string{"status"}),
		stepAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "step_attempts_total",
			Help:      "Step attempts by step and outcome.",
		}, []string{"step", "status"}),
		stepDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "step_duration_seconds",
			Help:      "Duration of single step attempts.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 14),
		}, []string{"step"}),
		locations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "locations_total",
			Help:      "Locations processed by outcome.",
		}, []string{"result"}),
		rowsUploaded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_uploaded_total",
			Help:      "Rows written to object storage.",
		}),
		lastSuccessTS: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last successful run.",
		}),
	}

	reg.MustRegister(
		m.runs, m.stepAttempts, m.stepDuration, m.locations, m.rowsUploaded, m.lastSuccessTS,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the registry the collectors live on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RunFinished records a finished run.
func (m *Metrics) RunFinished(status string, at time.Time) {
	m.runs.WithLabelValues(status).Inc()
	if status == "succeeded" {
		m.lastSuccessTS.Set(float64(at.Unix()))
	}
}

// StepAttempt records one attempt of a step.
func (m *Metrics) StepAttempt(step string, err error, d time.Duration) {
	status := "success"
	if err != nil {
		status = "failure"
	}
	m.stepAttempts.WithLabelValues(step, status).Inc()
	m.stepDuration.WithLabelValues(step).Observe(d.Seconds())
}

// RowsUploaded adds n uploaded rows.
func (m *Metrics) RowsUploaded(n int) {
	m.rowsUploaded.Add(float64(n))
}

// LocationFetched counts a location that produced a row.
func (m *Metrics) LocationFetched() {
	m.locations.WithLabelValues("fetched").Inc()
}

// LocationSkipped counts a location dropped at stage.
func (m *Metrics) LocationSkipped(stage string) {
	m.locations.WithLabelValues("skipped_" + stage).Inc()
}
