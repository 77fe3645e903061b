package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Experiment outcomes recorded by Metrics.RecordExperiment.
const (
	OutcomeCompleted = "completed"
	OutcomeFailed    = "failed"
	OutcomeSkipped   = "skipped"
)

// Metrics holds the sweep's Prometheus collectors on a private registry, so a
// sweep can dump them to a node-exporter textfile or serve them over HTTP.
type Metrics struct {
	registry *prometheus.Registry

	experiments  *prometheus.CounterVec
	stepDuration *prometheus.HistogramVec
	casesDone    prometheus.Gauge
	casesTotal   prometheus.Gauge
}

// NewMetrics registers the collectors on a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Metrics{
		registry: reg,
		experiments: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bcp",
			Name:      "experiments_total",
			Help:      "Experiments processed by the sweep, by outcome.",
		}, []string{"outcome"}),
		stepDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "bcp",
			Name:      "step_duration_seconds",
			Help:      "Wall time of each build-tool step.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 14),
		}, []string{"step"}),
		casesDone: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "bcp",
			Name:      "cases_recorded",
			Help:      "Number of cases with a recorded result.",
		}),
		casesTotal: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "bcp",
			Name:      "cases_planned",
			Help:      "Number of cases in the plan.",
		}),
	}
}

// RecordExperiment counts one experiment with the given outcome.
func (m *Metrics) RecordExperiment(outcome string) {
	if m == nil {
		return
	}
	m.experiments.WithLabelValues(outcome).Inc()
}

// ObserveStep records the duration of a build-tool step.
func (m *Metrics) ObserveStep(step string, d time.Duration) {
	if m == nil {
		return
	}
	m.stepDuration.WithLabelValues(step).Observe(d.Seconds())
}

// SetProgress publishes how many of the planned cases have results.
func (m *Metrics) SetProgress(done, total int) {
	if m == nil {
		return
	}
	m.casesDone.Set(float64(done))
	m.casesTotal.Set(float64(total))
}

// Gatherer exposes the registry for promhttp or tests.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	return m.registry
}

// WriteTextfile writes the current metrics in the text exposition format.
// The write is atomic (temp file + rename).
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, m.registry)
}
