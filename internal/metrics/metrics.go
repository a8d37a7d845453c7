// Package metrics records Prometheus metrics for classification and conversion runs.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Recorder holds the engine's collectors. It is created once and injected
// into each pipeline run; there are no package-level collectors.
type Recorder struct {
	Classifications  *prometheus.CounterVec
	PreflightRejects *prometheus.CounterVec
	StrategyAttempts *prometheus.CounterVec
	Rollbacks        prometheus.Counter
	ThicknessTiers   *prometheus.CounterVec
	PipelineDuration *prometheus.HistogramVec
}

// NewRecorder creates the collectors and registers them with reg. A nil reg
// leaves them unregistered, which tests use.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		Classifications: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sheetmetal_classifications_total",
				Help: "Bodies classified, by resulting pile",
			},
			[]string{"pile"},
		),
		PreflightRejects: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sheetmetal_preflight_rejects_total",
				Help: "Parts rejected by preflight",
			},
			[]string{"severity"},
		),
		StrategyAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sheetmetal_strategy_attempts_total",
				Help: "Conversion strategy attempts",
			},
			[]string{"strategy", "outcome"},
		),
		Rollbacks: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "sheetmetal_rollbacks_total",
				Help: "Feature-history rollbacks performed",
			},
		),
		ThicknessTiers: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sheetmetal_thickness_tier_total",
				Help: "Thickness estimates by producing tier",
			},
			[]string{"source"},
		),
		PipelineDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sheetmetal_pipeline_duration_seconds",
				Help:    "Duration of single-part pipeline runs",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 300},
			},
			[]string{"outcome"},
		),
	}
	if reg != nil {
		reg.MustRegister(
			r.Classifications,
			r.PreflightRejects,
			r.StrategyAttempts,
			r.Rollbacks,
			r.ThicknessTiers,
			r.PipelineDuration,
		)
	}
	return r
}

// The methods below tolerate a nil receiver so components can run without metrics.

// RecordClassification counts one classification.
func (r *Recorder) RecordClassification(pile string) {
	if r == nil {
		return
	}
	r.Classifications.WithLabelValues(pile).Inc()
}

// RecordPreflightReject counts one preflight rejection.
func (r *Recorder) RecordPreflightReject(hard bool) {
	if r == nil {
		return
	}
	severity := "soft"
	if hard {
		severity = "hard"
	}
	r.PreflightRejects.WithLabelValues(severity).Inc()
}

// RecordAttempt counts one strategy attempt.
func (r *Recorder) RecordAttempt(strategy, outcome string) {
	if r == nil {
		return
	}
	r.StrategyAttempts.WithLabelValues(strategy, outcome).Inc()
}

// RecordRollback counts one rollback.
func (r *Recorder) RecordRollback() {
	if r == nil {
		return
	}
	r.Rollbacks.Inc()
}

// RecordThicknessSource counts which tier produced a thickness.
func (r *Recorder) RecordThicknessSource(source string) {
	if r == nil {
		return
	}
	if source == "" {
		source = "none"
	}
	r.ThicknessTiers.WithLabelValues(source).Inc()
}

// RecordPipeline observes the duration of one run.
func (r *Recorder) RecordPipeline(outcome string, d time.Duration) {
	if r == nil {
		return
	}
	r.PipelineDuration.WithLabelValues(outcome).Observe(d.Seconds())
}
