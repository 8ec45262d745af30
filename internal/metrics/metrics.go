// Package metrics provides Prometheus metrics collection for the
// resampling harness. It covers fold evaluation throughput, failure
// accounting, model fit latency, and the distribution of per-fold
// scores exposed via the optional metrics endpoint.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the harness.
type Metrics struct {
	FoldEvaluations  prometheus.Counter   // Completed fold evaluations
	FoldFailures     prometheus.Counter   // Fold evaluations excluded from aggregation
	RepetitionsBegun prometheus.Counter   // Repetitions started
	SkippedUnits     prometheus.Counter   // Units abandoned by cancellation
	RunsCompleted    prometheus.Counter   // Resampling runs finished
	ActiveWorkers    prometheus.Gauge     // Workers currently evaluating folds
	FitDuration      prometheus.Histogram // Model fit latency per fold in seconds
	FoldScores       prometheus.Histogram // Distribution of per-fold metric values
}

// New creates and registers all metrics using the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates metrics with a custom registry, which keeps
// test runs isolated from the global Prometheus state.
func NewWithRegistry(registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)
	return &Metrics{
		FoldEvaluations: factory.NewCounter(prometheus.CounterOpts{
			Name: "fold_evaluations_total",
			Help: "Total number of completed fold evaluations",
		}),
		FoldFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "fold_failures_total",
			Help: "Total number of fold evaluations excluded from aggregation",
		}),
		RepetitionsBegun: factory.NewCounter(prometheus.CounterOpts{
			Name: "repetitions_begun_total",
			Help: "Total number of resampling repetitions started",
		}),
		SkippedUnits: factory.NewCounter(prometheus.CounterOpts{
			Name: "skipped_units_total",
			Help: "Total number of fold evaluations abandoned by cancellation",
		}),
		RunsCompleted: factory.NewCounter(prometheus.CounterOpts{
			Name: "runs_completed_total",
			Help: "Total number of resampling runs completed",
		}),
		ActiveWorkers: factory.NewGauge(prometheus.GaugeOpts{
			Name: "active_workers",
			Help: "Number of workers currently evaluating folds",
		}),
		FitDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "model_fit_duration_seconds",
			Help:    "Model fit latency per fold in seconds",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 16),
		}),
		FoldScores: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "fold_scores",
			Help:    "Distribution of per-fold metric values",
			Buckets: prometheus.LinearBuckets(0, 0.05, 21),
		}),
	}
}

// FoldEvaluationInc records one completed fold evaluation with its
// metric value.
func (m *Metrics) FoldEvaluationInc(score float64) {
	m.FoldEvaluations.Inc()
	m.FoldScores.Observe(score)
}

// FoldFailureInc records one excluded fold evaluation.
func (m *Metrics) FoldFailureInc() { m.FoldFailures.Inc() }

// RepetitionBegunInc records one started repetition.
func (m *Metrics) RepetitionBegunInc() { m.RepetitionsBegun.Inc() }

// SkippedUnitInc records one unit abandoned by cancellation.
func (m *Metrics) SkippedUnitInc() { m.SkippedUnits.Inc() }

// RunCompletedInc records one finished resampling run.
func (m *Metrics) RunCompletedInc() { m.RunsCompleted.Inc() }

// WorkerStarted marks a worker as busy.
func (m *Metrics) WorkerStarted() { m.ActiveWorkers.Inc() }

// WorkerStopped marks a worker as idle.
func (m *Metrics) WorkerStopped() { m.ActiveWorkers.Dec() }

// FitDurationObserve records one model fit latency in seconds.
func (m *Metrics) FitDurationObserve(seconds float64) { m.FitDuration.Observe(seconds) }
