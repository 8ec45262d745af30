package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_Counters(t *testing.T) {
	t.Parallel()

	m := NewWithRegistry(prometheus.NewRegistry())

	m.FoldEvaluationInc(0.72)
	m.FoldEvaluationInc(0.68)
	m.FoldFailureInc()
	m.RepetitionBegunInc()
	m.RepetitionBegunInc()
	m.SkippedUnitInc()
	m.RunCompletedInc()

	if got := testutil.ToFloat64(m.FoldEvaluations); got != 2 {
		t.Errorf("FoldEvaluations = %v, expected 2", got)
	}
	if got := testutil.ToFloat64(m.FoldFailures); got != 1 {
		t.Errorf("FoldFailures = %v, expected 1", got)
	}
	if got := testutil.ToFloat64(m.RepetitionsBegun); got != 2 {
		t.Errorf("RepetitionsBegun = %v, expected 2", got)
	}
	if got := testutil.ToFloat64(m.SkippedUnits); got != 1 {
		t.Errorf("SkippedUnits = %v, expected 1", got)
	}
	if got := testutil.ToFloat64(m.RunsCompleted); got != 1 {
		t.Errorf("RunsCompleted = %v, expected 1", got)
	}
}

func TestMetrics_WorkerGauge(t *testing.T) {
	t.Parallel()

	m := NewWithRegistry(prometheus.NewRegistry())

	m.WorkerStarted()
	m.WorkerStarted()
	m.WorkerStopped()

	if got := testutil.ToFloat64(m.ActiveWorkers); got != 1 {
		t.Errorf("ActiveWorkers = %v, expected 1", got)
	}
}

func TestMetrics_IsolatedRegistries(t *testing.T) {
	t.Parallel()

	// Two instances with separate registries must not collide; this is
	// what keeps parallel tests independent.
	a := NewWithRegistry(prometheus.NewRegistry())
	b := NewWithRegistry(prometheus.NewRegistry())

	a.FoldFailureInc()
	if got := testutil.ToFloat64(b.FoldFailures); got != 0 {
		t.Errorf("FoldFailures leaked across registries: %v", got)
	}
}

func TestMetrics_HistogramsObserve(t *testing.T) {
	t.Parallel()

	m := NewWithRegistry(prometheus.NewRegistry())
	m.FitDurationObserve(0.004)
	m.FoldEvaluationInc(0.95)

	if got := testutil.CollectAndCount(m.FitDuration); got != 1 {
		t.Errorf("FitDuration series count = %d, expected 1", got)
	}
	if got := testutil.CollectAndCount(m.FoldScores); got != 1 {
		t.Errorf("FoldScores series count = %d, expected 1", got)
	}
}
