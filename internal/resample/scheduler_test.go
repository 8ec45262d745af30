package resample

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"testing"

	"spatialcv/internal/dataset"
	"spatialcv/internal/metric"
	"spatialcv/internal/model"
	"spatialcv/internal/partition"
)

// stubPartitioner returns a fixed assignment or error.
type stubPartitioner struct {
	assignment partition.Assignment
	err        error
}

func (s stubPartitioner) Partition(coords [][2]float64, k int, seed int64) (partition.Assignment, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.assignment, nil
}

func (s stubPartitioner) Name() string { return "stub" }

// stubAdapter scores every row with a constant or fails every fit.
type stubAdapter struct {
	fitErr error
	score  float64
}

func (s stubAdapter) Fit(x [][]float64, y []bool) (model.Predictor, error) {
	if s.fitErr != nil {
		return nil, s.fitErr
	}
	return stubModel{score: s.score}, nil
}

func (s stubAdapter) Name() string { return "stub" }

type stubModel struct{ score float64 }

func (s stubModel) Predict(x [][]float64) ([]float64, error) {
	out := make([]float64, len(x))
	for i := range out {
		out[i] = s.score
	}
	return out, nil
}

func constantMetric(value float64) metric.Metric {
	return func(labels []bool, scores []float64) (float64, error) {
		return value, nil
	}
}

// mockRecorder counts scheduler events.
type mockRecorder struct {
	mu          sync.Mutex
	evaluations int
	failures    int
	repetitions int
	skipped     int
	runs        int
	fits        int
}

func (m *mockRecorder) FoldEvaluationInc(score float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.evaluations++
}
func (m *mockRecorder) FoldFailureInc() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures++
}
func (m *mockRecorder) RepetitionBegunInc() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.repetitions++
}
func (m *mockRecorder) SkippedUnitInc() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.skipped++
}
func (m *mockRecorder) RunCompletedInc() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs++
}
func (m *mockRecorder) WorkerStarted()                  {}
func (m *mockRecorder) WorkerStopped()                  {}
func (m *mockRecorder) FitDurationObserve(sec float64) { m.mu.Lock(); m.fits++; m.mu.Unlock() }

func syntheticSet(t *testing.T, n int, correlation float64) *dataset.Set {
	t.Helper()
	cfg := dataset.DefaultSyntheticConfig()
	cfg.N = n
	cfg.Correlation = correlation
	set, err := dataset.GenerateSynthetic(cfg)
	if err != nil {
		t.Fatalf("generate synthetic set: %v", err)
	}
	return set
}

func mustScheduler(t *testing.T, opts Options, p partition.Partitioner, a model.Adapter, m metric.Metric) *Scheduler {
	t.Helper()
	s, err := NewScheduler(opts, p, a, m)
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}
	return s
}

func TestScheduler_FullGrid(t *testing.T) {
	t.Parallel()

	set := syntheticSet(t, 120, 0.6)
	opts := Options{Folds: 5, Repetitions: 10, Workers: 4, SeedBase: 21, MetricName: "auroc"}

	recorder := &mockRecorder{}
	s := mustScheduler(t, opts, partition.NewRandom(), model.NewLogistic(), metric.AUROC)
	s.SetRecorder(recorder)

	result, err := s.Run(context.Background(), set)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.Expected != 50 {
		t.Errorf("Expected 50 planned units, got %d", result.Expected)
	}
	if len(result.Scores) != 50 {
		t.Fatalf("Expected 50 score records on full success, got %d (failures: %v)", len(result.Scores), result.Failures)
	}
	if result.Skipped != 0 || len(result.Failures) != 0 {
		t.Errorf("Expected no skipped or failed units, got %d skipped, %d failed", result.Skipped, len(result.Failures))
	}

	// Scores arrive in (repetition, fold) order regardless of worker
	// scheduling.
	for i, score := range result.Scores {
		if score.Repetition != i/5 || score.Fold != i%5 {
			t.Fatalf("score %d out of order: repetition %d fold %d", i, score.Repetition, score.Fold)
		}
		if score.Value < 0 || score.Value > 1 {
			t.Errorf("score %d out of range: %v", i, score.Value)
		}
	}

	if recorder.evaluations != 50 || recorder.repetitions != 10 || recorder.runs != 1 {
		t.Errorf("recorder saw %d evaluations, %d repetitions, %d runs",
			recorder.evaluations, recorder.repetitions, recorder.runs)
	}
	if recorder.fits != 50 {
		t.Errorf("recorder saw %d fits, expected 50", recorder.fits)
	}
}

func TestScheduler_DeterministicForSeedBase(t *testing.T) {
	t.Parallel()

	set := syntheticSet(t, 100, 0.6)
	opts := Options{Folds: 4, Repetitions: 6, Workers: 3, SeedBase: 77, MetricName: "auroc"}

	run := func() []Score {
		s := mustScheduler(t, opts, partition.NewRandom(), model.NewLogistic(), metric.AUROC)
		result, err := s.Run(context.Background(), set)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		return result.Scores
	}

	first := run()
	second := run()
	if !reflect.DeepEqual(first, second) {
		t.Error("Expected identical score sequences for identical seed bases")
	}

	opts.SeedBase = 78
	third := run()
	if reflect.DeepEqual(first, third) {
		t.Error("Expected different score sequences for different seed bases")
	}
}

func TestScheduler_SpatialMeanBelowRandomMean(t *testing.T) {
	t.Parallel()

	// With spatially autocorrelated predictors, spatially compact test
	// folds remove the between-cluster signal that random folds leak
	// from train to test, so the spatial estimate must not exceed the
	// random one.
	set := syntheticSet(t, 350, 0.8)
	opts := Options{Folds: 5, Repetitions: 20, Workers: 4, SeedBase: 5, MetricName: "auroc"}

	spatial := mustScheduler(t, opts, partition.NewKMeans(), model.NewLogistic(), metric.AUROC)
	spatialResult, err := spatial.Run(context.Background(), set)
	if err != nil {
		t.Fatalf("spatial run: %v", err)
	}
	spatialSummary, err := Summarize(spatialResult)
	if err != nil {
		t.Fatalf("summarize spatial run: %v", err)
	}

	random := mustScheduler(t, opts, partition.NewRandom(), model.NewLogistic(), metric.AUROC)
	randomResult, err := random.Run(context.Background(), set)
	if err != nil {
		t.Fatalf("random run: %v", err)
	}
	randomSummary, err := Summarize(randomResult)
	if err != nil {
		t.Fatalf("summarize random run: %v", err)
	}

	if randomSummary.Count != 100 {
		t.Fatalf("Expected 100 random-baseline scores, got %d", randomSummary.Count)
	}
	if randomSummary.Mean < 0.6 {
		t.Errorf("random baseline mean suspiciously low: %v", randomSummary.Mean)
	}
	if spatialSummary.Count == 0 {
		t.Fatal("spatial run produced no usable scores")
	}
	if spatialSummary.Mean > randomSummary.Mean {
		t.Errorf("spatial mean %v exceeds random mean %v", spatialSummary.Mean, randomSummary.Mean)
	}

	cmp := Compare(spatialSummary, randomSummary)
	if cmp.MeanDiff > 0 {
		t.Errorf("expected non-positive mean difference, got %v", cmp.MeanDiff)
	}
}

func TestScheduler_DegenerateFoldExcluded(t *testing.T) {
	t.Parallel()

	set := syntheticSet(t, 12, 0.5)

	// The stub assignment never uses fold 2, so its test side is empty
	// every repetition.
	assignment := partition.Assignment{0, 0, 1, 1, 0, 1, 0, 1, 0, 1, 0, 1}
	opts := Options{Folds: 3, Repetitions: 4, Workers: 2, MetricName: "auroc"}

	s := mustScheduler(t, opts, stubPartitioner{assignment: assignment}, stubAdapter{score: 0.5}, constantMetric(0.7))
	result, err := s.Run(context.Background(), set)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(result.Scores) != 8 {
		t.Errorf("Expected 8 scores from the two populated folds, got %d", len(result.Scores))
	}
	if len(result.Failures) != 4 {
		t.Fatalf("Expected 4 fold failures, got %d", len(result.Failures))
	}
	for _, failure := range result.Failures {
		if failure.Fold != 2 {
			t.Errorf("unexpected failing fold %d", failure.Fold)
		}
	}
}

func TestScheduler_PartitionFailureExcludesRepetition(t *testing.T) {
	t.Parallel()

	set := syntheticSet(t, 20, 0.5)
	opts := Options{Folds: 2, Repetitions: 3, Workers: 1, MetricName: "auroc"}

	pErr := &partition.Error{K: 2, Attempts: 10, Reason: "clustering kept producing empty folds"}
	s := mustScheduler(t, opts, stubPartitioner{err: pErr}, stubAdapter{score: 0.5}, constantMetric(0.7))

	result, err := s.Run(context.Background(), set)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Scores) != 0 {
		t.Errorf("Expected no scores, got %d", len(result.Scores))
	}
	if len(result.Failures) != 3 {
		t.Fatalf("Expected one failure per repetition, got %d", len(result.Failures))
	}
	for _, failure := range result.Failures {
		if failure.Fold != -1 {
			t.Errorf("partition failures should carry fold -1, got %d", failure.Fold)
		}
	}
}

func TestScheduler_FitFailures(t *testing.T) {
	t.Parallel()

	set := syntheticSet(t, 20, 0.5)
	adapter := stubAdapter{fitErr: &model.FitError{Model: "stub", Reason: "rank-deficient design matrix"}}
	assignment := partition.Assignment{0, 1, 0, 1, 0, 1, 0, 1, 0, 1, 0, 1, 0, 1, 0, 1, 0, 1, 0, 1}

	t.Run("within tolerated fraction", func(t *testing.T) {
		opts := Options{Folds: 2, Repetitions: 2, Workers: 1, MetricName: "auroc"}
		s := mustScheduler(t, opts, stubPartitioner{assignment: assignment}, adapter, constantMetric(0.7))
		result, err := s.Run(context.Background(), set)
		if err != nil {
			t.Fatalf("unexpected error with disabled failure limit: %v", err)
		}
		if len(result.Failures) != 4 {
			t.Errorf("Expected every unit to fail, got %d failures", len(result.Failures))
		}
	})

	t.Run("above failure limit", func(t *testing.T) {
		opts := Options{Folds: 2, Repetitions: 2, Workers: 1, MaxFailureFraction: 0.5, MetricName: "auroc"}
		s := mustScheduler(t, opts, stubPartitioner{assignment: assignment}, adapter, constantMetric(0.7))
		if _, err := s.Run(context.Background(), set); err == nil {
			t.Fatal("Expected run to fail once the failure fraction is exceeded")
		}
	})
}

func TestScheduler_MetricRangeAbortsRun(t *testing.T) {
	t.Parallel()

	set := syntheticSet(t, 20, 0.5)
	assignment := partition.Assignment{0, 1, 0, 1, 0, 1, 0, 1, 0, 1, 0, 1, 0, 1, 0, 1, 0, 1, 0, 1}
	opts := Options{Folds: 2, Repetitions: 5, Workers: 2, MetricName: "auroc"}

	s := mustScheduler(t, opts, stubPartitioner{assignment: assignment}, stubAdapter{score: 0.5}, constantMetric(1.5))
	_, err := s.Run(context.Background(), set)
	if err == nil {
		t.Fatal("Expected an out-of-range metric to abort the run")
	}

	var rangeErr *metric.RangeError
	if !errors.As(err, &rangeErr) {
		t.Fatalf("Expected *metric.RangeError in the chain, got: %v", err)
	}
}

func TestScheduler_CancellationSkipsRemainingUnits(t *testing.T) {
	t.Parallel()

	set := syntheticSet(t, 40, 0.5)
	opts := Options{Folds: 2, Repetitions: 10, Workers: 2, MetricName: "auroc"}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := mustScheduler(t, opts, partition.NewRandom(), model.NewLogistic(), metric.AUROC)
	result, err := s.Run(ctx, set)
	if err != nil {
		t.Fatalf("cancellation must not corrupt the run: %v", err)
	}
	if len(result.Scores) != 0 {
		t.Errorf("Expected no scores after pre-cancelled run, got %d", len(result.Scores))
	}
	if result.Skipped != result.Expected {
		t.Errorf("Expected all %d units skipped, got %d", result.Expected, result.Skipped)
	}
}

func TestNewScheduler_Validation(t *testing.T) {
	t.Parallel()

	valid := Options{Folds: 2, Repetitions: 1}
	if _, err := NewScheduler(valid, nil, stubAdapter{}, constantMetric(0.5)); err == nil {
		t.Error("Expected an error for a nil partitioner")
	}

	testCases := []struct {
		name string
		opts Options
	}{
		{"folds too small", Options{Folds: 1, Repetitions: 1}},
		{"no repetitions", Options{Folds: 2, Repetitions: 0}},
		{"bad failure fraction", Options{Folds: 2, Repetitions: 1, MaxFailureFraction: 1.5}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := NewScheduler(tc.opts, partition.NewRandom(), stubAdapter{}, constantMetric(0.5)); err == nil {
				t.Error("Expected a validation error")
			}
		})
	}
}

func TestRepetitionSeed_Independent(t *testing.T) {
	t.Parallel()

	seen := make(map[int64]int)
	for rep := 0; rep < 1000; rep++ {
		seed := repetitionSeed(42, rep)
		if prev, dup := seen[seed]; dup {
			t.Fatalf("repetitions %d and %d share seed %d", prev, rep, seed)
		}
		seen[seed] = rep
	}
}

func ExampleCompare() {
	a := Summary{Partitioner: "kmeans", Mean: 0.71}
	b := Summary{Partitioner: "random", Mean: 0.84}
	fmt.Printf("%+.2f\n", Compare(a, b).MeanDiff)
	// Output: -0.13
}
