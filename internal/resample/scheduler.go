// Package resample orchestrates repeated spatial cross-validation: it
// asks the partitioner for a fresh fold assignment per repetition,
// rotates every fold through the held-out role, fits the plugged-in
// model on the remainder, and grades the held-out predictions with the
// configured metric.
package resample

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"spatialcv/internal/dataset"
	"spatialcv/internal/metric"
	"spatialcv/internal/model"
	"spatialcv/internal/partition"
)

// Score is one executed fold's metric value. Scores are immutable once
// recorded and retained for the life of the run.
type Score struct {
	Repetition int     `json:"repetition"`
	Fold       int     `json:"fold"`
	Value      float64 `json:"value"`
}

// UnitFailure identifies a fold (or, with Fold == -1, a whole
// repetition) that was excluded from aggregation.
type UnitFailure struct {
	Repetition int    `json:"repetition"`
	Fold       int    `json:"fold"`
	Reason     string `json:"reason"`
}

// DegenerateFoldError reports an empty train or test side for one fold
// evaluation. It is fatal to that fold only.
type DegenerateFoldError struct {
	Repetition int
	Fold       int
	TrainSize  int
	TestSize   int
}

func (e *DegenerateFoldError) Error() string {
	return fmt.Sprintf("repetition %d fold %d is degenerate: %d train / %d test observations",
		e.Repetition, e.Fold, e.TrainSize, e.TestSize)
}

// Recorder receives scheduler events. The Prometheus metrics package
// implements it; tests plug in mocks.
type Recorder interface {
	FoldEvaluationInc(score float64)
	FoldFailureInc()
	RepetitionBegunInc()
	SkippedUnitInc()
	RunCompletedInc()
	WorkerStarted()
	WorkerStopped()
	FitDurationObserve(seconds float64)
}

// Options configures one resampling run.
type Options struct {
	Folds              int     // k, number of spatial folds per repetition
	Repetitions        int     // independent re-partitionings
	Workers            int     // parallel repetition workers; 0 means NumCPU
	SeedBase           int64   // base for per-repetition partition seeds
	MaxFailureFraction float64 // run aborts when exceeded; 0 disables the check
	MetricName         string  // label for reports and range validation
}

// Validate checks option ranges.
func (o Options) Validate() error {
	if o.Folds < 2 {
		return fmt.Errorf("folds must be at least 2, got %d", o.Folds)
	}
	if o.Repetitions < 1 {
		return fmt.Errorf("repetitions must be at least 1, got %d", o.Repetitions)
	}
	if o.MaxFailureFraction < 0 || o.MaxFailureFraction > 1 {
		return fmt.Errorf("max failure fraction must be in [0, 1], got %f", o.MaxFailureFraction)
	}
	return nil
}

// Result is the full outcome of one resampling run. Scores are ordered
// by (repetition, fold) regardless of worker scheduling.
type Result struct {
	Partitioner string        `json:"partitioner"`
	Metric      string        `json:"metric"`
	Expected    int           `json:"expected"`
	Scores      []Score       `json:"scores"`
	Failures    []UnitFailure `json:"failures"`
	Skipped     int           `json:"skipped"`
	Elapsed     time.Duration `json:"elapsed"`
}

// Scheduler runs the repetition-by-fold grid. It is metric- and
// model-agnostic: everything algorithm-specific arrives through the
// partitioner, adapter and metric it is constructed with.
type Scheduler struct {
	opts        Options
	partitioner partition.Partitioner
	adapter     model.Adapter
	metricFn    metric.Metric
	recorder    Recorder
}

// NewScheduler builds a scheduler. The recorder is optional and set
// separately via SetRecorder.
func NewScheduler(opts Options, p partition.Partitioner, a model.Adapter, m metric.Metric) (*Scheduler, error) {
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("invalid resampling options: %w", err)
	}
	if p == nil || a == nil || m == nil {
		return nil, fmt.Errorf("partitioner, adapter and metric are all required")
	}
	if opts.MetricName == "" {
		opts.MetricName = "metric"
	}
	return &Scheduler{opts: opts, partitioner: p, adapter: a, metricFn: m}, nil
}

// SetRecorder attaches a metrics recorder.
func (s *Scheduler) SetRecorder(r Recorder) { s.recorder = r }

// repOutcome collects one repetition's scores and failures so the final
// result can be assembled in deterministic order.
type repOutcome struct {
	scores   []Score
	failures []UnitFailure
	skipped  int
}

// Run executes Repetitions independent re-partitionings of set, each
// rotated through Folds train/test splits. Per-unit errors are logged
// and excluded; a metric range violation or an excessive failure
// fraction aborts the whole run.
func (s *Scheduler) Run(ctx context.Context, set *dataset.Set) (*Result, error) {
	if err := set.ValidateForFolds(s.opts.Folds); err != nil {
		return nil, fmt.Errorf("observation set unfit for resampling: %w", err)
	}

	workers := s.opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > s.opts.Repetitions {
		workers = s.opts.Repetitions
	}

	log.Info().
		Str("partitioner", s.partitioner.Name()).
		Str("model", s.adapter.Name()).
		Int("folds", s.opts.Folds).
		Int("repetitions", s.opts.Repetitions).
		Int("workers", workers).
		Int64("seed_base", s.opts.SeedBase).
		Msg("Starting resampling run")

	start := time.Now()
	coords := set.Coordinates()
	outcomes := make([]repOutcome, s.opts.Repetitions)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var fatalOnce sync.Once
	var fatalErr error
	abort := func(err error) {
		fatalOnce.Do(func() {
			fatalErr = err
			cancel()
		})
	}

	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if s.recorder != nil {
				s.recorder.WorkerStarted()
				defer s.recorder.WorkerStopped()
			}
			for rep := range jobs {
				outcomes[rep] = s.runRepetition(runCtx, rep, set, coords, abort)
			}
		}()
	}

feed:
	for rep := 0; rep < s.opts.Repetitions; rep++ {
		select {
		case jobs <- rep:
		case <-runCtx.Done():
			// Remaining repetitions are never dispatched; count them as
			// skipped below so the summary cannot hide them.
			for r := rep; r < s.opts.Repetitions; r++ {
				outcomes[r].skipped += s.opts.Folds
			}
			break feed
		}
	}
	close(jobs)
	wg.Wait()

	if fatalErr != nil {
		return nil, fatalErr
	}

	result := &Result{
		Partitioner: s.partitioner.Name(),
		Metric:      s.opts.MetricName,
		Expected:    s.opts.Repetitions * s.opts.Folds,
		Elapsed:     time.Since(start),
	}
	for _, o := range outcomes {
		result.Scores = append(result.Scores, o.scores...)
		result.Failures = append(result.Failures, o.failures...)
		result.Skipped += o.skipped
	}

	if s.recorder != nil {
		s.recorder.RunCompletedInc()
	}

	log.Info().
		Int("scores", len(result.Scores)).
		Int("failed", len(result.Failures)).
		Int("skipped", result.Skipped).
		Dur("elapsed", result.Elapsed).
		Msg("Resampling run finished")

	if ctx.Err() != nil && result.Skipped > 0 {
		log.Warn().
			Int("skipped", result.Skipped).
			Msg("Run cancelled before completion; unfinished units excluded from aggregation")
	}

	if s.opts.MaxFailureFraction > 0 && result.Expected > 0 {
		// A failed repetition excludes all of its folds, not just the
		// one failure record, so count excluded units directly.
		excluded := result.Expected - len(result.Scores) - result.Skipped
		fraction := float64(excluded) / float64(result.Expected)
		if fraction > s.opts.MaxFailureFraction {
			return result, fmt.Errorf("%.1f%% of units failed, above the %.1f%% limit",
				fraction*100, s.opts.MaxFailureFraction*100)
		}
	}

	return result, nil
}

// runRepetition partitions once and rotates every fold through the
// held-out role. A partition failure kills the repetition; a fold
// failure is recorded and the remaining folds continue.
func (s *Scheduler) runRepetition(ctx context.Context, rep int, set *dataset.Set, coords [][2]float64, abort func(error)) repOutcome {
	var out repOutcome

	if ctx.Err() != nil {
		out.skipped = s.opts.Folds
		if s.recorder != nil {
			for i := 0; i < s.opts.Folds; i++ {
				s.recorder.SkippedUnitInc()
			}
		}
		return out
	}

	if s.recorder != nil {
		s.recorder.RepetitionBegunInc()
	}

	seed := repetitionSeed(s.opts.SeedBase, rep)
	assignment, err := s.partitioner.Partition(coords, s.opts.Folds, seed)
	if err != nil {
		log.Warn().Err(err).
			Int("repetition", rep).
			Msg("Partitioning failed, excluding repetition")
		out.failures = append(out.failures, UnitFailure{Repetition: rep, Fold: -1, Reason: err.Error()})
		if s.recorder != nil {
			s.recorder.FoldFailureInc()
		}
		return out
	}

	for fold := 0; fold < s.opts.Folds; fold++ {
		if ctx.Err() != nil {
			out.skipped += s.opts.Folds - fold
			if s.recorder != nil {
				for i := fold; i < s.opts.Folds; i++ {
					s.recorder.SkippedUnitInc()
				}
			}
			return out
		}

		value, err := s.evaluateFold(rep, fold, set, assignment)
		if err != nil {
			var rangeErr *metric.RangeError
			if errors.As(err, &rangeErr) {
				// A metric outside its mathematical range is a
				// correctness bug; poisoning the whole run beats
				// aggregating around it.
				abort(fmt.Errorf("repetition %d fold %d: %w", rep, fold, err))
				return out
			}
			log.Warn().Err(err).
				Int("repetition", rep).
				Int("fold", fold).
				Msg("Fold evaluation failed, excluding from aggregation")
			out.failures = append(out.failures, UnitFailure{Repetition: rep, Fold: fold, Reason: err.Error()})
			if s.recorder != nil {
				s.recorder.FoldFailureInc()
			}
			continue
		}

		out.scores = append(out.scores, Score{Repetition: rep, Fold: fold, Value: value})
		if s.recorder != nil {
			s.recorder.FoldEvaluationInc(value)
		}
	}

	return out
}

// evaluateFold fits on everything outside the fold and grades the
// predictions inside it. Train and test are disjoint by construction;
// their union is the full observation set.
func (s *Scheduler) evaluateFold(rep, fold int, set *dataset.Set, assignment partition.Assignment) (float64, error) {
	var trainIdx, testIdx []int
	for i, f := range assignment {
		if f == fold {
			testIdx = append(testIdx, i)
		} else {
			trainIdx = append(trainIdx, i)
		}
	}
	if len(trainIdx) == 0 || len(testIdx) == 0 {
		return 0, &DegenerateFoldError{Repetition: rep, Fold: fold, TrainSize: len(trainIdx), TestSize: len(testIdx)}
	}

	trainX, trainY := set.Design(trainIdx)
	testX, testY := set.Design(testIdx)

	fitStart := time.Now()
	predictor, err := s.adapter.Fit(trainX, trainY)
	if s.recorder != nil {
		s.recorder.FitDurationObserve(time.Since(fitStart).Seconds())
	}
	if err != nil {
		return 0, err
	}

	scores, err := predictor.Predict(testX)
	if err != nil {
		return 0, fmt.Errorf("predict on held-out fold: %w", err)
	}

	value, err := s.metricFn(testY, scores)
	if err != nil {
		return 0, err
	}
	if err := metric.ValidateScore(s.opts.MetricName, value); err != nil {
		return 0, err
	}
	return value, nil
}

// repetitionSeed derives an independent seed per repetition from the
// configured base so repetitions stay reproducible without sharing a
// random stream.
func repetitionSeed(base int64, rep int) int64 {
	return base + int64(rep)*1_000_003
}
