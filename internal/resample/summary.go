package resample

import (
	"fmt"
	"math"
	"sort"

	"spatialcv/internal/metric"
)

// Summary aggregates one run's score records. It keeps the full value
// distribution alongside the headline statistics so two runs can be
// compared point-by-point, and it always reports how many units were
// excluded so silent data loss is impossible.
type Summary struct {
	Partitioner string    `json:"partitioner"`
	Metric      string    `json:"metric"`
	Mean        float64   `json:"mean"`
	StdDev      float64   `json:"std_dev"`
	Min         float64   `json:"min"`
	Median      float64   `json:"median"`
	Max         float64   `json:"max"`
	Count       int       `json:"count"`
	Expected    int       `json:"expected"`
	Excluded    int       `json:"excluded"`
	Skipped     int       `json:"skipped"`
	Values      []float64 `json:"values"`
}

// Summarize reduces a run result to summary statistics. Every recorded
// value is re-validated against [0, 1]; an out-of-range value fails the
// aggregation outright since it indicates a metric bug upstream.
func Summarize(result *Result) (Summary, error) {
	s := Summary{
		Partitioner: result.Partitioner,
		Metric:      result.Metric,
		Expected:    result.Expected,
		Skipped:     result.Skipped,
	}

	values := make([]float64, 0, len(result.Scores))
	for _, score := range result.Scores {
		if err := metric.ValidateScore(result.Metric, score.Value); err != nil {
			return Summary{}, fmt.Errorf("repetition %d fold %d: %w", score.Repetition, score.Fold, err)
		}
		values = append(values, score.Value)
	}

	s.Count = len(values)
	s.Excluded = result.Expected - s.Count - s.Skipped
	s.Values = values
	if s.Count == 0 {
		return s, nil
	}

	var sum float64
	s.Min = values[0]
	s.Max = values[0]
	for _, v := range values {
		sum += v
		if v < s.Min {
			s.Min = v
		}
		if v > s.Max {
			s.Max = v
		}
	}
	s.Mean = sum / float64(s.Count)

	if s.Count > 1 {
		var variance float64
		for _, v := range values {
			variance += (v - s.Mean) * (v - s.Mean)
		}
		s.StdDev = math.Sqrt(variance / float64(s.Count-1))
	}

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	n := len(sorted)
	if n%2 == 1 {
		s.Median = sorted[n/2]
	} else {
		s.Median = (sorted[n/2-1] + sorted[n/2]) / 2
	}

	return s, nil
}

// Comparison pairs two independently produced summaries, typically the
// spatial run against the random baseline on the same data.
type Comparison struct {
	A        Summary `json:"a"`
	B        Summary `json:"b"`
	MeanDiff float64 `json:"mean_diff"` // A.Mean - B.Mean
}

// Compare relates two summaries. With spatial autocorrelation present
// the spatial run's mean is expected at or below the random baseline's;
// the difference quantifies the optimism of random resampling.
func Compare(a, b Summary) Comparison {
	return Comparison{A: a, B: b, MeanDiff: a.Mean - b.Mean}
}
