// Package metric provides the pluggable scoring functions used to grade
// one fold's predictions against its held-out responses. The default is
// area under the ROC curve.
package metric

import (
	"fmt"
	"math"
	"sort"
)

// Metric grades predicted scores against true binary responses for one
// fold. Implementations return a value in the metric's documented range
// or an error when the fold cannot be scored.
type Metric func(labels []bool, scores []float64) (float64, error)

// RangeError reports a computed metric value outside its valid
// mathematical range. It signals a metric-implementation bug, not a
// data condition, and is always fatal to the whole run.
type RangeError struct {
	Metric string
	Value  float64
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("%s produced out-of-range value %f", e.Metric, e.Value)
}

// AUROC computes the area under the ROC curve by the rank-sum
// (Mann-Whitney) formulation, with tied scores contributing 0.5. A
// perfectly separating score sequence yields exactly 1.0 and a constant
// one exactly 0.5.
func AUROC(labels []bool, scores []float64) (float64, error) {
	if len(labels) != len(scores) {
		return 0, fmt.Errorf("auroc: %d labels but %d scores", len(labels), len(scores))
	}
	if len(labels) == 0 {
		return 0, fmt.Errorf("auroc: empty fold")
	}

	var pos, neg int
	for i, label := range labels {
		if math.IsNaN(scores[i]) {
			return 0, fmt.Errorf("auroc: score %d is NaN", i)
		}
		if label {
			pos++
		} else {
			neg++
		}
	}
	if pos == 0 || neg == 0 {
		return 0, fmt.Errorf("auroc: fold contains a single class (%d positive, %d negative)", pos, neg)
	}

	// Midranks over the sorted scores; ties within a run share the
	// average rank so tied positive/negative pairs count as 0.5.
	order := make([]int, len(scores))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool { return scores[order[a]] < scores[order[b]] })

	ranks := make([]float64, len(scores))
	for i := 0; i < len(order); {
		j := i
		for j < len(order) && scores[order[j]] == scores[order[i]] {
			j++
		}
		avg := float64(i+j+1) / 2 // ranks are 1-based
		for k := i; k < j; k++ {
			ranks[order[k]] = avg
		}
		i = j
	}

	var rankSum float64
	for i, label := range labels {
		if label {
			rankSum += ranks[i]
		}
	}

	p := float64(pos)
	n := float64(neg)
	auc := (rankSum - p*(p+1)/2) / (p * n)

	if auc < 0 || auc > 1 || math.IsNaN(auc) {
		return auc, &RangeError{Metric: "auroc", Value: auc}
	}
	return auc, nil
}

// ValidateScore checks a recorded metric value against [0, 1]; anything
// outside that interval indicates a bug in the plugged-in metric.
func ValidateScore(name string, value float64) error {
	if value < 0 || value > 1 || math.IsNaN(value) {
		return &RangeError{Metric: name, Value: value}
	}
	return nil
}
