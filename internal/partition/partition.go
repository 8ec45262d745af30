// Package partition assigns observations to disjoint folds. The spatial
// partitioner clusters raw coordinates so geographically proximate
// points land in the same fold; a random partitioner is provided as the
// non-spatial baseline.
package partition

import "fmt"

// Assignment maps observation index to fold index in [0, k).
type Assignment []int

// Partitioner produces a k-way fold assignment for a coordinate set.
// Calls are randomized via the supplied seed; independent seeds across
// repetitions are what produce the distribution of performance
// estimates.
type Partitioner interface {
	Partition(coords [][2]float64, k int, seed int64) (Assignment, error)
	Name() string
}

// Error reports that no valid k-way split could be produced within the
// retry budget.
type Error struct {
	K        int
	Attempts int
	Reason   string
}

func (e *Error) Error() string {
	return fmt.Sprintf("partition into %d folds failed after %d attempts: %s", e.K, e.Attempts, e.Reason)
}

// FoldSizes returns the number of observations per fold.
func (a Assignment) FoldSizes(k int) []int {
	sizes := make([]int, k)
	for _, fold := range a {
		if fold >= 0 && fold < k {
			sizes[fold]++
		}
	}
	return sizes
}

// Validate checks that the assignment covers every observation exactly
// once with an in-range fold index and that no fold is empty.
func (a Assignment) Validate(n, k int) error {
	if len(a) != n {
		return fmt.Errorf("assignment covers %d observations, expected %d", len(a), n)
	}
	for i, fold := range a {
		if fold < 0 || fold >= k {
			return fmt.Errorf("observation %d assigned to fold %d, valid range is [0, %d)", i, fold, k)
		}
	}
	for fold, size := range a.FoldSizes(k) {
		if size == 0 {
			return fmt.Errorf("fold %d is empty", fold)
		}
	}
	return nil
}

func validateInput(coords [][2]float64, k int) error {
	if k < 2 {
		return fmt.Errorf("fold count must be at least 2, got %d", k)
	}
	if len(coords) < k {
		return fmt.Errorf("cannot split %d observations into %d folds", len(coords), k)
	}
	return nil
}

// distinctCoords counts unique coordinate pairs; a k-means split into k
// non-empty clusters needs at least k of them.
func distinctCoords(coords [][2]float64) int {
	seen := make(map[[2]float64]struct{}, len(coords))
	for _, c := range coords {
		seen[c] = struct{}{}
	}
	return len(seen)
}
