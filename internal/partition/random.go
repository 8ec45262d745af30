package partition

import "math/rand"

// Random assigns folds by shuffling observation indices and dealing
// them round-robin. It ignores spatial structure entirely, which is
// exactly what makes it useful as the baseline: the gap between random
// and spatial fold assignment measures the optimism introduced by
// spatial autocorrelation.
type Random struct{}

// NewRandom returns the non-spatial baseline partitioner.
func NewRandom() *Random { return &Random{} }

func (r *Random) Name() string { return "random" }

// Partition deals the shuffled indices into k folds. Fold sizes differ
// by at most one, so no fold can be empty when len(coords) >= k.
func (r *Random) Partition(coords [][2]float64, k int, seed int64) (Assignment, error) {
	if err := validateInput(coords, k); err != nil {
		return nil, &Error{K: k, Attempts: 0, Reason: err.Error()}
	}

	rng := rand.New(rand.NewSource(seed))
	order := rng.Perm(len(coords))

	assignment := make(Assignment, len(coords))
	for pos, idx := range order {
		assignment[idx] = pos % k
	}
	return assignment, nil
}
