// Package dataset defines the tabular observation sets consumed by the
// resampling harness. An observation carries a binary response, numeric
// predictors and a 2-D spatial coordinate; a Set holds an ordered,
// read-only collection of them with a shared predictor schema.
package dataset

import (
	"fmt"
	"math"
)

// Observation is a single record: spatial position, predictor values and
// the binary response. Predictor values are index-aligned with the
// owning Set's predictor names.
type Observation struct {
	ID         int       `json:"id"`
	X          float64   `json:"x"`
	Y          float64   `json:"y"`
	Predictors []float64 `json:"predictors"`
	Response   bool      `json:"response"`
}

// Set is an ordered collection of observations sharing one predictor
// schema. It is loaded once and treated as read-only for the lifetime
// of a resampling run.
type Set struct {
	names []string
	obs   []Observation
}

// New builds a Set from predictor names and observations. Every
// observation must carry exactly len(names) predictor values and a
// finite coordinate pair.
func New(names []string, obs []Observation) (*Set, error) {
	if len(obs) == 0 {
		return nil, fmt.Errorf("observation set must not be empty")
	}
	for i, o := range obs {
		if len(o.Predictors) != len(names) {
			return nil, fmt.Errorf("observation %d has %d predictors, schema has %d", o.ID, len(o.Predictors), len(names))
		}
		if !isFinite(o.X) || !isFinite(o.Y) {
			return nil, fmt.Errorf("observation %d has non-finite coordinates (%f, %f)", o.ID, o.X, o.Y)
		}
		for j, v := range o.Predictors {
			if !isFinite(v) {
				return nil, fmt.Errorf("observation %d predictor %q is non-finite", o.ID, names[j])
			}
		}
		obs[i].ID = i
	}
	namesCopy := make([]string, len(names))
	copy(namesCopy, names)
	return &Set{names: namesCopy, obs: obs}, nil
}

// Len returns the number of observations.
func (s *Set) Len() int { return len(s.obs) }

// PredictorNames returns the shared predictor schema in column order.
func (s *Set) PredictorNames() []string {
	out := make([]string, len(s.names))
	copy(out, s.names)
	return out
}

// Observation returns the record at index i.
func (s *Set) Observation(i int) Observation { return s.obs[i] }

// Coordinates returns the (x, y) pair of every observation, in order.
// The partitioner clusters on these alone so predictors and responses
// never leak into the fold assignment.
func (s *Set) Coordinates() [][2]float64 {
	coords := make([][2]float64, len(s.obs))
	for i, o := range s.obs {
		coords[i] = [2]float64{o.X, o.Y}
	}
	return coords
}

// Design returns the predictor matrix and response vector for the given
// observation indices, in the order given.
func (s *Set) Design(ids []int) ([][]float64, []bool) {
	x := make([][]float64, len(ids))
	y := make([]bool, len(ids))
	for i, id := range ids {
		x[i] = s.obs[id].Predictors
		y[i] = s.obs[id].Response
	}
	return x, y
}

// ValidateForFolds checks that the set is large enough for a k-fold
// partition. The harness requires at least 2*k observations so every
// fold can hold more than a single point on average.
func (s *Set) ValidateForFolds(k int) error {
	if k < 2 {
		return fmt.Errorf("fold count must be at least 2, got %d", k)
	}
	if len(s.obs) < 2*k {
		return fmt.Errorf("need at least %d observations for %d folds, got %d", 2*k, k, len(s.obs))
	}
	return nil
}

// ClassCounts returns the number of positive and negative responses.
func (s *Set) ClassCounts() (pos, neg int) {
	for _, o := range s.obs {
		if o.Response {
			pos++
		} else {
			neg++
		}
	}
	return pos, neg
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
