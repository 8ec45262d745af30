package model

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogistic_FitSeparatesClasses(t *testing.T) {
	t.Parallel()

	// Noisy 1-D problem: positives sit around +2, negatives around -2.
	rng := rand.New(rand.NewSource(4))
	var x [][]float64
	var y []bool
	for i := 0; i < 100; i++ {
		positive := i%2 == 0
		center := -2.0
		if positive {
			center = 2.0
		}
		x = append(x, []float64{center + rng.NormFloat64()})
		y = append(y, positive)
	}

	predictor, err := NewLogistic().Fit(x, y)
	require.NoError(t, err)

	scores, err := predictor.Predict([][]float64{{-3}, {3}})
	require.NoError(t, err)
	require.Len(t, scores, 2)

	assert.Less(t, scores[0], 0.5, "score at -3 should favor the negative class")
	assert.Greater(t, scores[1], 0.5, "score at +3 should favor the positive class")
	for _, s := range scores {
		assert.GreaterOrEqual(t, s, 0.0)
		assert.LessOrEqual(t, s, 1.0)
	}
}

func TestLogistic_RecoversKnownCoefficients(t *testing.T) {
	t.Parallel()

	// Deterministic grid with a monotone response in x keeps the MLE
	// close to a positive slope without relying on randomness.
	var x [][]float64
	var y []bool
	for i := -50; i <= 50; i++ {
		v := float64(i) / 10
		x = append(x, []float64{v})
		y = append(y, v > 0.3 || (v > -0.3 && i%2 == 0))
	}

	predictor, err := NewLogistic().Fit(x, y)
	require.NoError(t, err)

	m, ok := predictor.(*LogisticModel)
	require.True(t, ok)
	require.Len(t, m.Coef, 2)
	assert.Positive(t, m.Coef[1], "slope should be positive for a monotone response")
}

func TestLogistic_SingleClassFails(t *testing.T) {
	t.Parallel()

	x := [][]float64{{1}, {2}, {3}}
	y := []bool{true, true, true}

	_, err := NewLogistic().Fit(x, y)
	require.Error(t, err)

	var fitErr *FitError
	require.True(t, errors.As(err, &fitErr), "expected *FitError, got %T", err)
}

func TestLogistic_RankDeficientFails(t *testing.T) {
	t.Parallel()

	// Second column is identically zero, so the weighted design matrix
	// is exactly singular.
	rng := rand.New(rand.NewSource(9))
	var x [][]float64
	var y []bool
	for i := 0; i < 40; i++ {
		v := rng.NormFloat64()
		x = append(x, []float64{v, 0})
		y = append(y, v > 0 == (i%7 != 0))
	}

	_, err := NewLogistic().Fit(x, y)
	require.Error(t, err)

	var fitErr *FitError
	require.True(t, errors.As(err, &fitErr), "expected *FitError, got %T", err)
}

func TestLogistic_ShapeValidation(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name string
		x    [][]float64
		y    []bool
	}{
		{"empty", nil, nil},
		{"mismatched labels", [][]float64{{1}}, []bool{true, false}},
		{"no columns", [][]float64{{}, {}}, []bool{true, false}},
		{"ragged rows", [][]float64{{1, 2}, {3}}, []bool{true, false}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewLogistic().Fit(tc.x, tc.y)
			var fitErr *FitError
			require.True(t, errors.As(err, &fitErr), "expected *FitError, got %v", err)
		})
	}
}

func TestLogisticModel_PredictShapeMismatch(t *testing.T) {
	t.Parallel()

	m := &LogisticModel{Coef: []float64{0, 1}}
	_, err := m.Predict([][]float64{{1, 2}})
	require.Error(t, err)
}
