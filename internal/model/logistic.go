package model

import (
	"fmt"
	"math"

	"github.com/rs/zerolog/log"
)

const (
	defaultMaxIterations = 50
	defaultTolerance     = 1e-8

	// Fitted probabilities are clamped away from 0 and 1 so the IRLS
	// weight matrix stays invertible under near-perfect separation.
	probFloor = 1e-9
)

// Logistic is a generalized linear model with a logit link, trained by
// maximum likelihood via iteratively reweighted least squares. It is
// the reference Adapter implementation.
type Logistic struct {
	MaxIterations int
	Tolerance     float64
}

// NewLogistic returns a logistic-regression adapter with default
// convergence settings.
func NewLogistic() *Logistic {
	return &Logistic{
		MaxIterations: defaultMaxIterations,
		Tolerance:     defaultTolerance,
	}
}

func (l *Logistic) Name() string { return "logistic" }

// LogisticModel holds fitted coefficients. Coef[0] is the intercept;
// Coef[1:] align with predictor columns.
type LogisticModel struct {
	Coef []float64
}

// Fit estimates coefficients by IRLS. It fails with a *FitError when
// the training split is empty, single-class, rank-deficient, or
// produces non-finite estimates.
func (l *Logistic) Fit(x [][]float64, y []bool) (Predictor, error) {
	if len(x) == 0 || len(x) != len(y) {
		return nil, &FitError{Model: l.Name(), Reason: fmt.Sprintf("bad training shape: %d rows, %d labels", len(x), len(y))}
	}
	cols := len(x[0])
	if cols == 0 {
		return nil, &FitError{Model: l.Name(), Reason: "no predictor columns"}
	}
	for i, row := range x {
		if len(row) != cols {
			return nil, &FitError{Model: l.Name(), Reason: fmt.Sprintf("row %d has %d columns, expected %d", i, len(row), cols)}
		}
	}
	if singleClass(y) {
		return nil, &FitError{Model: l.Name(), Reason: "training response contains a single class"}
	}

	maxIter := l.MaxIterations
	if maxIter <= 0 {
		maxIter = defaultMaxIterations
	}
	tol := l.Tolerance
	if tol <= 0 {
		tol = defaultTolerance
	}

	p := cols + 1 // intercept plus predictors
	coef := make([]float64, p)
	eta := make([]float64, len(x))
	mu := make([]float64, len(x))

	for iter := 0; iter < maxIter; iter++ {
		for i, row := range x {
			e := coef[0]
			for j, v := range row {
				e += coef[j+1] * v
			}
			eta[i] = e
			mu[i] = sigmoid(e)
		}

		// Weighted normal equations: (X'WX) delta = X'(y - mu).
		xtwx := make([][]float64, p)
		for j := range xtwx {
			xtwx[j] = make([]float64, p)
		}
		xtr := make([]float64, p)

		for i, row := range x {
			m := clampProb(mu[i])
			w := m * (1 - m)
			r := observed(y[i]) - mu[i]

			xi := make([]float64, p)
			xi[0] = 1
			copy(xi[1:], row)

			for a := 0; a < p; a++ {
				xtr[a] += xi[a] * r
				wa := w * xi[a]
				for b := a; b < p; b++ {
					xtwx[a][b] += wa * xi[b]
				}
			}
		}
		for a := 1; a < p; a++ {
			for b := 0; b < a; b++ {
				xtwx[a][b] = xtwx[b][a]
			}
		}

		delta, err := solve(xtwx, xtr)
		if err != nil {
			return nil, &FitError{Model: l.Name(), Reason: fmt.Sprintf("rank-deficient design matrix: %v", err)}
		}

		var step float64
		for j := range coef {
			coef[j] += delta[j]
			if d := math.Abs(delta[j]); d > step {
				step = d
			}
			if math.IsNaN(coef[j]) || math.IsInf(coef[j], 0) {
				return nil, &FitError{Model: l.Name(), Reason: "coefficients diverged to non-finite values"}
			}
		}

		if step < tol {
			return &LogisticModel{Coef: coef}, nil
		}
	}

	// Plateaued step sizes under quasi-separation still yield a usable
	// ranking model, so a warn-and-return beats failing the fold.
	log.Warn().
		Int("iterations", maxIter).
		Float64("tolerance", tol).
		Msg("Logistic fit stopped before full convergence")

	return &LogisticModel{Coef: coef}, nil
}

// Predict returns positive-class probabilities for each row.
func (m *LogisticModel) Predict(x [][]float64) ([]float64, error) {
	scores := make([]float64, len(x))
	for i, row := range x {
		if len(row) != len(m.Coef)-1 {
			return nil, fmt.Errorf("row %d has %d columns, model expects %d", i, len(row), len(m.Coef)-1)
		}
		e := m.Coef[0]
		for j, v := range row {
			e += m.Coef[j+1] * v
		}
		scores[i] = sigmoid(e)
	}
	return scores, nil
}

// solve performs Gaussian elimination with partial pivoting on a copy
// of the inputs. A vanishing pivot signals a singular system.
func solve(a [][]float64, b []float64) ([]float64, error) {
	n := len(b)
	m := make([][]float64, n)
	for i := range m {
		m[i] = make([]float64, n+1)
		copy(m[i], a[i])
		m[i][n] = b[i]
	}

	for col := 0; col < n; col++ {
		pivot := col
		for row := col + 1; row < n; row++ {
			if math.Abs(m[row][col]) > math.Abs(m[pivot][col]) {
				pivot = row
			}
		}
		if math.Abs(m[pivot][col]) < 1e-12 {
			return nil, fmt.Errorf("singular pivot at column %d", col)
		}
		m[col], m[pivot] = m[pivot], m[col]

		for row := col + 1; row < n; row++ {
			f := m[row][col] / m[col][col]
			for k := col; k <= n; k++ {
				m[row][k] -= f * m[col][k]
			}
		}
	}

	x := make([]float64, n)
	for row := n - 1; row >= 0; row-- {
		sum := m[row][n]
		for col := row + 1; col < n; col++ {
			sum -= m[row][col] * x[col]
		}
		x[row] = sum / m[row][row]
	}
	return x, nil
}

func sigmoid(e float64) float64 {
	if e > 0 {
		return 1 / (1 + math.Exp(-e))
	}
	ex := math.Exp(e)
	return ex / (1 + ex)
}

func clampProb(p float64) float64 {
	if p < probFloor {
		return probFloor
	}
	if p > 1-probFloor {
		return 1 - probFloor
	}
	return p
}

func observed(v bool) float64 {
	if v {
		return 1
	}
	return 0
}

func singleClass(y []bool) bool {
	first := y[0]
	for _, v := range y[1:] {
		if v != first {
			return false
		}
	}
	return true
}
