// Package model defines the capability interface between the resampling
// harness and whatever supervised classifier is plugged into it, plus a
// reference logistic-regression implementation. The harness never
// depends on which algorithm sits behind the interface.
package model

import "fmt"

// Predictor scores unseen rows. For probabilistic classifiers the
// scores are interpretable as [0, 1] probabilities of the positive
// class.
type Predictor interface {
	Predict(x [][]float64) ([]float64, error)
}

// Adapter fits a predictor on a training split. Implementations are
// created and discarded per fold; no state survives across folds. Fit
// must fail with a *FitError rather than silently returning a
// degenerate predictor when the training data cannot support a fit.
type Adapter interface {
	Fit(x [][]float64, y []bool) (Predictor, error)
	Name() string
}

// FitError reports that the underlying model could not be fit on a
// given training split, e.g. because of rank deficiency or a single
// response class.
type FitError struct {
	Model  string
	Reason string
}

func (e *FitError) Error() string {
	return fmt.Sprintf("%s fit failed: %s", e.Model, e.Reason)
}
