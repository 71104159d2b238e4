// Package estimator holds the closed set of regression estimators a search
// can fit. Every candidate gets a fresh, unfitted instance from New.
package estimator

import (
	"errors"
	"fmt"
)

// Estimator is a regressor over dense row-major features.
type Estimator interface {
	// Fit trains on x (one row per sample) and targets y.
	Fit(x [][]float64, y []float64) error
	// Predict returns one prediction per row of x.
	Predict(x [][]float64) ([]float64, error)
}

// Name identifies an estimator.
type Name string

const (
	Linear       Name = "LinearRegression"
	Ridge        Name = "RidgeRegression"
	Lasso        Name = "LassoRegression"
	SVM          Name = "SVM"
	XGBoost      Name = "XGBoostRegression"
	RandomForest Name = "RandomForestRegression"
)

// Default is used when a requested name is not recognised.
const Default = Linear

var (
	ErrNotFitted  = errors.New("estimator is not fitted")
	ErrNoSamples  = errors.New("no training samples")
	ErrDimensions = errors.New("inconsistent feature dimensions")
)

// Names lists the recognised estimator names.
func Names() []Name {
	return []Name{Linear, Ridge, Lasso, SVM, XGBoost, RandomForest}
}

// Resolve maps a configured model name to an estimator name. Unknown names
// resolve to Default with ok set to false so callers can report the
// substitution.
func Resolve(name string) (resolved Name, ok bool) {
	for _, n := range Names() {
		if string(n) == name {
			return n, true
		}
	}
	return Default, false
}

// New returns a fresh, unfitted estimator with default hyperparameters.
func New(name Name) (Estimator, error) {
	switch name {
	case Linear:
		return &LinearRegression{}, nil
	case Ridge:
		return &RidgeRegression{Alpha: 1}, nil
	case Lasso:
		return &LassoRegression{Alpha: 1, MaxIter: 1000, Tol: 1e-4}, nil
	case SVM:
		return &SupportVectorRegression{C: 1, Epsilon: 0.1, MaxIter: 1000, Tol: 1e-3}, nil
	case XGBoost:
		return &GradientBoosting{Rounds: 100, LearningRate: 0.3, MaxDepth: 6, Lambda: 1, MinChildWeight: 1}, nil
	case RandomForest:
		return &RandomForestRegression{Trees: 100, Seed: 1}, nil
	default:
		return nil, fmt.Errorf("unknown estimator %q", name)
	}
}

// checkTraining validates a training set and returns its feature count.
func checkTraining(x [][]float64, y []float64) (int, error) {
	if len(x) == 0 {
		return 0, ErrNoSamples
	}
	if len(x) != len(y) {
		return 0, fmt.Errorf("%w: %d rows, %d targets", ErrDimensions, len(x), len(y))
	}
	return checkRows(x, len(x[0]))
}

// checkRows verifies every row of x has d features.
func checkRows(x [][]float64, d int) (int, error) {
	for i, row := range x {
		if len(row) != d {
			return 0, fmt.Errorf("%w: row %d has %d features, want %d", ErrDimensions, i, len(row), d)
		}
	}
	return d, nil
}
