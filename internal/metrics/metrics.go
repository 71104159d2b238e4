// Package metrics scores held-out predictions and maps metric names to the
// field and direction the ranker sorts by.
package metrics

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

var (
	// ErrEmpty is returned when there is nothing to score.
	ErrEmpty = errors.New("no observations to score")
	// ErrLengthMismatch is returned when predictions and targets differ in length.
	ErrLengthMismatch = errors.New("prediction and target lengths differ")
)

// Final holds the held-out scores of one candidate.
type Final struct {
	MAE float64 `json:"mae"`
	MSE float64 `json:"mse"`
	R2  float64 `json:"r2"`
}

// MarshalJSON writes undefined scores as null.
func (f Final) MarshalJSON() ([]byte, error) {
	type jsonFinal struct {
		MAE *float64 `json:"mae"`
		MSE *float64 `json:"mse"`
		R2  *float64 `json:"r2"`
	}
	return json.Marshal(jsonFinal{MAE: finite(f.MAE), MSE: finite(f.MSE), R2: finite(f.R2)})
}

func finite(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

// Name selects the ranking metric.
type Name string

const (
	MAE Name = "mae"
	MSE Name = "mse"
	R2  Name = "r2"
)

// Names lists the supported metric names.
func Names() []Name {
	return []Name{MAE, MSE, R2}
}

// ParseName validates a metric name.
func ParseName(s string) (Name, error) {
	switch n := Name(strings.ToLower(strings.TrimSpace(s))); n {
	case MAE, MSE, R2:
		return n, nil
	default:
		return "", fmt.Errorf("unknown metric %q (expected mae, mse or r2)", s)
	}
}

// Value returns the field of f selected by n. Unknown names yield NaN.
func (n Name) Value(f Final) float64 {
	switch n {
	case MAE:
		return f.MAE
	case MSE:
		return f.MSE
	case R2:
		return f.R2
	default:
		return math.NaN()
	}
}

// Maximize reports whether higher values of n are better.
func (n Name) Maximize() bool {
	return n == R2
}

// Score computes MAE, MSE and R² of yPred against yTrue.
//
// R² follows the usual convention for a constant target: 1 for a perfect
// prediction and 0 otherwise.
func Score(yTrue, yPred []float64) (Final, error) {
	if len(yTrue) != len(yPred) {
		return Final{}, fmt.Errorf("%w: %d targets, %d predictions", ErrLengthMismatch, len(yTrue), len(yPred))
	}
	if len(yTrue) == 0 {
		return Final{}, ErrEmpty
	}

	n := float64(len(yTrue))
	mae := floats.Distance(yTrue, yPred, 1) / n
	l2 := floats.Distance(yTrue, yPred, 2)
	mse := l2 * l2 / n

	return Final{MAE: mae, MSE: mse, R2: rSquared(yTrue, yPred, mse)}, nil
}

func rSquared(yTrue, yPred []float64, mse float64) float64 {
	mean := stat.Mean(yTrue, nil)
	ssTot := 0.0
	for _, v := range yTrue {
		d := v - mean
		ssTot += d * d
	}
	if ssTot == 0 {
		if mse == 0 {
			return 1
		}
		return 0
	}
	return stat.RSquaredFrom(yPred, yTrue, nil)
}
