package estimator

import (
	"gonum.org/v1/gonum/stat"
)

// GradientBoosting is a second-order gradient-boosted tree ensemble for
// squared error, starting from the mean target.
type GradientBoosting struct {
	Rounds         int
	LearningRate   float64
	MaxDepth       int
	Lambda         float64
	MinChildWeight float64

	base   float64
	trees  []*regressionTree
	dims   int
	fitted bool
}

func (m *GradientBoosting) Fit(x [][]float64, y []float64) error {
	d, err := checkTraining(x, y)
	if err != nil {
		return err
	}

	n := len(x)
	m.dims = d
	m.base = stat.Mean(y, nil)
	m.trees = m.trees[:0]

	pred := make([]float64, n)
	for i := range pred {
		pred[i] = m.base
	}
	grad := make([]float64, n)
	hess := make([]float64, n)
	rows := make([]int, n)
	for i := range rows {
		rows[i] = i
		hess[i] = 1
	}

	cfg := treeConfig{maxDepth: m.MaxDepth, lambda: m.Lambda, minChildWeight: m.MinChildWeight}
	for round := 0; round < m.Rounds; round++ {
		for i := range grad {
			grad[i] = pred[i] - y[i]
		}
		tree := growTree(x, grad, hess, rows, d, cfg)
		for i, row := range x {
			pred[i] += m.LearningRate * tree.predict(row)
		}
		m.trees = append(m.trees, tree)
	}

	m.fitted = true
	return nil
}

func (m *GradientBoosting) Predict(x [][]float64) ([]float64, error) {
	if !m.fitted {
		return nil, ErrNotFitted
	}
	if _, err := checkRows(x, m.dims); err != nil {
		return nil, err
	}

	out := make([]float64, len(x))
	for i, row := range x {
		v := m.base
		for _, tree := range m.trees {
			v += m.LearningRate * tree.predict(row)
		}
		out[i] = v
	}
	return out, nil
}
