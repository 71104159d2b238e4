package estimator

import (
	"math/rand"
)

// RandomForestRegression averages fully grown squared-error trees fitted to
// bootstrap resamples. Seed makes the resampling reproducible.
type RandomForestRegression struct {
	Trees    int
	MaxDepth int
	Seed     int64

	trees  []*regressionTree
	dims   int
	fitted bool
}

func (f *RandomForestRegression) Fit(x [][]float64, y []float64) error {
	d, err := checkTraining(x, y)
	if err != nil {
		return err
	}

	n := len(x)
	f.dims = d
	f.trees = f.trees[:0]

	grad := make([]float64, n)
	hess := make([]float64, n)
	for i := range grad {
		grad[i] = -y[i]
		hess[i] = 1
	}

	rng := rand.New(rand.NewSource(f.Seed))
	cfg := treeConfig{maxDepth: f.MaxDepth, minChildWeight: 1}
	rows := make([]int, n)
	for t := 0; t < f.Trees; t++ {
		for i := range rows {
			rows[i] = rng.Intn(n)
		}
		f.trees = append(f.trees, growTree(x, grad, hess, rows, d, cfg))
	}

	f.fitted = true
	return nil
}

func (f *RandomForestRegression) Predict(x [][]float64) ([]float64, error) {
	if !f.fitted {
		return nil, ErrNotFitted
	}
	if _, err := checkRows(x, f.dims); err != nil {
		return nil, err
	}

	out := make([]float64, len(x))
	for i, row := range x {
		sum := 0.0
		for _, tree := range f.trees {
			sum += tree.predict(row)
		}
		out[i] = sum / float64(len(f.trees))
	}
	return out, nil
}
