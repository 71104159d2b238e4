package estimator

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// rankTolerance is the relative singular-value cutoff for least squares.
const rankTolerance = 1e-10

// linearModel is an intercept plus one coefficient per feature.
type linearModel struct {
	coef      []float64
	intercept float64
	fitted    bool
}

func (m *linearModel) Predict(x [][]float64) ([]float64, error) {
	if !m.fitted {
		return nil, ErrNotFitted
	}
	if _, err := checkRows(x, len(m.coef)); err != nil {
		return nil, err
	}
	out := make([]float64, len(x))
	for i, row := range x {
		out[i] = m.intercept + floats.Dot(m.coef, row)
	}
	return out, nil
}

// Coefficients returns a copy of the fitted coefficients.
func (m *linearModel) Coefficients() []float64 {
	out := make([]float64, len(m.coef))
	copy(out, m.coef)
	return out
}

// Intercept returns the fitted intercept.
func (m *linearModel) Intercept() float64 {
	return m.intercept
}

// centered holds a mean-centred design matrix.
type centered struct {
	x     *mat.Dense
	y     *mat.VecDense
	xMean []float64
	yMean float64
}

// center subtracts column means from x and the mean from y. It must only be
// called with at least one feature column.
func center(x [][]float64, y []float64, d int) centered {
	n := len(x)
	xMean := make([]float64, d)
	col := make([]float64, n)
	for j := 0; j < d; j++ {
		for i, row := range x {
			col[i] = row[j]
		}
		xMean[j] = stat.Mean(col, nil)
	}
	yMean := stat.Mean(y, nil)

	xc := mat.NewDense(n, d, nil)
	yc := mat.NewVecDense(n, nil)
	for i, row := range x {
		for j, v := range row {
			xc.Set(i, j, v-xMean[j])
		}
		yc.SetVec(i, y[i]-yMean)
	}
	return centered{x: xc, y: yc, xMean: xMean, yMean: yMean}
}

// finish converts centred coefficients into an intercept.
func (m *linearModel) finish(coef []float64, c centered) {
	m.coef = coef
	m.intercept = c.yMean - floats.Dot(coef, c.xMean)
	m.fitted = true
}

// fitMean handles a design with no features.
func (m *linearModel) fitMean(y []float64) {
	m.coef = nil
	m.intercept = stat.Mean(y, nil)
	m.fitted = true
}

// LinearRegression is ordinary least squares with an intercept. Rank
// deficient designs get the minimum-norm solution.
type LinearRegression struct {
	linearModel
}

func (r *LinearRegression) Fit(x [][]float64, y []float64) error {
	d, err := checkTraining(x, y)
	if err != nil {
		return err
	}
	if d == 0 {
		r.fitMean(y)
		return nil
	}

	c := center(x, y, d)
	coef, err := leastSquares(c.x, c.y)
	if err != nil {
		return err
	}
	r.finish(coef, c)
	return nil
}

// leastSquares returns the minimum-norm solution of min |a*w - b|.
func leastSquares(a *mat.Dense, b *mat.VecDense) ([]float64, error) {
	_, d := a.Dims()

	var svd mat.SVD
	if ok := svd.Factorize(a, mat.SVDThin); !ok {
		return nil, fmt.Errorf("least squares: SVD factorization failed")
	}
	rank := svd.Rank(rankTolerance)
	if rank == 0 {
		return make([]float64, d), nil
	}

	var w mat.Dense
	svd.SolveTo(&w, b, rank)

	coef := make([]float64, d)
	for j := range coef {
		coef[j] = w.At(j, 0)
	}
	return coef, nil
}

// RidgeRegression is least squares with an L2 penalty Alpha on the
// coefficients. The intercept is not penalised.
type RidgeRegression struct {
	linearModel
	Alpha float64
}

func (r *RidgeRegression) Fit(x [][]float64, y []float64) error {
	d, err := checkTraining(x, y)
	if err != nil {
		return err
	}
	if d == 0 {
		r.fitMean(y)
		return nil
	}

	c := center(x, y, d)

	// (X'X + alpha I) w = X'y
	var gram mat.SymDense
	gram.SymOuterK(1, c.x.T())
	for j := 0; j < d; j++ {
		gram.SetSym(j, j, gram.At(j, j)+r.Alpha)
	}
	var xty mat.VecDense
	xty.MulVec(c.x.T(), c.y)

	var chol mat.Cholesky
	if ok := chol.Factorize(&gram); !ok {
		// alpha == 0 on a singular design
		coef, err := leastSquares(c.x, c.y)
		if err != nil {
			return err
		}
		r.finish(coef, c)
		return nil
	}

	var w mat.VecDense
	if err := chol.SolveVecTo(&w, &xty); err != nil {
		return fmt.Errorf("ridge solve: %w", err)
	}
	r.finish(mat.Col(nil, 0, &w), c)
	return nil
}

// LassoRegression minimises (1/2n)|y - Xw - b|^2 + Alpha*|w|_1 by cyclic
// coordinate descent.
type LassoRegression struct {
	linearModel
	Alpha   float64
	MaxIter int
	Tol     float64
}

func (r *LassoRegression) Fit(x [][]float64, y []float64) error {
	d, err := checkTraining(x, y)
	if err != nil {
		return err
	}
	if d == 0 {
		r.fitMean(y)
		return nil
	}

	c := center(x, y, d)
	n, _ := c.x.Dims()

	cols := make([][]float64, d)
	norms := make([]float64, d)
	for j := range cols {
		cols[j] = mat.Col(nil, j, c.x)
		norms[j] = floats.Dot(cols[j], cols[j])
	}

	coef := make([]float64, d)
	residual := mat.Col(nil, 0, c.y)
	threshold := r.Alpha * float64(n)

	for iter := 0; iter < r.MaxIter; iter++ {
		maxDelta, maxCoef := 0.0, 0.0
		for j := 0; j < d; j++ {
			if norms[j] == 0 {
				continue
			}
			old := coef[j]
			rho := floats.Dot(cols[j], residual) + norms[j]*old
			coef[j] = softThreshold(rho, threshold) / norms[j]

			if delta := coef[j] - old; delta != 0 {
				floats.AddScaled(residual, -delta, cols[j])
				maxDelta = math.Max(maxDelta, math.Abs(delta))
			}
			maxCoef = math.Max(maxCoef, math.Abs(coef[j]))
		}
		if maxDelta <= r.Tol*math.Max(maxCoef, 1) {
			break
		}
	}

	r.finish(coef, c)
	return nil
}

func softThreshold(v, t float64) float64 {
	switch {
	case v > t:
		return v - t
	case v < -t:
		return v + t
	default:
		return 0
	}
}
