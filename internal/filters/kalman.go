package filters

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"filterfinder/internal/timeseries"
)

// KalmanModel is a linear Gaussian state-space model with a scalar observation.
// A nil InitialMean starts from the zero state; a nil InitialCovariance starts
// from tr(H)*25 on the diagonal.
type KalmanModel struct {
	Transition        *mat.Dense    // F, n x n
	ProcessNoise      *mat.Dense    // Q, n x n
	Observation       *mat.Dense    // H, 1 x n
	ObservationNoise  float64       // R
	InitialMean       *mat.VecDense // prior state for the first observation
	InitialCovariance *mat.Dense    // prior covariance, n x n
}

// priorVariance scales the default prior covariance
const priorVariance = 5 * 5

// DefaultKalmanModel returns the constant-velocity model used by the search:
// state [level, velocity], F = [[1,1],[0,1]], Q = diag(0.1, 0.01),
// H = [1,0], R = 1.0, with a zero prior of covariance 25*I. It is not part of
// the search grid.
func DefaultKalmanModel() KalmanModel {
	return KalmanModel{
		Transition:       mat.NewDense(2, 2, []float64{1, 1, 0, 1}),
		ProcessNoise:     mat.NewDense(2, 2, []float64{0.1, 0, 0, 0.01}),
		Observation:      mat.NewDense(1, 2, []float64{1, 0}),
		ObservationNoise: 1.0,
	}
}

// prior returns the state and covariance assumed before the first
// observation
func (m KalmanModel) prior() (*mat.VecDense, *mat.Dense) {
	dim, _ := m.Transition.Dims()

	x0 := m.InitialMean
	if x0 == nil {
		x0 = mat.NewVecDense(dim, nil)
	}
	p0 := m.InitialCovariance
	if p0 == nil {
		// the trace of a 1 x n observation matrix is its first entry
		scale := m.Observation.At(0, 0) * priorVariance
		p0 = mat.NewDense(dim, dim, nil)
		for i := 0; i < dim; i++ {
			p0.Set(i, i, scale)
		}
	}
	return x0, p0
}

// KalmanSmooth runs a forward Kalman filter followed by a Rauch-Tung-Striebel
// backward pass over the whole series and returns the smoothed first state
// component. Undefined observations skip the update step, so the output is
// fully defined as long as one observation is.
func KalmanSmooth(series *timeseries.Series, model KalmanModel) (*timeseries.Series, error) {
	values := series.Values()
	n := len(values)
	if n == 0 {
		return series.WithValues(nil)
	}
	if series.CountDefined() == 0 {
		out := make([]float64, n)
		for i := range out {
			out[i] = math.NaN()
		}
		return series.WithValues(out)
	}

	x0, p0 := model.prior()

	predMean := make([]*mat.VecDense, n)
	predCov := make([]*mat.Dense, n)
	filtMean := make([]*mat.VecDense, n)
	filtCov := make([]*mat.Dense, n)

	for t := 0; t < n; t++ {
		var xPred mat.VecDense
		var pPred mat.Dense
		if t == 0 {
			xPred.CloneFromVec(x0)
			pPred.CloneFrom(p0)
		} else {
			xPred.MulVec(model.Transition, filtMean[t-1])
			var fp mat.Dense
			fp.Mul(model.Transition, filtCov[t-1])
			pPred.Mul(&fp, model.Transition.T())
			pPred.Add(&pPred, model.ProcessNoise)
		}
		predMean[t] = &xPred
		predCov[t] = &pPred

		if math.IsNaN(values[t]) {
			var x mat.VecDense
			x.CloneFromVec(&xPred)
			var p mat.Dense
			p.CloneFrom(&pPred)
			filtMean[t], filtCov[t] = &x, &p
			continue
		}

		x, p := kalmanUpdate(model, &xPred, &pPred, values[t])
		filtMean[t], filtCov[t] = x, p
	}

	smoothed := make([]*mat.VecDense, n)
	smoothed[n-1] = filtMean[n-1]
	smoothedCov := filtCov[n-1]

	for t := n - 2; t >= 0; t-- {
		var predInv mat.Dense
		if err := predInv.Inverse(predCov[t+1]); err != nil {
			return nil, fmt.Errorf("kalman smoother: invert predicted covariance at %d: %w", t+1, err)
		}

		// C = P_f[t] F^T P_pred[t+1]^-1
		var gain, tmp mat.Dense
		tmp.Mul(filtCov[t], model.Transition.T())
		gain.Mul(&tmp, &predInv)

		var diff mat.VecDense
		diff.SubVec(smoothed[t+1], predMean[t+1])
		var correction mat.VecDense
		correction.MulVec(&gain, &diff)
		var xs mat.VecDense
		xs.AddVec(filtMean[t], &correction)
		smoothed[t] = &xs

		var covDiff, left, ps mat.Dense
		covDiff.Sub(smoothedCov, predCov[t+1])
		left.Mul(&gain, &covDiff)
		ps.Mul(&left, gain.T())
		ps.Add(&ps, filtCov[t])
		smoothedCov = &ps
	}

	out := make([]float64, n)
	for t, x := range smoothed {
		out[t] = x.AtVec(0)
	}
	return series.WithValues(out)
}

// kalmanUpdate applies the measurement update for a scalar observation z.
func kalmanUpdate(model KalmanModel, xPred *mat.VecDense, pPred *mat.Dense, z float64) (*mat.VecDense, *mat.Dense) {
	dim := xPred.Len()

	// S = H P H^T + R
	var hp mat.Dense
	hp.Mul(model.Observation, pPred)
	var hph mat.Dense
	hph.Mul(&hp, model.Observation.T())
	s := hph.At(0, 0) + model.ObservationNoise

	// K = P H^T / S
	var pht mat.Dense
	pht.Mul(pPred, model.Observation.T())
	gain := mat.NewVecDense(dim, nil)
	for i := 0; i < dim; i++ {
		gain.SetVec(i, pht.At(i, 0)/s)
	}

	var hx mat.VecDense
	hx.MulVec(model.Observation, xPred)
	residual := z - hx.AtVec(0)

	var x mat.VecDense
	x.AddScaledVec(xPred, residual, gain)

	// P = (I - K H) P_pred
	var kh mat.Dense
	kh.Outer(1, gain, mat.NewVecDense(dim, mat.Row(nil, 0, model.Observation)))
	ikh := mat.NewDense(dim, dim, nil)
	for i := 0; i < dim; i++ {
		ikh.Set(i, i, 1)
	}
	ikh.Sub(ikh, &kh)
	var p mat.Dense
	p.Mul(ikh, pPred)

	return &x, &p
}
