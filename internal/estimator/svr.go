package estimator

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// SupportVectorRegression is epsilon-insensitive regression with an RBF
// kernel. The bias is absorbed into the kernel (k + 1), which turns the dual
// into a box-constrained problem solved by coordinate descent:
//
//	min 1/2 b'Kb - y'b + Epsilon*|b|_1   s.t. -C <= b_i <= C
//
// Gamma 0 selects 1 / (d * Var(X)).
type SupportVectorRegression struct {
	C       float64
	Epsilon float64
	Gamma   float64
	MaxIter int
	Tol     float64

	support [][]float64
	dual    []float64
	gamma   float64
	dims    int
	fitted  bool
}

func (s *SupportVectorRegression) Fit(x [][]float64, y []float64) error {
	d, err := checkTraining(x, y)
	if err != nil {
		return err
	}

	s.dims = d
	s.gamma = s.Gamma
	if s.gamma <= 0 {
		s.gamma = scaleGamma(x, d)
	}

	n := len(x)
	kernel := make([][]float64, n)
	for i := range kernel {
		kernel[i] = make([]float64, n)
	}
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			k := s.kernel(x[i], x[j])
			kernel[i][j], kernel[j][i] = k, k
		}
	}

	beta := make([]float64, n)
	// f = K * beta
	f := make([]float64, n)
	for iter := 0; iter < s.MaxIter; iter++ {
		maxDelta := 0.0
		for i := 0; i < n; i++ {
			kii := kernel[i][i]
			z := beta[i] - (f[i]-y[i])/kii
			next := clamp(softThreshold(z, s.Epsilon/kii), -s.C, s.C)

			delta := next - beta[i]
			if delta == 0 {
				continue
			}
			beta[i] = next
			floats.AddScaled(f, delta, kernel[i])
			maxDelta = math.Max(maxDelta, math.Abs(delta))
		}
		if maxDelta < s.Tol {
			break
		}
	}

	s.support = s.support[:0]
	s.dual = s.dual[:0]
	for i, b := range beta {
		if b == 0 {
			continue
		}
		row := make([]float64, d)
		copy(row, x[i])
		s.support = append(s.support, row)
		s.dual = append(s.dual, b)
	}
	s.fitted = true
	return nil
}

func (s *SupportVectorRegression) Predict(x [][]float64) ([]float64, error) {
	if !s.fitted {
		return nil, ErrNotFitted
	}
	if _, err := checkRows(x, s.dims); err != nil {
		return nil, err
	}

	out := make([]float64, len(x))
	for i, row := range x {
		sum := 0.0
		for j, sv := range s.support {
			sum += s.dual[j] * s.kernel(sv, row)
		}
		out[i] = sum
	}
	return out, nil
}

// SupportVectors returns the number of samples with a non-zero dual weight.
func (s *SupportVectorRegression) SupportVectors() int {
	return len(s.support)
}

func (s *SupportVectorRegression) kernel(a, b []float64) float64 {
	sq := 0.0
	for i := range a {
		diff := a[i] - b[i]
		sq += diff * diff
	}
	return math.Exp(-s.gamma*sq) + 1
}

// scaleGamma returns 1 / (d * Var(X)) over every cell of x, or 1 when that
// is undefined.
func scaleGamma(x [][]float64, d int) float64 {
	if d == 0 {
		return 1
	}
	cells := make([]float64, 0, len(x)*d)
	for _, row := range x {
		cells = append(cells, row...)
	}
	_, variance := stat.PopMeanVariance(cells, nil)
	if variance == 0 || math.IsNaN(variance) {
		return 1
	}
	return 1 / (float64(d) * variance)
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
