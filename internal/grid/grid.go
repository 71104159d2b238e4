// Package grid enumerates the exhaustive candidate lists searched for each
// filter family.
package grid

import (
	"fmt"

	"filterfinder/internal/filters"
)

const (
	// lagStride is the step of the q and window progressions.
	lagStride = 5
	// lagCap bounds the q and window progressions regardless of series length.
	lagCap = 105

	alphaStart = 0.01
	alphaStep  = 0.04
)

// QRange returns the lag orders swept for the filtered series. A fixed q
// yields the singleton [q]; otherwise 1, 6, 11, ... below
// min(floor(0.1*n), 105).
func QRange(n int, q *int) []int {
	if q != nil {
		return []int{*q}
	}
	return strideRange(n)
}

// WindowRange returns the moving-average windows swept for a series of
// length n. It follows the same progression as an unfixed QRange.
func WindowRange(n int) []int {
	return strideRange(n)
}

// AlphaRange returns 0.01, 0.05, 0.09, ... below 1.0.
func AlphaRange() []float64 {
	var out []float64
	for i := 0; ; i++ {
		alpha := alphaStart + float64(i)*alphaStep
		if alpha >= 1.0 {
			break
		}
		out = append(out, alpha)
	}
	return out
}

func strideRange(n int) []int {
	limit := min(int(float64(n)*0.1), lagCap)
	var out []int
	for v := 1; v < limit; v += lagStride {
		out = append(out, v)
	}
	return out
}

// MovingAverage returns the un-smoothed baseline {Q:0, Window:0} followed by
// the q x window product, q varying slowest.
func MovingAverage(n, p int, q *int) []filters.Params {
	qs := QRange(n, q)
	windows := WindowRange(n)

	out := make([]filters.Params, 0, 1+len(qs)*len(windows))
	out = append(out, filters.MovingAverage{Q: 0, Window: 0, P: p})
	for _, qv := range qs {
		for _, w := range windows {
			out = append(out, filters.MovingAverage{Q: qv, Window: w, P: p})
		}
	}
	return out
}

// ExpMovingAverage returns the q x alpha product, q varying slowest. There is
// no baseline candidate.
func ExpMovingAverage(n, p int, q *int) []filters.Params {
	qs := QRange(n, q)
	alphas := AlphaRange()

	out := make([]filters.Params, 0, len(qs)*len(alphas))
	for _, qv := range qs {
		for _, a := range alphas {
			out = append(out, filters.ExpMovingAverage{Q: qv, Alpha: a, P: p})
		}
	}
	return out
}

// Kalman returns one candidate per q; the state-space model itself is fixed.
func Kalman(n, p int, q *int) []filters.Params {
	qs := QRange(n, q)
	out := make([]filters.Params, 0, len(qs))
	for _, qv := range qs {
		out = append(out, filters.Kalman{Q: qv, P: p})
	}
	return out
}

// ForFamily dispatches to the generator of family.
func ForFamily(family filters.Family, n, p int, q *int) ([]filters.Params, error) {
	switch family {
	case filters.FamilyMovingAverage:
		return MovingAverage(n, p, q), nil
	case filters.FamilyExpMovingAverage:
		return ExpMovingAverage(n, p, q), nil
	case filters.FamilyKalman:
		return Kalman(n, p, q), nil
	default:
		return nil, fmt.Errorf("unknown filter family %q", family)
	}
}
