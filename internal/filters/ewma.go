package filters

import (
	"math"

	"filterfinder/internal/timeseries"
)

// ExpMovingAverageFilter returns the adjusted exponentially weighted mean
//
//	y_t = sum_k (1-alpha)^k * x_{t-k} / sum_k (1-alpha)^k
//
// computed recursively. There is no undefined prefix. Undefined inputs keep
// decaying the weights of earlier samples but contribute nothing themselves;
// an output is undefined only while no defined input has been seen.
func ExpMovingAverageFilter(series *timeseries.Series, alpha float64) *timeseries.Series {
	values := series.Values()
	out := make([]float64, len(values))
	decay := 1 - alpha

	num, den := 0.0, 0.0
	for i, v := range values {
		num *= decay
		den *= decay
		if !math.IsNaN(v) {
			num += v
			den++
		}

		if den == 0 {
			out[i] = math.NaN()
			continue
		}
		out[i] = num / den
	}

	smoothed, _ := series.WithValues(out)
	return smoothed
}
