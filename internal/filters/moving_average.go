package filters

import (
	"math"

	"filterfinder/internal/timeseries"
)

// MovingAverageFilter returns the rolling mean over window consecutive
// samples. The first window-1 entries are undefined, as is any entry whose
// window contains an undefined input. A window of 0 is the un-smoothed
// baseline and returns the input values unchanged.
func MovingAverageFilter(series *timeseries.Series, window int) *timeseries.Series {
	values := series.Values()
	if window <= 0 {
		out, _ := series.WithValues(values)
		return out
	}

	out := make([]float64, len(values))
	// Windows are summed directly so window=1 reproduces the input bit-for-bit.
	for i := range values {
		if i < window-1 {
			out[i] = math.NaN()
			continue
		}

		sum := 0.0
		for _, v := range values[i-window+1 : i+1] {
			sum += v
		}
		// NaN propagates through the sum
		out[i] = sum / float64(window)
	}

	smoothed, _ := series.WithValues(out)
	return smoothed
}
