package testutil

import (
	"math"
	"math/rand"
	"time"

	"filterfinder/internal/timeseries"
)

// FixtureStart is the first timestamp of every generated series.
var FixtureStart = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// NoisyWalk returns a deterministic random walk with observation noise.
func NoisyWalk(n int, seed int64) *timeseries.Series {
	rng := rand.New(rand.NewSource(seed))
	values := make([]float64, n)
	level := 100.0
	for i := range values {
		level += rng.NormFloat64() * 0.1
		values[i] = level + rng.NormFloat64()
	}
	return timeseries.FromValues(FixtureStart, values)
}

// Line returns intercept + slope*i for i in [0,n).
func Line(n int, intercept, slope float64) *timeseries.Series {
	values := make([]float64, n)
	for i := range values {
		values[i] = intercept + slope*float64(i)
	}
	return timeseries.FromValues(FixtureStart, values)
}

// Seasonal returns a sine wave of the given period plus Gaussian noise.
func Seasonal(n int, period, noise float64, seed int64) *timeseries.Series {
	rng := rand.New(rand.NewSource(seed))
	values := make([]float64, n)
	for i := range values {
		values[i] = 10*math.Sin(2*math.Pi*float64(i)/period) + rng.NormFloat64()*noise
	}
	return timeseries.FromValues(FixtureStart, values)
}

// Points converts a series into the request representation used by the API.
func Points(series *timeseries.Series) []timeseries.Point {
	return series.Points()
}
