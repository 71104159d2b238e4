package timeseries

import (
	"encoding/json"
	"fmt"
	"math"
	"time"
)

// Point is a single timestamped observation.
type Point struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
}

// Series is an immutable, strictly time-ordered sequence of scalar observations.
// Undefined entries are stored as NaN. A Series is safe to share read-only
// across goroutines: every accessor returns a copy.
type Series struct {
	timestamps []time.Time
	values     []float64
}

// New builds a Series from parallel timestamp and value slices.
// Timestamps must be strictly increasing (and therefore unique).
func New(timestamps []time.Time, values []float64) (*Series, error) {
	if len(timestamps) != len(values) {
		return nil, &ValidationError{
			Field:   "values",
			Message: fmt.Sprintf("length %d does not match %d timestamps", len(values), len(timestamps)),
			Value:   len(values),
		}
	}

	for i := 1; i < len(timestamps); i++ {
		if !timestamps[i].After(timestamps[i-1]) {
			return nil, &ValidationError{
				Field:   "timestamps",
				Message: fmt.Sprintf("timestamps must be strictly increasing (index %d)", i),
				Value:   timestamps[i],
			}
		}
	}

	ts := make([]time.Time, len(timestamps))
	copy(ts, timestamps)
	vs := make([]float64, len(values))
	copy(vs, values)

	return &Series{timestamps: ts, values: vs}, nil
}

// FromPoints builds a Series from points already sorted by timestamp.
func FromPoints(points []Point) (*Series, error) {
	ts := make([]time.Time, len(points))
	vs := make([]float64, len(points))
	for i, p := range points {
		ts[i] = p.Timestamp
		vs[i] = p.Value
	}
	return New(ts, vs)
}

// FromValues builds a Series over a synthetic daily calendar starting at start.
func FromValues(start time.Time, values []float64) *Series {
	ts := make([]time.Time, len(values))
	for i := range values {
		ts[i] = start.AddDate(0, 0, i)
	}
	vs := make([]float64, len(values))
	copy(vs, values)
	return &Series{timestamps: ts, values: vs}
}

// derive builds a Series sharing the receiver's index. The caller hands over
// ownership of values.
func (s *Series) derive(values []float64) *Series {
	return &Series{timestamps: s.timestamps, values: values}
}

// WithValues returns a new Series over the same index with different values.
func (s *Series) WithValues(values []float64) (*Series, error) {
	if len(values) != len(s.values) {
		return nil, &ValidationError{
			Field:   "values",
			Message: fmt.Sprintf("length %d does not match series length %d", len(values), len(s.values)),
			Value:   len(values),
		}
	}
	vs := make([]float64, len(values))
	copy(vs, values)
	return s.derive(vs), nil
}

// Len returns the number of observations.
func (s *Series) Len() int {
	return len(s.values)
}

// At returns the i-th observation.
func (s *Series) At(i int) Point {
	return Point{Timestamp: s.timestamps[i], Value: s.values[i]}
}

// Value returns the i-th value.
func (s *Series) Value(i int) float64 {
	return s.values[i]
}

// Timestamp returns the i-th timestamp.
func (s *Series) Timestamp(i int) time.Time {
	return s.timestamps[i]
}

// Values returns a copy of the values.
func (s *Series) Values() []float64 {
	out := make([]float64, len(s.values))
	copy(out, s.values)
	return out
}

// Timestamps returns a copy of the index.
func (s *Series) Timestamps() []time.Time {
	out := make([]time.Time, len(s.timestamps))
	copy(out, s.timestamps)
	return out
}

// Points returns the series as a slice of points.
func (s *Series) Points() []Point {
	out := make([]Point, len(s.values))
	for i := range s.values {
		out[i] = Point{Timestamp: s.timestamps[i], Value: s.values[i]}
	}
	return out
}

// IsDefined reports whether the i-th value is not NaN.
func (s *Series) IsDefined(i int) bool {
	return !math.IsNaN(s.values[i])
}

// Slice returns the observations in positions [from, to).
func (s *Series) Slice(from, to int) *Series {
	if from < 0 {
		from = 0
	}
	if to > len(s.values) {
		to = len(s.values)
	}
	if from >= to {
		return &Series{}
	}
	ts := make([]time.Time, to-from)
	copy(ts, s.timestamps[from:to])
	vs := make([]float64, to-from)
	copy(vs, s.values[from:to])
	return &Series{timestamps: ts, values: vs}
}

// Shift moves values forward by k positions (backward when k is negative),
// keeping the index. Vacated positions become NaN.
func (s *Series) Shift(k int) *Series {
	n := len(s.values)
	out := make([]float64, n)
	for i := range out {
		j := i - k
		if j < 0 || j >= n {
			out[i] = math.NaN()
			continue
		}
		out[i] = s.values[j]
	}
	return s.derive(out)
}

// DropUndefined returns the series without NaN entries.
func (s *Series) DropUndefined() *Series {
	ts := make([]time.Time, 0, len(s.values))
	vs := make([]float64, 0, len(s.values))
	for i, v := range s.values {
		if math.IsNaN(v) {
			continue
		}
		ts = append(ts, s.timestamps[i])
		vs = append(vs, v)
	}
	return &Series{timestamps: ts, values: vs}
}

// Reindex returns the values at the given timestamps. Timestamps missing from
// the receiver map to NaN.
func (s *Series) Reindex(timestamps []time.Time) *Series {
	pos := make(map[int64]int, len(s.timestamps))
	for i, t := range s.timestamps {
		pos[t.UnixNano()] = i
	}

	ts := make([]time.Time, len(timestamps))
	vs := make([]float64, len(timestamps))
	for i, t := range timestamps {
		ts[i] = t
		if j, ok := pos[t.UnixNano()]; ok {
			vs[i] = s.values[j]
		} else {
			vs[i] = math.NaN()
		}
	}
	return &Series{timestamps: ts, values: vs}
}

// CountDefined returns the number of non-NaN values.
func (s *Series) CountDefined() int {
	count := 0
	for _, v := range s.values {
		if !math.IsNaN(v) {
			count++
		}
	}
	return count
}

// MarshalJSON encodes the series as a list of points; undefined values are
// written as null.
func (s *Series) MarshalJSON() ([]byte, error) {
	type jsonPoint struct {
		Timestamp time.Time `json:"timestamp"`
		Value     *float64  `json:"value"`
	}
	out := make([]jsonPoint, len(s.values))
	for i, v := range s.values {
		out[i].Timestamp = s.timestamps[i]
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			v := v
			out[i].Value = &v
		}
	}
	return json.Marshal(out)
}

// ValidationError represents invalid series input
type ValidationError struct {
	Field   string      `json:"field"`
	Message string      `json:"message"`
	Value   interface{} `json:"value,omitempty"`
}

// Error implements the error interface
func (ve ValidationError) Error() string {
	return ve.Field + ": " + ve.Message
}
