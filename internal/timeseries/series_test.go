package timeseries

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var day0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func TestNew(t *testing.T) {
	tests := []struct {
		name       string
		timestamps []time.Time
		values     []float64
		wantErr    string
	}{
		{
			name:       "valid series",
			timestamps: []time.Time{day0, day0.AddDate(0, 0, 1), day0.AddDate(0, 0, 2)},
			values:     []float64{1, 2, 3},
		},
		{
			name:       "empty series",
			timestamps: nil,
			values:     nil,
		},
		{
			name:       "length mismatch",
			timestamps: []time.Time{day0},
			values:     []float64{1, 2},
			wantErr:    "values",
		},
		{
			name:       "duplicate timestamp",
			timestamps: []time.Time{day0, day0},
			values:     []float64{1, 2},
			wantErr:    "strictly increasing",
		},
		{
			name:       "decreasing timestamp",
			timestamps: []time.Time{day0.AddDate(0, 0, 1), day0},
			values:     []float64{1, 2},
			wantErr:    "strictly increasing",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := New(tt.timestamps, tt.values)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				var ve *ValidationError
				assert.ErrorAs(t, err, &ve)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, len(tt.values), s.Len())
		})
	}
}

func TestSeriesIsImmutable(t *testing.T) {
	values := []float64{1, 2, 3}
	s := FromValues(day0, values)

	values[0] = 100
	assert.Equal(t, 1.0, s.Value(0), "constructor must copy input")

	out := s.Values()
	out[1] = 200
	assert.Equal(t, 2.0, s.Value(1), "Values must return a copy")
}

func TestShift(t *testing.T) {
	s := FromValues(day0, []float64{1, 2, 3, 4})

	t.Run("forward", func(t *testing.T) {
		shifted := s.Shift(1)
		require.Equal(t, 4, shifted.Len())
		assert.True(t, math.IsNaN(shifted.Value(0)))
		assert.Equal(t, []float64{1, 2, 3}, shifted.Values()[1:])
		assert.Equal(t, s.Timestamps(), shifted.Timestamps())
	})

	t.Run("backward", func(t *testing.T) {
		shifted := s.Shift(-1)
		assert.Equal(t, []float64{2, 3, 4}, shifted.Values()[:3])
		assert.True(t, math.IsNaN(shifted.Value(3)))
	})

	t.Run("beyond length", func(t *testing.T) {
		shifted := s.Shift(10)
		assert.Equal(t, 0, shifted.CountDefined())
	})
}

func TestDropUndefinedAndReindex(t *testing.T) {
	s := FromValues(day0, []float64{math.NaN(), 2, math.NaN(), 4})

	dropped := s.DropUndefined()
	require.Equal(t, 2, dropped.Len())
	assert.Equal(t, []float64{2, 4}, dropped.Values())
	assert.Equal(t, day0.AddDate(0, 0, 1), dropped.Timestamp(0))

	reindexed := s.Reindex([]time.Time{day0.AddDate(0, 0, 3), day0.AddDate(0, 0, 9)})
	assert.Equal(t, 4.0, reindexed.Value(0))
	assert.True(t, math.IsNaN(reindexed.Value(1)))
}

func TestSlice(t *testing.T) {
	s := FromValues(day0, []float64{1, 2, 3, 4, 5})

	assert.Equal(t, []float64{2, 3}, s.Slice(1, 3).Values())
	assert.Equal(t, []float64{4, 5}, s.Slice(3, 99).Values())
	assert.Equal(t, 0, s.Slice(4, 2).Len())
}

func TestMarshalJSON(t *testing.T) {
	s := FromValues(day0, []float64{1.5, math.NaN()})

	data, err := json.Marshal(s)
	require.NoError(t, err)

	var decoded []map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Len(t, decoded, 2)
	assert.Equal(t, 1.5, decoded[0]["value"])
	assert.Nil(t, decoded[1]["value"])
}
