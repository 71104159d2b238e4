package features

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"filterfinder/internal/timeseries"
)

var start = time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC)

func linear(n int) *timeseries.Series {
	values := make([]float64, n)
	for i := range values {
		values[i] = float64(i + 1)
	}
	return timeseries.FromValues(start, values)
}

func TestBuildTable(t *testing.T) {
	raw := linear(6)
	filtered := timeseries.FromValues(start, []float64{10, 20, 30, 40, 50, 60})

	table, err := BuildTable(raw, 2, 1, filtered)
	require.NoError(t, err)

	assert.Equal(t, []string{"raw_lag_1", "raw_lag_2", "filter_lag_1"}, table.Columns())
	assert.Equal(t, 6, table.Len())
	assert.Equal(t, raw.Timestamps(), table.Timestamps())

	x, _ := table.WithTarget(BuildTarget(raw)).XY()
	assert.True(t, math.IsNaN(x[1][1]))
	assert.Equal(t, []float64{3, 2, 30}, x[3])
	assert.Equal(t, []float64{5, 4, 50}, x[5])
}

func TestBuildTableErrors(t *testing.T) {
	raw := linear(5)

	_, err := BuildTable(raw, -1, 0, raw)
	assert.Error(t, err)

	_, err = BuildTable(raw, 1, 1, linear(4))
	assert.Error(t, err)
}

func TestBuildTarget(t *testing.T) {
	target := BuildTarget(linear(4)).Values()
	assert.Equal(t, []float64{2, 3, 4}, target[:3])
	assert.True(t, math.IsNaN(target[3]))
}

func TestSplitAndDrop(t *testing.T) {
	raw := linear(100)
	table, err := BuildTable(raw, 1, 1, raw)
	require.NoError(t, err)
	table = table.WithTarget(BuildTarget(raw))

	split := int(float64(raw.Len()) * (1 - 0.2))
	require.Equal(t, 80, split)

	train, test := table.Split(split)
	assert.Equal(t, 80, train.Len())
	assert.Equal(t, 20, test.Len())
	assert.Equal(t, raw.Timestamp(79), train.Timestamps()[79])
	assert.Equal(t, raw.Timestamp(80), test.Timestamps()[0])

	train, test = train.DropUndefined(), test.DropUndefined()
	// the first row has no lag and the last has no target
	assert.Equal(t, 79, train.Len())
	assert.Equal(t, 19, test.Len())
	assert.Equal(t, raw.Timestamp(1), train.Timestamps()[0])

	x, y := test.XY()
	require.Len(t, x, 19)
	assert.Equal(t, []float64{80, 80}, x[0])
	assert.Equal(t, 82.0, y[0])
}

func TestXYWithoutFeatures(t *testing.T) {
	raw := linear(4)
	table, err := BuildTable(raw, 0, 0, raw)
	require.NoError(t, err)

	x, y := table.WithTarget(BuildTarget(raw)).DropUndefined().XY()
	require.Len(t, x, 3)
	assert.Empty(t, x[0])
	assert.Equal(t, []float64{2, 3, 4}, y)
}
