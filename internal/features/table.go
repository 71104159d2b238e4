// Package features builds the autoregressive feature table and next-period
// target used to fit and score every search candidate.
package features

import (
	"fmt"
	"math"
	"time"

	"filterfinder/internal/timeseries"
)

// TargetColumn names the appended next-period target.
const TargetColumn = "next_period"

// Table is a row-per-timestamp matrix of lag features. When a target has
// been appended it is always the last column.
type Table struct {
	timestamps []time.Time
	columns    []string
	rows       [][]float64
}

// RawLagColumn returns the column name of the k-th raw lag.
func RawLagColumn(k int) string {
	return fmt.Sprintf("raw_lag_%d", k)
}

// FilterLagColumn returns the column name of the k-th filtered lag.
func FilterLagColumn(k int) string {
	return fmt.Sprintf("filter_lag_%d", k)
}

// BuildTable returns one row per timestamp of raw with columns
// raw_lag_1..raw_lag_p followed by filter_lag_1..filter_lag_q. The k-th lag
// at row t is the value at t-k, so the first max(p,q) rows are undefined.
func BuildTable(raw *timeseries.Series, p, q int, filtered *timeseries.Series) (*Table, error) {
	if p < 0 || q < 0 {
		return nil, fmt.Errorf("build feature table: lag orders must be non-negative (p=%d, q=%d)", p, q)
	}
	if filtered.Len() != raw.Len() {
		return nil, fmt.Errorf("build feature table: filtered length %d does not match raw length %d", filtered.Len(), raw.Len())
	}

	n := raw.Len()
	columns := make([]string, 0, p+q)
	lagged := make([][]float64, 0, p+q)
	for k := 1; k <= p; k++ {
		columns = append(columns, RawLagColumn(k))
		lagged = append(lagged, raw.Shift(k).Values())
	}
	for k := 1; k <= q; k++ {
		columns = append(columns, FilterLagColumn(k))
		lagged = append(lagged, filtered.Shift(k).Values())
	}

	rows := make([][]float64, n)
	for i := range rows {
		row := make([]float64, len(lagged))
		for j, col := range lagged {
			row[j] = col[i]
		}
		rows[i] = row
	}

	return &Table{timestamps: raw.Timestamps(), columns: columns, rows: rows}, nil
}

// BuildTarget returns the next-period value aligned to each timestamp. The
// final entry is undefined.
func BuildTarget(raw *timeseries.Series) *timeseries.Series {
	return raw.Shift(-1)
}

// WithTarget returns a copy of t with target appended as the last column.
// Rows are matched by timestamp; rows absent from target are undefined.
func (t *Table) WithTarget(target *timeseries.Series) *Table {
	aligned := target.Reindex(t.timestamps).Values()

	rows := make([][]float64, len(t.rows))
	for i, row := range t.rows {
		out := make([]float64, len(row)+1)
		copy(out, row)
		out[len(row)] = aligned[i]
		rows[i] = out
	}

	columns := make([]string, len(t.columns)+1)
	copy(columns, t.columns)
	columns[len(t.columns)] = TargetColumn

	return &Table{timestamps: t.timestamps, columns: columns, rows: rows}
}

// Len returns the number of rows.
func (t *Table) Len() int {
	return len(t.rows)
}

// Columns returns the column names in order.
func (t *Table) Columns() []string {
	out := make([]string, len(t.columns))
	copy(out, t.columns)
	return out
}

// Timestamps returns the row index.
func (t *Table) Timestamps() []time.Time {
	out := make([]time.Time, len(t.timestamps))
	copy(out, t.timestamps)
	return out
}

// Split cuts the table at row index at: train holds rows [0, at) and test
// holds rows [at, Len()). Rows are never reordered.
func (t *Table) Split(at int) (train, test *Table) {
	at = max(0, min(at, len(t.rows)))
	return t.slice(0, at), t.slice(at, len(t.rows))
}

func (t *Table) slice(from, to int) *Table {
	return &Table{
		timestamps: t.timestamps[from:to],
		columns:    t.columns,
		rows:       t.rows[from:to],
	}
}

// DropUndefined returns the rows with no undefined cell.
func (t *Table) DropUndefined() *Table {
	out := &Table{columns: t.columns}
	for i, row := range t.rows {
		if hasUndefined(row) {
			continue
		}
		out.timestamps = append(out.timestamps, t.timestamps[i])
		out.rows = append(out.rows, row)
	}
	return out
}

// XY separates the feature columns from the trailing target column.
func (t *Table) XY() (x [][]float64, y []float64) {
	x = make([][]float64, len(t.rows))
	y = make([]float64, len(t.rows))
	for i, row := range t.rows {
		if len(row) == 0 {
			continue
		}
		last := len(row) - 1
		features := make([]float64, last)
		copy(features, row[:last])
		x[i] = features
		y[i] = row[last]
	}
	return x, y
}

func hasUndefined(row []float64) bool {
	for _, v := range row {
		if math.IsNaN(v) {
			return true
		}
	}
	return false
}
