package timeseries

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestReadCSV(t *testing.T) {
	t.Run("header with named columns", func(t *testing.T) {
		data := "Date,Symbol,Close\n2024-01-02,TASC,11.5\n2024-01-01,TASC,10.0\n2024-01-03,TASC,\n"
		opts := LoadOptions{TimestampColumn: "date", ValueColumn: "close"}

		s, err := ReadCSV(strings.NewReader(data), opts)
		require.NoError(t, err)
		require.Equal(t, 3, s.Len())

		// rows are sorted chronologically
		assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), s.Timestamp(0))
		assert.Equal(t, 10.0, s.Value(0))
		assert.Equal(t, 11.5, s.Value(1))
		assert.True(t, math.IsNaN(s.Value(2)), "empty cell is undefined")
	})

	t.Run("headerless positional", func(t *testing.T) {
		data := "2024-01-01,1\n2024-01-02,2\n"
		s, err := ReadCSV(strings.NewReader(data), DefaultLoadOptions())
		require.NoError(t, err)
		assert.Equal(t, []float64{1, 2}, s.Values())
	})

	t.Run("bad rows are skipped", func(t *testing.T) {
		data := "timestamp,value\n2024-01-01,1\nnot-a-date,2\n2024-01-03,abc\n2024-01-04,4\n"
		s, err := ReadCSV(strings.NewReader(data), DefaultLoadOptions())
		require.NoError(t, err)
		assert.Equal(t, []float64{1, 4}, s.Values())
	})

	t.Run("missing column", func(t *testing.T) {
		data := "timestamp,value\n2024-01-01,1\n"
		_, err := ReadCSV(strings.NewReader(data), LoadOptions{ValueColumn: "close"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "close")
	})

	t.Run("duplicate timestamps rejected", func(t *testing.T) {
		data := "2024-01-01,1\n2024-01-01,2\n"
		_, err := ReadCSV(strings.NewReader(data), DefaultLoadOptions())
		require.Error(t, err)
	})

	t.Run("only header", func(t *testing.T) {
		_, err := ReadCSV(strings.NewReader("timestamp,value\n"), DefaultLoadOptions())
		require.Error(t, err)
	})
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()

	t.Run("csv", func(t *testing.T) {
		path := filepath.Join(dir, "series.csv")
		require.NoError(t, os.WriteFile(path, []byte("date,price\n2024-02-01,5\n2024-02-02,6\n"), 0644))

		s, err := LoadFile(path, LoadOptions{ValueColumn: "price"})
		require.NoError(t, err)
		assert.Equal(t, []float64{5, 6}, s.Values())
	})

	t.Run("xlsx", func(t *testing.T) {
		path := filepath.Join(dir, "series.xlsx")

		f := excelize.NewFile()
		sheet := f.GetSheetName(0)
		require.NoError(t, f.SetSheetRow(sheet, "A1", &[]interface{}{"Date", "Close"}))
		require.NoError(t, f.SetSheetRow(sheet, "A2", &[]interface{}{"2024-03-01", 7.5}))
		require.NoError(t, f.SetSheetRow(sheet, "A3", &[]interface{}{"2024-03-02", 8.5}))
		require.NoError(t, f.SaveAs(path))
		require.NoError(t, f.Close())

		s, err := LoadFile(path, LoadOptions{ValueColumn: "close"})
		require.NoError(t, err)
		assert.Equal(t, []float64{7.5, 8.5}, s.Values())
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadFile(filepath.Join(dir, "nope.csv"), DefaultLoadOptions())
		require.Error(t, err)
	})
}
