package timeseries

import (
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
)

// LoadOptions selects the timestamp and value columns of a tabular source.
// Columns are matched by header name (case-insensitive) when the source has a
// header row, otherwise by zero-based position.
type LoadOptions struct {
	TimestampColumn string
	ValueColumn     string
	TimestampIndex  int
	ValueIndex      int
	// Sheet is the XLSX sheet to read; empty selects the first sheet.
	Sheet string
}

// DefaultLoadOptions reads the first column as timestamps and the second as values.
func DefaultLoadOptions() LoadOptions {
	return LoadOptions{
		TimestampIndex: 0,
		ValueIndex:     1,
	}
}

// LoadFile loads a series from a CSV or XLSX file, chosen by extension.
func LoadFile(path string, opts LoadOptions) (*Series, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm":
		return LoadXLSX(path, opts)
	default:
		return LoadCSV(path, opts)
	}
}

// LoadCSV loads a series from a CSV file.
func LoadCSV(path string, opts LoadOptions) (*Series, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open CSV file: %w", err)
	}
	defer file.Close()

	series, err := ReadCSV(file, opts)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}
	return series, nil
}

// ReadCSV reads a series from CSV data.
func ReadCSV(r io.Reader, opts LoadOptions) (*Series, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read CSV records: %w", err)
	}

	return fromRecords(records, opts)
}

// fromRecords converts raw rows into a Series. Rows are sorted by timestamp;
// duplicate timestamps are rejected.
func fromRecords(records [][]string, opts LoadOptions) (*Series, error) {
	if len(records) == 0 {
		return nil, fmt.Errorf("empty input")
	}

	tsIdx, valIdx := opts.TimestampIndex, opts.ValueIndex
	dataStart := 0
	if isHeaderRow(records[0], tsIdx) {
		dataStart = 1
		header := records[0]
		if opts.TimestampColumn != "" {
			idx, ok := columnIndex(header, opts.TimestampColumn)
			if !ok {
				return nil, fmt.Errorf("timestamp column %q not found", opts.TimestampColumn)
			}
			tsIdx = idx
		}
		if opts.ValueColumn != "" {
			idx, ok := columnIndex(header, opts.ValueColumn)
			if !ok {
				return nil, fmt.Errorf("value column %q not found", opts.ValueColumn)
			}
			valIdx = idx
		}
	}

	if len(records) <= dataStart {
		return nil, fmt.Errorf("input contains only a header")
	}

	points := make([]Point, 0, len(records)-dataStart)
	for i := dataStart; i < len(records); i++ {
		record := records[i]
		if isBlank(record) {
			continue
		}

		p, err := parseRecord(record, tsIdx, valIdx, i+1)
		if err != nil {
			slog.Warn("failed to parse series record",
				"line", i+1,
				"error", err,
			)
			continue
		}
		points = append(points, p)
	}

	if len(points) == 0 {
		return nil, fmt.Errorf("no valid records")
	}

	sort.SliceStable(points, func(a, b int) bool {
		return points[a].Timestamp.Before(points[b].Timestamp)
	})

	return FromPoints(points)
}

func parseRecord(record []string, tsIdx, valIdx, lineNum int) (Point, error) {
	if tsIdx >= len(record) || valIdx >= len(record) {
		return Point{}, fmt.Errorf("insufficient columns in record (line %d): got %d", lineNum, len(record))
	}

	ts, err := parseTimestamp(strings.TrimSpace(record[tsIdx]))
	if err != nil {
		return Point{}, fmt.Errorf("parse timestamp (line %d): %w", lineNum, err)
	}

	value, err := parseValue(record[valIdx])
	if err != nil {
		return Point{}, fmt.Errorf("parse value (line %d): %w", lineNum, err)
	}

	return Point{Timestamp: ts, Value: value}, nil
}

// parseTimestamp attempts the layouts commonly found in exported price files.
func parseTimestamp(s string) (time.Time, error) {
	layouts := []string{
		"2006-01-02",
		time.RFC3339,
		"2006-01-02 15:04:05",
		"2006-01-02T15:04:05",
		"2006/01/02",
		"01/02/2006",
		"02/01/2006",
		"01-02-2006",
		"02-01-2006",
		"1/2/06 15:04",
	}

	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}

	// Unix seconds
	if secs, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(secs, 0).UTC(), nil
	}

	return time.Time{}, fmt.Errorf("unable to parse timestamp: %s", s)
}

// parseValue parses a float; empty cells and NA markers become NaN.
func parseValue(s string) (float64, error) {
	s = strings.TrimSpace(s)
	switch strings.ToLower(s) {
	case "", "na", "nan", "null", "-":
		return math.NaN(), nil
	}
	s = strings.ReplaceAll(s, ",", "")
	return strconv.ParseFloat(s, 64)
}

func isHeaderRow(record []string, tsIdx int) bool {
	if len(record) == 0 || tsIdx >= len(record) {
		return false
	}
	_, err := parseTimestamp(strings.TrimSpace(record[tsIdx]))
	return err != nil
}

func columnIndex(header []string, name string) (int, bool) {
	for i, h := range header {
		if strings.EqualFold(strings.TrimSpace(h), name) {
			return i, true
		}
	}
	return 0, false
}

func isBlank(record []string) bool {
	for _, cell := range record {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
