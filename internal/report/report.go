// Package report writes search results as CSV, JSON, XLSX and plain-text
// summaries.
package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"filterfinder/internal/filters"
	"filterfinder/internal/search"
)

const dateLayout = "2006-01-02"

// TestWindowRow is one timestamp of the held-out window.
type TestWindowRow struct {
	Timestamp  time.Time
	YTest      float64
	BestFilter float64
	Prediction float64
}

// TestWindow joins the target, the winning filter and the predictions on
// the target's index. Timestamps without a prediction get NaN.
func TestWindow(result *search.Result) []TestWindowRow {
	predictions := make(map[int64]float64, result.BestPredict.Len())
	for _, p := range result.BestPredict.Points() {
		predictions[p.Timestamp.UnixNano()] = p.Value
	}

	rows := make([]TestWindowRow, result.YTest.Len())
	for i, p := range result.YTest.Points() {
		prediction, ok := predictions[p.Timestamp.UnixNano()]
		if !ok {
			prediction = math.NaN()
		}
		rows[i] = TestWindowRow{
			Timestamp:  p.Timestamp,
			YTest:      p.Value,
			BestFilter: result.BestFilter.Value(i),
			Prediction: prediction,
		}
	}
	return rows
}

// SaveToCSV writes the test window of result to outputPath.
func SaveToCSV(result *search.Result, outputPath string) error {
	if result == nil {
		return fmt.Errorf("no result to save")
	}

	return writeCSV(outputPath, []string{"Date", "Y_Test", "Best_Filter", "Best_Predict"}, func(w *csv.Writer) error {
		for _, row := range TestWindow(result) {
			record := []string{
				row.Timestamp.Format(dateLayout),
				formatFloat(row.YTest, 6),
				formatFloat(row.BestFilter, 6),
				formatFloat(row.Prediction, 6),
			}
			if err := w.Write(record); err != nil {
				return fmt.Errorf("write CSV record for %s: %w", row.Timestamp.Format(dateLayout), err)
			}
		}
		return nil
	})
}

// SaveLeaderboardCSV writes every candidate in ranked order to outputPath.
func SaveLeaderboardCSV(result *search.Result, outputPath string) error {
	if result == nil || len(result.Leaderboard) == 0 {
		return fmt.Errorf("no leaderboard to save")
	}

	header := []string{"Rank", "Family", "Q", "P", "Window", "Alpha", "MAE", "MSE", "R2"}
	return writeCSV(outputPath, header, func(w *csv.Writer) error {
		for _, entry := range result.Leaderboard {
			if err := w.Write(leaderboardRecord(entry)); err != nil {
				return fmt.Errorf("write leaderboard rank %d: %w", entry.Rank, err)
			}
		}
		return nil
	})
}

func leaderboardRecord(entry search.LeaderboardEntry) []string {
	p, q := entry.Params.LagOrders()
	window, alpha := filterFields(entry.Params)
	return []string{
		strconv.Itoa(entry.Rank),
		string(entry.Params.Family()),
		strconv.Itoa(q),
		strconv.Itoa(p),
		window,
		alpha,
		formatFloat(entry.Metrics.MAE, 8),
		formatFloat(entry.Metrics.MSE, 8),
		formatFloat(entry.Metrics.R2, 8),
	}
}

// filterFields returns the family-specific parameters, empty when the family
// has none.
func filterFields(params filters.Params) (window, alpha string) {
	switch v := params.(type) {
	case filters.MovingAverage:
		return strconv.Itoa(v.Window), ""
	case filters.ExpMovingAverage:
		return "", strconv.FormatFloat(v.Alpha, 'f', 2, 64)
	default:
		return "", ""
	}
}

func writeCSV(outputPath string, header []string, body func(*csv.Writer) error) error {
	if err := os.MkdirAll(filepath.Dir(outputPath), 0755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	file, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("create CSV file: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("write CSV header: %w", err)
	}
	if err := body(writer); err != nil {
		return err
	}
	writer.Flush()
	return writer.Error()
}

// formatFloat formats a value for CSV output; undefined values are empty.
func formatFloat(value float64, precision int) string {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return ""
	}
	return strconv.FormatFloat(value, 'f', precision, 64)
}

// SaveToJSON writes result with a metadata header to outputPath.
func SaveToJSON(result *search.Result, outputPath string) error {
	if result == nil {
		return fmt.Errorf("no result to save")
	}

	if err := os.MkdirAll(filepath.Dir(outputPath), 0755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	output := map[string]interface{}{
		"metadata": map[string]interface{}{
			"generated_at":      time.Now().Format(time.RFC3339),
			"family":            result.Family,
			"model":             result.Model,
			"model_substituted": result.ModelSubstituted,
			"metric":            result.Metric,
			"candidates":        len(result.Leaderboard),
			"test_rows":         result.YTest.Len(),
		},
		"result": result,
	}

	file, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("create JSON file: %w", err)
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(output); err != nil {
		return fmt.Errorf("encode JSON: %w", err)
	}
	return nil
}

// SaveSummaryReport writes a human-readable summary of result.
func SaveSummaryReport(result *search.Result, outputPath string) error {
	if result == nil {
		return fmt.Errorf("no result to save")
	}

	file, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("create summary file: %w", err)
	}
	defer file.Close()

	fmt.Fprintf(file, "Best Smoothing Filter - Summary Report\n")
	fmt.Fprintf(file, "======================================\n\n")
	fmt.Fprintf(file, "Generated: %s\n\n", time.Now().Format("2006-01-02 15:04:05"))

	fmt.Fprintf(file, "SEARCH\n")
	fmt.Fprintf(file, "------\n")
	fmt.Fprintf(file, "Family: %s\n", result.Family)
	model := string(result.Model)
	if result.ModelSubstituted {
		model += " (substituted for an unknown model name)"
	}
	fmt.Fprintf(file, "Model: %s\n", model)
	fmt.Fprintf(file, "Metric: %s\n", result.Metric)
	fmt.Fprintf(file, "Candidates: %d\n", len(result.Leaderboard))
	fmt.Fprintf(file, "Split Index: %d\n", result.SplitIndex)
	if result.YTest.Len() > 0 {
		fmt.Fprintf(file, "Test Window: %s to %s (%d rows)\n\n",
			result.YTest.Timestamp(0).Format(dateLayout),
			result.YTest.Timestamp(result.YTest.Len()-1).Format(dateLayout),
			result.YTest.Len())
	}

	fmt.Fprintf(file, "BEST CANDIDATE\n")
	fmt.Fprintf(file, "--------------\n")
	fmt.Fprintf(file, "Params: %s\n", result.BestParams)
	fmt.Fprintf(file, "MAE: %.6f\n", result.BestMetrics.MAE)
	fmt.Fprintf(file, "MSE: %.6f\n", result.BestMetrics.MSE)
	fmt.Fprintf(file, "R2: %.6f\n\n", result.BestMetrics.R2)

	fmt.Fprintf(file, "TOP 10 CANDIDATES\n")
	fmt.Fprintf(file, "-----------------\n")
	for i, entry := range result.Leaderboard {
		if i == 10 {
			break
		}
		fmt.Fprintf(file, "%2d. %s: %s=%.6f\n", entry.Rank, entry.Params, result.Metric, entry.Score)
	}
	return nil
}
