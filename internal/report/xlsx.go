package report

import (
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"

	"filterfinder/internal/search"
)

const (
	SummarySheet     = "Summary"
	LeaderboardSheet = "Leaderboard"
	TestWindowSheet  = "Test Window"
)

// SaveToXLSX writes a workbook with a summary, the leaderboard and the test
// window of result.
func SaveToXLSX(result *search.Result, outputPath string) error {
	if result == nil {
		return fmt.Errorf("no result to save")
	}
	if err := os.MkdirAll(filepath.Dir(outputPath), 0755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SummarySheet); err != nil {
		return fmt.Errorf("rename summary sheet: %w", err)
	}
	for _, name := range []string{LeaderboardSheet, TestWindowSheet} {
		if _, err := f.NewSheet(name); err != nil {
			return fmt.Errorf("create sheet %s: %w", name, err)
		}
	}

	summary := [][]interface{}{
		{"Family", string(result.Family)},
		{"Model", string(result.Model)},
		{"Model Substituted", result.ModelSubstituted},
		{"Metric", string(result.Metric)},
		{"Split Index", result.SplitIndex},
		{"Candidates", len(result.Leaderboard)},
		{"Best Params", result.BestParams.String()},
		{"MAE", cellValue(result.BestMetrics.MAE)},
		{"MSE", cellValue(result.BestMetrics.MSE)},
		{"R2", cellValue(result.BestMetrics.R2)},
	}
	if err := writeRows(f, SummarySheet, summary); err != nil {
		return err
	}

	leaderboard := [][]interface{}{{"Rank", "Family", "Q", "P", "Window", "Alpha", "MAE", "MSE", "R2"}}
	for _, entry := range result.Leaderboard {
		p, q := entry.Params.LagOrders()
		window, alpha := filterFields(entry.Params)
		leaderboard = append(leaderboard, []interface{}{
			entry.Rank,
			string(entry.Params.Family()),
			q,
			p,
			window,
			alpha,
			cellValue(entry.Metrics.MAE),
			cellValue(entry.Metrics.MSE),
			cellValue(entry.Metrics.R2),
		})
	}
	if err := writeRows(f, LeaderboardSheet, leaderboard); err != nil {
		return err
	}

	window := [][]interface{}{{"Date", "Y_Test", "Best_Filter", "Best_Predict"}}
	for _, row := range TestWindow(result) {
		window = append(window, []interface{}{
			row.Timestamp.Format(dateLayout),
			cellValue(row.YTest),
			cellValue(row.BestFilter),
			cellValue(row.Prediction),
		})
	}
	if err := writeRows(f, TestWindowSheet, window); err != nil {
		return err
	}

	if err := f.SaveAs(outputPath); err != nil {
		return fmt.Errorf("save workbook: %w", err)
	}
	return nil
}

func writeRows(f *excelize.File, sheet string, rows [][]interface{}) error {
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		row := row
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("write %s row %d: %w", sheet, i+1, err)
		}
	}
	return nil
}

// cellValue leaves undefined numbers as empty cells.
func cellValue(v float64) interface{} {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return ""
	}
	return v
}
