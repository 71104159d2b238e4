package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"filterfinder/internal/config"
	"filterfinder/internal/filters"
	"filterfinder/internal/infrastructure"
	"filterfinder/internal/report"
	"filterfinder/internal/search"
	"filterfinder/internal/timeseries"
	"filterfinder/internal/validation"
)

// options holds the parsed command line
type options struct {
	input      string
	timeColumn string
	column     string
	sheet      string
	families   []filters.Family
	p          int
	q          *int
	out        string
	search     search.Config
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		slog.Error("Filter search failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout io.Writer) error {
	cfg, err := config.Load()
	if err != nil {
		slog.Warn("Failed to load config, using defaults", slog.String("error", err.Error()))
		cfg = config.Default()
	}

	opts, err := parseFlags(args, cfg)
	if err != nil {
		return err
	}

	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		slog.Warn("Failed to initialize logger, using default", slog.String("error", err.Error()))
		logger = slog.Default()
	}
	defer infrastructure.CloseLogFile()

	validator := validation.NewFileValidator(logger)
	inputs, batch, err := resolveInputs(validator, opts.input)
	if err != nil {
		return err
	}

	root := opts.out
	if root == "" {
		paths, err := config.ResolvePaths(cfg.Paths)
		if err != nil {
			return fmt.Errorf("resolve paths: %w", err)
		}
		root = paths.ReportsDir
	}

	finder, err := search.NewFinder(opts.search, logger)
	if err != nil {
		return err
	}

	for _, input := range inputs {
		out := root
		if batch || opts.out == "" {
			out = filepath.Join(root, strings.TrimSuffix(filepath.Base(input), filepath.Ext(input)))
		}
		if err := validator.ValidateOutputDirectory(out); err != nil {
			return err
		}

		logger.Info("Starting filter search",
			slog.String("input", input),
			slog.Int("families", len(opts.families)),
			slog.Int("p", opts.p),
			slog.String("model", opts.search.ModelName),
			slog.String("metric", opts.search.MetricName),
			slog.String("output_dir", out))

		if err := searchFile(ctx, finder, opts, input, out, stdout); err != nil {
			return fmt.Errorf("%s: %w", filepath.Base(input), err)
		}
	}
	return nil
}

// resolveInputs expands a directory into its series files. batch reports
// whether input was a directory.
func resolveInputs(validator *validation.FileValidator, input string) (inputs []string, batch bool, err error) {
	if info, statErr := os.Stat(input); statErr == nil && info.IsDir() {
		found, err := validator.ValidateInputDirectory(input)
		if err != nil {
			return nil, true, err
		}
		for _, f := range found {
			inputs = append(inputs, f.Path)
		}
		return inputs, true, nil
	}

	if err := validator.ValidateSeriesFile(input); err != nil {
		return nil, false, fmt.Errorf("load series: %w", err)
	}
	return []string{input}, false, nil
}

func searchFile(ctx context.Context, finder *search.Finder, opts *options, input, out string, stdout io.Writer) error {
	series, err := timeseries.LoadFile(input, opts.loadOptions())
	if err != nil {
		return fmt.Errorf("load series: %w", err)
	}

	for _, family := range opts.families {
		result, err := finder.Search(ctx, family, series, opts.p, opts.q)
		if err != nil {
			return fmt.Errorf("%s search: %w", family, err)
		}

		dir := filepath.Join(out, string(family))
		if err := writeReports(result, dir); err != nil {
			return err
		}

		fmt.Fprintf(stdout, "%-24s %-24s %-48v %s=%.6g\n",
			filepath.Base(input), family, result.BestParams, result.Metric, result.Metric.Value(result.BestMetrics))
	}
	return nil
}

func parseFlags(args []string, cfg *config.Config) (*options, error) {
	fs := flag.NewFlagSet("filtersearch", flag.ContinueOnError)

	input := fs.String("input", "", "CSV or XLSX file with a timestamp and a value column, or a directory of them (required)")
	timeColumn := fs.String("time-column", "", "timestamp column header (defaults to the first column)")
	column := fs.String("column", "", "value column header (defaults to the second column)")
	sheet := fs.String("sheet", "", "XLSX sheet (defaults to the first sheet)")
	family := fs.String("family", "all", "ma | ema | kalman | all")
	p := fs.Int("p", 1, "autoregressive lag order of the raw series")
	q := fs.Int("q", -1, "lag order of the filtered series (-1 searches the default q grid)")
	model := fs.String("model", cfg.Search.ModelName, "estimator name")
	metric := fs.String("metric", cfg.Search.MetricName, "mae | mse | r2")
	validation := fs.Float64("validation", cfg.Search.ValidationPercent, "held-out fraction in (0,1)")
	processes := fs.Int("processes", cfg.Search.Processes, "concurrent candidate evaluations")
	strict := fs.Bool("strict-model", cfg.Search.StrictModel, "fail on an unknown model instead of falling back")
	out := fs.String("out", "", "report directory (defaults to the reports dir; one subdirectory per input when searching a directory)")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if *input == "" {
		return nil, errors.New("-input is required")
	}
	if *p < 0 {
		return nil, fmt.Errorf("-p must be >= 0, got %d", *p)
	}

	families, err := parseFamilies(*family)
	if err != nil {
		return nil, err
	}

	opts := &options{
		input:      *input,
		timeColumn: *timeColumn,
		column:     *column,
		sheet:      *sheet,
		families:   families,
		p:          *p,
		out:        *out,
		search: search.Config{
			ModelName:         *model,
			MetricName:        *metric,
			ValidationPercent: *validation,
			Processes:         *processes,
			StrictModel:       *strict,
			ProgressInterval:  cfg.Search.ProgressInterval,
		},
	}
	if *q >= 0 {
		opts.q = q
	}
	if err := opts.search.Validate(); err != nil {
		return nil, err
	}
	return opts, nil
}

// parseFamilies accepts a comma separated list of families or "all"
func parseFamilies(s string) ([]filters.Family, error) {
	if strings.EqualFold(strings.TrimSpace(s), "all") {
		return filters.Families(), nil
	}

	var families []filters.Family
	seen := make(map[filters.Family]bool)
	for _, name := range strings.Split(s, ",") {
		family, err := filters.ParseFamily(name)
		if err != nil {
			return nil, err
		}
		if !seen[family] {
			seen[family] = true
			families = append(families, family)
		}
	}
	return families, nil
}

func (o *options) loadOptions() timeseries.LoadOptions {
	lo := timeseries.DefaultLoadOptions()
	lo.TimestampColumn = o.timeColumn
	lo.ValueColumn = o.column
	lo.Sheet = o.sheet
	return lo
}

func writeReports(result *search.Result, dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	writers := []struct {
		file  string
		write func(*search.Result, string) error
	}{
		{config.ResultCSVFile, report.SaveToCSV},
		{config.LeaderboardCSVFile, report.SaveLeaderboardCSV},
		{config.ResultJSONFile, report.SaveToJSON},
		{config.SummaryFile, report.SaveSummaryReport},
		{config.WorkbookFile, report.SaveToXLSX},
	}
	for _, w := range writers {
		path := filepath.Join(dir, w.file)
		if err := w.write(result, path); err != nil {
			return fmt.Errorf("write %s: %w", w.file, err)
		}
	}
	return nil
}
