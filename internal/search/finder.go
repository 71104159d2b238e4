package search

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"filterfinder/internal/estimator"
	"filterfinder/internal/filters"
	"filterfinder/internal/grid"
	"filterfinder/internal/metrics"
	"filterfinder/internal/timeseries"
)

// Finder runs filter searches with one fixed configuration. A Finder holds
// no per-search state and may run searches concurrently.
type Finder struct {
	cfg         Config
	model       estimator.Name
	substituted bool
	metric      metrics.Name
	logger      *slog.Logger
	observer    ProgressObserver
	telemetry   *telemetry
}

// Option customises a Finder.
type Option func(*Finder)

// WithProgressObserver registers an observer notified after every candidate.
func WithProgressObserver(observer ProgressObserver) Option {
	return func(f *Finder) {
		f.observer = observer
	}
}

// NewFinder validates cfg and resolves its model and metric names. An unknown
// model name falls back to LinearRegression with a warning unless
// cfg.StrictModel is set, in which case ErrUnknownModel is returned.
func NewFinder(cfg Config, logger *slog.Logger, opts ...Option) (*Finder, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid search configuration: %w", err)
	}
	if cfg.Processes == 0 {
		cfg.Processes = DefaultProcesses
	}

	metric, err := metrics.ParseName(cfg.MetricName)
	if err != nil {
		return nil, err
	}

	model, known := estimator.Resolve(cfg.ModelName)
	if !known {
		if cfg.StrictModel {
			return nil, fmt.Errorf("%w: %q", ErrUnknownModel, cfg.ModelName)
		}
		logger.Warn("unknown model name, falling back to default estimator",
			"requested_model", cfg.ModelName,
			"model", model,
		)
	}

	tel, err := newTelemetry()
	if err != nil {
		return nil, fmt.Errorf("create search telemetry: %w", err)
	}

	f := &Finder{
		cfg:         cfg,
		model:       model,
		substituted: !known,
		metric:      metric,
		logger:      logger,
		telemetry:   tel,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

// Model returns the estimator every candidate is fitted with.
func (f *Finder) Model() estimator.Name {
	return f.model
}

// ModelSubstituted reports whether the configured model name was unknown and
// replaced by the default estimator.
func (f *Finder) ModelSubstituted() bool {
	return f.substituted
}

// Metric returns the ranking metric.
func (f *Finder) Metric() metrics.Name {
	return f.metric
}

// SplitIndex returns floor(n * (1 - ValidationPercent)), the first row of the
// test partition for a series of length n.
func (f *Finder) SplitIndex(n int) int {
	return int(float64(n) * (1 - f.cfg.ValidationPercent))
}

// SearchMovingAverage searches the un-smoothed baseline and every
// (q, window) pair. A nil q sweeps q.
func (f *Finder) SearchMovingAverage(ctx context.Context, series *timeseries.Series, p int, q *int) (*Result, error) {
	return f.Search(ctx, filters.FamilyMovingAverage, series, p, q)
}

// SearchExpMovingAverage searches every (q, alpha) pair. A nil q sweeps q.
func (f *Finder) SearchExpMovingAverage(ctx context.Context, series *timeseries.Series, p int, q *int) (*Result, error) {
	return f.Search(ctx, filters.FamilyExpMovingAverage, series, p, q)
}

// SearchKalman searches every q with the fixed Kalman smoother. A nil q
// sweeps q.
func (f *Finder) SearchKalman(ctx context.Context, series *timeseries.Series, p int, q *int) (*Result, error) {
	return f.Search(ctx, filters.FamilyKalman, series, p, q)
}

// Search runs the exhaustive grid of family over series.
func (f *Finder) Search(ctx context.Context, family filters.Family, series *timeseries.Series, p int, q *int) (*Result, error) {
	if series == nil {
		return nil, ValidationError{Field: "series", Message: "is required"}
	}
	if p < 0 {
		return nil, ValidationError{Field: "p", Message: "must not be negative", Value: p}
	}
	if q != nil && *q < 0 {
		return nil, ValidationError{Field: "q", Message: "must not be negative", Value: *q}
	}

	candidates, err := grid.ForFamily(family, series.Len(), p, q)
	if err != nil {
		return nil, err
	}
	return f.SearchCandidates(ctx, series, candidates)
}

// SearchCandidates evaluates an explicit candidate list. Every candidate is
// evaluated; the order of candidates decides ties.
func (f *Finder) SearchCandidates(ctx context.Context, series *timeseries.Series, candidates []filters.Params) (result *Result, err error) {
	if series == nil {
		return nil, ValidationError{Field: "series", Message: "is required"}
	}
	if len(candidates) == 0 {
		return nil, fmt.Errorf("%w: series of length %d", ErrNoCandidates, series.Len())
	}
	for _, c := range candidates {
		if err := filters.Validate(c); err != nil {
			return nil, err
		}
	}

	start := time.Now()
	family := candidates[0].Family()
	split := f.SplitIndex(series.Len())

	ctx, span := f.telemetry.startSearch(ctx, family, string(f.model), len(candidates))
	defer func() { f.telemetry.endSearch(ctx, span, family, err) }()

	f.logger.InfoContext(ctx, "starting filter search",
		"family", family,
		"candidates", len(candidates),
		"series_length", series.Len(),
		"split_index", split,
		"model", f.model,
		"metric", f.metric,
		"processes", f.cfg.Processes,
	)

	evaluations, err := f.gridSearch(ctx, series, split, candidates)
	if err != nil {
		f.logger.ErrorContext(ctx, "filter search failed",
			"family", family,
			"error", err,
		)
		return nil, err
	}

	ranked := Rank(candidates, evaluations, f.metric)

	result, err = f.assemble(series, split, family, ranked)
	if err != nil {
		return nil, err
	}

	f.logger.InfoContext(ctx, "filter search completed",
		"family", family,
		"duration", time.Since(start),
		"best_params", result.BestParams.String(),
		"best_score", ranked[0].Score,
		"mae", result.BestMetrics.MAE,
		"mse", result.BestMetrics.MSE,
		"r2", result.BestMetrics.R2,
	)
	return result, nil
}
