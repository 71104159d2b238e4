package search

import (
	"fmt"
	"time"

	"filterfinder/internal/estimator"
	"filterfinder/internal/features"
	"filterfinder/internal/filters"
	"filterfinder/internal/metrics"
	"filterfinder/internal/timeseries"
)

// Result is the outcome of a search.
type Result struct {
	Family filters.Family `json:"family"`
	Model  estimator.Name `json:"model"`
	// ModelSubstituted is set when the configured model name was unknown and
	// the default estimator was used instead.
	ModelSubstituted bool         `json:"model_substituted"`
	Metric           metrics.Name `json:"metric"`
	SplitIndex       int          `json:"split_index"`

	// YTest is the defined next-period target over the test window.
	YTest *timeseries.Series `json:"y_test"`
	// BestFilter is the winning filter's output on exactly YTest's index.
	BestFilter *timeseries.Series `json:"best_filter"`
	// BestPredict holds the winner's predictions keyed by the test rows it
	// was scored on.
	BestPredict *timeseries.Series `json:"best_predict"`
	BestParams  filters.Params     `json:"best_params"`
	BestMetrics metrics.Final      `json:"best_metrics"`

	Leaderboard []LeaderboardEntry `json:"leaderboard"`
}

// LeaderboardEntry summarises one candidate in ranked order.
type LeaderboardEntry struct {
	Rank    int            `json:"rank"`
	Index   int            `json:"index"`
	Params  filters.Params `json:"params"`
	Metrics metrics.Final  `json:"metrics"`
	Score   float64        `json:"-"`
}

// assemble builds the result from the ranked standings. The target and the
// winning filter are recomputed from the raw series so that both share the
// same index.
func (f *Finder) assemble(series *timeseries.Series, split int, family filters.Family, ranked []Standing) (*Result, error) {
	best := ranked[0]

	yTest := features.BuildTarget(series).Slice(split, series.Len()).DropUndefined()

	smoothed, err := filters.Apply(series, best.Params)
	if err != nil {
		return nil, fmt.Errorf("recompute best filter %s: %w", best.Params, err)
	}
	bestFilter := smoothed.Reindex(yTest.Timestamps())

	bestPredict, err := predictionSeries(best.Evaluation)
	if err != nil {
		return nil, fmt.Errorf("index predictions of %s: %w", best.Params, err)
	}

	leaderboard := make([]LeaderboardEntry, len(ranked))
	for i, s := range ranked {
		leaderboard[i] = LeaderboardEntry{
			Rank:    i + 1,
			Index:   s.Index,
			Params:  s.Params,
			Metrics: s.Evaluation.Metrics,
			Score:   s.Score,
		}
	}

	return &Result{
		Family:           family,
		Model:            f.model,
		ModelSubstituted: f.substituted,
		Metric:           f.metric,
		SplitIndex:       split,
		YTest:            yTest,
		BestFilter:       bestFilter,
		BestPredict:      bestPredict,
		BestParams:       best.Params,
		BestMetrics:      best.Evaluation.Metrics,
		Leaderboard:      leaderboard,
	}, nil
}

func predictionSeries(eval Evaluation) (*timeseries.Series, error) {
	ts := make([]time.Time, len(eval.Timestamps))
	copy(ts, eval.Timestamps)
	return timeseries.New(ts, eval.Predictions)
}
