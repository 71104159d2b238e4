package search

import (
	"cmp"
	"math"
	"slices"

	"filterfinder/internal/filters"
	"filterfinder/internal/metrics"
)

// Standing is one evaluated candidate in ranked order.
type Standing struct {
	// Index is the candidate's position in the generated grid.
	Index      int
	Params     filters.Params
	Evaluation Evaluation
	Score      float64
}

// Rank orders candidates by metric: descending when the metric is maximised,
// ascending otherwise. The sort is stable, so equal scores keep candidate
// order and the earliest candidate wins a tie. Undefined scores rank last in
// both directions. candidates and evaluations must be index-aligned.
func Rank(candidates []filters.Params, evaluations []Evaluation, metric metrics.Name) []Standing {
	standings := make([]Standing, len(candidates))
	for i, params := range candidates {
		standings[i] = Standing{
			Index:      i,
			Params:     params,
			Evaluation: evaluations[i],
			Score:      metric.Value(evaluations[i].Metrics),
		}
	}

	maximize := metric.Maximize()
	slices.SortStableFunc(standings, func(a, b Standing) int {
		return compareScores(a.Score, b.Score, maximize)
	})
	return standings
}

func compareScores(a, b float64, maximize bool) int {
	aNaN, bNaN := math.IsNaN(a), math.IsNaN(b)
	switch {
	case aNaN && bNaN:
		return 0
	case aNaN:
		return 1
	case bNaN:
		return -1
	}
	if maximize {
		return cmp.Compare(b, a)
	}
	return cmp.Compare(a, b)
}
