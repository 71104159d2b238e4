// Package search finds the smoothing filter whose lag features best predict
// the next value of a series.
//
// A search enumerates every candidate of one filter family (see package
// grid), evaluates each candidate on a single chronological train/test split
// and ranks the candidates by the configured metric:
//
//   - Evaluation applies the filter, builds the lag table, drops undefined rows
//     separately in each partition, fits a fresh estimator and scores its
//     test predictions.
//   - Candidates run on a bounded worker pool. Results are collected in
//     candidate order, so ties always go to the earliest candidate.
//   - The first failing candidate aborts the search. No partial result is
//     returned.
//
// Example usage:
//
//	finder, err := search.NewFinder(search.DefaultConfig(), logger)
//	if err != nil {
//		return err
//	}
//	result, err := finder.SearchMovingAverage(ctx, series, 1, nil)
//
// The result carries the held-out target, the winning filter's values and the
// model predictions over that window, plus the full leaderboard.
package search
