package search

import (
	"context"

	"golang.org/x/sync/errgroup"

	"filterfinder/internal/filters"
	"filterfinder/internal/timeseries"
)

// gridSearch evaluates every candidate on a pool of cfg.Processes workers.
// The i-th evaluation is written to slot i, so the result order is the
// candidate order whatever the completion order. The first failure stops
// further dispatch; candidates already running finish, and that failure is
// returned as is.
func (f *Finder) gridSearch(ctx context.Context, series *timeseries.Series, split int, candidates []filters.Params) ([]Evaluation, error) {
	results := make([]Evaluation, len(candidates))
	progress := NewProgress(string(candidates[0].Family()), len(candidates))
	interval := progressInterval(f.cfg.ProgressInterval, len(candidates))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.cfg.Processes)

dispatch:
	for i, params := range candidates {
		select {
		case <-gctx.Done():
			break dispatch
		default:
		}

		g.Go(func() error {
			// a slot may free up only after another worker failed
			if gctx.Err() != nil {
				return nil
			}
			eval, err := f.evaluate(gctx, series, split, params)
			if err != nil {
				return err
			}
			results[i] = eval

			snapshot := progress.Increment()
			if snapshot.Completed%interval == 0 || snapshot.IsComplete() {
				f.logger.InfoContext(ctx, "grid search progress",
					"family", snapshot.Family,
					"evaluated", snapshot.Completed,
					"total", snapshot.Total,
					"percent", snapshot.Percent,
					"eta", snapshot.ETAString(),
				)
			}
			if f.observer != nil {
				f.observer(ctx, snapshot)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	// dispatch stops silently when the caller cancels
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results, nil
}
