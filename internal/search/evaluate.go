package search

import (
	"context"
	"time"

	"filterfinder/internal/estimator"
	"filterfinder/internal/features"
	"filterfinder/internal/filters"
	"filterfinder/internal/metrics"
	"filterfinder/internal/timeseries"
)

// Evaluation is the outcome of one candidate on the held-out partition.
type Evaluation struct {
	// Predictions holds one prediction per test row, in row order.
	Predictions []float64
	// Timestamps is the index of the test rows that survived dropping.
	Timestamps []time.Time
	Metrics    metrics.Final
}

// evaluate fits and scores one candidate. Every candidate shares series and
// split; only the filtered values differ.
func (f *Finder) evaluate(ctx context.Context, series *timeseries.Series, split int, params filters.Params) (eval Evaluation, err error) {
	start := time.Now()
	ctx, span := f.telemetry.startCandidate(ctx, params)
	defer func() { f.telemetry.endCandidate(ctx, span, params, time.Since(start), err) }()

	smoothed, err := filters.Apply(series, params)
	if err != nil {
		return Evaluation{}, err
	}

	p, q := params.LagOrders()
	table, err := features.BuildTable(series, p, q, smoothed)
	if err != nil {
		return Evaluation{}, err
	}
	table = table.WithTarget(features.BuildTarget(series))

	train, test := table.Split(split)
	trainRows, testRows := train.Len(), test.Len()
	train, test = train.DropUndefined(), test.DropUndefined()
	if train.Len() == 0 {
		return Evaluation{}, &InsufficientDataError{Params: params, Partition: PartitionTrain, Rows: trainRows}
	}
	if test.Len() == 0 {
		return Evaluation{}, &InsufficientDataError{Params: params, Partition: PartitionTest, Rows: testRows}
	}

	xTrain, yTrain := train.XY()
	xTest, yTest := test.XY()

	model, err := estimator.New(f.model)
	if err != nil {
		return Evaluation{}, &FittingError{Params: params, Model: f.model, Stage: "construct", Err: err}
	}
	if err := model.Fit(xTrain, yTrain); err != nil {
		return Evaluation{}, &FittingError{Params: params, Model: f.model, Stage: "fit", Err: err}
	}
	predictions, err := model.Predict(xTest)
	if err != nil {
		return Evaluation{}, &FittingError{Params: params, Model: f.model, Stage: "predict", Err: err}
	}

	final, err := metrics.Score(yTest, predictions)
	if err != nil {
		return Evaluation{}, &MetricComputationError{Params: params, Err: err}
	}

	f.logger.DebugContext(ctx, "evaluated candidate",
		"params", params.String(),
		"train_rows", train.Len(),
		"test_rows", test.Len(),
		"mae", final.MAE,
		"mse", final.MSE,
		"r2", final.R2,
	)

	return Evaluation{
		Predictions: predictions,
		Timestamps:  test.Timestamps(),
		Metrics:     final,
	}, nil
}
