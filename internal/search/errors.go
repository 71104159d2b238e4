package search

import (
	"errors"
	"fmt"

	"filterfinder/internal/estimator"
	"filterfinder/internal/filters"
)

var (
	// ErrInsufficientData is matched by every *InsufficientDataError.
	ErrInsufficientData = errors.New("insufficient data")
	// ErrUnknownModel is returned by NewFinder in strict mode.
	ErrUnknownModel = errors.New("unknown model")
	// ErrNoCandidates is returned when the grid for a series is empty.
	ErrNoCandidates = errors.New("no candidates to evaluate")
)

// Partition names a side of the chronological split.
type Partition string

const (
	PartitionTrain Partition = "train"
	PartitionTest  Partition = "test"
)

// InsufficientDataError reports a partition left empty once undefined rows
// are dropped.
type InsufficientDataError struct {
	Params    filters.Params
	Partition Partition
	// Rows is the partition size before undefined rows were dropped.
	Rows int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("%s: %s partition is empty after dropping undefined rows (%d rows before)",
		e.Params, e.Partition, e.Rows)
}

func (e *InsufficientDataError) Unwrap() error {
	return ErrInsufficientData
}

// FittingError wraps an estimator failure during fit or predict.
type FittingError struct {
	Params filters.Params
	Model  estimator.Name
	Stage  string
	Err    error
}

func (e *FittingError) Error() string {
	return fmt.Sprintf("%s: %s %s: %v", e.Params, e.Model, e.Stage, e.Err)
}

func (e *FittingError) Unwrap() error {
	return e.Err
}

// MetricComputationError wraps a scoring failure.
type MetricComputationError struct {
	Params filters.Params
	Err    error
}

func (e *MetricComputationError) Error() string {
	return fmt.Sprintf("%s: score predictions: %v", e.Params, e.Err)
}

func (e *MetricComputationError) Unwrap() error {
	return e.Err
}
