package search

import (
	"fmt"
	"strings"

	"filterfinder/internal/estimator"
	"filterfinder/internal/metrics"
)

// DefaultProcesses is the worker pool size when none is configured.
const DefaultProcesses = 10

// Config holds the engine settings shared by every search of a Finder.
type Config struct {
	// ModelName selects the estimator. Unknown names fall back to
	// LinearRegression unless StrictModel is set.
	ModelName string `json:"model_name" yaml:"model_name"`
	// MetricName is one of mae, mse or r2.
	MetricName string `json:"metric_name" yaml:"metric_name"`
	// ValidationPercent is the trailing fraction of the series held out for
	// testing, in (0,1).
	ValidationPercent float64 `json:"validation_percent" yaml:"validation_percent"`
	// Processes bounds the number of candidates evaluated concurrently.
	Processes int `json:"processes" yaml:"processes"`
	// StrictModel turns an unknown ModelName into ErrUnknownModel.
	StrictModel bool `json:"strict_model" yaml:"strict_model"`
	// ProgressInterval logs progress every N completed candidates; 0 logs
	// roughly every tenth of the grid.
	ProgressInterval int `json:"progress_interval" yaml:"progress_interval"`
}

// DefaultConfig returns a linear-regression, MAE-ranked search holding out 20%.
func DefaultConfig() Config {
	return Config{
		ModelName:         string(estimator.Linear),
		MetricName:        string(metrics.MAE),
		ValidationPercent: 0.2,
		Processes:         DefaultProcesses,
	}
}

// ValidationError reports an invalid configuration field
type ValidationError struct {
	Field   string      `json:"field"`
	Message string      `json:"message"`
	Value   interface{} `json:"value,omitempty"`
}

// Error implements the error interface
func (ve ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", ve.Field, ve.Message)
}

// Validate checks every field. Processes 0 is accepted and means
// DefaultProcesses.
func (c Config) Validate() error {
	if _, err := metrics.ParseName(c.MetricName); err != nil {
		return ValidationError{
			Field:   "metric_name",
			Message: "must be one of mae, mse, r2",
			Value:   c.MetricName,
		}
	}
	if !(c.ValidationPercent > 0 && c.ValidationPercent < 1) {
		return ValidationError{
			Field:   "validation_percent",
			Message: "must be in (0,1)",
			Value:   c.ValidationPercent,
		}
	}
	if c.Processes < 0 {
		return ValidationError{
			Field:   "processes",
			Message: "must be positive",
			Value:   c.Processes,
		}
	}
	if c.ProgressInterval < 0 {
		return ValidationError{
			Field:   "progress_interval",
			Message: "must not be negative",
			Value:   c.ProgressInterval,
		}
	}
	if strings.TrimSpace(c.ModelName) == "" && c.StrictModel {
		return ValidationError{
			Field:   "model_name",
			Message: "required when strict_model is set",
		}
	}
	return nil
}
