package errors

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/render"

	"filterfinder/internal/search"
	"filterfinder/internal/timeseries"
)

// ProblemDetails is an RFC 7807 error body. Extensions are flattened into
// the top-level object when marshalled.
type ProblemDetails struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`

	Extensions map[string]interface{} `json:"-"`
}

// NewProblemDetails builds a problem with an empty extension set
func NewProblemDetails(status int, problemType, title, detail, instance string) *ProblemDetails {
	return &ProblemDetails{
		Type:       problemType,
		Title:      title,
		Status:     status,
		Detail:     detail,
		Instance:   instance,
		Extensions: make(map[string]interface{}),
	}
}

// WithExtension sets an extension member and returns pd for chaining
func (pd *ProblemDetails) WithExtension(key string, value interface{}) *ProblemDetails {
	pd.Extensions[key] = value
	return pd
}

// Error lets a *ProblemDetails travel through error returns
func (pd *ProblemDetails) Error() string {
	if pd.Detail == "" {
		return pd.Title
	}
	return pd.Title + ": " + pd.Detail
}

// Render sets the response status for render.Render
func (pd *ProblemDetails) Render(w http.ResponseWriter, r *http.Request) error {
	render.Status(r, pd.Status)
	return nil
}

// MarshalJSON writes the standard members over any extension of the same
// name
func (pd *ProblemDetails) MarshalJSON() ([]byte, error) {
	body := make(map[string]interface{}, len(pd.Extensions)+5)
	for k, v := range pd.Extensions {
		body[k] = v
	}
	body["type"] = pd.Type
	body["title"] = pd.Title
	body["status"] = pd.Status
	if pd.Detail != "" {
		body["detail"] = pd.Detail
	}
	if pd.Instance != "" {
		body["instance"] = pd.Instance
	}
	return json.Marshal(body)
}

// MapSearchError converts the typed failures of a search into problem
// details. ok is false when err is not a search failure.
func MapSearchError(err error, instance string) (problem *ProblemDetails, ok bool) {
	var (
		cfgErr    search.ValidationError
		seriesErr *timeseries.ValidationError
		dataErr   *search.InsufficientDataError
		fitErr    *search.FittingError
		metricErr *search.MetricComputationError
	)
	badRequest := func(typ, title string) *ProblemDetails {
		return NewProblemDetails(http.StatusBadRequest, typ, title, err.Error(), instance)
	}
	unprocessable := func(typ, title string) *ProblemDetails {
		return NewProblemDetails(http.StatusUnprocessableEntity, typ, title, err.Error(), instance)
	}

	switch {
	case errors.As(err, &cfgErr):
		problem = badRequest(TypeValidation, "Invalid Search Configuration").WithExtension("field", cfgErr.Field)
	case errors.As(err, &seriesErr):
		problem = badRequest(TypeInvalidSeries, "Invalid Series").WithExtension("field", seriesErr.Field)
	case errors.Is(err, search.ErrUnknownModel):
		problem = badRequest(TypeUnknownModel, "Unknown Model")
	case errors.As(err, &dataErr):
		problem = unprocessable(TypeInsufficientData, "Insufficient Data").
			WithExtension("partition", string(dataErr.Partition)).
			WithExtension("params", dataErr.Params.String())
	case errors.Is(err, search.ErrNoCandidates):
		problem = unprocessable(TypeNoCandidates, "No Candidates")
	case errors.As(err, &fitErr):
		problem = unprocessable(TypeFitting, "Model Fitting Failed").
			WithExtension("model", string(fitErr.Model)).
			WithExtension("stage", fitErr.Stage)
	case errors.As(err, &metricErr):
		problem = NewProblemDetails(http.StatusInternalServerError, TypeMetric,
			"Metric Computation Failed", err.Error(), instance)
	case errors.Is(err, context.Canceled):
		problem = NewProblemDetails(http.StatusServiceUnavailable, TypeCancelled,
			"Search Cancelled", "The search was cancelled before it completed", instance)
	default:
		return nil, false
	}
	return problem, true
}
