package http

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"filterfinder/internal/config"
	apierrors "filterfinder/internal/errors"
	"filterfinder/internal/filters"
	"filterfinder/internal/infrastructure"
	"filterfinder/internal/middleware"
	"filterfinder/internal/services"
	"filterfinder/internal/timeseries"
)

// valuesEpoch is the first timestamp of a series sent as bare values
var valuesEpoch = time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)

// Listing bounds
const (
	defaultListLimit = 100
	maxListLimit     = 1000
)

var reportContentTypes = map[string]string{
	services.ReportCSV:         "text/csv; charset=utf-8",
	services.ReportLeaderboard: "text/csv; charset=utf-8",
	services.ReportJSON:        "application/json",
	services.ReportSummary:     "text/plain; charset=utf-8",
	services.ReportXLSX:        "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
}

// SeriesPoint is one observation of a search request. A null value is an
// undefined observation.
type SeriesPoint struct {
	Timestamp time.Time `json:"timestamp" validate:"required"`
	Value     *float64  `json:"value"`
}

// CreateSearchRequest is the body of POST /api/v1/searches. The series is
// given either as timestamped points or as bare values on a daily calendar
// starting at start.
type CreateSearchRequest struct {
	Family            string        `json:"family,omitempty" validate:"omitempty,family"`
	P                 int           `json:"p" validate:"min=0"`
	Q                 *int          `json:"q,omitempty" validate:"omitempty,min=0"`
	Model             string        `json:"model,omitempty" validate:"omitempty,max=64"`
	Metric            string        `json:"metric,omitempty" validate:"omitempty,metric"`
	ValidationPercent float64       `json:"validation_percent,omitempty" validate:"omitempty,gt=0,lt=1"`
	Processes         int           `json:"processes,omitempty" validate:"omitempty,min=1,max=1024"`
	StrictModel       *bool         `json:"strict_model,omitempty"`
	Points            []SeriesPoint `json:"points,omitempty" validate:"omitempty,dive"`
	Values            []*float64    `json:"values,omitempty"`
	Start             *time.Time    `json:"start,omitempty"`
}

// Bind implements the render.Binder interface for request validation
func (req *CreateSearchRequest) Bind(r *http.Request) error {
	switch {
	case len(req.Points) == 0 && len(req.Values) == 0:
		return apierrors.ErrValidation("points", "either points or values is required")
	case len(req.Points) > 0 && len(req.Values) > 0:
		return apierrors.ErrValidation("values", "points and values cannot both be given")
	case req.Start != nil && len(req.Points) > 0:
		return apierrors.ErrValidation("start", "start only applies to values")
	}
	return nil
}

// series builds the input series. Unordered points are reported as a
// timeseries validation error.
func (req *CreateSearchRequest) series() (*timeseries.Series, error) {
	if len(req.Values) > 0 {
		start := valuesEpoch
		if req.Start != nil {
			start = *req.Start
		}
		values := make([]float64, len(req.Values))
		for i, v := range req.Values {
			values[i] = undefinedIfNil(v)
		}
		return timeseries.FromValues(start, values), nil
	}

	points := make([]timeseries.Point, len(req.Points))
	for i, p := range req.Points {
		points[i] = timeseries.Point{Timestamp: p.Timestamp, Value: undefinedIfNil(p.Value)}
	}
	return timeseries.FromPoints(points)
}

func undefinedIfNil(v *float64) float64 {
	if v == nil {
		return math.NaN()
	}
	return *v
}

// SearchListResponse is the body of GET /api/v1/searches
type SearchListResponse struct {
	Searches []*services.SearchJob `json:"searches"`
	Count    int                   `json:"count"`
}

// SearchHandler serves the asynchronous search API
type SearchHandler struct {
	service    SearchServiceInterface
	validator  *middleware.ValidationMiddleware
	query      *middleware.QueryParamValidator
	errHandler *apierrors.ErrorHandler
	logger     *slog.Logger
	tracer     trace.Tracer
}

// NewSearchHandler creates a search handler
func NewSearchHandler(service SearchServiceInterface, validator *middleware.ValidationMiddleware, errHandler *apierrors.ErrorHandler, logger *slog.Logger) *SearchHandler {
	if service == nil {
		panic("service cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &SearchHandler{
		service:    service,
		validator:  validator,
		query:      middleware.NewQueryParamValidator(errHandler),
		errHandler: errHandler,
		logger:     logger.With(slog.String("handler", "search")),
		tracer:     otel.Tracer("search-handler"),
	}
}

// Routes returns a chi router for the search endpoints
func (h *SearchHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/", h.CreateSearch)
	r.Get("/", h.ListSearches)
	r.Get("/{id}", h.GetSearch)
	r.Delete("/{id}", h.CancelSearch)
	r.Post("/{id}/cancel", h.CancelSearch)
	r.Get("/{id}/result", h.GetResult)
	r.Get("/{id}/report", h.GetReport)

	return r
}

// CreateSearch handles POST /api/v1/searches
func (h *SearchHandler) CreateSearch(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.startSpan(r, "create_search", "/api/v1/searches")
	defer span.End()
	r = r.WithContext(ctx)

	data := &CreateSearchRequest{}
	if err := render.Bind(r, data); err != nil {
		var apiErr *apierrors.APIError
		if !errors.As(err, &apiErr) {
			err = apierrors.InvalidRequestWithError(err)
		}
		h.fail(w, r, span, err, "request binding failed")
		return
	}
	if err := h.validator.ValidateStruct(data); err != nil {
		h.fail(w, r, span, err, "request validation failed")
		return
	}

	series, err := data.series()
	if err != nil {
		h.fail(w, r, span, err, "invalid series")
		return
	}

	span.SetAttributes(
		attribute.String("search.family", data.Family),
		attribute.Int("search.points", series.Len()),
		attribute.Int("search.p", data.P),
	)

	job, err := h.service.Start(ctx, services.SearchRequest{
		Family:            data.Family,
		P:                 data.P,
		Q:                 data.Q,
		ModelName:         data.Model,
		MetricName:        data.Metric,
		ValidationPercent: data.ValidationPercent,
		Processes:         data.Processes,
		StrictModel:       data.StrictModel,
		Series:            series,
	})
	if err != nil {
		h.fail(w, r, span, err, "search start failed")
		return
	}

	span.SetAttributes(attribute.String("search.id", job.ID))
	h.logger.InfoContext(ctx, "search accepted",
		slog.String("search_id", job.ID),
		slog.String("request_id", middleware.GetReqID(ctx)),
		slog.String("trace_id", infrastructure.TraceIDFromContext(ctx)),
		slog.Int("points", job.Points))

	w.Header().Set("Location", config.SearchesEndpoint+"/"+job.ID)
	render.Status(r, http.StatusAccepted)
	render.JSON(w, r, job)
}

// ListSearches handles GET /api/v1/searches
func (h *SearchHandler) ListSearches(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.startSpan(r, "list_searches", "/api/v1/searches")
	defer span.End()
	r = r.WithContext(ctx)

	statuses := []string{
		string(services.StatusQueued),
		string(services.StatusRunning),
		string(services.StatusCompleted),
		string(services.StatusFailed),
		string(services.StatusCancelled),
	}
	status, ok := h.query.ValidateEnum(w, r, "status", statuses, "")
	if !ok {
		return
	}
	limit, ok := h.query.ValidateInt(w, r, "limit", 1, maxListLimit, defaultListLimit)
	if !ok {
		return
	}

	filter := services.SearchFilter{Status: services.SearchStatus(status), Limit: limit}
	if since := r.URL.Query().Get("since"); since != "" {
		t, err := time.Parse(time.RFC3339, since)
		if err != nil {
			h.fail(w, r, span, apierrors.ErrValidation("since", "since must be an RFC 3339 timestamp"), "invalid since")
			return
		}
		filter.Since = t
	}

	jobs := h.service.List(ctx, filter)
	if jobs == nil {
		jobs = []*services.SearchJob{}
	}
	span.SetAttributes(attribute.Int("search.count", len(jobs)))

	render.JSON(w, r, SearchListResponse{Searches: jobs, Count: len(jobs)})
}

// GetSearch handles GET /api/v1/searches/{id}
func (h *SearchHandler) GetSearch(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ctx, span := h.startSpan(r, "get_search", "/api/v1/searches/{id}", attribute.String("search.id", id))
	defer span.End()
	r = r.WithContext(ctx)

	if err := h.validator.ValidateVar("id", id, "searchid"); err != nil {
		h.fail(w, r, span, err, "invalid search id")
		return
	}

	job, err := h.service.Get(ctx, id)
	if err != nil {
		h.fail(w, r, span, err, "search lookup failed")
		return
	}
	render.JSON(w, r, job)
}

// CancelSearch handles DELETE /api/v1/searches/{id} and
// POST /api/v1/searches/{id}/cancel
func (h *SearchHandler) CancelSearch(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ctx, span := h.startSpan(r, "cancel_search", "/api/v1/searches/{id}/cancel", attribute.String("search.id", id))
	defer span.End()
	r = r.WithContext(ctx)

	if err := h.validator.ValidateVar("id", id, "searchid"); err != nil {
		h.fail(w, r, span, err, "invalid search id")
		return
	}

	if err := h.service.Cancel(ctx, id); err != nil {
		h.fail(w, r, span, err, "search cancellation failed")
		return
	}

	h.logger.InfoContext(ctx, "search cancellation accepted",
		slog.String("search_id", id),
		slog.String("request_id", middleware.GetReqID(ctx)))

	render.Status(r, http.StatusAccepted)
	render.JSON(w, r, map[string]string{
		"id":      id,
		"message": "Search cancellation requested",
	})
}

// GetResult handles GET /api/v1/searches/{id}/result. The optional top
// parameter truncates the leaderboard.
func (h *SearchHandler) GetResult(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ctx, span := h.startSpan(r, "get_result", "/api/v1/searches/{id}/result", attribute.String("search.id", id))
	defer span.End()
	r = r.WithContext(ctx)

	if err := h.validator.ValidateVar("id", id, "searchid"); err != nil {
		h.fail(w, r, span, err, "invalid search id")
		return
	}
	family, err := familyParam(r)
	if err != nil {
		h.fail(w, r, span, err, "invalid family")
		return
	}
	top, ok := h.query.ValidateInt(w, r, "top", 0, math.MaxInt32, 0)
	if !ok {
		return
	}

	result, err := h.service.Result(ctx, id, family)
	if err != nil {
		h.fail(w, r, span, err, "result lookup failed")
		return
	}

	out := *result
	if top > 0 && top < len(out.Leaderboard) {
		out.Leaderboard = out.Leaderboard[:top]
	}
	render.JSON(w, r, &out)
}

// GetReport handles GET /api/v1/searches/{id}/report
func (h *SearchHandler) GetReport(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ctx, span := h.startSpan(r, "get_report", "/api/v1/searches/{id}/report", attribute.String("search.id", id))
	defer span.End()
	r = r.WithContext(ctx)

	if err := h.validator.ValidateVar("id", id, "searchid"); err != nil {
		h.fail(w, r, span, err, "invalid search id")
		return
	}
	format, ok := h.query.ValidateEnum(w, r, "format", services.ReportFormats(), services.ReportCSV)
	if !ok {
		return
	}
	family, err := familyParam(r)
	if err != nil {
		h.fail(w, r, span, err, "invalid family")
		return
	}

	path, err := h.service.ReportPath(ctx, id, family, format)
	if err != nil {
		h.fail(w, r, span, err, "report lookup failed")
		return
	}

	name := fmt.Sprintf("%s_%s_%s", id, filepath.Base(filepath.Dir(path)), filepath.Base(path))
	w.Header().Set("Content-Type", reportContentTypes[format])
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	span.SetAttributes(attribute.String("report.format", format))

	http.ServeFile(w, r, path)
}

func familyParam(r *http.Request) (filters.Family, error) {
	name := r.URL.Query().Get("family")
	if name == "" {
		return "", nil
	}
	family, err := filters.ParseFamily(name)
	if err != nil {
		return "", apierrors.ErrValidation("family", err.Error())
	}
	return family, nil
}

func (h *SearchHandler) startSpan(r *http.Request, name, route string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append(attrs,
		attribute.String("http.method", r.Method),
		attribute.String("http.route", route),
		attribute.String("request_id", middleware.GetReqID(r.Context())),
		attribute.String("component", "search_handler"),
	)
	return h.tracer.Start(r.Context(), "search_handler."+name, trace.WithAttributes(attrs...))
}

// fail records err on the span and writes it as problem details
func (h *SearchHandler) fail(w http.ResponseWriter, r *http.Request, span trace.Span, err error, msg string) {
	span.RecordError(err)
	span.SetStatus(codes.Error, msg)
	h.errHandler.HandleError(w, r, serviceError(err))
}

// serviceError maps search service failures to API errors. Engine and
// storage errors pass through to the error handler's own mapping.
func serviceError(err error) error {
	switch {
	case errors.Is(err, services.ErrSearchNotFound):
		return apierrors.ErrSearchNotFound
	case errors.Is(err, services.ErrSearchNotFinished), errors.Is(err, services.ErrSearchFinished):
		return apierrors.Conflict(err.Error())
	case errors.Is(err, services.ErrFamilyNotInSearch):
		return apierrors.NotFoundError("family")
	case errors.Is(err, services.ErrFamilyRequired):
		return apierrors.ErrValidation("family", err.Error())
	case errors.Is(err, services.ErrUnknownReportFormat):
		return apierrors.ErrValidation("format", err.Error())
	case errors.Is(err, services.ErrEmptySeries):
		return apierrors.ErrValidation("points", err.Error())
	case errors.Is(err, services.ErrServiceStopped):
		return apierrors.ServiceUnavailable(err.Error())
	}
	return err
}
