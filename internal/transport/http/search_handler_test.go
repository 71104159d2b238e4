package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"filterfinder/internal/config"
	apierrors "filterfinder/internal/errors"
	"filterfinder/internal/filters"
	"filterfinder/internal/metrics"
	"filterfinder/internal/middleware"
	"filterfinder/internal/search"
	"filterfinder/internal/services"
	"filterfinder/internal/shared/testutil"
)

// MockSearchService is a mock implementation of the search service
type MockSearchService struct {
	mock.Mock
}

func (m *MockSearchService) Start(ctx context.Context, req services.SearchRequest) (*services.SearchJob, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.SearchJob), args.Error(1)
}

func (m *MockSearchService) Get(ctx context.Context, id string) (*services.SearchJob, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.SearchJob), args.Error(1)
}

func (m *MockSearchService) List(ctx context.Context, filter services.SearchFilter) []*services.SearchJob {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).([]*services.SearchJob)
}

func (m *MockSearchService) Result(ctx context.Context, id string, family filters.Family) (*search.Result, error) {
	args := m.Called(ctx, id, family)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*search.Result), args.Error(1)
}

func (m *MockSearchService) ReportPath(ctx context.Context, id string, family filters.Family, format string) (string, error) {
	args := m.Called(ctx, id, family, format)
	return args.String(0), args.Error(1)
}

func (m *MockSearchService) Cancel(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func newSearchRouter(t *testing.T, svc SearchServiceInterface) http.Handler {
	t.Helper()
	logger, _ := testutil.NewTestLogger(t)
	errHandler := apierrors.NewErrorHandler(logger, false)
	validator := middleware.NewValidationMiddleware(logger, errHandler, 1<<20)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Mount(config.SearchesEndpoint, NewSearchHandler(svc, validator, errHandler, logger).Routes())
	return r
}

func doRequest(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body), w.Body.String())
	return body
}

func TestCreateSearch(t *testing.T) {
	svc := new(MockSearchService)
	svc.On("Start", mock.Anything, mock.MatchedBy(func(req services.SearchRequest) bool {
		return req.Family == "kalman" &&
			req.P == 2 &&
			req.Q != nil && *req.Q == 1 &&
			req.MetricName == "mse" &&
			req.Series.Len() == 4 &&
			math.IsNaN(req.Series.Value(2)) &&
			req.Series.Value(3) == 4
	})).Return(&services.SearchJob{ID: "abc", Status: services.StatusQueued, Points: 4}, nil)

	router := newSearchRouter(t, svc)
	w := doRequest(t, router, http.MethodPost, "/api/v1/searches",
		`{"family":"kalman","p":2,"q":1,"metric":"mse","values":[1,2,null,4]}`)

	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	assert.Equal(t, "/api/v1/searches/abc", w.Header().Get("Location"))
	body := decodeBody(t, w)
	assert.Equal(t, "abc", body["id"])
	assert.Equal(t, "queued", body["status"])
	svc.AssertExpectations(t)
}

func TestCreateSearchWithPoints(t *testing.T) {
	svc := new(MockSearchService)
	svc.On("Start", mock.Anything, mock.MatchedBy(func(req services.SearchRequest) bool {
		return req.Series.Len() == 2 && req.Series.Timestamp(1).Day() == 2
	})).Return(&services.SearchJob{ID: "def", Status: services.StatusQueued}, nil)

	router := newSearchRouter(t, svc)
	w := doRequest(t, router, http.MethodPost, "/api/v1/searches",
		`{"points":[{"timestamp":"2024-01-01T00:00:00Z","value":1.5},{"timestamp":"2024-01-02T00:00:00Z","value":2.5}]}`)

	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	svc.AssertExpectations(t)
}

func TestCreateSearchRejectsInvalidRequests(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		wantType  string
		wantField string
	}{
		{
			name:      "no series",
			body:      `{"family":"ma"}`,
			wantType:  apierrors.TypeValidation,
			wantField: "points",
		},
		{
			name:      "points and values",
			body:      `{"values":[1],"points":[{"timestamp":"2024-01-01T00:00:00Z","value":1}]}`,
			wantType:  apierrors.TypeValidation,
			wantField: "values",
		},
		{
			name:     "unknown family",
			body:     `{"family":"wavelet","values":[1,2,3]}`,
			wantType: apierrors.TypeValidation,
		},
		{
			name:     "unknown metric",
			body:     `{"metric":"rmse","values":[1,2,3]}`,
			wantType: apierrors.TypeValidation,
		},
		{
			name:     "validation percent out of range",
			body:     `{"validation_percent":1.5,"values":[1,2,3]}`,
			wantType: apierrors.TypeValidation,
		},
		{
			name:     "negative p",
			body:     `{"p":-1,"values":[1,2,3]}`,
			wantType: apierrors.TypeValidation,
		},
		{
			name:     "malformed json",
			body:     `{"values":[1,2,`,
			wantType: apierrors.TypeValidation,
		},
		{
			name:     "unordered points",
			body:     `{"points":[{"timestamp":"2024-01-02T00:00:00Z","value":1},{"timestamp":"2024-01-01T00:00:00Z","value":2}]}`,
			wantType: apierrors.TypeInvalidSeries,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockSearchService)
			router := newSearchRouter(t, svc)

			w := doRequest(t, router, http.MethodPost, "/api/v1/searches", tt.body)

			assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
			body := decodeBody(t, w)
			assert.Equal(t, tt.wantType, body["type"])
			assert.NotEmpty(t, body["trace_id"])
			if tt.wantField != "" {
				details, ok := body["details"].(map[string]interface{})
				require.True(t, ok, "details missing: %v", body)
				assert.Equal(t, tt.wantField, details["field"])
			}
			svc.AssertNotCalled(t, "Start", mock.Anything, mock.Anything)
		})
	}
}

func TestCreateSearchServiceErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantType   string
	}{
		{
			name:       "unknown model in strict mode",
			err:        fmt.Errorf("%w: %q", search.ErrUnknownModel, "Prophet"),
			wantStatus: http.StatusBadRequest,
			wantType:   apierrors.TypeUnknownModel,
		},
		{
			name:       "invalid configuration",
			err:        search.ValidationError{Field: "processes", Message: "must be positive"},
			wantStatus: http.StatusBadRequest,
			wantType:   apierrors.TypeValidation,
		},
		{
			name:       "shutting down",
			err:        services.ErrServiceStopped,
			wantStatus: http.StatusServiceUnavailable,
			wantType:   apierrors.TypeServiceDown,
		},
		{
			name:       "unexpected",
			err:        fmt.Errorf("boom"),
			wantStatus: http.StatusInternalServerError,
			wantType:   apierrors.TypeInternal,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockSearchService)
			svc.On("Start", mock.Anything, mock.Anything).Return(nil, tt.err)
			router := newSearchRouter(t, svc)

			w := doRequest(t, router, http.MethodPost, "/api/v1/searches", `{"values":[1,2,3]}`)

			assert.Equal(t, tt.wantStatus, w.Code, w.Body.String())
			assert.Equal(t, tt.wantType, decodeBody(t, w)["type"])
		})
	}
}

func TestGetSearch(t *testing.T) {
	svc := new(MockSearchService)
	svc.On("Get", mock.Anything, "abc").Return(&services.SearchJob{ID: "abc", Status: services.StatusRunning}, nil)
	svc.On("Get", mock.Anything, "missing").Return(nil, fmt.Errorf("%w: missing", services.ErrSearchNotFound))
	router := newSearchRouter(t, svc)

	w := doRequest(t, router, http.MethodGet, "/api/v1/searches/abc", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "running", decodeBody(t, w)["status"])

	w = doRequest(t, router, http.MethodGet, "/api/v1/searches/missing", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, apierrors.TypeNotFound, decodeBody(t, w)["type"])

	w = doRequest(t, router, http.MethodGet, "/api/v1/searches/"+strings.Repeat("x", 65), "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	svc.AssertNumberOfCalls(t, "Get", 2)
}

func TestCancelSearch(t *testing.T) {
	tests := []struct {
		name       string
		method     string
		target     string
		err        error
		wantStatus int
		wantType   string
	}{
		{name: "delete", method: http.MethodDelete, target: "/api/v1/searches/abc", wantStatus: http.StatusAccepted},
		{name: "post cancel", method: http.MethodPost, target: "/api/v1/searches/abc/cancel", wantStatus: http.StatusAccepted},
		{
			name:       "already finished",
			method:     http.MethodDelete,
			target:     "/api/v1/searches/abc",
			err:        fmt.Errorf("%w: status is completed", services.ErrSearchFinished),
			wantStatus: http.StatusConflict,
			wantType:   apierrors.TypeConflict,
		},
		{
			name:       "not found",
			method:     http.MethodDelete,
			target:     "/api/v1/searches/abc",
			err:        services.ErrSearchNotFound,
			wantStatus: http.StatusNotFound,
			wantType:   apierrors.TypeNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockSearchService)
			svc.On("Cancel", mock.Anything, "abc").Return(tt.err)
			router := newSearchRouter(t, svc)

			w := doRequest(t, router, tt.method, tt.target, "")

			assert.Equal(t, tt.wantStatus, w.Code, w.Body.String())
			if tt.wantType != "" {
				assert.Equal(t, tt.wantType, decodeBody(t, w)["type"])
			}
			svc.AssertExpectations(t)
		})
	}
}

func TestListSearches(t *testing.T) {
	t.Run("filters by status and limit", func(t *testing.T) {
		svc := new(MockSearchService)
		svc.On("List", mock.Anything, mock.MatchedBy(func(f services.SearchFilter) bool {
			return f.Status == services.StatusCompleted && f.Limit == 5 && f.Since.Year() == 2024
		})).Return([]*services.SearchJob{{ID: "a"}, {ID: "b"}})
		router := newSearchRouter(t, svc)

		w := doRequest(t, router, http.MethodGet, "/api/v1/searches?status=completed&limit=5&since=2024-01-01T00:00:00Z", "")

		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		body := decodeBody(t, w)
		assert.Equal(t, float64(2), body["count"])
		assert.Len(t, body["searches"], 2)
		svc.AssertExpectations(t)
	})

	t.Run("empty list", func(t *testing.T) {
		svc := new(MockSearchService)
		svc.On("List", mock.Anything, services.SearchFilter{Limit: defaultListLimit}).Return(nil)
		router := newSearchRouter(t, svc)

		w := doRequest(t, router, http.MethodGet, "/api/v1/searches", "")

		require.Equal(t, http.StatusOK, w.Code)
		body := decodeBody(t, w)
		assert.Equal(t, []interface{}{}, body["searches"])
		assert.Equal(t, float64(0), body["count"])
	})

	for _, query := range []string{"status=done", "limit=0", "limit=abc", "since=yesterday"} {
		t.Run("rejects "+query, func(t *testing.T) {
			svc := new(MockSearchService)
			router := newSearchRouter(t, svc)

			w := doRequest(t, router, http.MethodGet, "/api/v1/searches?"+query, "")

			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, apierrors.TypeValidation, decodeBody(t, w)["type"])
			svc.AssertNotCalled(t, "List", mock.Anything, mock.Anything)
		})
	}
}

func TestGetResult(t *testing.T) {
	result := &search.Result{
		Family:      filters.FamilyMovingAverage,
		Model:       "LinearRegression",
		Metric:      metrics.MAE,
		BestParams:  filters.MovingAverage{Q: 1, Window: 6, P: 1},
		BestMetrics: metrics.Final{MAE: 0.5, MSE: 0.25, R2: 0.9},
		Leaderboard: []search.LeaderboardEntry{
			{Rank: 1, Params: filters.MovingAverage{Q: 1, Window: 6, P: 1}},
			{Rank: 2, Params: filters.MovingAverage{Q: 1, Window: 1, P: 1}},
			{Rank: 3, Params: filters.MovingAverage{Q: 1, Window: 0, P: 1}},
		},
	}

	svc := new(MockSearchService)
	svc.On("Result", mock.Anything, "abc", filters.FamilyMovingAverage).Return(result, nil)
	svc.On("Result", mock.Anything, "abc", filters.Family("")).Return(nil, services.ErrFamilyRequired)
	svc.On("Result", mock.Anything, "queued", filters.Family("")).
		Return(nil, fmt.Errorf("%w: status is queued", services.ErrSearchNotFinished))
	router := newSearchRouter(t, svc)

	w := doRequest(t, router, http.MethodGet, "/api/v1/searches/abc/result?family=ma&top=2", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decodeBody(t, w)
	assert.Equal(t, "moving_average", body["family"])
	assert.Len(t, body["leaderboard"], 2)
	assert.Len(t, result.Leaderboard, 3, "stored result must not be truncated")

	w = doRequest(t, router, http.MethodGet, "/api/v1/searches/abc/result", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doRequest(t, router, http.MethodGet, "/api/v1/searches/queued/result", "")
	assert.Equal(t, http.StatusConflict, w.Code)

	w = doRequest(t, router, http.MethodGet, "/api/v1/searches/abc/result?family=wavelet", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, apierrors.TypeValidation, decodeBody(t, w)["type"])
}

func TestGetReport(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "abc", "moving_average")
	require.NoError(t, os.MkdirAll(dir, 0755))
	path := filepath.Join(dir, config.ResultCSVFile)
	require.NoError(t, os.WriteFile(path, []byte("timestamp,actual\n"), 0644))

	svc := new(MockSearchService)
	svc.On("ReportPath", mock.Anything, "abc", filters.Family(""), services.ReportCSV).Return(path, nil)
	svc.On("ReportPath", mock.Anything, "abc", filters.FamilyKalman, services.ReportXLSX).
		Return("", apierrors.NewAppError(apierrors.ErrTypeNotFound, "report file is missing", nil))
	router := newSearchRouter(t, svc)

	w := doRequest(t, router, http.MethodGet, "/api/v1/searches/abc/report", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "text/csv; charset=utf-8", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "abc_moving_average_result.csv")
	assert.True(t, bytes.HasPrefix(w.Body.Bytes(), []byte("timestamp,actual")))

	w = doRequest(t, router, http.MethodGet, "/api/v1/searches/abc/report?format=xlsx&family=kalman", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doRequest(t, router, http.MethodGet, "/api/v1/searches/abc/report?format=pdf", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	svc.AssertNumberOfCalls(t, "ReportPath", 2)
}

func TestServiceError(t *testing.T) {
	tests := []struct {
		err        error
		wantStatus int
	}{
		{services.ErrSearchNotFound, http.StatusNotFound},
		{services.ErrSearchNotFinished, http.StatusConflict},
		{services.ErrSearchFinished, http.StatusConflict},
		{services.ErrFamilyNotInSearch, http.StatusNotFound},
		{services.ErrFamilyRequired, http.StatusBadRequest},
		{services.ErrUnknownReportFormat, http.StatusBadRequest},
		{services.ErrEmptySeries, http.StatusBadRequest},
		{services.ErrServiceStopped, http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			var apiErr *apierrors.APIError
			require.ErrorAs(t, serviceError(fmt.Errorf("wrapped: %w", tt.err)), &apiErr)
			assert.Equal(t, tt.wantStatus, apiErr.StatusCode)
		})
	}

	plain := fmt.Errorf("engine failure")
	assert.Same(t, plain, serviceError(plain))
}
