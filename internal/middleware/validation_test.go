package middleware

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apierrors "filterfinder/internal/errors"
	"filterfinder/internal/shared/testutil"
)

type searchRequestFixture struct {
	ID     string  `json:"id" validate:"omitempty,searchid"`
	Family string  `json:"family" validate:"required,family"`
	Metric string  `json:"metric" validate:"omitempty,metric"`
	P      int     `json:"p" validate:"min=0,max=50"`
	Split  float64 `json:"validation_percent" validate:"omitempty,gt=0,lt=1"`
}

func newValidation(t *testing.T, maxBody int64) *ValidationMiddleware {
	t.Helper()
	logger, _ := testutil.NewTestLogger(t)
	return NewValidationMiddleware(logger, apierrors.NewErrorHandler(logger, false), maxBody)
}

func TestValidateStruct(t *testing.T) {
	v := newValidation(t, 0)

	tests := []struct {
		name       string
		req        searchRequestFixture
		wantFields []string
	}{
		{
			name: "valid",
			req:  searchRequestFixture{Family: "kalman", Metric: "r2", P: 3, Split: 0.2},
		},
		{
			name: "all families",
			req:  searchRequestFixture{Family: "ALL"},
		},
		{
			name:       "unknown family",
			req:        searchRequestFixture{Family: "median"},
			wantFields: []string{"family"},
		},
		{
			name:       "missing family and bad metric",
			req:        searchRequestFixture{Metric: "rmse"},
			wantFields: []string{"family", "metric"},
		},
		{
			name:       "lag out of range",
			req:        searchRequestFixture{Family: "ma", P: 51},
			wantFields: []string{"p"},
		},
		{
			name:       "validation percent bounds",
			req:        searchRequestFixture{Family: "ma", Split: 1},
			wantFields: []string{"validation_percent"},
		},
		{
			name:       "path separator in id",
			req:        searchRequestFixture{ID: "../etc", Family: "ma"},
			wantFields: []string{"id"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.ValidateStruct(tt.req)
			if len(tt.wantFields) == 0 {
				assert.NoError(t, err)
				return
			}

			var apiErr *apierrors.APIError
			require.True(t, errors.As(err, &apiErr))
			assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)

			details, ok := apiErr.Details.(apierrors.ValidationErrors)
			require.True(t, ok)
			var fields []string
			for _, fe := range details.Errors {
				fields = append(fields, fe.Field)
				assert.NotEmpty(t, fe.Message)
			}
			assert.ElementsMatch(t, tt.wantFields, fields)
		})
	}
}

func TestFormatValidationErrorMessages(t *testing.T) {
	v := newValidation(t, 0)

	err := v.ValidateStruct(searchRequestFixture{Family: "median", Metric: "rmse", P: -1})
	var apiErr *apierrors.APIError
	require.True(t, errors.As(err, &apiErr))

	messages := map[string]string{}
	for _, fe := range apiErr.Details.(apierrors.ValidationErrors).Errors {
		messages[fe.Field] = fe.Message
	}
	assert.Equal(t, "family must be one of: ma, ema, kalman, all", messages["family"])
	assert.Equal(t, "metric must be one of: mae, mse, r2", messages["metric"])
	assert.Equal(t, "p must be at least 0", messages["p"])
}

func TestValidateVar(t *testing.T) {
	v := newValidation(t, 0)

	tests := []struct {
		name    string
		value   string
		tag     string
		wantMsg string
	}{
		{name: "uuid", value: "4f9c2a8e-1b7d-4c3e-9a51-0d2f6e8b7c14", tag: "searchid"},
		{name: "empty allowed", value: "", tag: "omitempty,searchid"},
		{name: "dot dot", value: "..", tag: "searchid", wantMsg: "id must be a valid search id"},
		{name: "too long", value: strings.Repeat("a", maxSearchIDLength+1), tag: "searchid", wantMsg: "id must be a valid search id"},
		{name: "oneof", value: "pdf", tag: "oneof=csv json", wantMsg: "id must be one of: csv, json"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.ValidateVar("id", tt.value, tt.tag)
			if tt.wantMsg == "" {
				assert.NoError(t, err)
				return
			}
			var apiErr *apierrors.APIError
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, apierrors.ValidationError{Field: "id", Message: tt.wantMsg}, apiErr.Details)
		})
	}
}

func TestValidateRequest(t *testing.T) {
	var received string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		received = string(body)
		w.WriteHeader(http.StatusAccepted)
	})
	h := newValidation(t, 64).ValidateRequest(next)

	tests := []struct {
		name       string
		method     string
		body       string
		wantStatus int
	}{
		{"valid json", http.MethodPost, `{"family":"ma"}`, http.StatusAccepted},
		{"empty body", http.MethodPost, "", http.StatusAccepted},
		{"invalid json", http.MethodPost, `{"family":`, http.StatusBadRequest},
		{"too large", http.MethodPost, `{"values":[` + strings.Repeat("1,", 40) + `1]}`, http.StatusRequestEntityTooLarge},
		{"get skips body checks", http.MethodGet, "", http.StatusAccepted},
		{"delete skips body checks", http.MethodDelete, "", http.StatusAccepted},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			received = ""
			req := httptest.NewRequest(tt.method, "/api/v1/searches", strings.NewReader(tt.body))
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantStatus == http.StatusAccepted {
				assert.Equal(t, tt.body, received, "body is restored for the handler")
			}
		})
	}
}

func TestContentTypeValidator(t *testing.T) {
	h := ContentTypeValidator("application/json")(okHandler())

	tests := []struct {
		name        string
		method      string
		contentType string
		wantStatus  int
	}{
		{"json", http.MethodPost, "application/json", http.StatusOK},
		{"json with charset", http.MethodPost, "application/json; charset=utf-8", http.StatusOK},
		{"missing", http.MethodPost, "", http.StatusBadRequest},
		{"form", http.MethodPost, "application/x-www-form-urlencoded", http.StatusUnsupportedMediaType},
		{"get is exempt", http.MethodGet, "", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/api/v1/searches", strings.NewReader("{}"))
			if tt.contentType != "" {
				req.Header.Set("Content-Type", tt.contentType)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tt.wantStatus, rec.Code)
		})
	}
}

func TestQueryParamValidator(t *testing.T) {
	logger, _ := testutil.NewTestLogger(t)
	qv := NewQueryParamValidator(apierrors.NewErrorHandler(logger, false))

	t.Run("int", func(t *testing.T) {
		tests := []struct {
			query  string
			want   int
			wantOK bool
		}{
			{"", 50, true},
			{"limit=10", 10, true},
			{"limit=0", 0, false},
			{"limit=abc", 0, false},
			{"limit=501", 0, false},
		}
		for _, tt := range tests {
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/api/v1/searches?"+tt.query, nil)
			got, ok := qv.ValidateInt(rec, req, "limit", 1, 500, 50)
			assert.Equal(t, tt.wantOK, ok, tt.query)
			if tt.wantOK {
				assert.Equal(t, tt.want, got, tt.query)
			} else {
				assert.Equal(t, http.StatusBadRequest, rec.Code, tt.query)
			}
		}
	})

	t.Run("enum", func(t *testing.T) {
		allowed := []string{"csv", "json", "xlsx"}

		rec := httptest.NewRecorder()
		got, ok := qv.ValidateEnum(rec, httptest.NewRequest(http.MethodGet, "/r?format=xlsx", nil), "format", allowed, "json")
		assert.True(t, ok)
		assert.Equal(t, "xlsx", got)

		got, ok = qv.ValidateEnum(rec, httptest.NewRequest(http.MethodGet, "/r", nil), "format", allowed, "json")
		assert.True(t, ok)
		assert.Equal(t, "json", got)

		rec = httptest.NewRecorder()
		_, ok = qv.ValidateEnum(rec, httptest.NewRequest(http.MethodGet, "/r?format=pdf", nil), "format", allowed, "json")
		assert.False(t, ok)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), apierrors.TypeValidation)
	})
}
