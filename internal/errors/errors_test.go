package errors

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/render"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAPIErrorConstructors(t *testing.T) {
	tests := []struct {
		name       string
		err        *APIError
		wantStatus int
		wantCode   string
		wantMsg    string
	}{
		{"search not found", ErrSearchNotFound, http.StatusNotFound, CodeSearchNotFound, "Search not found"},
		{"invalid request", InvalidRequestWithError(errors.New("unexpected EOF")), http.StatusBadRequest, CodeInvalidRequest, "Invalid request format"},
		{"validation", ErrValidation("family", "unknown family"), http.StatusBadRequest, CodeValidationFailed, "Request validation failed"},
		{"not found", NotFoundError("family"), http.StatusNotFound, CodeNotFound, "family not found"},
		{"conflict", Conflict("search is still running"), http.StatusConflict, CodeConflict, "search is still running"},
		{"unavailable", ServiceUnavailable("shutting down"), http.StatusServiceUnavailable, CodeServiceUnavailable, "shutting down"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantStatus, tt.err.StatusCode)
			assert.Equal(t, tt.wantCode, tt.err.ErrorCode)
			assert.Equal(t, tt.wantMsg, tt.err.Error())
		})
	}
}

func TestAPIErrorDetails(t *testing.T) {
	assert.Equal(t, "unexpected EOF", InvalidRequestWithError(errors.New("unexpected EOF")).Details)
	assert.Equal(t, ValidationError{Field: "p", Message: "must be >= 0"}, ErrValidation("p", "must be >= 0").Details)

	fields := []ValidationError{{Field: "values", Message: "required"}, {Field: "metric", Message: "unknown"}}
	assert.Equal(t, ValidationErrors{Errors: fields}, NewValidationErrors(fields).Details)
}

func TestAPIErrorRender(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/api/v1/searches/x", nil)

	require.NoError(t, render.Render(w, r, Conflict("search is still running")))
	assert.Equal(t, http.StatusConflict, w.Code)
}
