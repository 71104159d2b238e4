package middleware

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"

	apierrors "filterfinder/internal/errors"
	"filterfinder/internal/filters"
	"filterfinder/internal/metrics"
)

// FamilyAll selects every filter family in one request
const FamilyAll = "all"

const defaultMaxBodySize = 10 << 20

// maxSearchIDLength bounds search ids, which double as report directory names
const maxSearchIDLength = 64

// ruleMessages renders failed validate tags. %[1]s is the field, %[2]s the
// tag parameter.
var ruleMessages = map[string]string{
	"required": "%[1]s is required",
	"min":      "%[1]s must be at least %[2]s",
	"max":      "%[1]s must be at most %[2]s",
	"gte":      "%[1]s must be greater than or equal to %[2]s",
	"lte":      "%[1]s must be less than or equal to %[2]s",
	"gt":       "%[1]s must be greater than %[2]s",
	"lt":       "%[1]s must be less than %[2]s",
	"family":   "%[1]s must be one of: ma, ema, kalman, all",
	"metric":   "%[1]s must be one of: mae, mse, r2",
	"searchid": "%[1]s must be a valid search id",
}

// ValidationMiddleware checks raw request bodies and validates decoded
// request structs with the search specific tags family, metric and searchid
type ValidationMiddleware struct {
	validator    *validator.Validate
	logger       *slog.Logger
	errorHandler *apierrors.ErrorHandler
	maxBodySize  int64
}

func NewValidationMiddleware(logger *slog.Logger, errorHandler *apierrors.ErrorHandler, maxBodySize int64) *ValidationMiddleware {
	v := validator.New()
	v.RegisterValidation("family", func(fl validator.FieldLevel) bool {
		return isFamily(fl.Field().String())
	})
	v.RegisterValidation("metric", func(fl validator.FieldLevel) bool {
		_, err := metrics.ParseName(fl.Field().String())
		return err == nil
	})
	v.RegisterValidation("searchid", func(fl validator.FieldLevel) bool {
		return isSearchID(fl.Field().String())
	})
	// Report JSON names, not Go names
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})

	if maxBodySize <= 0 {
		maxBodySize = defaultMaxBodySize
	}
	return &ValidationMiddleware{
		validator:    v,
		logger:       logger.With(slog.String("component", "validation_middleware")),
		errorHandler: errorHandler,
		maxBodySize:  maxBodySize,
	}
}

// ValidateRequest rejects oversized or malformed JSON bodies before they are
// decoded. The body is buffered and handed on unchanged.
func (m *ValidationMiddleware) ValidateRequest(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !carriesBody(r.Method) || r.Body == nil {
			next.ServeHTTP(w, r)
			return
		}

		body, apiErr := m.readBody(r)
		if apiErr != nil {
			m.errorHandler.HandleError(w, r, apiErr)
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(body))
		next.ServeHTTP(w, r)
	})
}

func (m *ValidationMiddleware) readBody(r *http.Request) ([]byte, *apierrors.APIError) {
	if r.ContentLength > m.maxBodySize {
		return nil, m.tooLarge(r.ContentLength)
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, m.maxBodySize+1))
	if err != nil {
		m.logger.ErrorContext(r.Context(), "failed to read request body",
			slog.String("error", err.Error()),
			slog.String("request_id", middleware.GetReqID(r.Context())))
		return nil, apierrors.InvalidRequestWithError(err)
	}
	if int64(len(body)) > m.maxBodySize {
		return nil, m.tooLarge(int64(len(body)))
	}
	if len(body) > 0 && !json.Valid(body) {
		return nil, apierrors.New(http.StatusBadRequest, apierrors.CodeInvalidRequest, "Request body contains invalid JSON")
	}
	return body, nil
}

// tooLarge reports size; for streamed bodies it is a lower bound
func (m *ValidationMiddleware) tooLarge(size int64) *apierrors.APIError {
	return apierrors.NewWithDetails(http.StatusRequestEntityTooLarge, apierrors.CodePayloadTooLarge,
		"Request body exceeds maximum allowed size",
		map[string]int64{"max_size": m.maxBodySize, "size": size})
}

// ValidateStruct validates v against its validate tags and returns one
// *APIError listing every invalid field
func (m *ValidationMiddleware) ValidateStruct(v interface{}) error {
	err := m.validator.Struct(v)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return apierrors.InvalidRequestWithError(err)
	}

	out := make([]apierrors.ValidationError, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		out = append(out, apierrors.ValidationError{
			Field:   fe.Field(),
			Message: ruleMessage(fe.Field(), fe),
		})
	}
	return apierrors.NewValidationErrors(out)
}

// ValidateVar validates a path or query value against tag; field names the
// value in the error
func (m *ValidationMiddleware) ValidateVar(field string, value interface{}, tag string) error {
	err := m.validator.Var(value, tag)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		return apierrors.ErrValidation(field, ruleMessage(field, fieldErrs[0]))
	}
	return apierrors.ErrValidation(field, err.Error())
}

func ruleMessage(field string, fe validator.FieldError) string {
	if fe.Tag() == "oneof" {
		return fmt.Sprintf("%s must be one of: %s", field, strings.ReplaceAll(fe.Param(), " ", ", "))
	}
	if tmpl, ok := ruleMessages[fe.Tag()]; ok {
		return fmt.Sprintf(tmpl, field, fe.Param())
	}
	return fmt.Sprintf("%s failed %s validation", field, fe.Tag())
}

// ContentTypeValidator requires requests that carry a body to declare one of
// contentTypes. Parameters such as charset are ignored.
func ContentTypeValidator(contentTypes ...string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !carriesBody(r.Method) {
				next.ServeHTTP(w, r)
				return
			}

			contentType := r.Header.Get("Content-Type")
			if contentType == "" {
				writeProblem(w, r, http.StatusBadRequest, apierrors.TypeValidation,
					"Bad Request", "Content-Type header is required")
				return
			}
			for _, allowed := range contentTypes {
				if strings.HasPrefix(contentType, allowed) {
					next.ServeHTTP(w, r)
					return
				}
			}
			writeProblem(w, r, http.StatusUnsupportedMediaType, apierrors.TypeValidation,
				"Unsupported Media Type",
				fmt.Sprintf("Content type %q is not one of: %s", contentType, strings.Join(contentTypes, ", ")))
		})
	}
}

// carriesBody reports whether requests with method are expected to send one
func carriesBody(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch:
		return true
	}
	return false
}

func isFamily(value string) bool {
	if strings.EqualFold(value, FamilyAll) {
		return true
	}
	_, err := filters.ParseFamily(value)
	return err == nil
}

// isSearchID accepts ids that are safe as a single path element
func isSearchID(id string) bool {
	if id == "" || len(id) > maxSearchIDLength || id == "." || id == ".." {
		return false
	}
	return !strings.ContainsAny(id, `/\`)
}

// QueryParamValidator parses optional query parameters. On a bad value it
// writes the problem response itself and reports false.
type QueryParamValidator struct {
	errorHandler *apierrors.ErrorHandler
}

func NewQueryParamValidator(errorHandler *apierrors.ErrorHandler) *QueryParamValidator {
	return &QueryParamValidator{errorHandler: errorHandler}
}

// ValidateInt parses param as an integer in [min, max], or returns def when
// it is absent
func (v *QueryParamValidator) ValidateInt(w http.ResponseWriter, r *http.Request, param string, min, max, def int) (int, bool) {
	raw := r.URL.Query().Get(param)
	if raw == "" {
		return def, true
	}

	n, err := strconv.Atoi(raw)
	switch {
	case err != nil:
		v.errorHandler.HandleError(w, r, apierrors.ErrValidation(param, param+" must be a valid integer"))
		return 0, false
	case n < min || n > max:
		v.errorHandler.HandleError(w, r, apierrors.ErrValidation(param, fmt.Sprintf("%s must be between %d and %d", param, min, max)))
		return 0, false
	}
	return n, true
}

// ValidateEnum returns param when it is one of allowed, or def when absent
func (v *QueryParamValidator) ValidateEnum(w http.ResponseWriter, r *http.Request, param string, allowed []string, def string) (string, bool) {
	raw := r.URL.Query().Get(param)
	if raw == "" {
		return def, true
	}
	for _, a := range allowed {
		if raw == a {
			return raw, true
		}
	}

	v.errorHandler.HandleError(w, r, apierrors.ErrValidation(param,
		fmt.Sprintf("%s must be one of: %s", param, strings.Join(allowed, ", "))))
	return "", false
}
