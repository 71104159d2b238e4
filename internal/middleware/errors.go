package middleware

import (
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"

	apierrors "filterfinder/internal/errors"
	"filterfinder/internal/infrastructure"
)

// writeProblem renders an RFC 7807 response carrying the request's trace id.
func writeProblem(w http.ResponseWriter, r *http.Request, status int, problemType, title, detail string) {
	traceID := infrastructure.GetTraceID(r.Context())
	if traceID == "" {
		traceID = middleware.GetReqID(r.Context())
	}

	problem := apierrors.NewProblemDetails(status, problemType, title, detail, r.URL.Path).
		WithExtension("trace_id", traceID)
	render.Render(w, r, problem)
}
