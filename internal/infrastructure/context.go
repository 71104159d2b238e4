package infrastructure

import (
	"context"
	"log/slog"
)

type contextKey string

const (
	traceIDContextKey  contextKey = "trace_id"
	searchIDContextKey contextKey = "search_id"
	familyContextKey   contextKey = "family"
)

// WithTraceID stores the id used to correlate logs and progress messages of
// one request. It takes precedence over the id of the active span.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDContextKey, traceID)
}

// GetTraceID returns the id stored by WithTraceID
func GetTraceID(ctx context.Context) string {
	id, _ := ctx.Value(traceIDContextKey).(string)
	return id
}

// WithSearchID tags ctx with the search it belongs to. Records logged with
// the context carry a search_id attribute.
func WithSearchID(ctx context.Context, searchID string) context.Context {
	return context.WithValue(ctx, searchIDContextKey, searchID)
}

// SearchIDFromContext returns the id stored by WithSearchID
func SearchIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(searchIDContextKey).(string)
	return id
}

// WithFamily tags ctx with the filter family being searched
func WithFamily(ctx context.Context, family string) context.Context {
	return context.WithValue(ctx, familyContextKey, family)
}

// FamilyFromContext returns the family stored by WithFamily
func FamilyFromContext(ctx context.Context) string {
	family, _ := ctx.Value(familyContextKey).(string)
	return family
}

// contextAttrs lists the correlation attributes carried by ctx
func contextAttrs(ctx context.Context) []slog.Attr {
	var attrs []slog.Attr
	if traceID := GetTraceID(ctx); traceID != "" {
		attrs = append(attrs, slog.String("trace_id", traceID))
	} else if traceID := TraceIDFromContext(ctx); traceID != "" {
		attrs = append(attrs, slog.String("trace_id", traceID))
	}
	if id := SearchIDFromContext(ctx); id != "" {
		attrs = append(attrs, slog.String("search_id", id))
	}
	if family := FamilyFromContext(ctx); family != "" {
		attrs = append(attrs, slog.String("family", family))
	}
	return attrs
}
