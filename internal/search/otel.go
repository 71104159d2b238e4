package search

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"filterfinder/internal/filters"
)

const (
	TracerName = "filterfinder.search"
)

// telemetry records spans and metrics through the global OpenTelemetry
// providers, which are no-ops until the process installs real ones.
type telemetry struct {
	tracer            trace.Tracer
	searchesTotal     metric.Int64Counter
	candidatesTotal   metric.Int64Counter
	candidateFailures metric.Int64Counter
	candidateDuration metric.Float64Histogram
}

func newTelemetry() (*telemetry, error) {
	meter := otel.Meter(TracerName)

	searchesTotal, err := meter.Int64Counter(
		"filter_searches_total",
		metric.WithDescription("Total number of filter searches"),
	)
	if err != nil {
		return nil, err
	}

	candidatesTotal, err := meter.Int64Counter(
		"filter_search_candidates_total",
		metric.WithDescription("Total number of evaluated filter candidates"),
	)
	if err != nil {
		return nil, err
	}

	candidateFailures, err := meter.Int64Counter(
		"filter_search_candidate_failures_total",
		metric.WithDescription("Total number of filter candidates that failed evaluation"),
	)
	if err != nil {
		return nil, err
	}

	candidateDuration, err := meter.Float64Histogram(
		"filter_search_candidate_duration_seconds",
		metric.WithDescription("Filter candidate evaluation duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	return &telemetry{
		tracer:            otel.Tracer(TracerName),
		searchesTotal:     searchesTotal,
		candidatesTotal:   candidatesTotal,
		candidateFailures: candidateFailures,
		candidateDuration: candidateDuration,
	}, nil
}

// startSearch opens the span covering one search.
func (t *telemetry) startSearch(ctx context.Context, family filters.Family, model string, candidates int) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, fmt.Sprintf("search.%s", family),
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("search.family", string(family)),
			attribute.String("search.model", model),
			attribute.Int("search.candidates", candidates),
		),
	)
}

// endSearch records the outcome of a search on its span.
func (t *telemetry) endSearch(ctx context.Context, span trace.Span, family filters.Family, err error) {
	status := "success"
	if err != nil {
		status = "failure"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "search completed")
	}

	t.searchesTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("family", string(family)),
		attribute.String("status", status),
	))
	span.End()
}

// startCandidate opens the span covering one candidate evaluation.
func (t *telemetry) startCandidate(ctx context.Context, params filters.Params) (context.Context, trace.Span) {
	p, q := params.LagOrders()
	return t.tracer.Start(ctx, "search.candidate",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("candidate.params", params.String()),
			attribute.Int("candidate.p", p),
			attribute.Int("candidate.q", q),
		),
	)
}

// endCandidate records a finished candidate evaluation.
func (t *telemetry) endCandidate(ctx context.Context, span trace.Span, params filters.Params, duration time.Duration, err error) {
	attrs := metric.WithAttributes(attribute.String("family", string(params.Family())))

	t.candidatesTotal.Add(ctx, 1, attrs)
	t.candidateDuration.Record(ctx, duration.Seconds(), attrs)
	if err != nil {
		t.candidateFailures.Add(ctx, 1, attrs)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
