package infrastructure

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.28.0"
	"go.opentelemetry.io/otel/trace"

	"filterfinder/internal/config"
)

// MeterName is the instrumentation scope of every tracer and meter the
// service creates
const MeterName = "filterfinder"

// Exporter names accepted by OTelConfig
const (
	ExporterNone       = "none"
	ExporterStdout     = "stdout"
	ExporterPrometheus = "prometheus"
)

// OTelConfig selects the exporters and sampling of the providers
type OTelConfig struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	TraceExporter  string
	MetricExporter string
	EnableMetrics  bool
	EnableTracing  bool
	SampleRatio    float64
}

// OTelProviders owns the SDK providers. Tracer and Meter are nil when the
// corresponding signal is disabled; PrometheusHTTP serves the scrape endpoint.
type OTelProviders struct {
	TracerProvider *sdktrace.TracerProvider
	MeterProvider  *sdkmetric.MeterProvider
	Tracer         trace.Tracer
	Meter          metric.Meter
	PrometheusHTTP http.Handler
	Registry       *promclient.Registry

	logger *slog.Logger
}

// DefaultOTelConfig enables both signals with spans kept in process only
func DefaultOTelConfig() *OTelConfig {
	cfg := OTelConfigFrom(config.Default().Telemetry)
	cfg.TraceExporter = ExporterNone
	return cfg
}

// OTelConfigFrom maps the telemetry section of the application config.
// Metrics always go through Prometheus when enabled.
func OTelConfigFrom(cfg config.TelemetryConfig) *OTelConfig {
	metricExporter := ExporterPrometheus
	if !cfg.EnableMetrics {
		metricExporter = ExporterNone
	}
	ratio := cfg.SampleRatio
	if ratio <= 0 {
		ratio = 1
	}
	return &OTelConfig{
		ServiceName:    cfg.ServiceName,
		ServiceVersion: config.AppVersion,
		Environment:    cfg.Environment,
		TraceExporter:  cfg.TraceExporter,
		MetricExporter: metricExporter,
		EnableMetrics:  cfg.EnableMetrics,
		EnableTracing:  cfg.EnableTracing,
		SampleRatio:    ratio,
	}
}

// InitializeOTel builds the providers described by cfg and installs them as
// the global OpenTelemetry providers
func InitializeOTel(cfg *OTelConfig, logger *slog.Logger) (*OTelProviders, error) {
	if cfg == nil {
		cfg = DefaultOTelConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("component", "otel"))

	res := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(cfg.ServiceVersion),
		semconv.DeploymentEnvironmentName(cfg.Environment),
		attribute.String("service.instance.id", uuid.NewString()),
	)

	p := &OTelProviders{logger: logger}
	if cfg.EnableTracing {
		if err := p.setupTracing(cfg, res); err != nil {
			return nil, fmt.Errorf("failed to initialize tracing: %w", err)
		}
	}
	if cfg.EnableMetrics {
		if err := p.setupMetrics(cfg, res); err != nil {
			return nil, fmt.Errorf("failed to initialize metrics: %w", err)
		}
	}

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	logger.Info("OpenTelemetry initialized",
		slog.String("service", cfg.ServiceName),
		slog.String("environment", cfg.Environment),
		slog.Bool("tracing_enabled", cfg.EnableTracing),
		slog.String("trace_exporter", cfg.TraceExporter),
		slog.Float64("sample_ratio", cfg.SampleRatio),
		slog.Bool("metrics_enabled", cfg.EnableMetrics))

	return p, nil
}

// setupTracing installs a sampling tracer provider. With no exporter spans
// still carry trace ids, which the logger uses for correlation.
func (p *OTelProviders) setupTracing(cfg *OTelConfig, res *resource.Resource) error {
	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRatio))),
	}

	switch cfg.TraceExporter {
	case ExporterStdout:
		exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			return fmt.Errorf("failed to create trace exporter: %w", err)
		}
		opts = append(opts, sdktrace.WithBatcher(exporter))
	case ExporterNone, "":
	default:
		return fmt.Errorf("unsupported trace exporter: %s", cfg.TraceExporter)
	}

	p.TracerProvider = sdktrace.NewTracerProvider(opts...)
	p.Tracer = p.TracerProvider.Tracer(MeterName, trace.WithInstrumentationVersion(cfg.ServiceVersion))
	otel.SetTracerProvider(p.TracerProvider)
	return nil
}

// setupMetrics exports through a private registry so tests and embedded
// servers never collide on the default Prometheus registerer
func (p *OTelProviders) setupMetrics(cfg *OTelConfig, res *resource.Resource) error {
	switch cfg.MetricExporter {
	case ExporterPrometheus:
	case ExporterNone:
		return nil
	default:
		return fmt.Errorf("unsupported metric exporter: %s", cfg.MetricExporter)
	}

	registry := promclient.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	exporter, err := prometheus.New(prometheus.WithRegisterer(registry))
	if err != nil {
		return fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	p.Registry = registry
	p.PrometheusHTTP = promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	p.MeterProvider = sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(exporter),
	)
	p.Meter = p.MeterProvider.Meter(MeterName, metric.WithInstrumentationVersion(cfg.ServiceVersion))
	otel.SetMeterProvider(p.MeterProvider)
	return nil
}

// Shutdown flushes and stops both providers
func (p *OTelProviders) Shutdown(ctx context.Context) error {
	var errs []error
	if p.TracerProvider != nil {
		if err := p.TracerProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("tracer provider shutdown: %w", err))
		}
	}
	if p.MeterProvider != nil {
		if err := p.MeterProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("meter provider shutdown: %w", err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}

	if p.logger != nil {
		p.logger.InfoContext(ctx, "OpenTelemetry shutdown complete")
	}
	return nil
}

// TraceIDFromContext returns the id of the active span, or "" outside a span
func TraceIDFromContext(ctx context.Context) string {
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		return sc.TraceID().String()
	}
	return ""
}

// BusinessMetrics are the service level instruments. Per-candidate metrics
// live in the search package.
type BusinessMetrics struct {
	HTTPRequestsTotal   metric.Int64Counter
	HTTPRequestDuration metric.Float64Histogram
	HTTPActiveRequests  metric.Int64UpDownCounter

	SearchJobsTotal       metric.Int64Counter
	SearchJobDuration     metric.Float64Histogram
	SearchJobsActive      metric.Int64UpDownCounter
	SearchJobErrors       metric.Int64Counter
	SearchJobCancellation metric.Int64Counter
	SeriesPointsProcessed metric.Int64Counter
}

// CreateBusinessMetrics registers the instruments on meter, or on the global
// meter when meter is nil
func CreateBusinessMetrics(meter metric.Meter) (*BusinessMetrics, error) {
	if meter == nil {
		meter = otel.Meter(MeterName)
	}

	var errs []error
	counter := func(name, desc string) metric.Int64Counter {
		c, err := meter.Int64Counter(name, metric.WithDescription(desc))
		errs = append(errs, err)
		return c
	}
	gauge := func(name, desc string) metric.Int64UpDownCounter {
		c, err := meter.Int64UpDownCounter(name, metric.WithDescription(desc))
		errs = append(errs, err)
		return c
	}
	seconds := func(name, desc string) metric.Float64Histogram {
		h, err := meter.Float64Histogram(name, metric.WithDescription(desc), metric.WithUnit("s"))
		errs = append(errs, err)
		return h
	}

	m := &BusinessMetrics{
		HTTPRequestsTotal:   counter("http_requests_total", "HTTP requests served"),
		HTTPRequestDuration: seconds("http_request_duration_seconds", "HTTP request latency"),
		HTTPActiveRequests:  gauge("http_active_requests", "HTTP requests in flight"),

		SearchJobsTotal:       counter("search_jobs_total", "Family searches finished, by status"),
		SearchJobDuration:     seconds("search_job_duration_seconds", "Family search duration"),
		SearchJobsActive:      gauge("search_jobs_active", "Family searches running"),
		SearchJobErrors:       counter("search_job_errors_total", "Family searches that failed"),
		SearchJobCancellation: counter("search_job_cancellations_total", "Family searches cancelled or timed out"),
		SeriesPointsProcessed: counter("series_points_processed_total", "Observations fed into family searches"),
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return m, nil
}

// searchStatus classifies the outcome of a family search for metric labels
func searchStatus(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	default:
		return "failure"
	}
}

// RecordSearchJobMetrics records one finished family search. A nil metrics
// is a no-op.
func RecordSearchJobMetrics(ctx context.Context, metrics *BusinessMetrics, family, model string, points int, duration time.Duration, err error) {
	if metrics == nil {
		return
	}

	base := metric.WithAttributes(
		attribute.String("search.family", family),
		attribute.String("search.model", model),
	)
	status := searchStatus(err)
	withStatus := metric.WithAttributes(
		attribute.String("search.family", family),
		attribute.String("search.model", model),
		attribute.String("status", status),
	)

	switch status {
	case "cancelled":
		metrics.SearchJobCancellation.Add(ctx, 1, base)
	case "failure":
		metrics.SearchJobErrors.Add(ctx, 1, metric.WithAttributes(
			attribute.String("search.family", family),
			attribute.String("search.model", model),
			attribute.String("error.type", fmt.Sprintf("%T", err)),
		))
	}

	metrics.SearchJobsTotal.Add(ctx, 1, withStatus)
	metrics.SearchJobDuration.Record(ctx, duration.Seconds(), withStatus)
	metrics.SeriesPointsProcessed.Add(ctx, int64(points), base)

	trace.SpanFromContext(ctx).AddEvent("search.metrics_recorded", trace.WithAttributes(
		attribute.String("status", status),
		attribute.Float64("duration_seconds", duration.Seconds()),
	))
}

// RecordActiveSearchChange moves the running search gauge by delta
func RecordActiveSearchChange(ctx context.Context, metrics *BusinessMetrics, delta int64, family string) {
	if metrics == nil {
		return
	}
	metrics.SearchJobsActive.Add(ctx, delta, metric.WithAttributes(attribute.String("search.family", family)))
}
