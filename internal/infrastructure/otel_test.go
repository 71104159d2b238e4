package infrastructure

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"

	"filterfinder/internal/config"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func initOTel(t testing.TB, cfg *OTelConfig) *OTelProviders {
	t.Helper()
	providers, err := InitializeOTel(cfg, testLogger())
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		assert.NoError(t, providers.Shutdown(ctx))
	})
	return providers
}

func scrape(t *testing.T, providers *OTelProviders) string {
	t.Helper()
	server := httptest.NewServer(providers.PrometheusHTTP)
	defer server.Close()

	resp, err := http.Get(server.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/plain")

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(body)
}

func TestInitializeOTel(t *testing.T) {
	tests := []struct {
		name        string
		config      *OTelConfig
		wantErr     string
		wantTracing bool
		wantMetrics bool
	}{
		{
			name:        "defaults",
			config:      nil,
			wantTracing: true,
			wantMetrics: true,
		},
		{
			name:        "metrics only",
			config:      &OTelConfig{ServiceName: "filterfinder", MetricExporter: ExporterPrometheus, EnableMetrics: true},
			wantMetrics: true,
		},
		{
			name:        "tracing only",
			config:      &OTelConfig{ServiceName: "filterfinder", TraceExporter: ExporterNone, EnableTracing: true, SampleRatio: 0.5},
			wantTracing: true,
		},
		{
			name:    "unknown trace exporter",
			config:  &OTelConfig{ServiceName: "filterfinder", TraceExporter: "jaeger", EnableTracing: true},
			wantErr: "unsupported trace exporter",
		},
		{
			name:    "unknown metric exporter",
			config:  &OTelConfig{ServiceName: "filterfinder", MetricExporter: "statsd", EnableMetrics: true},
			wantErr: "unsupported metric exporter",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.wantErr != "" {
				_, err := InitializeOTel(tt.config, testLogger())
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}

			providers := initOTel(t, tt.config)
			assert.Equal(t, tt.wantTracing, providers.TracerProvider != nil)
			assert.Equal(t, tt.wantTracing, providers.Tracer != nil)
			assert.Equal(t, tt.wantMetrics, providers.MeterProvider != nil)
			assert.Equal(t, tt.wantMetrics, providers.PrometheusHTTP != nil)
			assert.Equal(t, tt.wantMetrics, providers.Registry != nil)
		})
	}
}

func TestOTelConfigFrom(t *testing.T) {
	tests := []struct {
		name       string
		mutate     func(*config.TelemetryConfig)
		wantMetric string
		wantRatio  float64
	}{
		{
			name:       "defaults",
			mutate:     func(*config.TelemetryConfig) {},
			wantMetric: ExporterPrometheus,
			wantRatio:  1,
		},
		{
			name:       "metrics disabled",
			mutate:     func(c *config.TelemetryConfig) { c.EnableMetrics = false },
			wantMetric: ExporterNone,
			wantRatio:  1,
		},
		{
			name:       "sampled",
			mutate:     func(c *config.TelemetryConfig) { c.SampleRatio = 0.25 },
			wantMetric: ExporterPrometheus,
			wantRatio:  0.25,
		},
		{
			name:       "unset ratio keeps everything",
			mutate:     func(c *config.TelemetryConfig) { c.SampleRatio = 0 },
			wantMetric: ExporterPrometheus,
			wantRatio:  1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default().Telemetry
			tt.mutate(&cfg)

			got := OTelConfigFrom(cfg)
			assert.Equal(t, "filterfinder", got.ServiceName)
			assert.Equal(t, config.AppVersion, got.ServiceVersion)
			assert.Equal(t, tt.wantMetric, got.MetricExporter)
			assert.Equal(t, tt.wantRatio, got.SampleRatio)
		})
	}

	assert.Equal(t, ExporterNone, DefaultOTelConfig().TraceExporter)
}

func TestTraceCorrelation(t *testing.T) {
	initOTel(t, DefaultOTelConfig())

	assert.Empty(t, TraceIDFromContext(context.Background()))

	ctx, parent := otel.Tracer("test").Start(context.Background(), "search")
	defer parent.End()
	childCtx, child := otel.Tracer("test").Start(ctx, "evaluate_candidate")
	defer child.End()

	traceID := TraceIDFromContext(ctx)
	assert.Equal(t, parent.SpanContext().TraceID().String(), traceID)
	assert.Equal(t, traceID, TraceIDFromContext(childCtx))
	assert.NotEqual(t, parent.SpanContext().SpanID(), child.SpanContext().SpanID())

	assert.Equal(t, traceID, GetTraceID(WithTraceID(context.Background(), traceID)))
}

func TestSearchStatus(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, "success"},
		{context.Canceled, "cancelled"},
		{fmt.Errorf("family search: %w", context.DeadlineExceeded), "cancelled"},
		{errors.New("no candidates"), "failure"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, searchStatus(tt.err))
		})
	}
}

func TestBusinessMetrics(t *testing.T) {
	providers := initOTel(t, DefaultOTelConfig())

	metrics, err := CreateBusinessMetrics(providers.Meter)
	require.NoError(t, err)

	ctx := context.Background()
	RecordActiveSearchChange(ctx, metrics, 1, "kalman")
	RecordSearchJobMetrics(ctx, metrics, "kalman", "LinearRegression", 120, time.Second, nil)
	RecordSearchJobMetrics(ctx, metrics, "kalman", "LinearRegression", 120, time.Second, errors.New("boom"))
	RecordSearchJobMetrics(ctx, metrics, "kalman", "LinearRegression", 120, time.Second, context.Canceled)
	RecordActiveSearchChange(ctx, metrics, -1, "kalman")

	body := scrape(t, providers)
	for _, name := range []string{
		"search_jobs_total",
		"search_job_errors_total",
		"search_job_cancellations_total",
		"series_points_processed_total",
		"go_goroutines",
	} {
		assert.Contains(t, body, name)
	}
}

func TestRecordSearchJobMetricsNil(t *testing.T) {
	assert.NotPanics(t, func() {
		RecordSearchJobMetrics(context.Background(), nil, "ma", "SVM", 1, time.Second, nil)
		RecordActiveSearchChange(context.Background(), nil, 1, "ma")
	})
}

func TestSystemMetricsCollect(t *testing.T) {
	providers := initOTel(t, DefaultOTelConfig())

	sm, err := NewSystemMetrics(providers.Meter, time.Now().Add(-time.Minute))
	require.NoError(t, err)

	stats := sm.Collect(context.Background())
	assert.Positive(t, stats.GoRoutines)
	assert.Positive(t, stats.CPUCount)
	assert.Positive(t, stats.MaxProcs)
	assert.GreaterOrEqual(t, stats.UptimeSeconds, 60.0)

	assert.Contains(t, scrape(t, providers), "system_gomaxprocs")
}

func BenchmarkRecordSearchJobMetrics(b *testing.B) {
	providers := initOTel(b, DefaultOTelConfig())
	metrics, err := CreateBusinessMetrics(providers.Meter)
	require.NoError(b, err)

	ctx := context.Background()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		RecordSearchJobMetrics(ctx, metrics, "moving_average", "LinearRegression", 100, time.Millisecond, nil)
	}
}
