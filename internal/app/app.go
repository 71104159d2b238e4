package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"filterfinder/internal/config"
	apierrors "filterfinder/internal/errors"
	"filterfinder/internal/infrastructure"
	"filterfinder/internal/middleware"
	"filterfinder/internal/services"
	handlers "filterfinder/internal/transport/http"
	ws "filterfinder/internal/websocket"
)

// BuildTime is set at link time with -ldflags "-X filterfinder/internal/app.BuildTime=..."
var BuildTime = ""

// Prune interval bounds
const (
	minPruneInterval = time.Minute
	maxPruneInterval = time.Hour
)

// Application represents the main application container
type Application struct {
	Config        *config.Config
	Paths         *config.Paths
	Logger        *slog.Logger
	OTelProviders *infrastructure.OTelProviders
	Router        *chi.Mux
	Server        *http.Server

	WebSocketHub  *ws.Hub
	SearchService *services.SearchService
	HealthService *services.HealthService

	businessMetrics *infrastructure.BusinessMetrics
	errorHandler    *apierrors.ErrorHandler
	validator       *middleware.ValidationMiddleware

	serveErr  chan error
	stopPrune context.CancelFunc
	pruneDone chan struct{}
}

// NewApplication loads the configuration and logger and builds the
// application
func NewApplication() (*Application, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	return New(cfg, logger)
}

// New builds the application from an already loaded configuration
func New(cfg *config.Config, logger *slog.Logger) (*Application, error) {
	if logger == nil {
		logger = slog.Default()
	}

	logger.Info("Application starting",
		slog.String("name", config.AppName),
		slog.String("version", config.AppVersion))

	paths, err := config.ResolvePaths(cfg.Paths)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve paths: %w", err)
	}
	if err := paths.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("failed to ensure directories: %w", err)
	}
	paths.LogPathResolution(logger)

	otelProviders, err := infrastructure.InitializeOTel(infrastructure.OTelConfigFrom(cfg.Telemetry), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}

	app := &Application{
		Config:        cfg,
		Paths:         paths,
		Logger:        logger,
		OTelProviders: otelProviders,
		serveErr:      make(chan error, 1),
	}

	if err := app.initializeServices(); err != nil {
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	app.setupRouter()
	app.createServer()

	return app, nil
}

func (a *Application) meter() metric.Meter {
	if a.OTelProviders != nil && a.OTelProviders.Meter != nil {
		return a.OTelProviders.Meter
	}
	return otel.Meter(infrastructure.MeterName)
}

func (a *Application) tracer() trace.Tracer {
	if a.OTelProviders != nil && a.OTelProviders.Tracer != nil {
		return a.OTelProviders.Tracer
	}
	return nil
}

// initializeServices initializes all application services
func (a *Application) initializeServices() error {
	meter := a.meter()

	businessMetrics, err := infrastructure.CreateBusinessMetrics(meter)
	if err != nil {
		return fmt.Errorf("failed to create business metrics: %w", err)
	}
	a.businessMetrics = businessMetrics

	wsMetrics, err := ws.NewOTelMetrics(meter)
	if err != nil {
		return fmt.Errorf("failed to create websocket metrics: %w", err)
	}
	a.WebSocketHub = ws.NewHub(a.Logger, wsMetrics)

	systemMetrics, err := infrastructure.NewSystemMetrics(meter, time.Now())
	if err != nil {
		return fmt.Errorf("failed to create system metrics: %w", err)
	}

	a.SearchService = services.NewSearchService(a.Config, a.Paths, a.WebSocketHub, businessMetrics, a.Logger)
	a.HealthService = services.NewHealthService(
		config.AppVersion,
		BuildTime,
		a.Paths,
		a.SearchService,
		a.WebSocketHub,
		systemMetrics,
		a.Logger,
	)

	a.errorHandler = apierrors.NewErrorHandler(a.Logger, a.Config.Logging.Development)
	a.validator = middleware.NewValidationMiddleware(a.Logger, a.errorHandler, a.Config.Server.MaxBodyBytes)
	return nil
}

// setupRouter configures the HTTP router with all routes
func (a *Application) setupRouter() {
	r := chi.NewRouter()

	// Safe for websocket upgrades: neither wraps the ResponseWriter
	r.Use(middleware.RequestID)
	r.Use(chimw.RealIP)

	r.NotFound(a.errorHandler.NotFound)
	r.MethodNotAllowed(a.errorHandler.MethodNotAllowed)

	healthHandler := handlers.NewHealthHandler(a.HealthService, a.Logger)
	r.Mount(config.HealthEndpoint, healthHandler.Routes())

	wsHandler := handlers.NewWebSocketHandler(a.WebSocketHub, a.Config.WebSocket,
		a.Config.Security.AllowedOrigins, a.validator, a.errorHandler, a.Logger)
	r.With(middleware.WebSocketTraceMiddleware(a.Logger)).Handle(config.WebSocketEndpoint, wsHandler)

	if a.OTelProviders.PrometheusHTTP != nil {
		r.Handle(config.MetricsEndpoint, a.OTelProviders.PrometheusHTTP)
	}

	r.Group(func(r chi.Router) {
		// RequestID → RealIP → OTel → errors/recovery → headers → CORS → rate limit → body checks
		otelMiddleware, err := middleware.NewOTelMiddleware(a.tracer(), a.businessMetrics, a.Logger)
		if err != nil {
			a.Logger.Error("Failed to create OpenTelemetry middleware", slog.String("error", err.Error()))
		} else {
			r.Use(otelMiddleware.Handler)
		}

		r.Use(apierrors.NewErrorMiddleware(a.errorHandler, a.Logger).Handler)
		r.Use(middleware.DefaultSecureHeaders(a.Config.Logging.Development).Handler)

		if a.Config.Security.EnableCORS {
			r.Use(middleware.CORS(middleware.CORSConfigFrom(a.Config.Security, a.Logger)))
		}
		if a.Config.Security.RateLimit.Enabled {
			r.Use(middleware.NewRateLimiterFromConfig(a.Config.Security.RateLimit, a.Logger).Handler)
		}

		r.Use(middleware.MaxBodySize(a.Config.Server.MaxBodyBytes))
		r.Use(middleware.ContentTypeValidator("application/json"))
		r.Use(a.validator.ValidateRequest)

		a.setupAPIRoutes(r)
	})

	a.Router = r
}

// setupAPIRoutes configures API endpoints
func (a *Application) setupAPIRoutes(r chi.Router) {
	r.Route(config.APIBasePath, func(r chi.Router) {
		r.Use(render.SetContentType(render.ContentTypeJSON))

		healthHandler := handlers.NewHealthHandler(a.HealthService, a.Logger)
		r.Get("/version", healthHandler.Version)

		r.Mount("/stats", handlers.NewMetricsHandler(a.HealthService, a.WebSocketHub).Routes())
		r.Mount("/searches", handlers.NewSearchHandler(a.SearchService, a.validator, a.errorHandler, a.Logger).Routes())
	})
}

// createServer creates the HTTP server
func (a *Application) createServer() {
	a.Server = &http.Server{
		Addr:           fmt.Sprintf(":%d", a.Config.Server.Port),
		Handler:        a.Router,
		ReadTimeout:    a.Config.Server.ReadTimeout,
		WriteTimeout:   a.Config.Server.WriteTimeout,
		IdleTimeout:    a.Config.Server.IdleTimeout,
		MaxHeaderBytes: a.Config.Server.MaxHeaderBytes,
	}
}

// Start starts the hub, the retention pruner and the HTTP server. Server
// failures are delivered to Run.
func (a *Application) Start(ctx context.Context) error {
	a.Logger.InfoContext(ctx, "Starting application",
		slog.String("name", config.AppName),
		slog.String("version", config.AppVersion),
		slog.Int("port", a.Config.Server.Port),
		slog.String("level", a.Config.Logging.Level))

	a.WebSocketHub.Start()
	a.startPruner(ctx)

	go func() {
		if err := a.Server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.Logger.ErrorContext(ctx, "Server error", slog.String("error", err.Error()))
			a.serveErr <- fmt.Errorf("server error: %w", err)
		}
	}()

	if err := a.performStartupHealthCheck(ctx); err != nil {
		a.Logger.WarnContext(ctx, "Startup health check warnings", slog.String("warnings", err.Error()))
	}

	a.Logger.InfoContext(ctx, "Application started successfully",
		slog.String("address", fmt.Sprintf("http://localhost:%d", a.Config.Server.Port)))
	return nil
}

// Stop gracefully stops the application
func (a *Application) Stop(ctx context.Context) error {
	a.Logger.InfoContext(ctx, "Shutting down application")

	shutdownCtx, cancel := context.WithTimeout(ctx, a.Config.Server.ShutdownTimeout)
	defer cancel()

	var errs []error
	if err := a.Server.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("server shutdown error: %w", err))
	}

	a.stopPruner()

	if err := a.SearchService.Shutdown(shutdownCtx); err != nil {
		a.Logger.ErrorContext(ctx, "Error stopping searches", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	a.WebSocketHub.Stop()

	if a.OTelProviders != nil {
		if err := a.OTelProviders.Shutdown(shutdownCtx); err != nil {
			a.Logger.ErrorContext(ctx, "Error shutting down OpenTelemetry", slog.String("error", err.Error()))
		}
	}

	a.Logger.InfoContext(ctx, "Application shutdown complete")
	return errors.Join(errs...)
}

// Run runs the application until interrupted or the server fails
func (a *Application) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	defer infrastructure.CloseLogFile()

	if err := a.Start(ctx); err != nil {
		return err
	}

	var serveErr error
	select {
	case <-ctx.Done():
		a.Logger.Info("Received interrupt signal")
	case serveErr = <-a.serveErr:
	}

	return errors.Join(serveErr, a.Stop(context.Background()))
}

// pruneInterval spreads prune passes over the retention period
func pruneInterval(retention time.Duration) time.Duration {
	interval := retention / 4
	if interval < minPruneInterval {
		return minPruneInterval
	}
	if interval > maxPruneInterval {
		return maxPruneInterval
	}
	return interval
}

// startPruner removes finished searches older than the retention period.
// A zero retention keeps searches until restart.
func (a *Application) startPruner(ctx context.Context) {
	retention := a.Config.Search.Retention
	if retention <= 0 {
		a.Logger.InfoContext(ctx, "Search retention disabled")
		return
	}

	pruneCtx, cancel := context.WithCancel(ctx)
	a.stopPrune = cancel
	a.pruneDone = make(chan struct{})
	interval := pruneInterval(retention)

	a.Logger.InfoContext(ctx, "Search pruner started",
		slog.Duration("retention", retention),
		slog.Duration("interval", interval))

	go func() {
		defer close(a.pruneDone)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-pruneCtx.Done():
				return
			case <-ticker.C:
				a.SearchService.Prune(pruneCtx, retention)
			}
		}
	}()
}

func (a *Application) stopPruner() {
	if a.stopPrune == nil {
		return
	}
	a.stopPrune()
	<-a.pruneDone
	a.stopPrune = nil
}

// performStartupHealthCheck reports readiness problems found at startup
func (a *Application) performStartupHealthCheck(ctx context.Context) error {
	status := a.HealthService.ReadinessCheck(ctx)
	if status.Status == services.HealthReady {
		a.Logger.InfoContext(ctx, "Startup health check passed")
		return nil
	}

	var warnings []string
	for name, service := range status.Services {
		if service.Status != services.HealthReady {
			warnings = append(warnings, fmt.Sprintf("%s: %s", name, service.Message))
		}
	}
	return fmt.Errorf("startup health check warnings: %s", strings.Join(warnings, "; "))
}
