package services

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"filterfinder/internal/config"
	"filterfinder/internal/files"
	"filterfinder/internal/infrastructure"
	"filterfinder/internal/validation"
)

// Health states reported by the probes
const (
	HealthOK       = "ok"
	HealthAlive    = "alive"
	HealthReady    = "ready"
	HealthNotReady = "not_ready"
)

// ClientCounter reports the number of connected progress stream clients
type ClientCounter interface {
	ClientCount() int
}

// HealthService answers the probes and gathers the stats endpoint payload
type HealthService struct {
	version       string
	buildTime     string
	paths         *config.Paths
	searches      *SearchService
	clients       ClientCounter
	systemMetrics *infrastructure.SystemMetrics
	files         *validation.FileValidator
	startTime     time.Time
	logger        *slog.Logger
}

type HealthStatus struct {
	Status    string                   `json:"status"`
	Timestamp time.Time                `json:"timestamp"`
	Version   string                   `json:"version"`
	Runtime   map[string]interface{}   `json:"runtime,omitempty"`
	Services  map[string]ServiceHealth `json:"services,omitempty"`
}

// ServiceHealth is the readiness of one dependency
type ServiceHealth struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Uptime  string `json:"uptime,omitempty"`
}

func notReady(format string, args ...any) ServiceHealth {
	return ServiceHealth{Status: HealthNotReady, Message: fmt.Sprintf(format, args...)}
}

// SystemStats is the /api/v1/stats payload
type SystemStats struct {
	UptimeSeconds    float64        `json:"uptime_seconds"`
	ReportFiles      int            `json:"report_files"`
	ReportSizeBytes  int64          `json:"report_size_bytes"`
	WebSocketClients int            `json:"websocket_clients"`
	ActiveSearches   int            `json:"active_searches"`
	Searches         map[string]int `json:"searches"`
	GoVersion        string         `json:"go_version"`
	OS               string         `json:"os"`
	Arch             string         `json:"arch"`

	Runtime *infrastructure.SystemStats `json:"runtime,omitempty"`
}

// NewHealthService creates a health service. searches, clients and
// systemMetrics may be nil.
func NewHealthService(version, buildTime string, paths *config.Paths, searches *SearchService, clients ClientCounter, systemMetrics *infrastructure.SystemMetrics, logger *slog.Logger) *HealthService {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("service", "health"))

	logger.Info("HealthService initialized",
		slog.String("version", version),
		slog.String("build_time", buildTime))

	return &HealthService{
		version:       version,
		buildTime:     buildTime,
		paths:         paths,
		searches:      searches,
		clients:       clients,
		systemMetrics: systemMetrics,
		files:         validation.NewFileValidator(logger),
		startTime:     time.Now(),
		logger:        logger,
	}
}

func (hs *HealthService) status(state string) HealthStatus {
	return HealthStatus{Status: state, Timestamp: time.Now(), Version: hs.version}
}

// HealthCheck always reports ok while the process serves requests
func (hs *HealthService) HealthCheck(ctx context.Context) HealthStatus {
	return hs.status(HealthOK)
}

// ReadinessCheck reports whether searches can be accepted and their
// reports written
func (hs *HealthService) ReadinessCheck(ctx context.Context) HealthStatus {
	status := hs.status(HealthReady)
	status.Services = map[string]ServiceHealth{
		"search":  hs.checkSearches(),
		"reports": hs.checkReports(),
	}

	for _, service := range status.Services {
		if service.Status != HealthReady {
			status.Status = HealthNotReady
		}
	}
	if status.Status != HealthReady {
		hs.logger.WarnContext(ctx, "readiness check failed", slog.Any("services", status.Services))
	}
	return status
}

func (hs *HealthService) LivenessCheck(ctx context.Context) HealthStatus {
	status := hs.status(HealthAlive)
	status.Runtime = map[string]interface{}{
		"uptime":     time.Since(hs.startTime).Seconds(),
		"go_version": runtime.Version(),
		"goroutines": runtime.NumGoroutine(),
	}
	return status
}

// Version is the /api/v1/version payload
func (hs *HealthService) Version() map[string]interface{} {
	v := map[string]interface{}{
		"version":      hs.version,
		"go_version":   runtime.Version(),
		"os":           runtime.GOOS,
		"arch":         runtime.GOARCH,
		"uptime":       time.Since(hs.startTime).Seconds(),
		"start_time":   hs.startTime.Format(time.RFC3339),
		"current_time": time.Now().Format(time.RFC3339),
	}
	if hs.buildTime != "" {
		v["build_time"] = hs.buildTime
	}
	return v
}

// SystemStats combines search counts, report disk usage and a runtime sample
func (hs *HealthService) SystemStats(ctx context.Context) SystemStats {
	stats := SystemStats{
		UptimeSeconds: time.Since(hs.startTime).Seconds(),
		GoVersion:     runtime.Version(),
		OS:            runtime.GOOS,
		Arch:          runtime.GOARCH,
	}

	if hs.paths != nil {
		n, size, err := files.NewDiscovery("").Usage(hs.paths.ReportsDir)
		if err != nil {
			hs.logger.WarnContext(ctx, "failed to measure report usage", slog.String("error", err.Error()))
		}
		stats.ReportFiles, stats.ReportSizeBytes = n, size
	}
	if hs.clients != nil {
		stats.WebSocketClients = hs.clients.ClientCount()
	}
	if hs.searches != nil {
		stats.ActiveSearches = hs.searches.ActiveCount()
		stats.Searches = hs.searches.Stats()
	}
	if hs.systemMetrics != nil {
		stats.Runtime = hs.systemMetrics.Collect(ctx)
	}
	return stats
}

func (hs *HealthService) checkSearches() ServiceHealth {
	switch {
	case hs.searches == nil:
		return notReady("search service not initialized")
	case !hs.searches.Accepting():
		return notReady("search service is shutting down")
	}
	return ServiceHealth{
		Status:  HealthReady,
		Message: fmt.Sprintf("%d searches active", hs.searches.ActiveCount()),
		Uptime:  time.Since(hs.startTime).String(),
	}
}

func (hs *HealthService) checkReports() ServiceHealth {
	if hs.paths == nil {
		return notReady("paths not configured")
	}
	if err := hs.files.CheckWritable(hs.paths.ReportsDir); err != nil {
		return notReady("reports directory unusable: %v", err)
	}
	return ServiceHealth{Status: HealthReady, Message: "reports directory is writable"}
}

// GetDetailedHealth bundles every probe with the stats
func (hs *HealthService) GetDetailedHealth(ctx context.Context) map[string]interface{} {
	return map[string]interface{}{
		"health":    hs.HealthCheck(ctx),
		"readiness": hs.ReadinessCheck(ctx),
		"liveness":  hs.LivenessCheck(ctx),
		"stats":     hs.SystemStats(ctx),
	}
}
