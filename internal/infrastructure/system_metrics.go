package infrastructure

import (
	"context"
	"errors"
	"runtime"
	"time"

	"go.opentelemetry.io/otel/metric"
)

// SystemMetrics samples the Go runtime for the stats endpoint and mirrors
// each sample onto gauges
type SystemMetrics struct {
	started time.Time

	goroutines metric.Int64Gauge
	heapInUse  metric.Int64Gauge
	sysBytes   metric.Int64Gauge
	maxProcs   metric.Int64Gauge
	uptime     metric.Float64Gauge
}

func NewSystemMetrics(meter metric.Meter, started time.Time) (*SystemMetrics, error) {
	var errs []error
	intGauge := func(name, desc, unit string) metric.Int64Gauge {
		g, err := meter.Int64Gauge(name, metric.WithDescription(desc), metric.WithUnit(unit))
		errs = append(errs, err)
		return g
	}

	sm := &SystemMetrics{
		started:    started,
		goroutines: intGauge("system_goroutines", "Live goroutines, including candidate workers", "{goroutine}"),
		heapInUse:  intGauge("system_memory_usage_bytes", "Heap bytes in use", "By"),
		sysBytes:   intGauge("system_memory_system_bytes", "Bytes obtained from the OS", "By"),
		maxProcs:   intGauge("system_gomaxprocs", "GOMAXPROCS available to candidate evaluation", "{cpu}"),
	}
	uptime, err := meter.Float64Gauge("system_process_uptime_seconds",
		metric.WithDescription("Process uptime"), metric.WithUnit("s"))
	sm.uptime = uptime

	if err := errors.Join(append(errs, err)...); err != nil {
		return nil, err
	}
	return sm, nil
}

// SystemStats is one runtime sample
type SystemStats struct {
	GoRoutines    int64     `json:"goroutines"`
	MemoryUsage   int64     `json:"memory_usage_bytes"`
	MemorySystem  int64     `json:"memory_system_bytes"`
	GCCount       uint32    `json:"gc_count"`
	CPUCount      int       `json:"cpu_count"`
	MaxProcs      int       `json:"gomaxprocs"`
	UptimeSeconds float64   `json:"uptime_seconds"`
	Timestamp     time.Time `json:"timestamp"`
}

// Collect takes a sample and records it
func (sm *SystemMetrics) Collect(ctx context.Context) *SystemStats {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	now := time.Now()
	stats := &SystemStats{
		GoRoutines:    int64(runtime.NumGoroutine()),
		MemoryUsage:   int64(mem.HeapInuse),
		MemorySystem:  int64(mem.Sys),
		GCCount:       mem.NumGC,
		CPUCount:      runtime.NumCPU(),
		MaxProcs:      runtime.GOMAXPROCS(0),
		UptimeSeconds: now.Sub(sm.started).Seconds(),
		Timestamp:     now,
	}

	sm.goroutines.Record(ctx, stats.GoRoutines)
	sm.heapInUse.Record(ctx, stats.MemoryUsage)
	sm.sysBytes.Record(ctx, stats.MemorySystem)
	sm.maxProcs.Record(ctx, int64(stats.MaxProcs))
	sm.uptime.Record(ctx, stats.UptimeSeconds)
	return stats
}
