package diagnostics

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"time"
)

// HeapLimitLocation is the location reported when the monitor raises a fatal
// error for an exceeded heap limit.
const HeapLimitLocation = "HeapLimitMonitor"

// ResourceSnapshot captures process resource state at a point in time.
type ResourceSnapshot struct {
	Timestamp      time.Time     `json:"timestamp"`
	OpenFDs        int           `json:"open_fds"`
	MaxFDs         int           `json:"max_fds"`
	FDUsagePercent float64       `json:"fd_usage_percent"`
	Goroutines     int           `json:"goroutines"`
	HeapAllocMB    float64       `json:"heap_alloc_mb"`
	HeapInUseMB    float64       `json:"heap_in_use_mb"`
	StackInUseMB   float64       `json:"stack_in_use_mb"`
	GCPauseNS      uint64        `json:"gc_pause_ns"`
	NumGC          uint32        `json:"num_gc"`
	ProcessUptime  time.Duration `json:"process_uptime"`
}

// ResourceTrend captures resource usage trends over the recorded history.
type ResourceTrend struct {
	FDGrowthRate        float64  // FDs per hour
	GoroutineGrowthRate float64  // Goroutines per hour
	MemoryGrowthRate    float64  // MB per hour
	IsHealthy           bool     // Overall health assessment
	Warnings            []string // Trend-based warnings
}

// HealthWarning represents a single threshold breach.
type HealthWarning struct {
	Level   string  `json:"level"` // "warning" or "critical"
	Type    string  `json:"type"`  // "fd", "goroutine", "memory"
	Message string  `json:"message"`
	Value   float64 `json:"value"`
	Limit   float64 `json:"limit"` // Threshold that was exceeded
}

// MonitorConfig configures a ResourceMonitor. Zero thresholds are disabled.
type MonitorConfig struct {
	Interval           time.Duration
	FDThresholdPercent int
	GoroutineThreshold int
	MemoryThresholdMB  int
	// HeapLimitMB raises a fatal error once the heap grows past it.
	HeapLimitMB int
	HistorySize int
}

// ResourceMonitor samples process resources periodically. Its history feeds
// the heap section of reports, and the heap limit turns runaway memory growth
// into a fatal error report.
type ResourceMonitor struct {
	cfg    MonitorConfig
	logger *slog.Logger

	history []ResourceSnapshot
	mu      sync.RWMutex

	onHeapLimit atomic.Pointer[func(location, message string)]
	limitHit    atomic.Bool

	stopCh  chan struct{}
	stopped atomic.Bool
	started time.Time
}

// NewResourceMonitor creates a resource monitor.
func NewResourceMonitor(cfg MonitorConfig, logger *slog.Logger) *ResourceMonitor {
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = 120
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}

	return &ResourceMonitor{
		cfg:     cfg,
		logger:  logger,
		history: make([]ResourceSnapshot, 0, cfg.HistorySize),
		stopCh:  make(chan struct{}),
		started: time.Now(),
	}
}

// OnHeapLimit sets the function called, once, when the heap limit is exceeded.
// The engine's Fatal method is the usual target.
func (m *ResourceMonitor) OnHeapLimit(fn func(location, message string)) {
	m.onHeapLimit.Store(&fn)
}

// Start begins periodic sampling until ctx is done or Stop is called.
func (m *ResourceMonitor) Start(ctx context.Context) {
	go func() {
		m.sample()

		ticker := time.NewTicker(m.cfg.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-m.stopCh:
				return
			case <-ticker.C:
				m.sample()
			}
		}
	}()
}

// Stop halts sampling.
func (m *ResourceMonitor) Stop() {
	if m.stopped.CompareAndSwap(false, true) {
		close(m.stopCh)
	}
}

func (m *ResourceMonitor) sample() {
	snapshot := m.TakeSnapshot()
	m.recordSnapshot(snapshot)

	for _, w := range m.CheckHealth() {
		if m.logger != nil {
			m.logger.Warn("resource warning",
				"type", w.Type,
				"level", w.Level,
				"value", w.Value,
				"limit", w.Limit,
				"message", w.Message,
			)
		}
	}
	m.checkHeapLimit(snapshot)
}

func (m *ResourceMonitor) checkHeapLimit(s ResourceSnapshot) {
	limit := m.cfg.HeapLimitMB
	if limit <= 0 || s.HeapAllocMB <= float64(limit) {
		return
	}
	if !m.limitHit.CompareAndSwap(false, true) {
		return
	}
	fn := m.onHeapLimit.Load()
	if fn == nil {
		if m.logger != nil {
			m.logger.Error("heap limit exceeded", "heap_mb", s.HeapAllocMB, "limit_mb", limit)
		}
		return
	}
	(*fn)(HeapLimitLocation, fmt.Sprintf("heap limit exceeded: %.1f MB in use, limit %d MB", s.HeapAllocMB, limit))
}

// TakeSnapshot captures current resource state.
func (m *ResourceMonitor) TakeSnapshot() ResourceSnapshot {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	openFDs, maxFDs := CountFDs()
	fdPercent := 0.0
	if maxFDs > 0 {
		fdPercent = float64(openFDs) / float64(maxFDs) * 100
	}

	return ResourceSnapshot{
		Timestamp:      time.Now(),
		OpenFDs:        openFDs,
		MaxFDs:         maxFDs,
		FDUsagePercent: fdPercent,
		Goroutines:     runtime.NumGoroutine(),
		HeapAllocMB:    float64(memStats.HeapAlloc) / 1024 / 1024,
		HeapInUseMB:    float64(memStats.HeapInuse) / 1024 / 1024,
		StackInUseMB:   float64(memStats.StackInuse) / 1024 / 1024,
		GCPauseNS:      memStats.PauseNs[(memStats.NumGC+255)%256],
		NumGC:          memStats.NumGC,
		ProcessUptime:  time.Since(m.started),
	}
}

func (m *ResourceMonitor) recordSnapshot(s ResourceSnapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.history = append(m.history, s)
	if len(m.history) > m.cfg.HistorySize {
		m.history = m.history[len(m.history)-m.cfg.HistorySize:]
	}
}

// History returns the recorded snapshots, oldest first.
func (m *ResourceMonitor) History() []ResourceSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]ResourceSnapshot, len(m.history))
	copy(result, m.history)
	return result
}

// Latest returns the most recent snapshot.
func (m *ResourceMonitor) Latest() (ResourceSnapshot, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.history) == 0 {
		return ResourceSnapshot{}, false
	}
	return m.history[len(m.history)-1], true
}

// Trend analyzes the recorded history for leaks.
func (m *ResourceMonitor) Trend() ResourceTrend {
	return trendOf(m.History())
}

func trendOf(history []ResourceSnapshot) ResourceTrend {
	if len(history) < 2 {
		return ResourceTrend{IsHealthy: true}
	}

	first := history[0]
	last := history[len(history)-1]
	duration := last.Timestamp.Sub(first.Timestamp).Hours()

	// Under 36 seconds of history says nothing about growth.
	if duration < 0.01 {
		return ResourceTrend{IsHealthy: true}
	}

	trend := ResourceTrend{
		FDGrowthRate:        float64(last.OpenFDs-first.OpenFDs) / duration,
		GoroutineGrowthRate: float64(last.Goroutines-first.Goroutines) / duration,
		MemoryGrowthRate:    (last.HeapAllocMB - first.HeapAllocMB) / duration,
		IsHealthy:           true,
	}

	if trend.FDGrowthRate > 10 {
		trend.IsHealthy = false
		trend.Warnings = append(trend.Warnings,
			fmt.Sprintf("FD count growing at %.1f/hour (potential leak)", trend.FDGrowthRate))
	}
	if trend.GoroutineGrowthRate > 100 {
		trend.IsHealthy = false
		trend.Warnings = append(trend.Warnings,
			fmt.Sprintf("Goroutine count growing at %.1f/hour (potential leak)", trend.GoroutineGrowthRate))
	}
	if trend.MemoryGrowthRate > 100 {
		trend.IsHealthy = false
		trend.Warnings = append(trend.Warnings,
			fmt.Sprintf("Memory growing at %.1f MB/hour", trend.MemoryGrowthRate))
	}

	return trend
}

// CheckHealth returns warnings for exceeded thresholds.
func (m *ResourceMonitor) CheckHealth() []HealthWarning {
	snapshot, ok := m.Latest()
	if !ok {
		snapshot = m.TakeSnapshot()
	}
	return m.warningsFor(snapshot)
}

func (m *ResourceMonitor) warningsFor(snapshot ResourceSnapshot) []HealthWarning {
	var warnings []HealthWarning

	if t := m.cfg.FDThresholdPercent; t > 0 && snapshot.FDUsagePercent > float64(t) {
		level := "warning"
		if snapshot.FDUsagePercent > 90 {
			level = "critical"
		}
		warnings = append(warnings, HealthWarning{
			Level:   level,
			Type:    "fd",
			Message: fmt.Sprintf("FD usage at %.1f%% (threshold: %d%%)", snapshot.FDUsagePercent, t),
			Value:   snapshot.FDUsagePercent,
			Limit:   float64(t),
		})
	}

	if t := m.cfg.GoroutineThreshold; t > 0 && snapshot.Goroutines > t {
		level := "warning"
		if snapshot.Goroutines > t*2 {
			level = "critical"
		}
		warnings = append(warnings, HealthWarning{
			Level:   level,
			Type:    "goroutine",
			Message: fmt.Sprintf("Goroutine count at %d (threshold: %d)", snapshot.Goroutines, t),
			Value:   float64(snapshot.Goroutines),
			Limit:   float64(t),
		})
	}

	if t := m.cfg.MemoryThresholdMB; t > 0 && snapshot.HeapAllocMB > float64(t) {
		level := "warning"
		if snapshot.HeapAllocMB > float64(t)*1.5 {
			level = "critical"
		}
		warnings = append(warnings, HealthWarning{
			Level:   level,
			Type:    "memory",
			Message: fmt.Sprintf("Heap usage at %.1f MB (threshold: %d MB)", snapshot.HeapAllocMB, t),
			Value:   snapshot.HeapAllocMB,
			Limit:   float64(t),
		})
	}

	return warnings
}

// Uptime returns the time since the monitor was created.
func (m *ResourceMonitor) Uptime() time.Duration {
	return time.Since(m.started)
}
