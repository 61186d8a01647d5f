package monitoring

import (
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"
)

// MemoryStats is one sampled snapshot of runtime memory state
type MemoryStats struct {
	Alloc        uint64 `json:"alloc_bytes"`
	TotalAlloc   uint64 `json:"total_alloc_bytes"`
	Sys          uint64 `json:"sys_bytes"`
	Mallocs      uint64 `json:"mallocs"`
	Frees        uint64 `json:"frees"`
	HeapAlloc    uint64 `json:"heap_alloc_bytes"`
	HeapSys      uint64 `json:"heap_sys_bytes"`
	HeapInuse    uint64 `json:"heap_inuse_bytes"`
	HeapObjects  uint64 `json:"heap_objects"`
	NumGC        uint32 `json:"num_gc"`
	PauseTotalNs uint64 `json:"gc_pause_total_ns"`
	NumGoroutine int    `json:"num_goroutine"`

	Timestamp time.Time `json:"timestamp"`
}

// MemoryMonitor samples runtime memory stats on an interval and feeds
// the GC gauges into the shared Metrics instance
type MemoryMonitor struct {
	metrics     *Metrics
	logger      *Logger
	interval    time.Duration
	gcThreshold uint64 // force a GC cycle when HeapAlloc exceeds this
	stopChannel chan struct{}

	mutex      sync.RWMutex
	current    MemoryStats
	history    []MemoryStats
	maxHistory int
}

// NewMemoryMonitor creates a new memory monitor
func NewMemoryMonitor(interval time.Duration, gcThreshold uint64, metrics *Metrics, logger *Logger) *MemoryMonitor {
	return &MemoryMonitor{
		metrics:     metrics,
		logger:      logger,
		interval:    interval,
		gcThreshold: gcThreshold,
		stopChannel: make(chan struct{}),
		maxHistory:  100,
	}
}

// Start begins memory monitoring in a goroutine
func (mm *MemoryMonitor) Start() {
	go func() {
		ticker := time.NewTicker(mm.interval)
		defer ticker.Stop()

		slog.Info("Starting memory monitoring", "interval_ms", mm.interval.Milliseconds())

		for {
			select {
			case <-ticker.C:
				mm.collectStats()
			case <-mm.stopChannel:
				slog.Info("Memory monitoring stopped")
				return
			}
		}
	}()
}

// Stop stops memory monitoring
func (mm *MemoryMonitor) Stop() {
	close(mm.stopChannel)
}

func (mm *MemoryMonitor) collectStats() {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	stats := MemoryStats{
		Alloc:        memStats.Alloc,
		TotalAlloc:   memStats.TotalAlloc,
		Sys:          memStats.Sys,
		Mallocs:      memStats.Mallocs,
		Frees:        memStats.Frees,
		HeapAlloc:    memStats.HeapAlloc,
		HeapSys:      memStats.HeapSys,
		HeapInuse:    memStats.HeapInuse,
		HeapObjects:  memStats.HeapObjects,
		NumGC:        memStats.NumGC,
		PauseTotalNs: memStats.PauseTotalNs,
		NumGoroutine: runtime.NumGoroutine(),
		Timestamp:    time.Now(),
	}

	mm.mutex.Lock()
	mm.current = stats
	mm.history = append(mm.history, stats)
	if len(mm.history) > mm.maxHistory {
		mm.history = mm.history[1:]
	}
	mm.mutex.Unlock()

	if mm.metrics != nil {
		mm.metrics.RecordGCMetrics(
			int64(memStats.NumGC),
			int64(memStats.PauseTotalNs),
			int64(memStats.HeapAlloc),
			int64(memStats.HeapSys),
		)
	}

	if mm.gcThreshold > 0 && memStats.HeapAlloc > mm.gcThreshold {
		slog.Info("Triggering manual garbage collection",
			"heap_alloc_mb", memStats.HeapAlloc/(1024*1024),
			"gc_threshold_mb", mm.gcThreshold/(1024*1024))
		mm.ForceGC()
	}
}

// GetStats returns the latest sample plus derived figures
func (mm *MemoryMonitor) GetStats() map[string]interface{} {
	mm.mutex.RLock()
	defer mm.mutex.RUnlock()

	heapUtilization := float64(0)
	if mm.current.HeapSys > 0 {
		heapUtilization = float64(mm.current.HeapInuse) / float64(mm.current.HeapSys)
	}

	mallocRate := float64(0)
	if len(mm.history) >= 2 {
		first := mm.history[0]
		timeDiff := mm.current.Timestamp.Sub(first.Timestamp).Seconds()
		if timeDiff > 0 {
			mallocRate = float64(mm.current.Mallocs-first.Mallocs) / timeDiff
		}
	}

	return map[string]interface{}{
		"current": map[string]interface{}{
			"alloc_mb":      mm.current.Alloc / (1024 * 1024),
			"sys_mb":        mm.current.Sys / (1024 * 1024),
			"heap_alloc_mb": mm.current.HeapAlloc / (1024 * 1024),
			"heap_sys_mb":   mm.current.HeapSys / (1024 * 1024),
			"heap_objects":  mm.current.HeapObjects,
			"num_gc":        mm.current.NumGC,
			"num_goroutine": mm.current.NumGoroutine,
		},
		"derived": map[string]interface{}{
			"heap_utilization":    heapUtilization,
			"malloc_rate_per_sec": mallocRate,
		},
		"history_count":   len(mm.history),
		"gc_threshold_mb": mm.gcThreshold / (1024 * 1024),
	}
}

// GetHistory returns a copy of the sampled history
func (mm *MemoryMonitor) GetHistory() []MemoryStats {
	mm.mutex.RLock()
	defer mm.mutex.RUnlock()

	history := make([]MemoryStats, len(mm.history))
	copy(history, mm.history)
	return history
}

// ForceGC forces a garbage collection cycle
func (mm *MemoryMonitor) ForceGC() {
	start := time.Now()
	runtime.GC()
	duration := time.Since(start)

	if mm.logger != nil {
		mm.logger.PerformanceLogger("forced_gc", float64(duration.Milliseconds()), "ms")
		mm.logger.SystemLogger("memory_stats", fmt.Sprintf(
			"heap:%dMB goroutines:%d", mm.current.HeapAlloc/(1024*1024), runtime.NumGoroutine()))
	}
}
