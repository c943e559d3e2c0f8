package server

import (
	"runtime"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/aristath/frontier/internal/utils"
)

// HealthResponse is the body of GET /health
type HealthResponse struct {
	Status        string  `json:"status"`
	Service       string  `json:"service"`
	Version       string  `json:"version"`
	UptimeSeconds float64 `json:"uptime_seconds"`
	CPUPercent    float64 `json:"cpu_percent"`
	MemoryPercent float64 `json:"memory_percent"`
	Goroutines    int     `json:"goroutines"`
	SolveWorkers  int     `json:"solve_workers"` // concurrent solves per request
}

// SystemHandlers reports process and host health
type SystemHandlers struct {
	log       zerolog.Logger
	version   string
	workers   int
	startedAt time.Time
}

// NewSystemHandlers creates system handlers. configuredWorkers follows the
// WORKERS setting, where 0 means one per logical CPU.
func NewSystemHandlers(log zerolog.Logger, version string, configuredWorkers int) *SystemHandlers {
	return &SystemHandlers{
		log:       log.With().Str("handler", "system").Logger(),
		version:   version,
		workers:   utils.WorkerCount(configuredWorkers),
		startedAt: time.Now(),
	}
}

// Health collects a health snapshot
func (h *SystemHandlers) Health() HealthResponse {
	cpuPercent, memPercent := h.getSystemStats()

	return HealthResponse{
		Status:        "healthy",
		Service:       "frontier",
		Version:       h.version,
		UptimeSeconds: time.Since(h.startedAt).Seconds(),
		CPUPercent:    cpuPercent,
		MemoryPercent: memPercent,
		Goroutines:    runtime.NumGoroutine(),
		SolveWorkers:  h.workers,
	}
}

// getSystemStats returns CPU and RAM usage percentages
func (h *SystemHandlers) getSystemStats() (float64, float64) {
	// Sample over 100ms so health checks stay fast
	cpuPercent, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get CPU percentage")
		cpuPercent = []float64{0}
	}

	memStat, err := mem.VirtualMemory()
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get memory statistics")
		return 0, 0
	}

	cpuAvg := 0.0
	if len(cpuPercent) > 0 {
		cpuAvg = cpuPercent[0]
	}

	return cpuAvg, memStat.UsedPercent
}
