package utils

import (
	"runtime"

	"github.com/shirou/gopsutil/v3/cpu"
)

// WorkerCount resolves the number of concurrent solves per request.
// A positive configured value wins; otherwise the logical CPU count is used,
// falling back to the Go runtime's view when gopsutil cannot read it.
func WorkerCount(configured int) int {
	if configured > 0 {
		return configured
	}

	count, err := cpu.Counts(true)
	if err != nil || count < 1 {
		return runtime.NumCPU()
	}
	return count
}
