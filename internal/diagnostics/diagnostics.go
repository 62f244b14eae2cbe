// Package diagnostics reports host resource statistics for the
// planctl status CLI command. Grounded in the teacher's StatsCollector
// fluent-map pattern (infrastructure/service/stats.go), adapted to a
// CLI context since this module has no HTTP /info endpoint to serve
// from.
package diagnostics

import (
	"context"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
)

// HostReport summarizes the machine planctl/engined is running on.
type HostReport struct {
	Uptime       time.Duration `json:"uptime"`
	CPUPercent   float64       `json:"cpu_percent"`
	MemUsedBytes uint64        `json:"mem_used_bytes"`
	MemTotal     uint64        `json:"mem_total_bytes"`
	GoRoutines   int           `json:"goroutines"`
	GoVersion    string        `json:"go_version"`
}

// Collect gathers a HostReport. Individual probe failures are
// tolerated (spec.md §7 "each engine catches non-fatal errors
// per-unit") — a field is simply left zero rather than aborting the
// whole report.
func Collect(ctx context.Context) HostReport {
	report := HostReport{
		GoRoutines: runtime.NumGoroutine(),
		GoVersion:  runtime.Version(),
	}

	if info, err := host.InfoWithContext(ctx); err == nil {
		report.Uptime = time.Duration(info.Uptime) * time.Second
	}

	if percents, err := cpu.PercentWithContext(ctx, 200*time.Millisecond, false); err == nil && len(percents) > 0 {
		report.CPUPercent = percents[0]
	}

	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		report.MemUsedBytes = vm.Used
		report.MemTotal = vm.Total
	}

	return report
}
