package system

import (
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/mem"
)

var startedAt = time.Now().UTC()

// HostInfo is a point-in-time snapshot of process and host health, served by
// the HTTP API for operational checks.
type HostInfo struct {
	GoVersion      string  `json:"go_version"`
	Goroutines     int     `json:"goroutines"`
	UptimeSeconds  float64 `json:"uptime_seconds"`
	MemTotalBytes  uint64  `json:"mem_total_bytes"`
	MemUsedBytes   uint64  `json:"mem_used_bytes"`
	MemUsedPercent float64 `json:"mem_used_percent"`
}

// Info collects a host snapshot. Memory stats are best-effort; a collection
// failure leaves the fields zeroed rather than failing the request.
func Info() HostInfo {
	info := HostInfo{
		GoVersion:     runtime.Version(),
		Goroutines:    runtime.NumGoroutine(),
		UptimeSeconds: time.Since(startedAt).Seconds(),
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		info.MemTotalBytes = vm.Total
		info.MemUsedBytes = vm.Used
		info.MemUsedPercent = vm.UsedPercent
	}
	return info
}
