// Package hostinfo collects facts about the machine a run happens on.
package hostinfo

import (
	"fmt"
	"runtime"

	"github.com/klauspost/cpuid/v2"
	"github.com/shirou/gopsutil/mem"
)

// Info describes the CPU caches and memory of the host.
type Info struct {
	CPU          string
	Arch         string
	LogicalCores int
	CacheLine    int
	L1D          int
	L2           int
	L3           int
	MemTotal     uint64
	MemAvailable uint64
}

// Collect reads the host facts. Cache sizes that cpuid cannot detect are
// reported as -1.
func Collect() (Info, error) {
	cpu := cpuid.CPU

	info := Info{
		CPU:          cpu.BrandName,
		Arch:         runtime.GOARCH,
		LogicalCores: cpu.LogicalCores,
		CacheLine:    cpu.CacheLine,
		L1D:          cpu.Cache.L1D,
		L2:           cpu.Cache.L2,
		L3:           cpu.Cache.L3,
	}

	vm, err := mem.VirtualMemory()
	if err != nil {
		return info, fmt.Errorf("hostinfo: %w", err)
	}

	info.MemTotal = vm.Total
	info.MemAvailable = vm.Available

	return info, nil
}

// Attrs returns the facts as key-value pairs for structured logging.
func (i Info) Attrs() []any {
	return []any{
		"cpu", i.CPU,
		"arch", i.Arch,
		"cores", i.LogicalCores,
		"cache_line", i.CacheLine,
		"l1d", FormatBytes(int64(i.L1D)),
		"l2", FormatBytes(int64(i.L2)),
		"l3", FormatBytes(int64(i.L3)),
		"mem_total", FormatBytes(int64(i.MemTotal)),
		"mem_available", FormatBytes(int64(i.MemAvailable)),
	}
}

// FormatBytes renders a size with a binary unit.
func FormatBytes(b int64) string {
	if b < 0 {
		return "unknown"
	}

	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}

	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}

	return fmt.Sprintf("%.1f %ciB", float64(b)/float64(div), "KMGTPE"[exp])
}
