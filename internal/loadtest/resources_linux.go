//go:build linux

package loadtest

import (
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/prometheus/procfs"
)

// procReader reads host CPU and memory from /proc and the harness process's
// CPU time and RSS from /proc/self. CPU percentages are deltas against the
// previous call, so the first reading reports 0.
type procReader struct {
	fs procfs.FS

	mu          sync.Mutex
	prevAt      time.Time
	prevBusy    float64
	prevTotal   float64
	prevProcCPU float64
}

// NewSystemResourceReader returns the platform reader. On Linux it uses
// procfs; if /proc is unavailable it falls back to Go runtime statistics.
func NewSystemResourceReader() ResourceReader {
	fs, err := procfs.NewDefaultFS()
	if err != nil {
		return runtimeReader{}
	}
	return &procReader{fs: fs}
}

func (r *procReader) Read() (ResourceUsage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var usage ResourceUsage
	var errs []error
	now := time.Now()

	if stat, err := r.fs.Stat(); err != nil {
		errs = append(errs, fmt.Errorf("read /proc/stat: %w", err))
	} else {
		c := stat.CPUTotal
		busy := c.User + c.Nice + c.System + c.IRQ + c.SoftIRQ + c.Steal
		total := busy + c.Idle + c.Iowait
		if r.prevTotal > 0 && total > r.prevTotal {
			usage.CPUPercent = (busy - r.prevBusy) / (total - r.prevTotal) * 100
		}
		r.prevBusy, r.prevTotal = busy, total
	}

	if mem, err := r.fs.Meminfo(); err != nil {
		errs = append(errs, fmt.Errorf("read /proc/meminfo: %w", err))
	} else if mem.MemTotal != nil && mem.MemAvailable != nil && *mem.MemTotal > 0 {
		used := *mem.MemTotal - *mem.MemAvailable
		usage.MemoryPercent = float64(used) / float64(*mem.MemTotal) * 100
	}

	self, err := r.fs.Self()
	if err == nil {
		var ps procfs.ProcStat
		ps, err = self.Stat()
		if err == nil {
			usage.MemoryBytes = uint64(ps.ResidentMemory())
			cpu := ps.CPUTime()
			if !r.prevAt.IsZero() {
				wall := now.Sub(r.prevAt).Seconds()
				if wall > 0 {
					usage.ProcessCPUPercent = (cpu - r.prevProcCPU) / wall / float64(runtime.NumCPU()) * 100
				}
			}
			r.prevProcCPU = cpu
		}
	}
	if err != nil {
		errs = append(errs, fmt.Errorf("read /proc/self/stat: %w", err))
		usage.MemoryBytes = runtimeHeapBytes()
	}
	r.prevAt = now

	return usage, errors.Join(errs...)
}
