package process

import (
	"time"

	gopsproc "github.com/shirou/gopsutil/v4/process"
)

// Info is a best-effort snapshot of a running process for status output.
// Zero fields mean the platform could not report them.
type Info struct {
	PID       int
	StartedAt time.Time
	RSSBytes  uint64
	Cmdline   string
}

func (i Info) Uptime(now time.Time) time.Duration {
	if i.StartedAt.IsZero() {
		return 0
	}
	return now.Sub(i.StartedAt).Truncate(time.Second)
}

// Inspect collects Info for pid.
func Inspect(pid int) (Info, error) {
	info := Info{PID: pid}
	p, err := gopsproc.NewProcess(int32(pid))
	if err != nil {
		return info, err
	}
	if ms, err := p.CreateTime(); err == nil && ms > 0 {
		info.StartedAt = time.UnixMilli(ms)
	}
	if mem, err := p.MemoryInfo(); err == nil && mem != nil {
		info.RSSBytes = mem.RSS
	}
	if cl, err := p.Cmdline(); err == nil {
		info.Cmdline = cl
	}
	return info, nil
}
