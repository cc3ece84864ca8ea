// Package daemon runs the periodic maintenance of managed units: health
// check, log rotation, log retention and stale pid cleanup. The routine is
// shared by two schedulers, an in-process background loop and a detached
// re-executed process.
package daemon

import (
	"log/slog"
	"time"

	"github.com/loykin/jarmgr/internal/config"
	"github.com/loykin/jarmgr/internal/logrotate"
	"github.com/loykin/jarmgr/internal/metrics"
	"github.com/loykin/jarmgr/internal/registry"
)

// Report summarizes one maintenance pass.
type Report struct {
	Live     int
	Rotated  []string
	Deleted  int
	Evicted  int
	Duration time.Duration
}

// Maintainer performs one maintenance pass against the registry.
type Maintainer struct {
	reg      *registry.Registry
	log      *slog.Logger
	onRotate func(id string)
	now      func() time.Time
}

type MaintainerOption func(*Maintainer)

func WithMaintenanceLogger(l *slog.Logger) MaintainerOption {
	return func(m *Maintainer) {
		if l != nil {
			m.log = l
		}
	}
}

// WithRotateHook is called for every log rotated by a pass.
func WithRotateHook(fn func(id string)) MaintainerOption {
	return func(m *Maintainer) { m.onRotate = fn }
}

func NewMaintainer(reg *registry.Registry, opts ...MaintainerOption) *Maintainer {
	m := &Maintainer{reg: reg, log: slog.Default(), now: time.Now}
	for _, o := range opts {
		o(m)
	}
	return m
}

// RunOnce executes the routine with cfg. Step failures are logged and do
// not stop later steps.
func (m *Maintainer) RunOnce(cfg config.GlobalConfig) Report {
	start := m.now()
	var rep Report
	logs := logrotate.New(cfg.Log, logrotate.WithLogger(m.log))

	// health check: ListAll evicts every dead entry it meets
	live, err := m.reg.ListAll()
	if err != nil {
		m.log.Warn("health check", "error", err)
	}
	rep.Live = len(live)
	metrics.SetLiveProcesses(len(live))
	m.log.Debug("health check", "live", len(live))

	if cfg.Log.EnableRotation {
		for _, e := range live {
			rotated, err := logs.RotateIfNeeded(e.ID)
			if err != nil {
				m.log.Warn("rotate log", "id", e.ID, "error", err)
				continue
			}
			if rotated {
				rep.Rotated = append(rep.Rotated, e.ID)
				if m.onRotate != nil {
					m.onRotate(e.ID)
				}
			}
		}
	}

	if cfg.Log.RetentionDays > 0 {
		n, err := logs.CleanupOldLogs()
		if err != nil {
			m.log.Warn("log retention", "error", err)
		}
		rep.Deleted = n
	}

	// second pass catches anything that died during this run
	if cfg.System.AutoCleanupPID {
		evicted, err := m.reg.Sweep()
		if err != nil {
			m.log.Warn("pid cleanup", "error", err)
		}
		rep.Evicted = evicted
	}

	rep.Duration = m.now().Sub(start)
	metrics.ObserveMaintenance(rep.Duration.Seconds())
	m.log.Info("maintenance complete",
		"live", rep.Live, "rotated", len(rep.Rotated), "deleted", rep.Deleted,
		"evicted", rep.Evicted, "took", rep.Duration)
	return rep
}
