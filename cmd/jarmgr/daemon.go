package main

import (
	"context"
	"errors"
	"time"

	"github.com/loykin/jarmgr"
	"github.com/loykin/jarmgr/internal/errs"
	"github.com/loykin/jarmgr/pkg/client"
)

func (c *command) DaemonStart(ctx context.Context) error {
	return c.with(func(m *jarmgr.Manager) error {
		d := m.DetachedDaemon()
		if err := d.Start(ctx); err != nil {
			if errors.Is(err, errs.ErrAlreadyRunning) {
				st, _ := d.Status()
				c.printf("Daemon is already running (PID %d)\n", st.PID)
				return nil
			}
			return err
		}
		st, _ := d.Status()
		c.printf("Daemon started (PID %d)\n", st.PID)
		c.printf("  log: %s\n", m.Layout().DaemonLogFile())
		return nil
	})
}

func (c *command) DaemonStop(ctx context.Context) error {
	return c.with(func(m *jarmgr.Manager) error {
		err := m.DetachedDaemon().Stop(ctx)
		switch {
		case errors.Is(err, errs.ErrNotRunning):
			c.printf("Daemon is not running\n")
			return nil
		case err != nil:
			return err
		}
		c.printf("Daemon stopped\n")
		return nil
	})
}

func (c *command) DaemonRestart(ctx context.Context) error {
	return c.with(func(m *jarmgr.Manager) error {
		d := m.DetachedDaemon()
		if err := d.Restart(ctx); err != nil {
			return err
		}
		st, _ := d.Status()
		c.printf("Daemon restarted (PID %d)\n", st.PID)
		return nil
	})
}

func (c *command) DaemonStatus(ctx context.Context) error {
	return c.with(func(m *jarmgr.Manager) error {
		st, err := m.DetachedDaemon().Status()
		if err != nil {
			return err
		}
		if !st.Running {
			c.printf("Daemon is not running\n")
		} else {
			c.printf("Daemon is running (PID %d)\n", st.PID)
		}
		cfg := m.Config()
		c.printf("  interval:  %s\n", cfg.Process.Interval())
		c.printf("  rotation:  %t\n", cfg.Log.EnableRotation)
		c.printf("  retention: %d days\n", cfg.Log.RetentionDays)
		if addr := cfg.System.StatusListen; addr != "" && st.Running {
			c.endpointStatus(ctx, client.BaseURLFromListen(addr))
		}
		if len(st.Recent) > 0 {
			c.printf("Recent log:\n")
			for _, l := range st.Recent {
				c.printf("  %s\n", l)
			}
		}
		return nil
	})
}

func (c *command) endpointStatus(ctx context.Context, base string) {
	cl := client.New(client.Config{BaseURL: base, Timeout: 2 * time.Second})
	units, err := cl.List(ctx)
	if err != nil {
		c.printf("  endpoint:  %s (unreachable: %v)\n", base, err)
		return
	}
	c.printf("  endpoint:  %s (%d live units)\n", base, len(units))
}

// DaemonRun runs maintenance in the foreground until ctx is cancelled.
func (c *command) DaemonRun(ctx context.Context) error {
	return c.with(func(m *jarmgr.Manager) error {
		s := m.InProcessDaemon()
		if err := s.Start(ctx); err != nil {
			return err
		}
		c.printf("Maintenance running every %s, press Ctrl+C to stop\n", m.Config().Process.Interval())
		<-ctx.Done()
		c.printf("Stopping after the current cycle...\n")
		stopCtx, cancel := context.WithTimeout(context.Background(), m.Config().Process.Interval()+5*time.Second)
		defer cancel()
		return s.Stop(stopCtx)
	})
}

// Maintain runs a single maintenance pass and prints its report.
func (c *command) Maintain() error {
	return c.with(func(m *jarmgr.Manager) error {
		r := m.RunNow()
		c.printf("live: %d  rotated: %d  deleted: %d  evicted: %d  (%s)\n",
			r.Live, len(r.Rotated), r.Deleted, r.Evicted, r.Duration.Round(time.Millisecond))
		return nil
	})
}
