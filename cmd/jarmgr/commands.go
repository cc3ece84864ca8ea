package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/loykin/jarmgr"
	"github.com/loykin/jarmgr/internal/config"
	"github.com/loykin/jarmgr/internal/daemon"
	"github.com/loykin/jarmgr/internal/logger"
	"github.com/loykin/jarmgr/internal/process"
)

type command struct {
	g   *GlobalFlags
	out io.Writer
	in  *os.File
	// launcher replaces the java launcher; tests use it to run shell scripts.
	launcher process.Launcher
}

func newCommand(out io.Writer, in *os.File) *command {
	return &command{g: &GlobalFlags{}, out: out, in: in}
}

func (c *command) rootDir() string {
	if c.g.Root != "" {
		return c.g.Root
	}
	if env := os.Getenv(daemon.RootEnv); env != "" {
		return env
	}
	return config.DefaultRoot
}

func (c *command) manager() (*jarmgr.Manager, error) {
	root := c.rootDir()
	var log *slog.Logger
	if c.g.Verbose || c.g.NoColor {
		cfg, _ := config.Load(config.NewLayout(root))
		o := logger.ConsoleOptions(cfg)
		o.Verbose = o.Verbose || c.g.Verbose
		o.Color = o.Color && !c.g.NoColor
		log = logger.New(os.Stderr, o)
	}
	return jarmgr.Open(jarmgr.Options{Root: root, Logger: log, Launcher: c.launcher})
}

// with opens a Manager for the duration of fn.
func (c *command) with(fn func(m *jarmgr.Manager) error) error {
	m, err := c.manager()
	if err != nil {
		return err
	}
	defer func() { _ = m.Close() }()
	return fn(m)
}

func (c *command) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(c.out, format, args...)
}

func (c *command) Start(ctx context.Context, f StartFlags) error {
	return c.with(func(m *jarmgr.Manager) error {
		res, err := m.Start(ctx, f.Name, f.Args)
		if err != nil {
			return err
		}
		if res.AlreadyRunning {
			c.printf("%s is already running (PID %d)\n", res.ID, res.PID)
			return nil
		}
		c.printf("Started %s (PID %d)\n", res.ID, res.PID)
		c.printf("  log: %s\n", m.Logs().LogPath(res.ID))
		return nil
	})
}

func (c *command) Stop(ctx context.Context, f StartFlags) error {
	return c.with(func(m *jarmgr.Manager) error {
		res, err := m.Stop(ctx, f.Name)
		if err != nil {
			return err
		}
		c.reportStopped(res, "Stopped")
		return nil
	})
}

func (c *command) Kill(ctx context.Context, f StartFlags) error {
	return c.with(func(m *jarmgr.Manager) error {
		res, err := m.Kill(ctx, f.Name)
		if err != nil {
			return err
		}
		c.reportStopped(res, "Killed")
		return nil
	})
}

func (c *command) reportStopped(res jarmgr.Result, verb string) {
	if res.NotRunning {
		c.printf("%s is not running\n", res.ID)
		return
	}
	c.printf("%s %s (PID %d)\n", verb, res.ID, res.PID)
}

func (c *command) Restart(ctx context.Context, f StartFlags) error {
	return c.with(func(m *jarmgr.Manager) error {
		res, err := m.Restart(ctx, f.Name, f.Args)
		if err != nil {
			return err
		}
		c.printf("Restarted %s (PID %d)\n", res.ID, res.PID)
		return nil
	})
}

func (c *command) Quick(ctx context.Context, f StartFlags) error {
	return c.with(func(m *jarmgr.Manager) error {
		if args, ok, _ := m.Args(f.Name); ok && len(args) > 0 {
			c.printf("Using saved args: %s\n", strings.Join(args, " "))
		}
		res, err := m.Quick(ctx, f.Name)
		if err != nil {
			return err
		}
		c.printf("%s running (PID %d)\n", res.ID, res.PID)
		return nil
	})
}

func (c *command) Status(f StatusFlags) error {
	return c.with(func(m *jarmgr.Manager) error {
		if f.Name == "" {
			return c.statusAll(m)
		}
		st := m.Status(f.Name)
		c.printf("=== %s ===\n", st.ID)
		if st.Running {
			c.printf("  state:   running\n  pid:     %d\n", st.PID)
			if up := st.Info.Uptime(time.Now()); up > 0 {
				c.printf("  uptime:  %s\n", up)
			}
			if st.Info.RSSBytes > 0 {
				c.printf("  memory:  %s\n", formatSize(int64(st.Info.RSSBytes)))
			}
		} else {
			c.printf("  state:   stopped\n")
		}
		if st.LogExists {
			c.printf("  log:     %s (%s)\n", st.LogPath, formatSize(st.LogSize))
			if st.RotationDue {
				c.printf("           rotation due\n")
			}
		} else {
			c.printf("  log:     %s (missing)\n", st.LogPath)
		}
		if st.HasArgs {
			c.printf("  args:    %s\n", strings.Join(st.SavedArgs, " "))
		}
		return nil
	})
}

func (c *command) statusAll(m *jarmgr.Manager) error {
	entries, err := m.List()
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		c.printf("No running applications\n")
		return nil
	}
	tw := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "ID\tPID\tUPTIME\tLOG SIZE")
	now := time.Now()
	for _, e := range entries {
		st := m.Status(e.ID)
		_, _ = fmt.Fprintf(tw, "%s\t%d\t%s\t%s\n", e.ID, e.PID, st.Info.Uptime(now), formatSize(st.LogSize))
	}
	return tw.Flush()
}

// List shows the jar files of the unit directory.
func (c *command) List() error {
	return c.with(func(m *jarmgr.Manager) error {
		units, err := m.Units()
		if err != nil {
			return err
		}
		if len(units) == 0 {
			c.printf("No .jar files in %s\n", m.Config().Process.UnitDir)
			return nil
		}
		tw := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
		_, _ = fmt.Fprintln(tw, "ID\tSIZE\tSTATE")
		for _, u := range units {
			state := "stopped"
			if u.Running {
				state = "running"
			}
			_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\n", u.ID, formatSize(u.Size), state)
		}
		return tw.Flush()
	})
}

// Log tails a unit's log, rotating it first when it is over the threshold.
func (c *command) Log(f LogFlags) error {
	return c.with(func(m *jarmgr.Manager) error {
		id := config.UnitID(f.Name)
		if err := config.ValidateID(id); err != nil {
			return err
		}
		if rotated, err := m.Logs().RotateIfNeeded(id); err != nil {
			return err
		} else if rotated {
			c.printf("(previous log moved to %s.1)\n", m.Logs().LogPath(id))
		}
		lines, err := m.Logs().Tail(id, f.Lines)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				c.printf("No log for %s\n", id)
				return nil
			}
			return err
		}
		for _, l := range lines {
			c.printf("%s\n", l)
		}
		return nil
	})
}

func (c *command) LogsList() error {
	return c.with(func(m *jarmgr.Manager) error {
		files, err := m.Logs().List()
		if err != nil {
			return err
		}
		if len(files) == 0 {
			c.printf("No log files in %s\n", m.Logs().Dir())
			return nil
		}
		tw := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
		_, _ = fmt.Fprintln(tw, "FILE\tSIZE\tMODIFIED")
		for _, f := range files {
			_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\n", f.Name, formatSize(f.Size), f.ModTime.Format(time.DateTime))
		}
		return tw.Flush()
	})
}

func (c *command) LogsClean() error {
	return c.with(func(m *jarmgr.Manager) error {
		n, err := m.Logs().Clean()
		if err != nil {
			return err
		}
		c.printf("Removed %d log files\n", n)
		return nil
	})
}

func (c *command) History(ctx context.Context, f HistoryFlags) error {
	return c.with(func(m *jarmgr.Manager) error {
		events, err := m.History(ctx, f.Name, f.Limit)
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
		_, _ = fmt.Fprintln(tw, "TIME\tEVENT\tID\tPID\tDETAIL")
		for _, e := range events {
			_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n",
				e.OccurredAt.Local().Format(time.DateTime), e.Type, e.ID, e.PID, e.Detail)
		}
		return tw.Flush()
	})
}

func (c *command) Version() {
	c.printf("jarmgr %s\n", version)
}
