// Package lifecycle starts, stops, restarts and kills managed units one
// identifier at a time. The PID registry is the only state it keeps: a unit
// is running exactly when the registry holds a live pid for it.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/loykin/jarmgr/internal/config"
	"github.com/loykin/jarmgr/internal/errs"
	"github.com/loykin/jarmgr/internal/history"
	"github.com/loykin/jarmgr/internal/logrotate"
	"github.com/loykin/jarmgr/internal/metrics"
	"github.com/loykin/jarmgr/internal/process"
	"github.com/loykin/jarmgr/internal/registry"
)

const (
	// DefaultGrace is how long start waits before re-checking the child.
	DefaultGrace = 500 * time.Millisecond
	// DefaultRestartPause separates the stop and start halves of a restart.
	DefaultRestartPause = 2 * time.Second
)

// Result describes the outcome of a lifecycle operation that succeeded.
type Result struct {
	ID  string
	PID int
	// AlreadyRunning is set when start found a live instance and did nothing.
	AlreadyRunning bool
	// NotRunning is set when stop or kill found nothing to do.
	NotRunning bool
}

// Deps are the collaborators a Controller drives.
type Deps struct {
	Layout   config.Layout
	Registry *registry.Registry
	Logs     *logrotate.Engine
	Launcher process.Launcher
	Args     config.ArgStore
}

// Controller implements the per-identifier lifecycle operations.
type Controller struct {
	layout   config.Layout
	reg      *registry.Registry
	logs     *logrotate.Engine
	launcher process.Launcher
	args     config.ArgStore

	sinks        []history.Sink
	log          *slog.Logger
	grace        time.Duration
	restartPause time.Duration
	sleep        func(context.Context, time.Duration) error
	alive        func(int) bool
	terminate    func(int) error
	kill         func(int) error
	now          func() time.Time
}

type Option func(*Controller)

func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.log = l
		}
	}
}

// WithHistory adds sinks that receive every lifecycle event.
func WithHistory(sinks ...history.Sink) Option {
	return func(c *Controller) {
		for _, s := range sinks {
			if s != nil {
				c.sinks = append(c.sinks, s)
			}
		}
	}
}

// WithGrace sets the post-spawn grace period.
func WithGrace(d time.Duration) Option { return func(c *Controller) { c.grace = d } }

func WithRestartPause(d time.Duration) Option { return func(c *Controller) { c.restartPause = d } }

// WithSleep replaces the pause used between restart phases.
func WithSleep(fn func(context.Context, time.Duration) error) Option {
	return func(c *Controller) { c.sleep = fn }
}

// WithLiveness replaces the post-grace liveness probe.
func WithLiveness(fn func(int) bool) Option { return func(c *Controller) { c.alive = fn } }

// WithSignals replaces the graceful and forced termination primitives.
func WithSignals(terminate, kill func(int) error) Option {
	return func(c *Controller) {
		if terminate != nil {
			c.terminate = terminate
		}
		if kill != nil {
			c.kill = kill
		}
	}
}

func New(d Deps, opts ...Option) *Controller {
	c := &Controller{
		layout:       d.Layout,
		reg:          d.Registry,
		logs:         d.Logs,
		launcher:     d.Launcher,
		args:         d.Args,
		log:          slog.Default(),
		grace:        DefaultGrace,
		restartPause: DefaultRestartPause,
		sleep:        Sleep,
		alive:        process.Alive,
		terminate:    process.Terminate,
		kill:         process.Kill,
		now:          time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Running reports whether id has a live registry entry.
func (c *Controller) Running(id string) bool { return c.reg.Running(id) }

// Start launches id with args unless it is already running, in which case
// it returns success with Result.AlreadyRunning set. A child that is gone
// once the grace period ends is reported as errs.ErrSpawnFailed and leaves
// no registry entry behind.
func (c *Controller) Start(ctx context.Context, id string, args []string) (Result, error) {
	if pid, ok := c.reg.Get(id); ok {
		c.log.Info("already running", "id", id, "pid", pid)
		return Result{ID: id, PID: pid, AlreadyRunning: true}, nil
	}
	if err := c.layout.EnsureDirs(); err != nil {
		return Result{ID: id}, err
	}
	if rotated, err := c.logs.RotateIfNeeded(id); err != nil {
		c.log.Warn("rotate before start", "id", id, "error", err)
	} else if rotated {
		c.record(history.EventRotate, id, 0, "before start")
	}

	cmd, err := c.launcher.Command(id, args)
	if err != nil {
		return c.spawnFailed(id, 0, err)
	}
	child, err := process.Spawn(cmd, c.logs.LogPath(id))
	if err != nil {
		return c.spawnFailed(id, 0, err)
	}
	if err := c.reg.Save(id, child.PID); err != nil {
		// never leave a live child without an entry
		_ = c.kill(child.PID)
		return Result{ID: id}, err
	}
	c.log.Debug("spawned", "id", id, "pid", child.PID, "args", args)

	timer := time.NewTimer(c.grace)
	defer timer.Stop()
	select {
	case <-child.Exited():
		_ = c.reg.Remove(id)
		return c.spawnFailed(id, child.PID, exitCause(child.Err()))
	case <-ctx.Done():
		return Result{ID: id, PID: child.PID}, ctx.Err()
	case <-timer.C:
	}
	if !c.alive(child.PID) {
		_ = c.reg.Remove(id)
		return c.spawnFailed(id, child.PID, exitCause(child.Err()))
	}

	metrics.IncStart(id)
	c.record(history.EventStart, id, child.PID, "")
	c.log.Info("started", "id", id, "pid", child.PID, "log", c.logs.LogPath(id))
	return Result{ID: id, PID: child.PID}, nil
}

func exitCause(err error) error {
	if err == nil {
		return errors.New("exited immediately")
	}
	return fmt.Errorf("exited immediately: %w", err)
}

func (c *Controller) spawnFailed(id string, pid int, cause error) (Result, error) {
	metrics.IncSpawnFailure(id)
	c.record(history.EventSpawnFailed, id, pid, cause.Error())
	c.log.Error("start failed", "id", id, "error", cause, "log", c.logs.LogPath(id))
	return Result{ID: id}, errs.New(errs.ErrSpawnFailed, "start", id, cause)
}

// Stop asks id to terminate and drops its registry entry. Stopping a unit
// that is not running succeeds with Result.NotRunning set. The entry is
// removed even when the signal fails.
func (c *Controller) Stop(_ context.Context, id string) (Result, error) {
	return c.signal(id, false)
}

// Kill forcibly terminates id, with the same registry handling as Stop.
func (c *Controller) Kill(_ context.Context, id string) (Result, error) {
	return c.signal(id, true)
}

func (c *Controller) signal(id string, forced bool) (Result, error) {
	op, done, send, event := "stop", "stopped", c.terminate, history.EventStop
	if forced {
		op, done, send, event = "kill", "killed", c.kill, history.EventKill
	}
	pid, ok := c.reg.Get(id)
	if !ok {
		c.log.Warn("not running", "id", id, "op", op)
		return Result{ID: id, NotRunning: true}, nil
	}
	sigErr := send(pid)
	if err := c.reg.Remove(id); err != nil {
		c.log.Warn("remove pid entry", "id", id, "error", err)
	}
	if sigErr != nil {
		c.record(event, id, pid, sigErr.Error())
		c.log.Error(op+" failed", "id", id, "pid", pid, "error", sigErr)
		return Result{ID: id, PID: pid}, errs.New(errs.ErrSignalFailed, op, id, sigErr)
	}
	metrics.IncStop(id, forced)
	c.record(event, id, pid, "")
	c.log.Info(done, "id", id, "pid", pid)
	return Result{ID: id, PID: pid}, nil
}

// Restart stops id when it is running, pauses, then starts it with args.
// A unit that was not running is started without the pause.
func (c *Controller) Restart(ctx context.Context, id string, args []string) (Result, error) {
	if c.reg.Running(id) {
		if _, err := c.Stop(ctx, id); err != nil {
			return Result{ID: id}, err
		}
		if err := c.sleep(ctx, c.restartPause); err != nil {
			return Result{ID: id}, err
		}
	} else {
		c.log.Warn("not running, starting", "id", id)
	}
	return c.Start(ctx, id, args)
}

// Quick restarts a running unit without arguments, or starts a stopped
// one with its saved arguments.
func (c *Controller) Quick(ctx context.Context, id string) (Result, error) {
	if c.reg.Running(id) {
		return c.Restart(ctx, id, nil)
	}
	args, ok, err := c.args.Load(id)
	if err != nil {
		c.log.Warn("read saved args", "id", id, "error", err)
	} else if !ok {
		c.log.Warn("no saved args, starting with defaults", "id", id)
	}
	return c.Start(ctx, id, args)
}

// Status is the observable state of one unit.
type Status struct {
	ID        string
	Running   bool
	PID       int
	Info      process.Info
	LogPath   string
	LogSize   int64
	LogExists bool
	// RotationDue reports whether the active log has crossed the size threshold.
	RotationDue bool
	SavedArgs   []string
	HasArgs     bool
}

// Status inspects id. Reading it evicts a stale registry entry.
func (c *Controller) Status(id string) Status {
	st := Status{ID: id, LogPath: c.logs.LogPath(id)}
	if pid, ok := c.reg.Get(id); ok {
		st.Running, st.PID = true, pid
		if info, err := process.Inspect(pid); err == nil {
			st.Info = info
		}
	}
	if fi, err := os.Stat(st.LogPath); err == nil {
		st.LogExists, st.LogSize = true, fi.Size()
		st.RotationDue = c.logs.ShouldRotate(st.LogPath)
	}
	st.SavedArgs, st.HasArgs, _ = c.args.Load(id)
	return st
}

// List returns every live unit, evicting stale entries on the way.
func (c *Controller) List() ([]registry.Entry, error) {
	return c.reg.ListAll()
}

func (c *Controller) record(t history.EventType, id string, pid int, detail string) {
	if len(c.sinks) == 0 {
		return
	}
	e := history.Event{Type: t, OccurredAt: c.now().UTC(), ID: id, PID: pid, Detail: detail}
	for _, s := range c.sinks {
		if err := s.Send(context.Background(), e); err != nil {
			c.log.Debug("history send", "event", string(t), "id", id, "error", err)
		}
	}
}
