package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/loykin/jarmgr/internal/config"
	"github.com/loykin/jarmgr/internal/errs"
	"github.com/loykin/jarmgr/internal/logrotate"
	"github.com/loykin/jarmgr/internal/process"
	"github.com/loykin/jarmgr/internal/registry"
)

// SentinelArg switches the binary into the detached maintenance loop. It
// must be the first argument.
const SentinelArg = "--daemon-mode"

// RootEnv carries the state root into the re-executed process.
const RootEnv = "JARMGR_ROOT"

const (
	statusLines         = 5
	detachedGrace       = 500 * time.Millisecond
	DefaultRestartPause = 2 * time.Second
)

// Detached runs maintenance in a separate, session-less copy of the
// binary whose pid lives in <root>/data/daemon.pid. It has no cancellation
// channel: Stop force-kills the recorded pid.
type Detached struct {
	layout  config.Layout
	pids    *registry.Registry
	command func() (*exec.Cmd, error)
	kill    func(int) error
	grace   time.Duration
	pause   time.Duration
	sleep   func(context.Context, time.Duration) error
	log     *slog.Logger
}

type DetachedOption func(*Detached)

// WithCommand replaces the re-exec of the current executable.
func WithCommand(fn func() (*exec.Cmd, error)) DetachedOption {
	return func(d *Detached) { d.command = fn }
}

func WithKill(fn func(int) error) DetachedOption {
	return func(d *Detached) { d.kill = fn }
}

// WithPauses sets the post-spawn grace period and the restart pause.
func WithPauses(grace, restart time.Duration) DetachedOption {
	return func(d *Detached) { d.grace, d.pause = grace, restart }
}

func WithDetachedLogger(l *slog.Logger) DetachedOption {
	return func(d *Detached) {
		if l != nil {
			d.log = l
		}
	}
}

func NewDetached(l config.Layout, opts ...DetachedOption) *Detached {
	d := &Detached{
		layout: l,
		pids:   registry.New(registry.NewFileStore(l.DataDir())),
		kill:   process.Kill,
		grace:  detachedGrace,
		pause:  DefaultRestartPause,
		sleep:  sleepCtx,
		log:    slog.Default(),
	}
	d.command = d.reexec
	for _, o := range opts {
		o(d)
	}
	return d
}

func (d *Detached) reexec() (*exec.Cmd, error) {
	exe, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("failed to get executable path: %w", err)
	}
	root, err := filepath.Abs(d.layout.Root)
	if err != nil {
		return nil, err
	}
	// #nosec G204 -- re-executes this binary
	cmd := exec.Command(exe, SentinelArg)
	cmd.Env = append(os.Environ(), RootEnv+"="+root)
	return cmd, nil
}

// Start spawns the detached loop unless the recorded daemon is alive.
func (d *Detached) Start(context.Context) error {
	if pid, ok := d.pids.Get(config.ReservedDaemonID); ok {
		return errs.New(errs.ErrAlreadyRunning, "daemon start", "", fmt.Errorf("pid %d", pid))
	}
	if err := d.layout.EnsureDirs(); err != nil {
		return err
	}
	cmd, err := d.command()
	if err != nil {
		return errs.New(errs.ErrSpawnFailed, "daemon start", "", err)
	}
	child, err := process.Spawn(cmd, d.layout.DaemonLogFile())
	if err != nil {
		return errs.New(errs.ErrSpawnFailed, "daemon start", "", err)
	}
	if err := d.pids.Save(config.ReservedDaemonID, child.PID); err != nil {
		_ = d.kill(child.PID)
		return err
	}
	select {
	case <-child.Exited():
		_ = d.pids.Remove(config.ReservedDaemonID)
		return errs.New(errs.ErrSpawnFailed, "daemon start", "", exitCause(child.Err()))
	case <-time.After(d.grace):
	}
	d.log.Info("daemon started", "pid", child.PID, "log", d.layout.DaemonLogFile())
	return nil
}

func exitCause(err error) error {
	if err == nil {
		return errors.New("exited immediately")
	}
	return fmt.Errorf("exited immediately: %w", err)
}

// Stop force-kills the recorded daemon and removes its pid file, even when
// the kill fails.
func (d *Detached) Stop(context.Context) error {
	pid, ok := d.pids.Get(config.ReservedDaemonID)
	if !ok {
		return errs.New(errs.ErrNotRunning, "daemon stop", "", nil)
	}
	killErr := d.kill(pid)
	if err := d.pids.Remove(config.ReservedDaemonID); err != nil {
		d.log.Warn("remove daemon pid file", "error", err)
	}
	if killErr != nil {
		return errs.New(errs.ErrSignalFailed, "daemon stop", "", killErr)
	}
	d.log.Info("daemon stopped", "pid", pid)
	return nil
}

// Restart stops a running daemon, pauses, and starts a new one.
func (d *Detached) Restart(ctx context.Context) error {
	if err := d.Stop(ctx); err != nil {
		if !errors.Is(err, errs.ErrNotRunning) {
			return err
		}
	} else if err := d.sleep(ctx, d.pause); err != nil {
		return err
	}
	return d.Start(ctx)
}

// Status reports the daemon pid and the tail of daemon.log.
func (d *Detached) Status() (State, error) {
	var st State
	st.PID, st.Running = d.pids.Get(config.ReservedDaemonID)
	lines, err := logrotate.TailFile(d.layout.DaemonLogFile(), statusLines)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return st, err
	}
	st.Recent = lines
	return st, nil
}

// Run is the body of the detached process. It records its own pid and
// drives m until ctx is done, re-reading the configuration before every
// pass.
func Run(ctx context.Context, cfg *config.Handle, m *Maintainer, log *slog.Logger) error {
	if log == nil {
		log = slog.Default()
	}
	l := cfg.Layout()
	pids := registry.NewFileStore(l.DataDir())
	self := os.Getpid()
	if err := pids.Write(config.ReservedDaemonID, self); err != nil {
		return err
	}
	defer func() {
		// leave a successor's pid file alone
		if pid, ok, _ := pids.Read(config.ReservedDaemonID); ok && pid == self {
			_ = pids.Delete(config.ReservedDaemonID)
		}
	}()
	log.Info("daemon loop running", "pid", self, "root", l.Root)

	current := func() config.GlobalConfig {
		if err := cfg.Reload(); err != nil {
			log.Warn("reload config, using defaults", "error", err)
		}
		return cfg.Get()
	}
	loop(func() bool { return ctx.Err() == nil }, current, m, func(d time.Duration) { _ = sleepCtx(ctx, d) })
	log.Info("daemon loop exiting", "pid", self)
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
