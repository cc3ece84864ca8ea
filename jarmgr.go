// Package jarmgr supervises long-running JAR applications on a single
// host. A Manager wires the PID registry, lifecycle controller, log
// rotation, history sinks and maintenance daemon rooted at one state
// directory.
package jarmgr

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/loykin/jarmgr/internal/config"
	"github.com/loykin/jarmgr/internal/daemon"
	"github.com/loykin/jarmgr/internal/errs"
	"github.com/loykin/jarmgr/internal/history"
	"github.com/loykin/jarmgr/internal/history/factory"
	"github.com/loykin/jarmgr/internal/lifecycle"
	"github.com/loykin/jarmgr/internal/logger"
	"github.com/loykin/jarmgr/internal/logrotate"
	"github.com/loykin/jarmgr/internal/metrics"
	"github.com/loykin/jarmgr/internal/orchestrator"
	"github.com/loykin/jarmgr/internal/process"
	"github.com/loykin/jarmgr/internal/registry"
	"github.com/loykin/jarmgr/internal/server"
)

// Re-export core types for external consumers.

type Result = lifecycle.Result

type Status = lifecycle.Status

type Entry = registry.Entry

type GlobalConfig = config.GlobalConfig

type Summary = orchestrator.Summary

type Outcome = orchestrator.Outcome

type Op = orchestrator.Op

type Event = history.Event

type SequenceInfo = orchestrator.SequenceInfo

type DecisionPolicy = orchestrator.DecisionPolicy

// HistoryOff disables the lifecycle history sink when used as history_dsn.
const HistoryOff = "off"

// Options configure Open.
type Options struct {
	// Root is the state directory; empty means config.DefaultRoot.
	Root string
	// Logger overrides the console logger derived from the config.
	Logger *slog.Logger
	// Launcher overrides the java launcher built from process config.
	Launcher process.Launcher
	// Sink overrides the history sink selected by system.history_dsn.
	Sink history.Sink
}

// Manager is the entry point for embedding and for the CLI.
type Manager struct {
	layout config.Layout
	cfg    config.GlobalConfig
	log    *slog.Logger

	reg   *registry.Registry
	logs  *logrotate.Engine
	args  config.ArgStore
	seqs  orchestrator.SequenceStore
	ctl   *lifecycle.Controller
	maint *daemon.Maintainer

	sink    history.Sink
	closers []io.Closer
}

// Open loads <root>/configs/global_config.toml (creating it with defaults
// on first use) and wires every component. A malformed config file is
// logged and replaced by defaults.
func Open(o Options) (*Manager, error) {
	root := o.Root
	if root == "" {
		root = config.DefaultRoot
	}
	l := config.NewLayout(root)
	if err := l.EnsureDirs(); err != nil {
		return nil, err
	}
	cfg, cfgErr := config.Load(l)
	if cfgErr != nil && !errors.Is(cfgErr, errs.ErrConfigParse) {
		return nil, cfgErr
	}
	log := o.Logger
	if log == nil {
		log = logger.Console(cfg)
	}
	if cfgErr != nil {
		log.Warn("config unreadable, using defaults", "error", cfgErr)
	}

	m := &Manager{layout: l, cfg: cfg, log: log}
	if cfg.System.Metrics {
		if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
			log.Warn("register metrics", "error", err)
		}
	}
	m.sink = o.Sink
	if m.sink == nil {
		m.sink = m.openHistory()
	}

	m.reg = registry.New(registry.NewFileStore(l.DataDir()),
		registry.WithLogger(log),
		registry.WithEvictHook(func(e registry.Entry) {
			metrics.IncEviction(e.ID)
			m.record(history.EventEvict, e.ID, e.PID, "stale pid entry")
		}),
	)
	m.logs = logrotate.New(cfg.Log, logrotate.WithLogger(log))
	m.args = config.NewArgStore(l)
	m.seqs = orchestrator.NewSequenceStore(l, log)

	launcher := o.Launcher
	if launcher == nil {
		launcher = process.JavaLauncher{
			Java:        cfg.Process.JavaCommand,
			DefaultArgs: cfg.Process.DefaultJavaArgs,
			UnitDir:     cfg.Process.UnitDir,
		}
	}
	m.ctl = lifecycle.New(lifecycle.Deps{
		Layout:   l,
		Registry: m.reg,
		Logs:     m.logs,
		Launcher: launcher,
		Args:     m.args,
	}, lifecycle.WithLogger(log), lifecycle.WithHistory(m.sink))
	m.maint = daemon.NewMaintainer(m.reg,
		daemon.WithMaintenanceLogger(log),
		daemon.WithRotateHook(func(id string) { m.record(history.EventRotate, id, 0, "maintenance") }),
	)
	return m, nil
}

func (m *Manager) openHistory() history.Sink {
	dsn := strings.TrimSpace(m.cfg.System.HistoryDSN)
	if strings.EqualFold(dsn, HistoryOff) {
		return nil
	}
	if dsn == "" {
		dsn = m.layout.HistoryDB()
	}
	s, err := factory.NewSinkFromDSN(dsn)
	if err != nil {
		m.log.Warn("history sink unavailable", "dsn", dsn, "error", err)
		return nil
	}
	if c, ok := s.(io.Closer); ok {
		m.closers = append(m.closers, c)
	}
	return s
}

func (m *Manager) record(t history.EventType, id string, pid int, detail string) {
	if m.sink == nil {
		return
	}
	e := history.Event{Type: t, OccurredAt: time.Now().UTC(), ID: id, PID: pid, Detail: detail}
	if err := m.sink.Send(context.Background(), e); err != nil {
		m.log.Debug("history send", "event", string(t), "id", id, "error", err)
	}
}

// Close releases the history sink.
func (m *Manager) Close() error {
	var errList []error
	for _, c := range m.closers {
		if err := c.Close(); err != nil {
			errList = append(errList, err)
		}
	}
	m.closers = nil
	return errors.Join(errList...)
}

func (m *Manager) Layout() config.Layout       { return m.layout }
func (m *Manager) Config() config.GlobalConfig { return m.cfg }
func (m *Manager) Logger() *slog.Logger        { return m.log }
func (m *Manager) Logs() *logrotate.Engine     { return m.logs }

// SaveConfig persists cfg. It takes effect for this Manager's future
// operations only after reopening; the daemon picks it up next cycle.
func (m *Manager) SaveConfig(cfg config.GlobalConfig) error {
	if err := config.Save(m.layout, cfg); err != nil {
		return err
	}
	m.cfg = cfg
	return nil
}

// ResetConfig writes the defaults back to disk.
func (m *Manager) ResetConfig() error {
	return m.SaveConfig(config.Default(m.layout))
}

// Lifecycle operations. Identifiers may carry the .jar suffix.

func (m *Manager) Start(ctx context.Context, name string, args []string) (Result, error) {
	id, err := resolve(name)
	if err != nil {
		return Result{}, err
	}
	return m.ctl.Start(ctx, id, args)
}

func (m *Manager) Stop(ctx context.Context, name string) (Result, error) {
	id, err := resolve(name)
	if err != nil {
		return Result{}, err
	}
	return m.ctl.Stop(ctx, id)
}

func (m *Manager) Restart(ctx context.Context, name string, args []string) (Result, error) {
	id, err := resolve(name)
	if err != nil {
		return Result{}, err
	}
	return m.ctl.Restart(ctx, id, args)
}

func (m *Manager) Kill(ctx context.Context, name string) (Result, error) {
	id, err := resolve(name)
	if err != nil {
		return Result{}, err
	}
	return m.ctl.Kill(ctx, id)
}

func (m *Manager) Quick(ctx context.Context, name string) (Result, error) {
	id, err := resolve(name)
	if err != nil {
		return Result{}, err
	}
	return m.ctl.Quick(ctx, id)
}

// Status inspects one unit. Invalid names yield a not-running status.
func (m *Manager) Status(name string) Status {
	id, err := resolve(name)
	if err != nil {
		return Status{ID: name}
	}
	return m.ctl.Status(id)
}

// List returns every live unit; stale registry entries are evicted.
func (m *Manager) List() ([]Entry, error) { return m.ctl.List() }

func resolve(name string) (string, error) {
	id := config.UnitID(name)
	if err := config.ValidateID(id); err != nil {
		return "", err
	}
	return id, nil
}

// Unit is a <id>.jar file found in the unit directory.
type Unit struct {
	ID      string
	Path    string
	Size    int64
	Running bool
}

// Units lists the jar files of the configured unit directory.
func (m *Manager) Units() ([]Unit, error) {
	dir := m.cfg.Process.UnitDir
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errs.IO("list units", dir, err)
	}
	var out []Unit
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), config.UnitSuffix) {
			continue
		}
		u := Unit{ID: config.UnitID(e.Name()), Path: filepath.Join(dir, e.Name())}
		if fi, err := e.Info(); err == nil {
			u.Size = fi.Size()
		}
		u.Running = m.reg.Running(u.ID)
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Saved start arguments.

func (m *Manager) SaveArgs(name string, args []string) error {
	id, err := resolve(name)
	if err != nil {
		return err
	}
	return m.args.Save(id, args)
}

func (m *Manager) Args(name string) ([]string, bool, error) {
	id, err := resolve(name)
	if err != nil {
		return nil, false, err
	}
	return m.args.Load(id)
}

func (m *Manager) DeleteArgs(name string) error {
	id, err := resolve(name)
	if err != nil {
		return err
	}
	return m.args.Delete(id)
}

func (m *Manager) ListArgs() ([]config.Saved, error) { return m.args.List() }

// Batch applies op to names independently. onOutcome may be nil.
func (m *Manager) Batch(ctx context.Context, op Op, names []string, onOutcome func(Op, int, int, Outcome)) (Summary, error) {
	ids := make([]string, 0, len(names))
	for _, n := range names {
		id, err := resolve(n)
		if err != nil {
			return Summary{Op: op}, err
		}
		ids = append(ids, id)
	}
	b := orchestrator.NewBatch(m.ctl, nil, m.log)
	b.OnOutcome = onOutcome
	return b.Run(ctx, op, ids)
}

// Sequences is the store of named sequences.
func (m *Manager) Sequences() orchestrator.SequenceStore { return m.seqs }

// SequenceRunner builds a runner bound to policy. onOutcome may be nil.
func (m *Manager) SequenceRunner(policy DecisionPolicy, onOutcome func(Op, int, int, Outcome)) *orchestrator.Runner {
	r := orchestrator.NewRunner(m.ctl, m.seqs, policy, nil, m.log)
	r.OnOutcome = onOutcome
	return r
}

// History returns recent lifecycle events when the sink can be queried.
func (m *Manager) History(ctx context.Context, name string, limit int) ([]Event, error) {
	id := ""
	if name != "" {
		var err error
		if id, err = resolve(name); err != nil {
			return nil, err
		}
	}
	r, ok := m.sink.(history.Reader)
	if !ok {
		return nil, fmt.Errorf("history sink is disabled or not queryable")
	}
	return r.Recent(ctx, id, limit)
}

// RunNow performs one maintenance pass. The configuration is re-read from
// disk so edits made by other processes apply, as they do for the loop.
func (m *Manager) RunNow() daemon.Report {
	cfg, err := config.Load(m.layout)
	if err != nil {
		m.log.Warn("reload config for maintenance, using loaded values", "error", err)
		cfg = m.cfg
	}
	return m.maint.RunOnce(cfg)
}

// InProcessDaemon returns a scheduler that runs maintenance in a goroutine
// of this process, re-reading the config file every cycle.
func (m *Manager) InProcessDaemon() *daemon.InProcess {
	h := config.NewHandle(m.layout, m.cfg)
	return daemon.NewInProcess(m.maint, h, daemon.WithReload(true), daemon.WithSchedulerLogger(m.log))
}

// DetachedDaemon returns the scheduler controlling the re-executed daemon.
func (m *Manager) DetachedDaemon() *daemon.Detached {
	return daemon.NewDetached(m.layout, daemon.WithDetachedLogger(m.log))
}

// RunDetached is the body of the re-executed daemon process: it logs to
// <root>/logs/daemon.log, optionally serves the status router and loops
// until ctx is done.
func RunDetached(ctx context.Context, root string) error {
	if root == "" {
		root = config.DefaultRoot
	}
	l := config.NewLayout(root)
	if err := l.EnsureDirs(); err != nil {
		return err
	}
	cfg, cfgErr := config.Load(l)
	w := logger.DaemonWriter(l, cfg)
	defer func() { _ = w.Close() }()
	log := logger.Daemon(w, cfg)
	if cfgErr != nil {
		log.Warn("config unreadable, using defaults", "error", cfgErr)
	}

	m, err := Open(Options{Root: root, Logger: log})
	if err != nil {
		log.Error("daemon init", "error", err)
		return err
	}
	defer func() { _ = m.Close() }()

	if addr := cfg.System.StatusListen; addr != "" {
		srv := server.NewServer(addr, server.NewRouter(m, m, ""), func(err error) {
			log.Error("status endpoint failed", "addr", addr, "error", err)
		})
		log.Info("status endpoint listening", "addr", addr)
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(sctx)
		}()
	}
	return daemon.Run(ctx, config.NewHandle(l, cfg), m.maint, log)
}
