package daemon

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/loykin/jarmgr/internal/config"
	"github.com/loykin/jarmgr/internal/errs"
)

// State is what a scheduler reports about itself.
type State struct {
	Running bool
	PID     int
	// Recent holds the last lines of the daemon log when one exists.
	Recent []string
}

// Scheduler runs the maintenance routine on an interval. Start on an
// active scheduler returns an error wrapping errs.ErrAlreadyRunning and Stop
// on an idle one an error wrapping errs.ErrNotRunning.
type Scheduler interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Status() (State, error)
}

// loop drives m until keep reports false. The interval is read from cfg
// after every pass, so edits apply from the next cycle on.
func loop(keep func() bool, cfg func() config.GlobalConfig, m *Maintainer, sleep func(time.Duration)) {
	for keep() {
		c := cfg()
		m.RunOnce(c)
		sleep(c.Process.Interval())
	}
}

// InProcess is a background goroutine owned by the running tool. Stop only
// takes effect at the top of an iteration; a pending sleep is not cut short.
type InProcess struct {
	m      *Maintainer
	cfg    *config.Handle
	log    *slog.Logger
	sleep  func(time.Duration)
	reload bool

	mu sync.Mutex
	// stop belongs to the active run and is nil while idle. done closes when
	// the most recent run's goroutine has returned.
	stop *atomic.Bool
	done chan struct{}
}

type InProcessOption func(*InProcess)

// WithSleeper replaces time.Sleep between passes.
func WithSleeper(fn func(time.Duration)) InProcessOption {
	return func(s *InProcess) { s.sleep = fn }
}

// WithReload makes every pass re-read the configuration file first.
func WithReload(on bool) InProcessOption {
	return func(s *InProcess) { s.reload = on }
}

func WithSchedulerLogger(l *slog.Logger) InProcessOption {
	return func(s *InProcess) {
		if l != nil {
			s.log = l
		}
	}
}

func NewInProcess(m *Maintainer, cfg *config.Handle, opts ...InProcessOption) *InProcess {
	s := &InProcess{m: m, cfg: cfg, log: slog.Default(), sleep: time.Sleep}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *InProcess) current() config.GlobalConfig {
	if s.reload {
		if err := s.cfg.Reload(); err != nil {
			s.log.Warn("reload config, using defaults", "error", err)
		}
	}
	return s.cfg.Get()
}

// Start launches the loop. A run whose Stop timed out must drain first;
// Start waits for it until ctx is done.
func (s *InProcess) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.stop != nil {
		s.mu.Unlock()
		return errs.New(errs.ErrAlreadyRunning, "daemon start", "", nil)
	}
	prev := s.done
	s.mu.Unlock()
	if prev != nil {
		select {
		case <-prev:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stop != nil {
		return errs.New(errs.ErrAlreadyRunning, "daemon start", "", nil)
	}
	stop := new(atomic.Bool)
	done := make(chan struct{})
	s.stop, s.done = stop, done
	s.log.Info("in-process daemon started")
	go func() {
		defer close(done)
		loop(func() bool { return !stop.Load() }, s.current, s.m, s.sleep)
	}()
	return nil
}

// Stop signals the active run and waits for it to notice or for ctx.
func (s *InProcess) Stop(ctx context.Context) error {
	s.mu.Lock()
	stop, done := s.stop, s.done
	s.stop = nil
	s.mu.Unlock()
	if stop == nil {
		return errs.New(errs.ErrNotRunning, "daemon stop", "", nil)
	}
	stop.Store(true)
	select {
	case <-done:
		s.log.Info("in-process daemon stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *InProcess) Status() (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return State{Running: s.stop != nil}, nil
}
