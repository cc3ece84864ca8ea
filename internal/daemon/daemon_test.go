package daemon

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loykin/jarmgr/internal/config"
	"github.com/loykin/jarmgr/internal/errs"
	"github.com/loykin/jarmgr/internal/process"
	"github.com/loykin/jarmgr/internal/registry"
)

func requireUnix(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("tests require sh/sleep on Unix-like systems")
	}
}

func testConfig(t *testing.T) (config.Layout, config.GlobalConfig) {
	t.Helper()
	l := config.NewLayout(t.TempDir())
	require.NoError(t, l.EnsureDirs())
	cfg := config.Default(l)
	cfg.Log.MaxFileSizeMB = 1
	cfg.Log.RetentionDays = 1
	return l, cfg
}

func TestRunOnceRotatesRetainsAndEvicts(t *testing.T) {
	l, cfg := testConfig(t)
	live := map[int]bool{100: true}
	store := registry.NewMemStore()
	reg := registry.New(store, registry.WithLiveness(func(pid int) bool { return live[pid] }))
	require.NoError(t, reg.Save("api", 100))
	require.NoError(t, reg.Save("gone", 200))

	// oversized log of a live unit
	big := filepath.Join(l.LogDir(), "api.log")
	require.NoError(t, os.WriteFile(big, make([]byte, 1024*1024), 0o600))
	// stale log of a unit nobody runs
	old := filepath.Join(l.LogDir(), "old.log")
	require.NoError(t, os.WriteFile(old, []byte("x"), 0o600))
	past := time.Now().Add(-72 * time.Hour)
	require.NoError(t, os.Chtimes(old, past, past))

	var hooked []string
	m := NewMaintainer(reg, WithRotateHook(func(id string) { hooked = append(hooked, id) }))
	rep := m.RunOnce(cfg)

	assert.Equal(t, 1, rep.Live)
	assert.Equal(t, []string{"api"}, rep.Rotated)
	assert.Equal(t, []string{"api"}, hooked)
	assert.Equal(t, 1, rep.Deleted)
	assert.FileExists(t, big+".1")
	assert.NoFileExists(t, old)
	ids, _ := store.IDs()
	assert.Equal(t, []string{"api"}, ids, "dead entry must be evicted")
}

func TestRunOnceHonorsDisabledRotationAndRetention(t *testing.T) {
	l, cfg := testConfig(t)
	cfg.Log.EnableRotation = false
	cfg.Log.RetentionDays = 0
	reg := registry.New(registry.NewMemStore(), registry.WithLiveness(func(int) bool { return true }))
	require.NoError(t, reg.Save("api", 1))

	big := filepath.Join(l.LogDir(), "api.log")
	require.NoError(t, os.WriteFile(big, make([]byte, 2*1024*1024), 0o600))
	old := filepath.Join(l.LogDir(), "old.log")
	require.NoError(t, os.WriteFile(old, nil, 0o600))
	past := time.Now().Add(-365 * 24 * time.Hour)
	require.NoError(t, os.Chtimes(old, past, past))

	rep := NewMaintainer(reg).RunOnce(cfg)
	assert.Empty(t, rep.Rotated)
	assert.Zero(t, rep.Deleted)
	assert.FileExists(t, big)
	assert.FileExists(t, old)
}

// countingStore counts IDs calls, one per ListAll and one per Sweep.
type countingStore struct {
	*registry.MemStore
	n atomic.Int32
}

func (c *countingStore) IDs() ([]string, error) {
	c.n.Add(1)
	return c.MemStore.IDs()
}

func TestInProcessLoopReadsIntervalEachCycle(t *testing.T) {
	l, cfg := testConfig(t)
	cfg.Process.HealthCheckInterval = 7
	h := config.NewHandle(l, cfg)
	store := &countingStore{MemStore: registry.NewMemStore()}
	m := NewMaintainer(registry.New(store))

	var mu sync.Mutex
	var slept []time.Duration
	s := NewInProcess(m, h, WithSleeper(func(d time.Duration) {
		mu.Lock()
		slept = append(slept, d)
		n := len(slept)
		mu.Unlock()
		if n == 1 {
			c := h.Get()
			c.Process.HealthCheckInterval = 3
			h.Set(c)
		}
		time.Sleep(5 * time.Millisecond)
	}))

	require.NoError(t, s.Start(context.Background()))
	err := s.Start(context.Background())
	assert.True(t, errors.Is(err, errs.ErrAlreadyRunning))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(slept) >= 2
	}, 2*time.Second, 5*time.Millisecond)

	st, _ := s.Status()
	assert.True(t, st.Running)
	require.NoError(t, s.Stop(context.Background()))
	st, _ = s.Status()
	assert.False(t, st.Running)

	mu.Lock()
	assert.Equal(t, 7*time.Second, slept[0])
	assert.Equal(t, 3*time.Second, slept[1])
	mu.Unlock()
	assert.GreaterOrEqual(t, store.n.Load(), int32(4))

	err = s.Stop(context.Background())
	assert.True(t, errors.Is(err, errs.ErrNotRunning))
}

func TestInProcessStopWaitsForTopOfIteration(t *testing.T) {
	l, cfg := testConfig(t)
	release := make(chan struct{})
	entered := make(chan struct{}, 1)
	s := NewInProcess(NewMaintainer(registry.New(registry.NewMemStore())), config.NewHandle(l, cfg),
		WithSleeper(func(time.Duration) {
			select {
			case entered <- struct{}{}:
			default:
			}
			<-release
		}))
	require.NoError(t, s.Start(context.Background()))
	<-entered

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := s.Stop(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded, "stop must not interrupt a pending sleep")

	close(release)
}

func TestInProcessRestartAfterStopTimeoutKeepsOneLoop(t *testing.T) {
	l, cfg := testConfig(t)
	release := make(chan struct{})
	entered := make(chan struct{}, 1)
	var active, peak, calls atomic.Int32
	s := NewInProcess(NewMaintainer(registry.New(registry.NewMemStore())), config.NewHandle(l, cfg),
		WithSleeper(func(time.Duration) {
			n := active.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			calls.Add(1)
			select {
			case entered <- struct{}{}:
			default:
			}
			<-release
			time.Sleep(2 * time.Millisecond)
			active.Add(-1)
		}))
	require.NoError(t, s.Start(context.Background()))
	<-entered

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, s.Stop(ctx), context.DeadlineExceeded)
	st, _ := s.Status()
	assert.False(t, st.Running)

	// the first run is still parked in its sleep
	ctx2, cancel2 := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel2()
	assert.ErrorIs(t, s.Start(ctx2), context.DeadlineExceeded)

	close(release)
	require.NoError(t, s.Start(context.Background()))
	require.Eventually(t, func() bool { return calls.Load() >= 5 }, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, s.Stop(context.Background()))

	assert.Equal(t, int32(1), peak.Load(), "loops must never overlap")
}

func TestDetachedStartStopStatus(t *testing.T) {
	requireUnix(t)
	l, _ := testConfig(t)
	d := NewDetached(l,
		WithPauses(100*time.Millisecond, 0),
		WithCommand(func() (*exec.Cmd, error) {
			return exec.Command("/bin/sh", "-c", "echo loop-line; sleep 30"), nil
		}),
	)
	ctx := context.Background()

	require.NoError(t, d.Start(ctx))
	st, err := d.Status()
	require.NoError(t, err)
	require.True(t, st.Running)
	t.Cleanup(func() { _ = process.Kill(st.PID) })
	assert.FileExists(t, l.DaemonPIDFile())

	err = d.Start(ctx)
	assert.True(t, errors.Is(err, errs.ErrAlreadyRunning))

	require.Eventually(t, func() bool {
		st, _ := d.Status()
		return len(st.Recent) == 1 && st.Recent[0] == "loop-line"
	}, 2*time.Second, 20*time.Millisecond)

	require.NoError(t, d.Stop(ctx))
	assert.NoFileExists(t, l.DaemonPIDFile())
	assert.Eventually(t, func() bool { return !process.Alive(st.PID) }, 2*time.Second, 20*time.Millisecond)

	err = d.Stop(ctx)
	assert.True(t, errors.Is(err, errs.ErrNotRunning))
}

func TestDetachedStartDetectsImmediateExit(t *testing.T) {
	requireUnix(t)
	l, _ := testConfig(t)
	d := NewDetached(l,
		WithPauses(300*time.Millisecond, 0),
		WithCommand(func() (*exec.Cmd, error) { return exec.Command("/bin/sh", "-c", "exit 2"), nil }),
	)
	err := d.Start(context.Background())
	assert.True(t, errors.Is(err, errs.ErrSpawnFailed))
	assert.NoFileExists(t, l.DaemonPIDFile())
}

func TestDetachedStopIsFailOpen(t *testing.T) {
	l, _ := testConfig(t)
	require.NoError(t, registry.NewFileStore(l.DataDir()).Write(config.ReservedDaemonID, os.Getpid()))
	boom := errors.New("denied")
	d := NewDetached(l, WithKill(func(int) error { return boom }))

	err := d.Stop(context.Background())
	assert.True(t, errors.Is(err, errs.ErrSignalFailed))
	assert.NoFileExists(t, l.DaemonPIDFile())
}

func TestRunRecordsOwnPidAndCleansUp(t *testing.T) {
	l, cfg := testConfig(t)
	require.NoError(t, config.Save(l, cfg))
	h := config.NewHandle(l, cfg)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- Run(ctx, h, NewMaintainer(registry.New(registry.NewMemStore())), nil) }()

	require.Eventually(t, func() bool {
		pid, ok, _ := registry.NewFileStore(l.DataDir()).Read(config.ReservedDaemonID)
		return ok && pid == os.Getpid()
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.NoFileExists(t, l.DaemonPIDFile())
}
