package jarmgr

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loykin/jarmgr/internal/config"
	"github.com/loykin/jarmgr/internal/history"
	"github.com/loykin/jarmgr/internal/orchestrator"
	"github.com/loykin/jarmgr/internal/process"
)

func requireUnix(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("requires Unix-like environment")
	}
}

var sleeper = process.LauncherFunc(func(id string, _ []string) (*exec.Cmd, error) {
	if id == "bad" {
		return exec.Command("/bin/sh", "-c", "exit 2"), nil
	}
	return exec.Command("/bin/sh", "-c", "sleep 30"), nil
})

func openTest(t *testing.T) *Manager {
	t.Helper()
	m, err := Open(Options{Root: t.TempDir(), Launcher: sleeper})
	require.NoError(t, err)
	t.Cleanup(func() {
		entries, _ := m.List()
		for _, e := range entries {
			_ = process.Kill(e.PID)
		}
		_ = m.Close()
	})
	return m
}

func TestManagerStartStopByJarName(t *testing.T) {
	requireUnix(t)
	m := openTest(t)
	ctx := context.Background()

	res, err := m.Start(ctx, "api.jar", nil)
	require.NoError(t, err)
	assert.Equal(t, "api", res.ID)

	st := m.Status("api.jar")
	assert.True(t, st.Running)
	assert.Equal(t, res.PID, st.PID)

	_, err = m.Stop(ctx, "api")
	require.NoError(t, err)
	assert.False(t, m.Status("api").Running)
}

func TestManagerRejectsReservedAndInvalidNames(t *testing.T) {
	m := openTest(t)
	_, err := m.Start(context.Background(), "daemon", nil)
	assert.ErrorContains(t, err, "reserved")
	_, err = m.Start(context.Background(), "../escape.jar", nil)
	assert.Error(t, err)
}

func TestManagerUnits(t *testing.T) {
	root := t.TempDir()
	units := filepath.Join(root, "jars")
	require.NoError(t, os.MkdirAll(units, 0o750))
	for _, n := range []string{"b.jar", "a.JAR", "notes.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(units, n), []byte("x"), 0o600))
	}
	l := config.NewLayout(root)
	require.NoError(t, l.EnsureDirs())
	cfg := config.Default(l)
	cfg.Process.UnitDir = units
	require.NoError(t, config.Save(l, cfg))

	m, err := Open(Options{Root: root, Launcher: sleeper})
	require.NoError(t, err)
	defer func() { _ = m.Close() }()

	got, err := m.Units()
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].ID)
	assert.Equal(t, "b", got[1].ID)
	assert.Equal(t, int64(1), got[1].Size)
}

func TestManagerSavedArgs(t *testing.T) {
	m := openTest(t)
	require.NoError(t, m.SaveArgs("api.jar", []string{"--port", "80"}))
	args, ok, err := m.Args("api")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []string{"--port", "80"}, args)

	saved, err := m.ListArgs()
	require.NoError(t, err)
	assert.Equal(t, []config.Saved{{ID: "api", Args: "--port 80"}}, saved)

	require.NoError(t, m.DeleteArgs("api"))
	_, ok, _ = m.Args("api")
	assert.False(t, ok)
}

func TestManagerBatchAndHistory(t *testing.T) {
	requireUnix(t)
	m := openTest(t)
	ctx := context.Background()

	var seen []string
	sum, err := m.Batch(ctx, orchestrator.OpStart, []string{"api.jar", "bad"}, func(_ Op, _, _ int, o Outcome) {
		seen = append(seen, o.ID)
	})
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Succeeded)
	assert.Equal(t, 1, sum.Failed)
	assert.Equal(t, []string{"api", "bad"}, seen)

	events, err := m.History(ctx, "", 10)
	require.NoError(t, err)
	types := map[history.EventType]bool{}
	for _, e := range events {
		types[e.Type] = true
	}
	assert.True(t, types[history.EventStart])
	assert.True(t, types[history.EventSpawnFailed])

	only, err := m.History(ctx, "bad", 10)
	require.NoError(t, err)
	for _, e := range only {
		assert.Equal(t, "bad", e.ID)
	}
}

func TestManagerHistoryOff(t *testing.T) {
	root := t.TempDir()
	l := config.NewLayout(root)
	require.NoError(t, l.EnsureDirs())
	cfg := config.Default(l)
	cfg.System.HistoryDSN = HistoryOff
	require.NoError(t, config.Save(l, cfg))

	m, err := Open(Options{Root: root, Launcher: sleeper})
	require.NoError(t, err)
	defer func() { _ = m.Close() }()
	_, err = m.History(context.Background(), "", 5)
	assert.Error(t, err)
	_, statErr := os.Stat(l.HistoryDB())
	assert.True(t, os.IsNotExist(statErr))
}

func TestManagerRunNowDropsStaleEntries(t *testing.T) {
	m := openTest(t)
	// a pid that cannot be alive
	require.NoError(t, os.WriteFile(filepath.Join(m.Layout().DataDir(), "ghost.pid"), []byte("999999999"), 0o600))

	r := m.RunNow()
	assert.Equal(t, 0, r.Live)
	// the health check already evicted it, the sweep finds nothing left
	assert.Equal(t, 0, r.Evicted)
	_, err := os.Stat(filepath.Join(m.Layout().DataDir(), "ghost.pid"))
	assert.True(t, os.IsNotExist(err))
}

func TestManagerRunNowSeesExternalConfigEdits(t *testing.T) {
	m := openTest(t)
	old := filepath.Join(m.Layout().LogDir(), "api.log")
	require.NoError(t, os.WriteFile(old, []byte("x"), 0o644))
	ts := time.Now().AddDate(0, 0, -5)
	require.NoError(t, os.Chtimes(old, ts, ts))

	r := m.RunNow()
	assert.Zero(t, r.Deleted)
	assert.FileExists(t, old)

	// another process shortens retention
	cfg := m.Config()
	cfg.Log.RetentionDays = 1
	require.NoError(t, config.Save(m.Layout(), cfg))

	r = m.RunNow()
	assert.Equal(t, 1, r.Deleted)
	assert.NoFileExists(t, old)
}

func TestManagerConfigRoundTrip(t *testing.T) {
	m := openTest(t)
	cfg := m.Config()
	cfg.Log.RetentionDays = 3
	require.NoError(t, m.SaveConfig(cfg))
	assert.Equal(t, uint32(3), m.Config().Log.RetentionDays)

	require.NoError(t, m.ResetConfig())
	assert.Equal(t, uint32(15), m.Config().Log.RetentionDays)
}
