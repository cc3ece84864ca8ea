package logrotate

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loykin/jarmgr/internal/config"
)

func newEngine(t *testing.T, mutate func(*config.LogConfig), opts ...Option) *Engine {
	t.Helper()
	cfg := config.LogConfig{
		LogDir:         t.TempDir(),
		RetentionDays:  15,
		MaxFileSizeMB:  1,
		EnableRotation: true,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	return New(cfg, opts...)
}

func writeSized(t *testing.T, path string, size int64) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, f.Truncate(size))
	require.NoError(t, f.Close())
}

func TestShouldRotateTruncatingBoundary(t *testing.T) {
	e := newEngine(t, func(c *config.LogConfig) { c.MaxFileSizeMB = 2 })
	p := e.LogPath("app")

	writeSized(t, p, 2*1024*1024-1)
	assert.False(t, e.ShouldRotate(p), "one byte under the threshold must not rotate")

	writeSized(t, p, 2*1024*1024)
	assert.True(t, e.ShouldRotate(p), "exactly the threshold must rotate")

	writeSized(t, p, 3*1024*1024-1)
	assert.True(t, e.ShouldRotate(p))
}

func TestShouldRotateDisabledOrMissing(t *testing.T) {
	e := newEngine(t, func(c *config.LogConfig) { c.EnableRotation = false })
	p := e.LogPath("app")
	writeSized(t, p, 5*1024*1024)
	assert.False(t, e.ShouldRotate(p))

	e2 := newEngine(t, nil)
	assert.False(t, e2.ShouldRotate(e2.LogPath("missing")))
}

func TestRotateKeepsSingleGeneration(t *testing.T) {
	e := newEngine(t, nil)
	p := e.LogPath("app")

	require.NoError(t, os.WriteFile(p, []byte("first"), 0o644))
	require.NoError(t, e.Rotate("app"))
	assert.NoFileExists(t, p)
	b, err := os.ReadFile(p + ".1")
	require.NoError(t, err)
	assert.Equal(t, "first", string(b))

	require.NoError(t, os.WriteFile(p, []byte("second"), 0o644))
	require.NoError(t, e.Rotate("app"))
	b, err = os.ReadFile(p + ".1")
	require.NoError(t, err)
	assert.Equal(t, "second", string(b), "previous .1 is overwritten")
	assert.NoFileExists(t, p+".2")
}

func TestRotateMissingIsNoop(t *testing.T) {
	e := newEngine(t, nil)
	assert.NoError(t, e.Rotate("absent"))
}

func TestRotateIfNeeded(t *testing.T) {
	e := newEngine(t, nil)
	p := e.LogPath("app")
	writeSized(t, p, 10)
	rotated, err := e.RotateIfNeeded("app")
	require.NoError(t, err)
	assert.False(t, rotated)

	writeSized(t, p, 1024*1024)
	rotated, err = e.RotateIfNeeded("app")
	require.NoError(t, err)
	assert.True(t, rotated)
	assert.FileExists(t, p+".1")
}

func TestCleanupOldLogsRetentionBoundary(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	e := newEngine(t, func(c *config.LogConfig) { c.RetentionDays = 3 }, WithClock(func() time.Time { return now }))
	window := 3 * 24 * time.Hour

	expired := filepath.Join(e.Dir(), "old.log")
	kept := filepath.Join(e.Dir(), "recent.log")
	rotated := filepath.Join(e.Dir(), "old.log.1")
	other := filepath.Join(e.Dir(), "notes.txt")
	for _, p := range []string{expired, kept, rotated, other} {
		require.NoError(t, os.WriteFile(p, []byte("x"), 0o644))
	}
	require.NoError(t, os.Chtimes(expired, now, now.Add(-window-time.Second)))
	require.NoError(t, os.Chtimes(kept, now, now.Add(-window+time.Second)))
	require.NoError(t, os.Chtimes(rotated, now, now.Add(-30*24*time.Hour)))
	require.NoError(t, os.Chtimes(other, now, now.Add(-30*24*time.Hour)))

	n, err := e.CleanupOldLogs()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.NoFileExists(t, expired)
	assert.FileExists(t, kept)
	assert.FileExists(t, rotated, "only the managed extension is considered")
	assert.FileExists(t, other)
}

func TestCleanupHugeRetentionKeepsFreshLogs(t *testing.T) {
	e := newEngine(t, func(c *config.LogConfig) { c.RetentionDays = 200000 })
	fresh := filepath.Join(e.Dir(), "api.log")
	require.NoError(t, os.WriteFile(fresh, []byte("x"), 0o644))
	old := filepath.Join(e.Dir(), "batch.log")
	require.NoError(t, os.WriteFile(old, []byte("x"), 0o644))
	ts := time.Now().AddDate(-10, 0, 0)
	require.NoError(t, os.Chtimes(old, ts, ts))

	n, err := e.CleanupOldLogs()
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.FileExists(t, fresh)
	assert.FileExists(t, old)
}

func TestCleanupZeroRetentionNeverDeletes(t *testing.T) {
	e := newEngine(t, func(c *config.LogConfig) { c.RetentionDays = 0 })
	p := filepath.Join(e.Dir(), "ancient.log")
	require.NoError(t, os.WriteFile(p, []byte("x"), 0o644))
	old := time.Now().Add(-365 * 24 * time.Hour)
	require.NoError(t, os.Chtimes(p, old, old))

	n, err := e.CleanupOldLogs()
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.FileExists(t, p)
}

func TestCleanupMissingDir(t *testing.T) {
	e := New(config.LogConfig{LogDir: filepath.Join(t.TempDir(), "nope"), RetentionDays: 1})
	n, err := e.CleanupOldLogs()
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestListAndClean(t *testing.T) {
	e := newEngine(t, nil)
	require.NoError(t, os.WriteFile(e.LogPath("b"), []byte("bb"), 0o644))
	require.NoError(t, os.WriteFile(e.LogPath("a"), []byte("a"), 0o644))
	require.NoError(t, os.WriteFile(e.LogPath("a")+".1", []byte("r"), 0o644))

	files, err := e.List()
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, "a.log", files[0].Name)
	assert.Equal(t, int64(2), files[1].Size)

	n, err := e.Clean()
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.FileExists(t, e.LogPath("a")+".1")
}

func TestTail(t *testing.T) {
	e := newEngine(t, nil)
	var b strings.Builder
	for i := 0; i < 5000; i++ {
		b.WriteString("line ")
		b.WriteString(strings.Repeat("x", i%7))
		b.WriteString("\n")
	}
	b.WriteString("last\n")
	require.NoError(t, os.WriteFile(e.LogPath("app"), []byte(b.String()), 0o644))

	lines, err := e.Tail("app", 3)
	require.NoError(t, err)
	require.Len(t, lines, 3)
	assert.Equal(t, "last", lines[2])
	assert.True(t, strings.HasPrefix(lines[0], "line "))
}

func TestTailShortAndEmpty(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "d.log")
	require.NoError(t, os.WriteFile(p, []byte("one\r\ntwo"), 0o644))
	lines, err := TailFile(p, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"one", "two"}, lines)

	require.NoError(t, os.WriteFile(p, nil, 0o644))
	lines, err = TailFile(p, 10)
	require.NoError(t, err)
	assert.Empty(t, lines)

	_, err = TailFile(filepath.Join(dir, "missing.log"), 1)
	assert.Error(t, err)
}
