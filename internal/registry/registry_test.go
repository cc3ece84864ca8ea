package registry

import (
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAlive reports liveness from a fixed set of pids.
type fakeAlive map[int]bool

func (f fakeAlive) probe(pid int) bool { return f[pid] }

func TestGetReturnsLivePid(t *testing.T) {
	s := NewMemStore()
	r := New(s, WithLiveness(fakeAlive{100: true}.probe))
	require.NoError(t, r.Save("app", 100))

	pid, ok := r.Get("app")
	assert.True(t, ok)
	assert.Equal(t, 100, pid)
	assert.True(t, r.Running("app"))
}

func TestGetEvictsStaleEntry(t *testing.T) {
	s := NewMemStore()
	var evicted []Entry
	r := New(s,
		WithLiveness(fakeAlive{}.probe),
		WithEvictHook(func(e Entry) { evicted = append(evicted, e) }),
	)
	require.NoError(t, r.Save("app", 4242))

	_, ok := r.Get("app")
	assert.False(t, ok)
	_, present, _ := s.Read("app")
	assert.False(t, present, "stale entry must be evicted on read")
	assert.Equal(t, []Entry{{ID: "app", PID: 4242}}, evicted)
}

func TestGetMissing(t *testing.T) {
	r := New(NewMemStore(), WithLiveness(fakeAlive{}.probe))
	_, ok := r.Get("nope")
	assert.False(t, ok)
}

func TestSaveOverwritesAndRemoveIsIdempotent(t *testing.T) {
	r := New(NewMemStore(), WithLiveness(fakeAlive{1: true, 2: true}.probe))
	require.NoError(t, r.Save("app", 1))
	require.NoError(t, r.Save("app", 2))
	pid, _ := r.Get("app")
	assert.Equal(t, 2, pid)

	require.NoError(t, r.Remove("app"))
	require.NoError(t, r.Remove("app"))
	assert.False(t, r.Running("app"))
}

func TestListAllReturnsOnlyLiveAndEvictsRest(t *testing.T) {
	s := NewMemStore()
	r := New(s, WithLiveness(fakeAlive{10: true, 30: true}.probe))
	require.NoError(t, s.Write("a", 10))
	require.NoError(t, s.Write("b", 20))
	require.NoError(t, s.Write("c", 30))

	live, err := r.ListAll()
	require.NoError(t, err)
	assert.Equal(t, []Entry{{"a", 10}, {"c", 30}}, live)

	ids, _ := s.IDs()
	assert.Equal(t, []string{"a", "c"}, ids)
}

func TestSweepCountsEvictions(t *testing.T) {
	s := NewMemStore()
	r := New(s, WithLiveness(fakeAlive{10: true}.probe))
	_ = s.Write("a", 10)
	_ = s.Write("b", 20)
	_ = s.Write("c", 30)

	n, err := r.Sweep()
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestFileStoreLayout(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "data")
	s := NewFileStore(dir)
	require.NoError(t, s.Write("app", 1234))

	b, err := os.ReadFile(filepath.Join(dir, "app.pid"))
	require.NoError(t, err)
	assert.Equal(t, "1234", string(b))

	pid, ok, err := s.Read("app")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1234, pid)

	// the detached daemon's own pid file shares the directory
	require.NoError(t, os.WriteFile(filepath.Join(dir, "daemon.pid"), []byte("99"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o600))
	ids, err := s.IDs()
	require.NoError(t, err)
	assert.Equal(t, []string{"app"}, ids)

	require.NoError(t, s.Delete("app"))
	require.NoError(t, s.Delete("app"))
	_, ok, err = s.Read("app")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFileStoreMissingDir(t *testing.T) {
	s := NewFileStore(filepath.Join(t.TempDir(), "absent"))
	ids, err := s.IDs()
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestCorruptEntryIsEvicted(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.pid"), []byte("not-a-pid"), 0o600))
	s := NewFileStore(dir)
	r := New(s, WithLiveness(func(int) bool { return true }))

	_, ok := r.Get("bad")
	assert.False(t, ok)
	assert.NoFileExists(t, filepath.Join(dir, "bad.pid"))
}

// A fabricated entry pointing at a pid known to be free converges to
// "not running" on the first read, with the real OS probe.
func TestEvictionConvergenceWithRealProbe(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses /bin/sh")
	}
	cmd := exec.Command("/bin/sh", "-c", "exit 0")
	require.NoError(t, cmd.Run())
	freePID := cmd.Process.Pid

	dir := t.TempDir()
	r := New(NewFileStore(dir))
	require.NoError(t, r.Save("ghost", freePID))
	require.NoError(t, r.Save("self", os.Getpid()))

	_, ok := r.Get("ghost")
	assert.False(t, ok)
	assert.NoFileExists(t, filepath.Join(dir, "ghost.pid"))

	require.NoError(t, r.Save("ghost", freePID))
	live, err := r.ListAll()
	require.NoError(t, err)
	assert.Equal(t, []Entry{{ID: "self", PID: os.Getpid()}}, live)
	assert.NoFileExists(t, filepath.Join(dir, "ghost.pid"))
}
