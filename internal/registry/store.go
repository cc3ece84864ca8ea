package registry

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/loykin/jarmgr/internal/errs"
)

// ErrCorrupt marks a stored entry whose content is not a process id.
var ErrCorrupt = errors.New("corrupt pid entry")

// Store persists raw identifier -> pid mappings. It performs no liveness
// checks; Registry layers those on top.
type Store interface {
	// Read returns ok=false when no entry exists for id.
	Read(id string) (pid int, ok bool, err error)
	// Write overwrites the entry for id.
	Write(id string, pid int) error
	// Delete removes the entry; a missing entry is not an error.
	Delete(id string) error
	// IDs lists every stored identifier.
	IDs() ([]string, error)
}

const pidExt = ".pid"

// reserved file names in the data directory that are not registry entries.
var reserved = map[string]bool{"daemon": true}

// FileStore keeps one <id>.pid file per identifier holding the decimal pid.
type FileStore struct {
	Dir string
}

func NewFileStore(dir string) FileStore { return FileStore{Dir: dir} }

func (s FileStore) path(id string) string { return filepath.Join(s.Dir, id+pidExt) }

func (s FileStore) Read(id string) (int, bool, error) {
	p := s.path(id)
	// #nosec G304 -- path built from the registry dir and identifier
	b, err := os.ReadFile(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, false, nil
		}
		return 0, false, errs.IO("read pid", p, err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(b)))
	if err != nil || pid <= 0 {
		return 0, true, fmt.Errorf("%s: %w", p, ErrCorrupt)
	}
	return pid, true, nil
}

func (s FileStore) Write(id string, pid int) error {
	if err := os.MkdirAll(s.Dir, 0o750); err != nil {
		return errs.IO("create pid dir", s.Dir, err)
	}
	p := s.path(id)
	if err := os.WriteFile(p, []byte(strconv.Itoa(pid)), 0o600); err != nil {
		return errs.IO("write pid", p, err)
	}
	return nil
}

func (s FileStore) Delete(id string) error {
	p := s.path(id)
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return errs.IO("remove pid", p, err)
	}
	return nil
}

func (s FileStore) IDs() ([]string, error) {
	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, errs.IO("list pids", s.Dir, err)
	}
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, pidExt) {
			continue
		}
		id := strings.TrimSuffix(name, pidExt)
		if reserved[id] {
			continue
		}
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// MemStore is an in-memory Store for tests and embedding.
type MemStore struct {
	mu sync.Mutex
	m  map[string]int
}

func NewMemStore() *MemStore { return &MemStore{m: make(map[string]int)} }

func (s *MemStore) Read(id string) (int, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pid, ok := s.m[id]
	return pid, ok, nil
}

func (s *MemStore) Write(id string, pid int) error {
	s.mu.Lock()
	s.m[id] = pid
	s.mu.Unlock()
	return nil
}

func (s *MemStore) Delete(id string) error {
	s.mu.Lock()
	delete(s.m, id)
	s.mu.Unlock()
	return nil
}

func (s *MemStore) IDs() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.m))
	for id := range s.m {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}
