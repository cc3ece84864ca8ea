package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/loykin/jarmgr/internal/errs"
)

const argsExt = ".config"

// ArgStore persists the free-form start arguments of each identifier as a
// single space-joined line in <dir>/<id>.config.
type ArgStore struct {
	Dir string
}

func NewArgStore(l Layout) ArgStore { return ArgStore{Dir: l.ConfigDir()} }

func (s ArgStore) path(id string) string { return filepath.Join(s.Dir, id+argsExt) }

// Save overwrites the saved arguments for id.
func (s ArgStore) Save(id string, args []string) error {
	if err := ValidateID(id); err != nil {
		return err
	}
	if err := os.MkdirAll(s.Dir, dirPerm); err != nil {
		return errs.IO("create config dir", s.Dir, err)
	}
	p := s.path(id)
	if err := os.WriteFile(p, []byte(strings.Join(args, " ")), 0o600); err != nil {
		return errs.IO("save args", p, err)
	}
	return nil
}

// Load returns the saved arguments for id. ok is false when nothing was saved.
func (s ArgStore) Load(id string) (args []string, ok bool, err error) {
	// #nosec G304 -- path is built from a validated identifier
	b, err := os.ReadFile(s.path(id))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, errs.IO("read args", s.path(id), err)
	}
	return strings.Fields(string(b)), true, nil
}

// Delete removes the saved arguments. Deleting a missing entry reports
// fs.ErrNotExist so callers can tell the user nothing was there.
func (s ArgStore) Delete(id string) error {
	if err := os.Remove(s.path(id)); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return err
		}
		return errs.IO("delete args", s.path(id), err)
	}
	return nil
}

// Saved is one entry returned by List.
type Saved struct {
	ID   string
	Args string
}

// List returns every saved entry sorted by identifier. The global
// configuration file sharing the directory is skipped.
func (s ArgStore) List() ([]Saved, error) {
	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, errs.IO("list args", s.Dir, err)
	}
	var out []Saved
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, argsExt) {
			continue
		}
		id := strings.TrimSuffix(name, argsExt)
		args, _, err := s.Load(id)
		if err != nil {
			continue
		}
		out = append(out, Saved{ID: id, Args: strings.Join(args, " ")})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
