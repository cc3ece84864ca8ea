// Package registry maps managed-process identifiers to OS process ids and
// keeps that mapping honest: every read re-verifies liveness and silently
// evicts entries whose process is gone.
package registry

import (
	"errors"
	"log/slog"

	"github.com/loykin/jarmgr/internal/process"
)

// Entry is a confirmed-live registry record.
type Entry struct {
	ID  string
	PID int
}

// Registry wraps a Store with eviction-on-read. It is not transactional:
// concurrent callers may both observe and evict the same stale entry.
type Registry struct {
	store   Store
	alive   func(pid int) bool
	log     *slog.Logger
	onEvict func(Entry)
}

type Option func(*Registry)

// WithLiveness replaces the OS liveness probe.
func WithLiveness(fn func(pid int) bool) Option {
	return func(r *Registry) { r.alive = fn }
}

func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) {
		if l != nil {
			r.log = l
		}
	}
}

// WithEvictHook is called after a stale entry has been removed.
func WithEvictHook(fn func(Entry)) Option {
	return func(r *Registry) { r.onEvict = fn }
}

func New(store Store, opts ...Option) *Registry {
	r := &Registry{store: store, alive: process.Alive, log: slog.Default()}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Get returns the live pid recorded for id. A stale or corrupt entry is
// removed and reported as absent.
func (r *Registry) Get(id string) (int, bool) {
	pid, ok, err := r.store.Read(id)
	if err != nil {
		if errors.Is(err, ErrCorrupt) {
			r.evict(id, 0, "corrupt entry")
			return 0, false
		}
		r.log.Warn("read pid entry", "id", id, "error", err)
		return 0, false
	}
	if !ok {
		return 0, false
	}
	if r.alive(pid) {
		return pid, true
	}
	r.evict(id, pid, "process not found")
	return 0, false
}

// Running is shorthand for a Get that only cares about presence.
func (r *Registry) Running(id string) bool {
	_, ok := r.Get(id)
	return ok
}

// Save records pid for id, replacing any previous entry.
func (r *Registry) Save(id string, pid int) error {
	return r.store.Write(id, pid)
}

// Remove deletes the entry for id; removing a missing entry succeeds.
func (r *Registry) Remove(id string) error {
	return r.store.Delete(id)
}

// ListAll returns every confirmed-live entry, evicting the stale ones it
// encounters along the way.
func (r *Registry) ListAll() ([]Entry, error) {
	ids, err := r.store.IDs()
	if err != nil {
		return nil, err
	}
	out := make([]Entry, 0, len(ids))
	for _, id := range ids {
		if pid, ok := r.Get(id); ok {
			out = append(out, Entry{ID: id, PID: pid})
		}
	}
	return out, nil
}

// Sweep runs ListAll purely for its eviction side effect and returns how
// many entries were dropped.
func (r *Registry) Sweep() (int, error) {
	ids, err := r.store.IDs()
	if err != nil {
		return 0, err
	}
	evicted := 0
	for _, id := range ids {
		if _, ok := r.Get(id); !ok {
			evicted++
		}
	}
	return evicted, nil
}

func (r *Registry) evict(id string, pid int, reason string) {
	if err := r.store.Delete(id); err != nil {
		r.log.Warn("evict stale pid entry", "id", id, "pid", pid, "error", err)
		return
	}
	r.log.Debug("evicted stale pid entry", "id", id, "pid", pid, "reason", reason)
	if r.onEvict != nil {
		r.onEvict(Entry{ID: id, PID: pid})
	}
}
