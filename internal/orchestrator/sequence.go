package orchestrator

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/loykin/jarmgr/internal/config"
	"github.com/loykin/jarmgr/internal/errs"
	"github.com/loykin/jarmgr/internal/lifecycle"
)

const seqExt = ".seq"

// Pauses of sequence operations.
const (
	SequenceStartGap    = 2 * time.Second
	SequenceStopGap     = 1 * time.Second
	SequenceRestartWait = 3 * time.Second
)

// SequenceStore keeps <dir>/<name>.seq files, one identifier per line.
type SequenceStore struct {
	Dir string
	log *slog.Logger
}

func NewSequenceStore(l config.Layout, log *slog.Logger) SequenceStore {
	if log == nil {
		log = slog.Default()
	}
	return SequenceStore{Dir: l.SequenceDir(), log: log}
}

func (s SequenceStore) path(name string) string { return filepath.Join(s.Dir, name+seqExt) }

// Create writes a sequence, replacing an existing one. Empty lists are
// rejected.
func (s SequenceStore) Create(name string, ids []string) error {
	if err := config.ValidateID(name); err != nil {
		return err
	}
	clean := make([]string, 0, len(ids))
	for _, id := range ids {
		if id = strings.TrimSpace(id); id != "" {
			clean = append(clean, config.UnitID(id))
		}
	}
	if len(clean) == 0 {
		return errs.New(errs.ErrSequenceEmpty, "create sequence", name, nil)
	}
	if err := os.MkdirAll(s.Dir, 0o750); err != nil {
		return errs.IO("create sequence dir", s.Dir, err)
	}
	p := s.path(name)
	if err := os.WriteFile(p, []byte(strings.Join(clean, "\n")+"\n"), 0o600); err != nil {
		return errs.IO("write sequence", p, err)
	}
	return nil
}

// Load returns the identifiers of a sequence in file order. A sequence
// whose file holds no identifiers is reported as errs.ErrSequenceEmpty.
func (s SequenceStore) Load(name string) ([]string, error) {
	if err := config.ValidateID(name); err != nil {
		return nil, err
	}
	p := s.path(name)
	// #nosec G304 -- path built from the sequence dir and a validated name
	b, err := os.ReadFile(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, errs.New(errs.ErrSequenceNotFound, "load sequence", name, nil)
		}
		return nil, errs.IO("read sequence", p, err)
	}
	ids := parseLines(string(b))
	if len(ids) == 0 {
		s.log.Warn("sequence is empty", "name", name)
		return nil, errs.New(errs.ErrSequenceEmpty, "load sequence", name, nil)
	}
	return ids, nil
}

func parseLines(content string) []string {
	var ids []string
	for _, line := range strings.Split(content, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			ids = append(ids, line)
		}
	}
	return ids
}

// SequenceInfo is one entry of List.
type SequenceInfo struct {
	Name  string
	Count int
}

func (s SequenceStore) List() ([]SequenceInfo, error) {
	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, errs.IO("list sequences", s.Dir, err)
	}
	var out []SequenceInfo
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != seqExt {
			continue
		}
		// #nosec G304 -- entry of the sequence dir
		b, err := os.ReadFile(filepath.Join(s.Dir, e.Name()))
		if err != nil {
			continue
		}
		out = append(out, SequenceInfo{Name: strings.TrimSuffix(e.Name(), seqExt), Count: len(parseLines(string(b)))})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s SequenceStore) Delete(name string) error {
	if err := config.ValidateID(name); err != nil {
		return err
	}
	p := s.path(name)
	if err := os.Remove(p); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return errs.New(errs.ErrSequenceNotFound, "delete sequence", name, nil)
		}
		return errs.IO("delete sequence", p, err)
	}
	return nil
}

// Runner executes stored sequences. Start walks forward and Stop walks
// backward; both skip units already in the target state.
type Runner struct {
	lc     Lifecycle
	store  SequenceStore
	policy DecisionPolicy
	sleep  Sleeper
	log    *slog.Logger
	// OnOutcome, when set, is called after every unit.
	OnOutcome func(op Op, index, total int, o Outcome)
}

func NewRunner(lc Lifecycle, store SequenceStore, policy DecisionPolicy, sleep Sleeper, log *slog.Logger) *Runner {
	if policy == nil {
		policy = AbortOnFailure
	}
	if sleep == nil {
		sleep = lifecycle.Sleep
	}
	if log == nil {
		log = slog.Default()
	}
	return &Runner{lc: lc, store: store, policy: policy, sleep: sleep, log: log}
}

func (r *Runner) notify(op Op, i, n int, o Outcome) {
	if r.OnOutcome != nil {
		r.OnOutcome(op, i+1, n, o)
	}
}

// Start launches the units of name in order with their saved arguments.
// After a failure the decision policy chooses between going on and
// aborting the rest.
func (r *Runner) Start(ctx context.Context, name string) (Summary, error) {
	ids, err := r.store.Load(name)
	if err != nil {
		return Summary{Op: OpStart}, err
	}
	sum := Summary{Op: OpStart}
	for i, id := range ids {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		if r.lc.Running(id) {
			o := Outcome{ID: id, Skipped: true}
			sum.add(o)
			r.notify(OpStart, i, len(ids), o)
			continue
		}
		// not running, so Quick starts with the saved args
		res, err := r.lc.Quick(ctx, id)
		o := Outcome{ID: id, Result: res, Err: err}
		sum.add(o)
		r.notify(OpStart, i, len(ids), o)
		if err != nil {
			if !r.policy.ContinueAfter(id, err) {
				r.log.Warn("sequence start aborted", "name", name, "at", id)
				sum.Aborted = true
				break
			}
			continue
		}
		if i < len(ids)-1 {
			if err := r.sleep(ctx, SequenceStartGap); err != nil {
				return sum, err
			}
		}
	}
	r.log.Info("sequence started", "name", name, "succeeded", sum.Succeeded, "failed", sum.Failed, "skipped", sum.Skipped)
	return sum, nil
}

// Stop stops the units of name in reverse order.
func (r *Runner) Stop(ctx context.Context, name string) (Summary, error) {
	ids, err := r.store.Load(name)
	if err != nil {
		return Summary{Op: OpStop}, err
	}
	sum := Summary{Op: OpStop}
	n := len(ids)
	for k := n - 1; k >= 0; k-- {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		id, step := ids[k], n-1-k
		if !r.lc.Running(id) {
			o := Outcome{ID: id, Skipped: true}
			sum.add(o)
			r.notify(OpStop, step, n, o)
			continue
		}
		res, err := r.lc.Stop(ctx, id)
		o := Outcome{ID: id, Result: res, Err: err}
		sum.add(o)
		r.notify(OpStop, step, n, o)
		if err != nil {
			r.log.Warn("sequence stop item failed", "name", name, "id", id, "error", err)
			continue
		}
		if k > 0 {
			if err := r.sleep(ctx, SequenceStopGap); err != nil {
				return sum, err
			}
		}
	}
	r.log.Info("sequence stopped", "name", name, "succeeded", sum.Succeeded, "failed", sum.Failed, "skipped", sum.Skipped)
	return sum, nil
}

// Restart stops, waits and starts name. Failures of the stop half are
// logged and do not prevent the start half.
func (r *Runner) Restart(ctx context.Context, name string) (Summary, error) {
	sum := Summary{Op: OpRestart}
	stopped, err := r.Stop(ctx, name)
	sum.merge(stopped)
	if err != nil {
		if ctx.Err() != nil {
			return sum, err
		}
		r.log.Warn("sequence restart: stop phase", "name", name, "error", err)
	}
	if err := r.sleep(ctx, SequenceRestartWait); err != nil {
		return sum, err
	}
	started, err := r.Start(ctx, name)
	sum.merge(started)
	return sum, err
}

// UnitState is one row of a sequence status.
type UnitState struct {
	ID      string
	Running bool
}

// Status reports, in sequence order, whether each unit is running.
func (r *Runner) Status(name string) ([]UnitState, error) {
	ids, err := r.store.Load(name)
	if err != nil {
		return nil, err
	}
	out := make([]UnitState, 0, len(ids))
	for _, id := range ids {
		out = append(out, UnitState{ID: id, Running: r.lc.Running(id)})
	}
	return out, nil
}
