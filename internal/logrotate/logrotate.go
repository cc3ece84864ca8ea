// Package logrotate owns the managed processes' log files: the size-based
// single-generation rotation consulted before every spawn and by the
// daemon, and the age-based retention sweep.
package logrotate

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/loykin/jarmgr/internal/config"
	"github.com/loykin/jarmgr/internal/errs"
	"github.com/loykin/jarmgr/internal/metrics"
)

const (
	// LogExt is the extension of managed log files.
	LogExt = ".log"
	// RotatedSuffix is appended to a log on rotation; only one generation is kept.
	RotatedSuffix = ".1"

	mb = 1024 * 1024
)

// Engine applies a LogConfig to the log directory.
type Engine struct {
	cfg config.LogConfig
	now func() time.Time
	log *slog.Logger
}

type Option func(*Engine)

// WithClock overrides time.Now for retention decisions.
func WithClock(now func() time.Time) Option { return func(e *Engine) { e.now = now } }

func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

func New(cfg config.LogConfig, opts ...Option) *Engine {
	e := &Engine{cfg: cfg, now: time.Now, log: slog.Default()}
	for _, o := range opts {
		o(e)
	}
	return e
}

func (e *Engine) Dir() string { return e.cfg.LogDir }

// LogPath is the active log file of id.
func (e *Engine) LogPath(id string) string {
	return filepath.Join(e.cfg.LogDir, id+LogExt)
}

// ShouldRotate reports whether path has reached the size threshold. Size is
// compared in whole megabytes with truncating division, so a file one byte
// short of the next megabyte boundary does not qualify.
func (e *Engine) ShouldRotate(path string) bool {
	if !e.cfg.EnableRotation {
		return false
	}
	fi, err := os.Stat(path)
	if err != nil {
		return false
	}
	return uint64(fi.Size())/mb >= e.cfg.MaxFileSizeMB
}

// Rotate renames id's active log to <log>.1, replacing any previous
// rotated generation. A missing log is not an error. The next writer
// recreates the active file.
func (e *Engine) Rotate(id string) error {
	src := e.LogPath(id)
	if _, err := os.Stat(src); errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	dst := src + RotatedSuffix
	if err := os.Rename(src, dst); err != nil {
		return errs.IO("rotate log", src, err)
	}
	metrics.IncRotation(id)
	e.log.Info("log rotated", "id", id, "from", filepath.Base(src), "to", filepath.Base(dst))
	return nil
}

// RotateIfNeeded rotates id's log when ShouldRotate says so.
func (e *Engine) RotateIfNeeded(id string) (bool, error) {
	if !e.ShouldRotate(e.LogPath(id)) {
		return false, nil
	}
	if err := e.Rotate(id); err != nil {
		return false, err
	}
	return true, nil
}

// CleanupOldLogs deletes every *.log in the log directory last modified
// before now minus the retention window. A zero window never deletes.
// Individual delete failures are skipped; the count of removed files is
// returned.
func (e *Engine) CleanupOldLogs() (int, error) {
	if e.cfg.RetentionDays == 0 {
		return 0, nil
	}
	entries, err := os.ReadDir(e.cfg.LogDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, nil
		}
		return 0, errs.IO("scan log dir", e.cfg.LogDir, err)
	}
	cutoff := e.now().AddDate(0, 0, -int(e.cfg.RetentionDays))
	removed := 0
	for _, de := range entries {
		if de.IsDir() || filepath.Ext(de.Name()) != LogExt {
			continue
		}
		fi, err := de.Info()
		if err != nil || !fi.ModTime().Before(cutoff) {
			continue
		}
		p := filepath.Join(e.cfg.LogDir, de.Name())
		if err := os.Remove(p); err != nil {
			e.log.Debug("retention delete failed", "file", p, "error", err)
			continue
		}
		removed++
		e.log.Info("expired log removed", "file", de.Name())
	}
	metrics.AddRetentionDeletes(removed)
	return removed, nil
}

// File describes one entry returned by List.
type File struct {
	Name    string
	Size    int64
	ModTime time.Time
}

// List returns the managed *.log files sorted by name.
func (e *Engine) List() ([]File, error) {
	entries, err := os.ReadDir(e.cfg.LogDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, errs.IO("list logs", e.cfg.LogDir, err)
	}
	var out []File
	for _, de := range entries {
		if de.IsDir() || filepath.Ext(de.Name()) != LogExt {
			continue
		}
		fi, err := de.Info()
		if err != nil {
			continue
		}
		out = append(out, File{Name: de.Name(), Size: fi.Size(), ModTime: fi.ModTime()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Clean deletes every *.log in the log directory regardless of age.
func (e *Engine) Clean() (int, error) {
	files, err := e.List()
	if err != nil {
		return 0, err
	}
	n := 0
	for _, f := range files {
		if os.Remove(filepath.Join(e.cfg.LogDir, f.Name)) == nil {
			n++
		}
	}
	return n, nil
}

// Tail returns up to n trailing lines of id's active log.
func (e *Engine) Tail(id string, n int) ([]string, error) {
	return TailFile(e.LogPath(id), n)
}
