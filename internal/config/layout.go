package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/loykin/jarmgr/internal/errs"
)

// DefaultRoot is the state directory used when neither --root nor
// JARMGR_ROOT is set.
const DefaultRoot = ".jarmgr"

// UnitSuffix is stripped from a managed unit's file name to derive its identifier.
const UnitSuffix = ".jar"

const dirPerm = 0o750

// Layout resolves every persisted artifact below a single root directory.
//
//	<root>/data/<id>.pid
//	<root>/data/daemon.pid
//	<root>/logs/daemon.log
//	<root>/configs/<id>.config
//	<root>/configs/global_config.toml
//	<root>/sequences/<name>.seq
type Layout struct {
	Root string
}

func NewLayout(root string) Layout {
	if strings.TrimSpace(root) == "" {
		root = DefaultRoot
	}
	return Layout{Root: filepath.Clean(root)}
}

func (l Layout) DataDir() string     { return filepath.Join(l.Root, "data") }
func (l Layout) LogDir() string      { return filepath.Join(l.Root, "logs") }
func (l Layout) ConfigDir() string   { return filepath.Join(l.Root, "configs") }
func (l Layout) SequenceDir() string { return filepath.Join(l.Root, "sequences") }

func (l Layout) GlobalConfigFile() string {
	return filepath.Join(l.ConfigDir(), "global_config.toml")
}

func (l Layout) DaemonPIDFile() string { return filepath.Join(l.DataDir(), ReservedDaemonID+".pid") }
func (l Layout) DaemonLogFile() string { return filepath.Join(l.LogDir(), "daemon.log") }
func (l Layout) HistoryDB() string     { return filepath.Join(l.DataDir(), "history.db") }

// EnsureDirs creates the root directory tree if it does not exist yet.
func (l Layout) EnsureDirs() error {
	for _, d := range []string{l.DataDir(), l.LogDir(), l.ConfigDir(), l.SequenceDir()} {
		if err := os.MkdirAll(d, dirPerm); err != nil {
			return errs.IO("create dir", d, err)
		}
	}
	return nil
}

// UnitID derives the identifier of a managed unit from its file name:
// "app.jar", "./apps/app.jar" and "app" all map to "app".
func UnitID(name string) string {
	base := filepath.Base(strings.TrimSpace(name))
	return strings.TrimSuffix(base, UnitSuffix)
}

// UnitFile returns the path of the unit file for id inside dir.
func UnitFile(dir, id string) string {
	return filepath.Join(dir, id+UnitSuffix)
}

// ReservedDaemonID names the detached daemon's own pid file in the data dir.
const ReservedDaemonID = "daemon"

// ValidateID rejects identifiers that would escape the state directories.
func ValidateID(id string) error {
	if id == "" || id == "." || id == ".." || strings.ContainsAny(id, `/\`) {
		return fmt.Errorf("invalid identifier %q", id)
	}
	if id == ReservedDaemonID {
		return fmt.Errorf("identifier %q is reserved", id)
	}
	return nil
}
