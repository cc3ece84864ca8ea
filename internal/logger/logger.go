package logger

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"

	lj "gopkg.in/natefinch/lumberjack.v2"

	"github.com/loykin/jarmgr/internal/config"
)

// Daemon log rotation defaults used when the global config leaves them unset.
const (
	DefaultMaxSizeMB  = 10
	DefaultMaxBackups = 3
	DefaultMaxAgeDays = 7
)

// Options selects how a logger renders records.
type Options struct {
	Color      bool
	Verbose    bool
	TimeLayout string // Go reference layout; empty hides the time attribute
}

// ConsoleOptions derives console options from the global config. The
// console omits timestamps; the daemon log carries them.
func ConsoleOptions(cfg config.GlobalConfig) Options {
	return Options{Color: cfg.System.EnableColor, Verbose: cfg.System.Verbose}
}

// New builds a slog.Logger writing to w.
func New(w io.Writer, o Options) *slog.Logger {
	level := slog.LevelInfo
	if o.Verbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level, ReplaceAttr: timeFormatter(o.TimeLayout)}
	if o.Color {
		return slog.New(NewColorTextHandler(w, opts, o.TimeLayout != ""))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// Console is the logger used by interactive commands.
func Console(cfg config.GlobalConfig) *slog.Logger {
	return New(os.Stderr, ConsoleOptions(cfg))
}

// DaemonWriter returns the rotating writer behind <root>/logs/daemon.log.
func DaemonWriter(l config.Layout, cfg config.GlobalConfig) io.WriteCloser {
	path := l.DaemonLogFile()
	_ = os.MkdirAll(filepath.Dir(path), 0o750)
	return &lj.Logger{
		Filename:   path,
		MaxSize:    valOr(int(cfg.Log.MaxFileSizeMB), DefaultMaxSizeMB),
		MaxBackups: DefaultMaxBackups,
		MaxAge:     valOr(int(cfg.Log.RetentionDays), DefaultMaxAgeDays),
		Compress:   cfg.Log.EnableCompression,
	}
}

// Daemon builds the background scheduler logger. Records are plain text
// stamped with the configured timestamp_format.
func Daemon(w io.Writer, cfg config.GlobalConfig) *slog.Logger {
	return New(w, Options{
		Verbose:    cfg.System.Verbose,
		TimeLayout: config.GoTimeLayout(cfg.Log.TimestampFormat),
	})
}

func timeFormatter(layout string) func([]string, slog.Attr) slog.Attr {
	return func(groups []string, a slog.Attr) slog.Attr {
		if len(groups) != 0 || a.Key != slog.TimeKey {
			return a
		}
		if layout == "" {
			return slog.Attr{}
		}
		return slog.String(slog.TimeKey, a.Value.Time().Format(layout))
	}
}

func valOr(v int, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
