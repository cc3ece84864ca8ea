package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/viper"

	"github.com/loykin/jarmgr/internal/errs"
)

// EnvPrefix scopes environment overrides, e.g. JARMGR_LOG_RETENTION_DAYS=3.
const EnvPrefix = "JARMGR"

// GlobalConfig is the record stored in <root>/configs/global_config.toml.
type GlobalConfig struct {
	Log     LogConfig     `toml:"log" mapstructure:"log"`
	Process ProcessConfig `toml:"process" mapstructure:"process"`
	System  SystemConfig  `toml:"system" mapstructure:"system"`
}

type LogConfig struct {
	LogDir            string `toml:"log_dir" mapstructure:"log_dir" comment:"directory holding <id>.log files"`
	RetentionDays     uint32 `toml:"retention_days" mapstructure:"retention_days" comment:"delete *.log older than this many days, 0 keeps forever"`
	MaxFileSizeMB     uint64 `toml:"max_file_size_mb" mapstructure:"max_file_size_mb" comment:"rotate a log to <id>.log.1 once it reaches this size"`
	EnableRotation    bool   `toml:"enable_rotation" mapstructure:"enable_rotation"`
	TimestampFormat   string `toml:"timestamp_format" mapstructure:"timestamp_format" comment:"strftime layout used in daemon.log"`
	EnableCompression bool   `toml:"enable_compression" mapstructure:"enable_compression" comment:"gzip rotated daemon.log backups"`
}

type ProcessConfig struct {
	JavaCommand         string   `toml:"java_command" mapstructure:"java_command"`
	UnitDir             string   `toml:"unit_dir" mapstructure:"unit_dir" comment:"directory scanned for <id>.jar units"`
	DefaultJavaArgs     []string `toml:"default_java_args" mapstructure:"default_java_args"`
	HealthCheckInterval uint64   `toml:"health_check_interval" mapstructure:"health_check_interval" comment:"daemon maintenance interval in seconds"`
	StartupTimeout      uint64   `toml:"startup_timeout" mapstructure:"startup_timeout" comment:"seconds"`
	ShutdownTimeout     uint64   `toml:"shutdown_timeout" mapstructure:"shutdown_timeout" comment:"seconds"`
}

type SystemConfig struct {
	EnableColor             bool   `toml:"enable_color" mapstructure:"enable_color"`
	Verbose                 bool   `toml:"verbose" mapstructure:"verbose"`
	AutoCleanupPID          bool   `toml:"auto_cleanup_pid" mapstructure:"auto_cleanup_pid"`
	MaxConcurrentOperations uint32 `toml:"max_concurrent_operations" mapstructure:"max_concurrent_operations"`
	HistoryDSN              string `toml:"history_dsn" mapstructure:"history_dsn" comment:"lifecycle history sink; empty uses <root>/data/history.db, \"off\" disables"`
	StatusListen            string `toml:"status_listen" mapstructure:"status_listen" comment:"address of the daemon status endpoint, empty disables"`
	Metrics                 bool   `toml:"metrics" mapstructure:"metrics"`
}

// Default returns the documented defaults for a given layout.
func Default(l Layout) GlobalConfig {
	return GlobalConfig{
		Log: LogConfig{
			LogDir:          l.LogDir(),
			RetentionDays:   15,
			MaxFileSizeMB:   10,
			EnableRotation:  true,
			TimestampFormat: "%Y-%m-%d %H:%M:%S",
		},
		Process: ProcessConfig{
			JavaCommand:         "java",
			UnitDir:             ".",
			DefaultJavaArgs:     []string{"-Xmx512m"},
			HealthCheckInterval: 30,
			StartupTimeout:      60,
			ShutdownTimeout:     30,
		},
		System: SystemConfig{
			EnableColor:             true,
			AutoCleanupPID:          true,
			MaxConcurrentOperations: 5,
			Metrics:                 true,
		},
	}
}

func (c ProcessConfig) Interval() time.Duration {
	if c.HealthCheckInterval == 0 {
		return time.Second
	}
	return time.Duration(c.HealthCheckInterval) * time.Second
}

// Load reads the global configuration. A missing file is created with
// defaults. A malformed file yields the defaults together with an error
// wrapping errs.ErrConfigParse; callers are expected to warn and carry on.
func Load(l Layout) (GlobalConfig, error) {
	def := Default(l)
	path := l.GlobalConfigFile()

	v := newViper(def)
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		if err := Save(l, def); err != nil {
			return def, err
		}
	} else {
		v.SetConfigFile(path)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			return def, errs.New(errs.ErrConfigParse, "load config", path, err)
		}
	}
	var cfg GlobalConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return def, errs.New(errs.ErrConfigParse, "load config", path, err)
	}
	if cfg.Log.LogDir == "" {
		cfg.Log.LogDir = def.Log.LogDir
	}
	return cfg, nil
}

func newViper(def GlobalConfig) *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("log.log_dir", def.Log.LogDir)
	v.SetDefault("log.retention_days", def.Log.RetentionDays)
	v.SetDefault("log.max_file_size_mb", def.Log.MaxFileSizeMB)
	v.SetDefault("log.enable_rotation", def.Log.EnableRotation)
	v.SetDefault("log.timestamp_format", def.Log.TimestampFormat)
	v.SetDefault("log.enable_compression", def.Log.EnableCompression)

	v.SetDefault("process.java_command", def.Process.JavaCommand)
	v.SetDefault("process.unit_dir", def.Process.UnitDir)
	v.SetDefault("process.default_java_args", def.Process.DefaultJavaArgs)
	v.SetDefault("process.health_check_interval", def.Process.HealthCheckInterval)
	v.SetDefault("process.startup_timeout", def.Process.StartupTimeout)
	v.SetDefault("process.shutdown_timeout", def.Process.ShutdownTimeout)

	v.SetDefault("system.enable_color", def.System.EnableColor)
	v.SetDefault("system.verbose", def.System.Verbose)
	v.SetDefault("system.auto_cleanup_pid", def.System.AutoCleanupPID)
	v.SetDefault("system.max_concurrent_operations", def.System.MaxConcurrentOperations)
	v.SetDefault("system.history_dsn", def.System.HistoryDSN)
	v.SetDefault("system.status_listen", def.System.StatusListen)
	v.SetDefault("system.metrics", def.System.Metrics)
	return v
}

const fileHeader = "# jarmgr global configuration\n# Edit and re-run any command; values are re-read on every invocation.\n\n"

// Save writes cfg to the global configuration file, creating the config
// directory when needed.
func Save(l Layout, cfg GlobalConfig) error {
	path := l.GlobalConfigFile()
	if err := os.MkdirAll(filepath.Dir(path), dirPerm); err != nil {
		return errs.IO("create config dir", filepath.Dir(path), err)
	}
	body, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := os.WriteFile(path, append([]byte(fileHeader), body...), 0o600); err != nil {
		return errs.IO("write config", path, err)
	}
	return nil
}

// GoTimeLayout converts the strftime subset used by timestamp_format into a
// Go reference layout. Unknown directives are copied through verbatim.
func GoTimeLayout(strftime string) string {
	if strftime == "" {
		return time.DateTime
	}
	r := strings.NewReplacer(
		"%Y", "2006", "%m", "01", "%d", "02",
		"%H", "15", "%M", "04", "%S", "05",
		"%y", "06", "%b", "Jan", "%a", "Mon",
		"%z", "-0700", "%Z", "MST", "%%", "%",
	)
	return r.Replace(strftime)
}
