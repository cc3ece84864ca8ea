package main

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"github.com/loykin/jarmgr"
	"github.com/loykin/jarmgr/internal/config"
)

// Config saves the start arguments of a unit, or prints them when none
// are given.
func (c *command) Config(f ConfigFlags) error {
	return c.with(func(m *jarmgr.Manager) error {
		if len(f.Args) == 0 {
			args, ok, err := m.Args(f.Name)
			if err != nil {
				return err
			}
			if !ok {
				c.printf("No saved args for %s\n", config.UnitID(f.Name))
				return nil
			}
			c.printf("%s\n", strings.Join(args, " "))
			return nil
		}
		if err := m.SaveArgs(f.Name, f.Args); err != nil {
			return err
		}
		c.printf("Saved args for %s: %s\n", config.UnitID(f.Name), strings.Join(f.Args, " "))
		return nil
	})
}

func (c *command) ConfigsList() error {
	return c.with(func(m *jarmgr.Manager) error {
		saved, err := m.ListArgs()
		if err != nil {
			return err
		}
		if len(saved) == 0 {
			c.printf("No saved args\n")
			return nil
		}
		for _, s := range saved {
			c.printf("%s: %s\n", s.ID, s.Args)
		}
		return nil
	})
}

func (c *command) ConfigsShow(f ConfigFlags) error {
	f.Args = nil
	return c.Config(f)
}

func (c *command) ConfigsDelete(f ConfigFlags) error {
	return c.with(func(m *jarmgr.Manager) error {
		if err := m.DeleteArgs(f.Name); err != nil {
			return err
		}
		c.printf("Deleted saved args for %s\n", config.UnitID(f.Name))
		return nil
	})
}

func (c *command) GlobalConfigShow() error {
	return c.with(func(m *jarmgr.Manager) error {
		b, err := toml.Marshal(m.Config())
		if err != nil {
			return err
		}
		c.printf("# %s\n%s", m.Layout().GlobalConfigFile(), b)
		return nil
	})
}

func (c *command) GlobalConfigPath() error {
	return c.with(func(m *jarmgr.Manager) error {
		c.printf("%s\n", m.Layout().GlobalConfigFile())
		return nil
	})
}

func (c *command) GlobalConfigReset() error {
	return c.with(func(m *jarmgr.Manager) error {
		if err := m.ResetConfig(); err != nil {
			return err
		}
		c.printf("Global configuration reset to defaults\n")
		return nil
	})
}

// GlobalConfigCleanLogs removes logs older than the retention period.
func (c *command) GlobalConfigCleanLogs() error {
	return c.with(func(m *jarmgr.Manager) error {
		days := m.Config().Log.RetentionDays
		if days == 0 {
			c.printf("Retention is disabled, nothing to clean\n")
			return nil
		}
		n, err := m.Logs().CleanupOldLogs()
		if err != nil {
			return err
		}
		c.printf("Removed %d log files older than %d days\n", n, days)
		return nil
	})
}

// update applies fn to the current configuration and persists it.
func (c *command) update(fn func(cfg *config.GlobalConfig) (string, error)) error {
	return c.with(func(m *jarmgr.Manager) error {
		cfg := m.Config()
		msg, err := fn(&cfg)
		if err != nil {
			return err
		}
		if err := m.SaveConfig(cfg); err != nil {
			return err
		}
		c.printf("%s\n", msg)
		return nil
	})
}

func (c *command) SetLogDir(f GlobalConfigFlags) error {
	return c.update(func(cfg *config.GlobalConfig) (string, error) {
		if strings.TrimSpace(f.Value) == "" {
			return "", fmt.Errorf("log directory must not be empty")
		}
		dir, err := filepath.Abs(f.Value)
		if err != nil {
			return "", err
		}
		cfg.Log.LogDir = dir
		return "Log directory set to " + dir, nil
	})
}

func (c *command) SetRetentionDays(f GlobalConfigFlags) error {
	return c.update(func(cfg *config.GlobalConfig) (string, error) {
		n, err := strconv.ParseUint(f.Value, 10, 32)
		if err != nil {
			return "", fmt.Errorf("invalid retention days %q: %w", f.Value, err)
		}
		cfg.Log.RetentionDays = uint32(n)
		if n == 0 {
			return "Log retention disabled", nil
		}
		return fmt.Sprintf("Log retention set to %d days", n), nil
	})
}

func (c *command) SetMaxLogSize(f GlobalConfigFlags) error {
	return c.update(func(cfg *config.GlobalConfig) (string, error) {
		n, err := strconv.ParseUint(f.Value, 10, 64)
		if err != nil || n == 0 {
			return "", fmt.Errorf("invalid max log size %q: want a positive number of MB", f.Value)
		}
		cfg.Log.MaxFileSizeMB = n
		return fmt.Sprintf("Max log size set to %d MB", n), nil
	})
}

func (c *command) SetLogRotation(f GlobalConfigFlags) error {
	return c.update(func(cfg *config.GlobalConfig) (string, error) {
		on, err := parseSwitch(f.Value)
		if err != nil {
			return "", err
		}
		cfg.Log.EnableRotation = on
		if on {
			return "Log rotation enabled", nil
		}
		return "Log rotation disabled", nil
	})
}

func parseSwitch(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "on", "enable", "enabled":
		return true, nil
	case "off", "disable", "disabled":
		return false, nil
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return false, fmt.Errorf("invalid switch %q (want on or off)", s)
	}
	return b, nil
}
