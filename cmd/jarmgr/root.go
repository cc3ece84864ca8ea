package main

import (
	"context"

	"github.com/spf13/cobra"
)

// buildRoot assembles the command tree around c.
func buildRoot(c *command) *cobra.Command {
	root := createRootCommand(c.g)
	root.AddCommand(
		createStartCommand(c),
		createStopCommand(c),
		createRestartCommand(c),
		createKillCommand(c),
		createQuickCommand(c),
		createStatusCommand(c),
		createListCommand(c),
		createLogCommand(c),
		createLogsCommand(c),
		createConfigCommand(c),
		createConfigsCommand(c),
		createGlobalConfigCommand(c),
		createDaemonCommand(c),
		createBatchCommand(c),
		createSequenceCommand(c),
		createHistoryCommand(c),
		createVersionCommand(c),
	)
	return root
}

func createRootCommand(flags *GlobalFlags) *cobra.Command {
	root := &cobra.Command{
		Use:   "jarmgr",
		Short: "Supervisor for Java applications packaged as jar files",
		Long: `jarmgr starts, stops and watches java -jar processes, keeping a pid file,
a log file and saved arguments for each jar under one root directory.

Examples:
  jarmgr start api.jar --server.port=8080
  jarmgr status
  jarmgr log api -n 100
  jarmgr sequence create backend db.jar api.jar web.jar
  jarmgr daemon start`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&flags.Root, "root", "", "state directory (default $JARMGR_ROOT or .jarmgr)")
	root.PersistentFlags().BoolVar(&flags.NoColor, "no-color", false, "disable colored log output")
	root.PersistentFlags().BoolVarP(&flags.Verbose, "verbose", "v", false, "log debug messages")
	return root
}

// passthrough stops flag parsing at the jar name so everything after it is
// handed to the JVM untouched.
func passthrough(cmd *cobra.Command) *cobra.Command {
	cmd.Flags().SetInterspersed(false)
	return cmd
}

func createStartCommand(c *command) *cobra.Command {
	return passthrough(&cobra.Command{
		Use:   "start <jar> [args...]",
		Short: "Start a jar in the background",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Start(cmd.Context(), StartFlags{Name: args[0], Args: args[1:]})
		},
	})
}

func createStopCommand(c *command) *cobra.Command {
	return &cobra.Command{
		Use:   "stop <jar>",
		Short: "Ask a running jar to terminate",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Stop(cmd.Context(), StartFlags{Name: args[0]})
		},
	}
}

func createRestartCommand(c *command) *cobra.Command {
	return passthrough(&cobra.Command{
		Use:   "restart <jar> [args...]",
		Short: "Stop a jar, wait, and start it with the given args",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Restart(cmd.Context(), StartFlags{Name: args[0], Args: args[1:]})
		},
	})
}

func createKillCommand(c *command) *cobra.Command {
	return &cobra.Command{
		Use:   "kill <jar>",
		Short: "Forcibly terminate a jar",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Kill(cmd.Context(), StartFlags{Name: args[0]})
		},
	}
}

func createQuickCommand(c *command) *cobra.Command {
	return &cobra.Command{
		Use:   "quick <jar>",
		Short: "Restart a running jar, or start a stopped one with its saved args",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Quick(cmd.Context(), StartFlags{Name: args[0]})
		},
	}
}

func createStatusCommand(c *command) *cobra.Command {
	return &cobra.Command{
		Use:   "status [jar]",
		Short: "Show running jars, or details of one",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f := StatusFlags{}
			if len(args) == 1 {
				f.Name = args[0]
			}
			return c.Status(f)
		},
	}
}

func createListCommand(c *command) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List jar files in the unit directory",
		Args:  cobra.NoArgs,
		RunE:  func(*cobra.Command, []string) error { return c.List() },
	}
}

func createLogCommand(c *command) *cobra.Command {
	f := &LogFlags{}
	cmd := &cobra.Command{
		Use:   "log <jar>",
		Short: "Print the last lines of a jar's log",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Log(LogFlags{Name: args[0], Lines: f.Lines})
		},
	}
	cmd.Flags().IntVarP(&f.Lines, "lines", "n", 50, "number of lines")
	return cmd
}

func createLogsCommand(c *command) *cobra.Command {
	cmd := &cobra.Command{Use: "logs", Short: "Manage log files"}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List log files",
			Args:  cobra.NoArgs,
			RunE:  func(*cobra.Command, []string) error { return c.LogsList() },
		},
		&cobra.Command{
			Use:   "clean",
			Short: "Delete every log file",
			Args:  cobra.NoArgs,
			RunE:  func(*cobra.Command, []string) error { return c.LogsClean() },
		},
	)
	return cmd
}

func createConfigCommand(c *command) *cobra.Command {
	return passthrough(&cobra.Command{
		Use:   "config <jar> [args...]",
		Short: "Save the start arguments used by quick and sequences",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Config(ConfigFlags{Name: args[0], Args: args[1:]})
		},
	})
}

func createConfigsCommand(c *command) *cobra.Command {
	cmd := &cobra.Command{Use: "configs", Short: "Manage saved start arguments"}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List saved arguments",
			Args:  cobra.NoArgs,
			RunE:  func(*cobra.Command, []string) error { return c.ConfigsList() },
		},
		&cobra.Command{
			Use:   "show <jar>",
			Short: "Print saved arguments of a jar",
			Args:  cobra.ExactArgs(1),
			RunE: func(_ *cobra.Command, args []string) error {
				return c.ConfigsShow(ConfigFlags{Name: args[0]})
			},
		},
		&cobra.Command{
			Use:   "delete <jar>",
			Short: "Delete saved arguments of a jar",
			Args:  cobra.ExactArgs(1),
			RunE: func(_ *cobra.Command, args []string) error {
				return c.ConfigsDelete(ConfigFlags{Name: args[0]})
			},
		},
	)
	return cmd
}

func setter(use, short string, fn func(GlobalConfigFlags) error) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return fn(GlobalConfigFlags{Value: args[0]})
		},
	}
}

func createGlobalConfigCommand(c *command) *cobra.Command {
	cmd := &cobra.Command{Use: "global-config", Short: "Show or edit the global configuration"}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "show",
			Short: "Print the effective configuration",
			Args:  cobra.NoArgs,
			RunE:  func(*cobra.Command, []string) error { return c.GlobalConfigShow() },
		},
		&cobra.Command{
			Use:   "reset",
			Short: "Restore defaults",
			Args:  cobra.NoArgs,
			RunE:  func(*cobra.Command, []string) error { return c.GlobalConfigReset() },
		},
		&cobra.Command{
			Use:   "path",
			Short: "Print the configuration file path",
			Args:  cobra.NoArgs,
			RunE:  func(*cobra.Command, []string) error { return c.GlobalConfigPath() },
		},
		&cobra.Command{
			Use:   "clean-logs",
			Short: "Delete logs older than the retention period",
			Args:  cobra.NoArgs,
			RunE:  func(*cobra.Command, []string) error { return c.GlobalConfigCleanLogs() },
		},
		setter("set-log-dir <dir>", "Set the log directory", c.SetLogDir),
		setter("set-retention-days <days>", "Set log retention, 0 keeps forever", c.SetRetentionDays),
		setter("set-max-log-size <mb>", "Set the rotation threshold in MB", c.SetMaxLogSize),
		setter("set-log-rotation <on|off>", "Enable or disable log rotation", c.SetLogRotation),
	)
	return cmd
}

func createDaemonCommand(c *command) *cobra.Command {
	cmd := &cobra.Command{Use: "daemon", Short: "Control the background maintenance daemon"}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "start",
			Short: "Start the daemon in the background",
			Args:  cobra.NoArgs,
			RunE:  func(cmd *cobra.Command, _ []string) error { return c.DaemonStart(cmd.Context()) },
		},
		&cobra.Command{
			Use:   "stop",
			Short: "Stop the daemon",
			Args:  cobra.NoArgs,
			RunE:  func(cmd *cobra.Command, _ []string) error { return c.DaemonStop(cmd.Context()) },
		},
		&cobra.Command{
			Use:   "restart",
			Short: "Restart the daemon",
			Args:  cobra.NoArgs,
			RunE:  func(cmd *cobra.Command, _ []string) error { return c.DaemonRestart(cmd.Context()) },
		},
		&cobra.Command{
			Use:   "status",
			Short: "Show daemon state and recent log lines",
			Args:  cobra.NoArgs,
			RunE:  func(cmd *cobra.Command, _ []string) error { return c.DaemonStatus(cmd.Context()) },
		},
		&cobra.Command{
			Use:   "run",
			Short: "Run maintenance in the foreground until interrupted",
			Args:  cobra.NoArgs,
			RunE:  func(cmd *cobra.Command, _ []string) error { return c.DaemonRun(cmd.Context()) },
		},
		&cobra.Command{
			Use:   "once",
			Short: "Run a single maintenance pass",
			Args:  cobra.NoArgs,
			RunE:  func(*cobra.Command, []string) error { return c.Maintain() },
		},
	)
	return cmd
}

func createBatchCommand(c *command) *cobra.Command {
	return &cobra.Command{
		Use:   "batch <start|stop|restart|quick|kill> <jar>...",
		Short: "Apply one operation to several jars",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Batch(cmd.Context(), BatchFlags{Op: args[0], Names: args[1:]})
		},
	}
}

func createSequenceCommand(c *command) *cobra.Command {
	f := &SequenceFlags{}
	cmd := &cobra.Command{Use: "sequence", Short: "Start and stop jars in a saved order"}
	cmd.PersistentFlags().StringVar(&f.OnFailure, "on-failure", "ask", "when a start fails: continue, abort or ask")
	named := func(use, short string, fn func(SequenceFlags) error) *cobra.Command {
		return &cobra.Command{
			Use:   use,
			Short: short,
			Args:  cobra.ExactArgs(1),
			RunE: func(_ *cobra.Command, args []string) error {
				return fn(SequenceFlags{Name: args[0], OnFailure: f.OnFailure})
			},
		}
	}
	running := func(use, short string, fn func(context.Context, SequenceFlags) error) *cobra.Command {
		return &cobra.Command{
			Use:   use,
			Short: short,
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return fn(cmd.Context(), SequenceFlags{Name: args[0], OnFailure: f.OnFailure})
			},
		}
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "create <name> <jar>...",
			Short: "Save an ordered list of jars",
			Args:  cobra.MinimumNArgs(2),
			RunE: func(_ *cobra.Command, args []string) error {
				return c.SequenceCreate(SequenceFlags{Name: args[0], Names: args[1:]})
			},
		},
		running("start <name>", "Start jars in order", c.SequenceStart),
		running("stop <name>", "Stop jars in reverse order", c.SequenceStop),
		running("restart <name>", "Stop then start a sequence", c.SequenceRestart),
		&cobra.Command{
			Use:   "list",
			Short: "List sequences",
			Args:  cobra.NoArgs,
			RunE:  func(*cobra.Command, []string) error { return c.SequenceList() },
		},
		named("show <name>", "Print the jars of a sequence", c.SequenceShow),
		named("delete <name>", "Delete a sequence", c.SequenceDelete),
		named("status <name>", "Show which jars of a sequence are running", c.SequenceStatus),
	)
	return cmd
}

func createHistoryCommand(c *command) *cobra.Command {
	f := &HistoryFlags{}
	cmd := &cobra.Command{
		Use:   "history [jar]",
		Short: "Show recent lifecycle events",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			h := HistoryFlags{Limit: f.Limit}
			if len(args) == 1 {
				h.Name = args[0]
			}
			return c.History(cmd.Context(), h)
		},
	}
	cmd.Flags().IntVarP(&f.Limit, "limit", "n", 20, "number of events")
	return cmd
}

func createVersionCommand(c *command) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run:   func(*cobra.Command, []string) { c.Version() },
	}
}
