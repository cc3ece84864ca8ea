// Package process holds the OS-facing primitives used to supervise
// managed units: liveness probing, detached spawning with log redirection,
// termination signals and best-effort process inspection.
package process

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
)

// Launcher builds the command that runs a managed unit.
type Launcher interface {
	Command(id string, args []string) (*exec.Cmd, error)
}

// LauncherFunc adapts a plain function to Launcher.
type LauncherFunc func(id string, args []string) (*exec.Cmd, error)

func (f LauncherFunc) Command(id string, args []string) (*exec.Cmd, error) { return f(id, args) }

// JavaLauncher runs `<Java> <DefaultArgs...> -jar <UnitDir>/<id>.jar <args...>`.
type JavaLauncher struct {
	Java        string
	DefaultArgs []string
	UnitDir     string
}

func (j JavaLauncher) Command(id string, args []string) (*exec.Cmd, error) {
	java := j.Java
	if java == "" {
		java = "java"
	}
	dir := j.UnitDir
	if dir == "" {
		dir = "."
	}
	jar := filepath.Join(dir, id+".jar")
	argv := make([]string, 0, len(j.DefaultArgs)+len(args)+2)
	argv = append(argv, j.DefaultArgs...)
	argv = append(argv, "-jar", jar)
	argv = append(argv, args...)
	// #nosec G204 -- runtime and unit path come from the operator's own config
	return exec.Command(java, argv...), nil
}

// Child is a detached process started by Spawn. The spawning side keeps
// reaping it in the background so an early exit is observable instead of
// lingering as a zombie.
type Child struct {
	PID  int
	done chan struct{}
	err  error
}

// Exited is closed once the child has been reaped.
func (c *Child) Exited() <-chan struct{} { return c.done }

// Err returns the wait error after Exited is closed.
func (c *Child) Err() error {
	select {
	case <-c.done:
		return c.err
	default:
		return nil
	}
}

// Spawn starts cmd detached from the caller's terminal and session with
// stdout and stderr appended to logPath.
func Spawn(cmd *exec.Cmd, logPath string) (*Child, error) {
	if err := os.MkdirAll(filepath.Dir(logPath), 0o750); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	// #nosec G304 -- log path is derived from the configured log dir
	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log: %w", err)
	}
	defer func() { _ = f.Close() }()

	cmd.Stdin = nil
	cmd.Stdout = f
	cmd.Stderr = f
	detach(cmd)
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	c := &Child{PID: cmd.Process.Pid, done: make(chan struct{})}
	go func() {
		c.err = cmd.Wait()
		close(c.done)
	}()
	return c, nil
}
