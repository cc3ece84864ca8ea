//go:build !windows

package process

import "syscall"

// Terminate asks pid to shut down gracefully.
func Terminate(pid int) error {
	return syscall.Kill(pid, syscall.SIGTERM)
}

// Kill terminates pid without a graceful phase.
func Kill(pid int) error {
	return syscall.Kill(pid, syscall.SIGKILL)
}
