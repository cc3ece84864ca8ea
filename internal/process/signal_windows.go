//go:build windows

package process

import (
	"fmt"
	"syscall"
)

const processTerminate = 0x0001

// Terminate has no graceful counterpart on Windows and forces termination.
func Terminate(pid int) error {
	return Kill(pid)
}

// Kill terminates pid through TerminateProcess.
func Kill(pid int) error {
	if pid <= 0 {
		return fmt.Errorf("invalid pid %d", pid)
	}
	h, err := syscall.OpenProcess(processTerminate, false, uint32(pid))
	if err != nil {
		return fmt.Errorf("open process %d: %w", pid, err)
	}
	defer func() { _ = syscall.CloseHandle(h) }()
	if err := syscall.TerminateProcess(h, 1); err != nil {
		return fmt.Errorf("terminate process %d: %w", pid, err)
	}
	return nil
}
