//go:build windows

package process

import (
	"os/exec"
	"strconv"

	gopsproc "github.com/shirou/gopsutil/v4/process"
)

// Alive queries the process table through tasklist and falls back to the
// native process enumeration when tasklist cannot be run.
func Alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	// #nosec G204 -- fixed binary, numeric filter
	out, err := exec.Command("tasklist", "/FI", "PID eq "+strconv.Itoa(pid), "/NH", "/FO", "CSV").Output()
	if err == nil {
		return tasklistHasPID(string(out), pid)
	}
	ok, err := gopsproc.PidExists(int32(pid))
	return err == nil && ok
}
