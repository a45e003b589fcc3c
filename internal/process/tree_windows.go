//go:build windows

package process

import (
	"os/exec"
	"strconv"
)

// KillTree force-kills pid and its child processes with taskkill.
func KillTree(pid int) error {
	if pid <= 0 {
		return ErrInvalidPID
	}
	// /F = force, /T = include children.
	return exec.Command("taskkill", "/F", "/T", "/PID", strconv.Itoa(pid)).Run() // #nosec G204 -- numeric pid
}
