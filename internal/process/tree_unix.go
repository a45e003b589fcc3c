//go:build !windows

package process

import (
	"errors"
	"syscall"
)

// KillTree sends SIGKILL to the process group led by pid, taking down the
// browser and its helper processes together.
func KillTree(pid int) error {
	if pid <= 0 {
		return ErrInvalidPID
	}
	err := syscall.Kill(-pid, syscall.SIGKILL)
	if errors.Is(err, syscall.ESRCH) {
		return nil
	}
	return err
}
