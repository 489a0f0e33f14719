// Package process inspects other processes on the host.
package process

import (
	"os"
	"syscall"
)

// IsProcessAlive checks if a process with the given PID is still running.
// Used to tell a live daemon from a stale pid file.
func IsProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}

	// FindProcess never fails on Unix, even for a missing process.
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}

	// Signal 0 checks for existence. EPERM means it exists but belongs to
	// another user; ESRCH means it is gone.
	err = process.Signal(syscall.Signal(0))
	return err == nil || os.IsPermission(err)
}
