//go:build !windows

package lock

import (
	"errors"
	"os"
	"syscall"
)

// processExists sends signal 0 to pid
func processExists(pid int) bool {
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = process.Signal(syscall.Signal(0))
	// EPERM: alive, owned by another user
	return err == nil || errors.Is(err, syscall.EPERM)
}
