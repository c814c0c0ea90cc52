//go:build unix

package lockfile

import (
	"errors"
	"syscall"
)

// pidAlive reports whether a process with the given pid exists.
// EPERM means the process exists but belongs to another user.
func pidAlive(pid int) bool {
	err := syscall.Kill(pid, 0)
	return err == nil || errors.Is(err, syscall.EPERM)
}
