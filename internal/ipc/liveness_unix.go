//go:build !windows

package ipc

import "golang.org/x/sys/unix"

// pidIsLive probes whether pid refers to a live process by sending the
// null signal, per the original's core/process_liveness.py: EPERM means
// the process exists but we lack permission to signal it (still alive);
// any other error means it is gone.
func pidIsLive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := unix.Kill(pid, 0)
	if err == nil || err == unix.EPERM {
		return true
	}
	return false
}
