//go:build windows

package ipc

import "golang.org/x/sys/windows"

// pidIsLive probes liveness via OpenProcess with the minimal query-only
// access right; ERROR_ACCESS_DENIED means the process exists but the
// handle could not be queried, which still counts as alive (see the
// original's core/process_liveness.py _pid_exists_windows).
func pidIsLive(pid int) bool {
	if pid <= 0 {
		return false
	}
	handle, err := windows.OpenProcess(windows.PROCESS_QUERY_LIMITED_INFORMATION, false, uint32(pid))
	if err == nil {
		_ = windows.CloseHandle(handle)
		return true
	}
	return err == windows.ERROR_ACCESS_DENIED
}
