//go:build !windows

package ipc

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// flockHandle holds the open file descriptor backing an acquired
// advisory lock so it can be released on Close.
type flockHandle struct {
	f *os.File
}

// acquireFlock takes an exclusive, non-blocking advisory lock on path,
// creating it if necessary. A locked-by-another-process file returns
// ErrAlreadyLocked immediately rather than blocking.
func acquireFlock(path string) (*flockHandle, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("ipc: open lock file: %w", err)
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		_ = f.Close()
		if err == unix.EWOULDBLOCK {
			return nil, ErrAlreadyLocked
		}
		return nil, fmt.Errorf("ipc: flock: %w", err)
	}
	return &flockHandle{f: f}, nil
}

func (h *flockHandle) release() error {
	if h == nil || h.f == nil {
		return nil
	}
	_ = unix.Flock(int(h.f.Fd()), unix.LOCK_UN)
	return h.f.Close()
}
