//go:build windows

package ipc

import (
	"fmt"
	"os"

	"golang.org/x/sys/windows"
)

// flockHandle holds the open file handle backing an acquired lock.
type flockHandle struct {
	f *os.File
}

// acquireFlock takes an exclusive, non-blocking byte-range lock covering
// the whole file via LockFileEx, mirroring acquireFlock's POSIX contract.
func acquireFlock(path string) (*flockHandle, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("ipc: open lock file: %w", err)
	}
	ol := new(windows.Overlapped)
	err = windows.LockFileEx(windows.Handle(f.Fd()),
		windows.LOCKFILE_EXCLUSIVE_LOCK|windows.LOCKFILE_FAIL_IMMEDIATELY,
		0, 1, 0, ol)
	if err != nil {
		_ = f.Close()
		return nil, ErrAlreadyLocked
	}
	return &flockHandle{f: f}, nil
}

func (h *flockHandle) release() error {
	if h == nil || h.f == nil {
		return nil
	}
	ol := new(windows.Overlapped)
	_ = windows.UnlockFileEx(windows.Handle(h.f.Fd()), 0, 1, 0, ol)
	return h.f.Close()
}
