package ipc

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/afero"
)

// ProjectLockInfo is the lock-info file content for a held project lock.
type ProjectLockInfo struct {
	PID      int    `json:"pid"`
	Hostname string `json:"hostname"`
	RepoPath string `json:"repo_path"`
}

// ProjectLock guards at most one client workspace per project root on
// this host (spec.md §4.I), independent of the core instance lock. A
// holder recorded on the same host is probed by PID and reclaimed when
// dead; a holder recorded on a different host is always treated as live,
// since this process cannot probe liveness across hosts.
type ProjectLock struct {
	fs   afero.Fs
	path string
}

// NewProjectLock constructs a ProjectLock whose lock-info file lives at
// infoPath.
func NewProjectLock(fs afero.Fs, infoPath string) *ProjectLock {
	return &ProjectLock{fs: fs, path: infoPath}
}

// TryAcquire attempts to record this process as the holder of repoPath's
// lock. It succeeds if no lock-info file exists, or if the existing
// holder's PID is on this host and no longer live.
func (l *ProjectLock) TryAcquire(repoPath string, pid int, hostname string) (bool, error) {
	existing, err := l.read()
	if err == nil {
		if existing.Hostname == hostname {
			if pidIsLive(existing.PID) {
				return false, nil
			}
			// Local holder is dead: reclaim.
		} else {
			// Different host: treated as live until proven otherwise.
			return false, nil
		}
	} else if !os.IsNotExist(err) {
		return false, fmt.Errorf("ipc: read project lock info: %w", err)
	}

	info := ProjectLockInfo{PID: pid, Hostname: hostname, RepoPath: repoPath}
	data, err := json.Marshal(info)
	if err != nil {
		return false, fmt.Errorf("ipc: marshal project lock info: %w", err)
	}
	if err := afero.WriteFile(l.fs, l.path, data, 0o644); err != nil {
		return false, fmt.Errorf("ipc: write project lock info: %w", err)
	}
	return true, nil
}

// Release removes the lock-info file.
func (l *ProjectLock) Release() error {
	err := l.fs.Remove(l.path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

func (l *ProjectLock) read() (ProjectLockInfo, error) {
	var info ProjectLockInfo
	data, err := afero.ReadFile(l.fs, l.path)
	if err != nil {
		return info, err
	}
	if err := json.Unmarshal(data, &info); err != nil {
		return info, fmt.Errorf("ipc: unmarshal project lock info: %w", err)
	}
	return info, nil
}
