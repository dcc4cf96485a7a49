package ipc

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/afero"
)

// Transport names the wire transport an endpoint descriptor advertises.
type Transport string

const (
	TransportSocket Transport = "socket"
	TransportTCP    Transport = "tcp"
)

// Endpoint is the persisted descriptor a client reads to find the core.
type Endpoint struct {
	Transport Transport `json:"transport"`
	Address   string    `json:"address"`
	Port      int       `json:"port,omitempty"`
}

// Lease is the persisted heartbeat/liveness descriptor for the current
// core instance (core.lease.json).
type Lease struct {
	Version               int       `json:"version"`
	OwnerPID              int       `json:"owner_pid"`
	OwnerHostname         string    `json:"owner_hostname"`
	AcquiredAt            time.Time `json:"acquired_at"`
	LastHeartbeatAt       time.Time `json:"last_heartbeat_at"`
	HeartbeatIntervalSecs int       `json:"heartbeat_interval_seconds"`
	StaleAfterSeconds     int       `json:"stale_after_seconds"`
}

// Stale reports whether the lease's last heartbeat is older than its own
// staleness window.
func (l Lease) Stale(now time.Time) bool {
	if l.StaleAfterSeconds <= 0 {
		return false
	}
	return now.Sub(l.LastHeartbeatAt) > time.Duration(l.StaleAfterSeconds)*time.Second
}

// FileStore reads and atomically writes the endpoint/token/lease files
// described in spec.md §6, under an afero.Fs so tests can swap in a
// MemMapFs without touching the real filesystem (grounded on the
// teacher's internal/filesystem.ConfigFileSystem embedding shape).
type FileStore struct {
	afero.Fs
	dir string
}

// NewFileStore constructs a FileStore rooted at dir using the real OS
// filesystem.
func NewFileStore(dir string) *FileStore {
	return &FileStore{Fs: afero.NewOsFs(), dir: dir}
}

// NewMemFileStore constructs a FileStore backed by an in-memory
// filesystem, for unit tests that exercise discovery/reclamation logic
// without touching disk.
func NewMemFileStore(dir string) *FileStore {
	return &FileStore{Fs: afero.NewMemMapFs(), dir: dir}
}

func (fs *FileStore) path(name string) string { return filepath.Join(fs.dir, name) }

// writeAtomic writes data to a tempfile in the same directory, fsyncs it,
// then renames it over the destination — per spec.md §5's "atomic writes"
// requirement for lock/lease files.
func (fs *FileStore) writeAtomic(name string, data []byte, perm os.FileMode) error {
	if err := fs.MkdirAll(fs.dir, 0o755); err != nil {
		return fmt.Errorf("ipc: create runtime dir: %w", err)
	}
	tmp := fs.path(name + ".tmp-" + randomSuffix())
	f, err := fs.Fs.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return fmt.Errorf("ipc: open tempfile: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = fs.Remove(tmp)
		return fmt.Errorf("ipc: write tempfile: %w", err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = fs.Remove(tmp)
		return fmt.Errorf("ipc: fsync tempfile: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = fs.Remove(tmp)
		return fmt.Errorf("ipc: close tempfile: %w", err)
	}
	if err := fs.Rename(tmp, fs.path(name)); err != nil {
		_ = fs.Remove(tmp)
		return fmt.Errorf("ipc: rename tempfile into place: %w", err)
	}
	return nil
}

func randomSuffix() string {
	var b [8]byte
	_, _ = rand.Read(b[:])
	return hex.EncodeToString(b[:])
}

// WriteEndpoint persists endpoint.json.
func (fs *FileStore) WriteEndpoint(e Endpoint) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("ipc: marshal endpoint: %w", err)
	}
	return fs.writeAtomic("endpoint.json", data, 0o644)
}

// ReadEndpoint loads endpoint.json.
func (fs *FileStore) ReadEndpoint() (Endpoint, error) {
	var e Endpoint
	data, err := afero.ReadFile(fs.Fs, fs.path("endpoint.json"))
	if err != nil {
		return e, err
	}
	if err := json.Unmarshal(data, &e); err != nil {
		return e, fmt.Errorf("ipc: unmarshal endpoint: %w", err)
	}
	return e, nil
}

// WriteToken persists the opaque bearer token.
func (fs *FileStore) WriteToken(token string) error {
	return fs.writeAtomic("token", []byte(token), 0o600)
}

// ReadToken loads the opaque bearer token.
func (fs *FileStore) ReadToken() (string, error) {
	data, err := afero.ReadFile(fs.Fs, fs.path("token"))
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// GenerateToken produces a fresh opaque ASCII bearer token.
func GenerateToken() string {
	var b [24]byte
	_, _ = rand.Read(b[:])
	return hex.EncodeToString(b[:])
}

// WriteLease persists core.lease.json.
func (fs *FileStore) WriteLease(l Lease) error {
	data, err := json.Marshal(l)
	if err != nil {
		return fmt.Errorf("ipc: marshal lease: %w", err)
	}
	return fs.writeAtomic("core.lease.json", data, 0o644)
}

// ReadLease loads core.lease.json. A missing file is not an error the
// caller needs to distinguish from "no lease yet" — it is surfaced via
// the underlying os.IsNotExist-compatible error.
func (fs *FileStore) ReadLease() (Lease, error) {
	var l Lease
	data, err := afero.ReadFile(fs.Fs, fs.path("core.lease.json"))
	if err != nil {
		return l, err
	}
	if err := json.Unmarshal(data, &l); err != nil {
		return l, fmt.Errorf("ipc: unmarshal lease: %w", err)
	}
	return l, nil
}

// RemoveAll deletes endpoint/token/lease files on graceful shutdown.
func (fs *FileStore) RemoveAll() {
	_ = fs.Remove(fs.path("endpoint.json"))
	_ = fs.Remove(fs.path("token"))
	_ = fs.Remove(fs.path("core.lease.json"))
}
