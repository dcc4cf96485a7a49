package ipc

import (
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/kagan-sh/kagan-core/internal/logging"
)

// ErrAlreadyLocked is returned by acquireFlock when another live process
// already holds the instance lock.
var ErrAlreadyLocked = errors.New("ipc: instance lock already held")

// HeartbeatInterval is how often the lease file's last_heartbeat_at is
// refreshed while the core is running.
const HeartbeatInterval = 5 * time.Second

// StaleAfter is the window after which a lease with no heartbeat is
// considered abandoned and reclaimable by the next starter.
const StaleAfter = 20 * time.Second

// Singleton owns the core-instance lock and lease files described in
// spec.md §4.F/§4.I: at most one live core per host, reclaimed from a
// dead PID by the next process to start.
type Singleton struct {
	files      *FileStore
	lockPath   string
	lock       *flockHandle
	stopHeartbeat chan struct{}
}

// NewSingleton constructs a Singleton rooted at the given runtime
// directory (files) using lockPath for the OS-level instance lock.
func NewSingleton(files *FileStore, lockPath string) *Singleton {
	return &Singleton{files: files, lockPath: lockPath}
}

// Acquire takes the instance lock, reclaiming a stale lease (one whose
// owner PID is no longer live) from a prior starter, then writes a fresh
// lease/endpoint/token set under the caller-minted token. The token must
// be minted before the IPC server starts accepting connections (the
// server is constructed with it), so Acquire takes it as an argument
// rather than generating it itself. ownerPID is this process's PID.
func (s *Singleton) Acquire(endpoint Endpoint, token string, ownerPID int, hostname string) error {
	prior, readErr := s.files.ReadLease()
	if readErr == nil && prior.OwnerPID != ownerPID {
		if pidIsLive(prior.OwnerPID) {
			return fmt.Errorf("ipc: another core instance is already running (pid %d)", prior.OwnerPID)
		}
		logging.Info("ipc: reclaiming stale lease from dead pid %d", prior.OwnerPID)
	}

	lock, lockErr := acquireFlock(s.lockPath)
	if lockErr != nil {
		return lockErr
	}
	s.lock = lock

	now := time.Now()
	lease := Lease{
		Version:               1,
		OwnerPID:              ownerPID,
		OwnerHostname:         hostname,
		AcquiredAt:            now,
		LastHeartbeatAt:       now,
		HeartbeatIntervalSecs: int(HeartbeatInterval.Seconds()),
		StaleAfterSeconds:     int(StaleAfter.Seconds()),
	}

	if err := s.files.WriteEndpoint(endpoint); err != nil {
		_ = s.lock.release()
		return err
	}
	if err := s.files.WriteToken(token); err != nil {
		_ = s.lock.release()
		return err
	}
	if err := s.files.WriteLease(lease); err != nil {
		_ = s.lock.release()
		return err
	}

	s.stopHeartbeat = make(chan struct{})
	go s.heartbeatLoop(lease)

	return nil
}

func (s *Singleton) heartbeatLoop(lease Lease) {
	ticker := time.NewTicker(HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopHeartbeat:
			return
		case now := <-ticker.C:
			lease.LastHeartbeatAt = now
			if err := s.files.WriteLease(lease); err != nil {
				logging.Error("ipc: heartbeat lease write: %v", err)
			}
		}
	}
}

// Release stops the heartbeat, removes the endpoint/token/lease files,
// and drops the instance lock.
func (s *Singleton) Release() {
	if s.stopHeartbeat != nil {
		close(s.stopHeartbeat)
	}
	s.files.RemoveAll()
	_ = s.lock.release()
}

// Discover reads endpoint+token+lease for a client, validates lease
// freshness and owner PID liveness, and probes TCP reachability when the
// transport is loopback TCP. It rejects a dead or unreachable core per
// spec.md §8 testable property 9.
func Discover(files *FileStore) (Endpoint, string, error) {
	endpoint, err := files.ReadEndpoint()
	if err != nil {
		return Endpoint{}, "", fmt.Errorf("%s: %w", ErrNoEndpoint, err)
	}
	token, err := files.ReadToken()
	if err != nil {
		return Endpoint{}, "", fmt.Errorf("%s: %w", ErrNoEndpoint, err)
	}
	lease, err := files.ReadLease()
	if err != nil {
		return Endpoint{}, "", fmt.Errorf("%s: %w", ErrNoEndpoint, err)
	}
	if lease.Stale(time.Now()) {
		return Endpoint{}, "", fmt.Errorf("%s: lease stale since %s", ErrNoEndpoint, lease.LastHeartbeatAt)
	}
	if !pidIsLive(lease.OwnerPID) {
		return Endpoint{}, "", fmt.Errorf("%s: owner pid %d is not live", ErrNoEndpoint, lease.OwnerPID)
	}
	if endpoint.Transport == TransportTCP {
		addr := fmt.Sprintf("%s:%d", endpoint.Address, endpoint.Port)
		conn, dialErr := net.DialTimeout("tcp", addr, 2*time.Second)
		if dialErr != nil {
			return Endpoint{}, "", fmt.Errorf("%s: endpoint unreachable: %w", ErrNoEndpoint, dialErr)
		}
		_ = conn.Close()
	}
	return endpoint, token, nil
}

// Hostname returns the local hostname, falling back to "localhost" if it
// cannot be resolved (matches the lease's best-effort diagnostic posture).
func Hostname() string {
	h, err := os.Hostname()
	if err != nil {
		return "localhost"
	}
	return h
}
