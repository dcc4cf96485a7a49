package ipc

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSingletonAcquireWritesEndpointTokenAndLease(t *testing.T) {
	files := NewMemFileStore("/run/kagan")
	lockPath := filepath.Join(t.TempDir(), "core.instance.lock")
	s := NewSingleton(files, lockPath)

	endpoint := Endpoint{Transport: TransportSocket, Address: "/run/kagan/core.sock"}
	token := GenerateToken()
	require.NoError(t, s.Acquire(endpoint, token, os.Getpid(), "test-host"))
	defer s.Release()

	gotEndpoint, err := files.ReadEndpoint()
	require.NoError(t, err)
	require.Equal(t, endpoint, gotEndpoint)

	gotToken, err := files.ReadToken()
	require.NoError(t, err)
	require.Equal(t, token, gotToken)

	lease, err := files.ReadLease()
	require.NoError(t, err)
	require.Equal(t, os.Getpid(), lease.OwnerPID)
	require.Equal(t, "test-host", lease.OwnerHostname)
}

func TestSingletonAcquireRejectsLiveOwner(t *testing.T) {
	files := NewMemFileStore("/run/kagan")
	lockPath := filepath.Join(t.TempDir(), "core.instance.lock")

	first := NewSingleton(files, lockPath)
	require.NoError(t, first.Acquire(Endpoint{Transport: TransportSocket, Address: "/run/kagan/core.sock"}, GenerateToken(), os.Getppid(), "host"))
	defer first.Release()

	second := NewSingleton(files, filepath.Join(t.TempDir(), "other.lock"))
	err := second.Acquire(Endpoint{Transport: TransportSocket, Address: "/run/kagan/core.sock"}, GenerateToken(), os.Getpid(), "host")
	require.Error(t, err)
}

func TestSingletonAcquireReclaimsStaleLeaseFromDeadPID(t *testing.T) {
	files := NewMemFileStore("/run/kagan")
	lockPath := filepath.Join(t.TempDir(), "core.instance.lock")

	// A pid that cannot plausibly be alive: the max valid range plus
	// some headroom, well past any real process table.
	deadPID := 1 << 30

	first := NewSingleton(files, lockPath)
	require.NoError(t, first.Acquire(Endpoint{Transport: TransportSocket, Address: "/run/kagan/core.sock"}, GenerateToken(), deadPID, "host"))
	close(first.stopHeartbeat)
	// Simulate an unclean exit: drop the OS lock without RemoveAll-ing
	// the lease/endpoint/token files, the way a killed process would.
	require.NoError(t, first.lock.f.Close())

	second := NewSingleton(files, lockPath)
	require.NoError(t, second.Acquire(Endpoint{Transport: TransportSocket, Address: "/run/kagan/core.sock"}, GenerateToken(), os.Getpid(), "host"))
	defer second.Release()

	lease, err := files.ReadLease()
	require.NoError(t, err)
	require.Equal(t, os.Getpid(), lease.OwnerPID)
}

func TestDiscoverRejectsMissingEndpoint(t *testing.T) {
	files := NewMemFileStore("/run/kagan")
	_, _, err := Discover(files)
	require.Error(t, err)
}

func TestDiscoverSucceedsForLiveLease(t *testing.T) {
	files := NewMemFileStore("/run/kagan")
	lockPath := filepath.Join(t.TempDir(), "core.instance.lock")
	s := NewSingleton(files, lockPath)

	endpoint := Endpoint{Transport: TransportSocket, Address: "/run/kagan/core.sock"}
	require.NoError(t, s.Acquire(endpoint, GenerateToken(), os.Getpid(), "host"))
	defer s.Release()

	got, _, err := Discover(files)
	require.NoError(t, err)
	require.Equal(t, endpoint, got)
}
