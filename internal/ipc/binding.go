package ipc

import "github.com/kagan-sh/kagan-core/internal/agentsession"

// SessionBinding is associated with every accepted connection once its
// bearer token checks out. It travels into handlers via the request
// context carrier in internal/api, never as an explicit parameter.
type SessionBinding struct {
	SessionID         string
	CapabilityProfile agentsession.CapabilityProfile
	Identity          string
}
