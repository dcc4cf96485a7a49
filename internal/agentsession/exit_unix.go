//go:build !windows

package agentsession

import (
	"os/exec"
	"syscall"
)

// classifyExit fills in Success/ExitCode from the process exit, treating
// a SIGTERM exit as a deliberate cancellation only when this session's own
// cancel path set canceled=true beforehand — never inferred from the raw
// exit code alone (see DESIGN.md's agent exit classification decision).
func classifyExit(result *CompletionResult, cmdErr error, canceled bool) {
	if cmdErr == nil {
		result.ExitCode = 0
		if !result.Success && result.FailReason == "" {
			result.Success = true
		}
		return
	}

	exitErr, ok := cmdErr.(*exec.ExitError)
	if !ok {
		result.ExitCode = -1
		return
	}
	result.ExitCode = exitErr.ExitCode()

	if status, ok := exitErr.Sys().(syscall.WaitStatus); ok && status.Signaled() {
		if status.Signal() == syscall.SIGTERM && canceled {
			result.Success = false
			result.Canceled = true
			result.FailReason = ""
			return
		}
	}

	if canceled {
		result.Canceled = true
	}
}
