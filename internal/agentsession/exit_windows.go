//go:build windows

package agentsession

import "os/exec"

// classifyExit on Windows has no POSIX signal semantics to inspect: the
// exit code alone cannot distinguish a deliberate cancel from a crash, so
// Canceled is sourced entirely from the caller's cancel path (canceled),
// per the platform-agnostic "was it a deliberate cancel?" design note.
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
	} else {
		result.ExitCode = exitErr.ExitCode()
	}

	if canceled {
		result.Canceled = true
		result.FailReason = ""
	}
}
