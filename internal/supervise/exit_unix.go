//go:build unix

package supervise

import (
	"errors"
	"os/exec"
	"syscall"
)

// exitCode maps a Wait result to the code the sidecar should exit with.
// A signal-killed gateway maps to the shell convention 128+signal.
func exitCode(_ *exec.Cmd, waitErr error) int {
	if waitErr == nil {
		return 0
	}

	var ee *exec.ExitError
	if errors.As(waitErr, &ee) {
		if ws, ok := ee.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
			return 128 + int(ws.Signal())
		}
		return ee.ExitCode()
	}
	return 1
}
