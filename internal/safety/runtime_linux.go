//go:build linux

package safety

import (
	"errors"
	"fmt"
	"os/exec"
)

// FindRuntime locates a system command in PATH.
func FindRuntime(runtime string) (string, error) {
	binPath, err := exec.LookPath(runtime)
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return "", NewRuntimeError(runtime, fmt.Sprintf("`%s` not found in PATH", runtime), err)
		}
		return "", NewRuntimeError(runtime, "failed to locate binary", err)
	}

	return binPath, nil
}
