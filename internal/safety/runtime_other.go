//go:build !linux

package safety

import "fmt"

// FindRuntime always fails: the vehicle only powers off from linux.
func FindRuntime(runtime string) (string, error) {
	return "", NewRuntimeError(runtime, fmt.Sprintf("`%s` is not supported on this platform", runtime), nil)
}
