// Package telemetry carries periodic snapshots of the vehicle state from the
// control loop to storage and to live websocket clients.
package telemetry

import (
	"time"

	"github.com/roman-kulish/phenox-pilot/internal/phenox"
)

// Telemetry is a snapshot of the vehicle state taken by the control loop
type Telemetry struct {
	Timestamp time.Time          `json:"timestamp"` // Time the snapshot was taken
	Tick      uint64             `json:"tick"`      // Control loop tick counter
	Mode      phenox.OperateMode `json:"mode"`      // Operate mode read on the same tick
	State     phenox.SelfState   `json:"state"`     // Estimated attitude, position and height
}

// ModeName returns the operate mode as text.
func (t *Telemetry) ModeName() string {
	return t.Mode.String()
}
