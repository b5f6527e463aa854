// Package flight holds the persisted records of a flight run.
package flight

import (
	"time"

	"github.com/roman-kulish/phenox-pilot/internal/telemetry"
)

const (
	CaptureImage    CaptureKind = "image"
	CaptureFeatures CaptureKind = "features"
	CaptureBlob     CaptureKind = "blob"
	CaptureSound    CaptureKind = "sound"
)

// CaptureKind identifies what an acquisition cycle produced.
type CaptureKind string

// Session represents a single flight run of a vehicle.
// Each session captures metadata about when and how the run was performed.
type Session struct {
	ID        int64     `json:"ID"`                      // Unique identifier for the session
	RunID     string    `json:"runID"`                   // Run identifier shared by all records of the run
	StartTime time.Time `json:"startTime"`               // When the run began
	Vehicle   string    `json:"vehicle"`                 // Vehicle name from configuration
	Config    *string   `json:"config,string,omitempty"` // Optional control configuration in JSON format
}

// Capture describes the result of one acquisition: how many points or
// samples it produced and where its payload went, if anywhere.
type Capture struct {
	ID        int64       `json:"ID"`
	SessionID int64       `json:"sessionID"`
	Timestamp time.Time   `json:"timestamp"`
	Kind      CaptureKind `json:"kind"`
	Camera    *string     `json:"camera,omitempty"` // Camera name for image, features and blob captures
	Count     int         `json:"count"`            // Number of feature points, sound samples or pixels
	Path      *string     `json:"path,omitempty"`   // Output file, if the payload was written
	Bytes     int64       `json:"bytes"`            // Payload size on disk
}

// TelemetryRecord is a stored telemetry snapshot.
type TelemetryRecord struct {
	ID        int64 `json:"ID"`
	SessionID int64 `json:"sessionID"`
	telemetry.Telemetry
}
