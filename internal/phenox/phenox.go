// Package phenox holds the domain model shared by the device gateway, the
// control loop and the acquisition loops. Units are centimetres and degrees
// unless stated otherwise.
package phenox

import (
	"fmt"
	"math"
	"strings"
)

const (
	ModeHalt  OperateMode = iota // all motors stopped
	ModeUp                       // taking off and climbing to hover
	ModeHover                    // hovering or cruising
	ModeDown                     // landing manoeuvre
)

const (
	CameraFront CameraID = iota
	CameraBottom
)

const (
	LEDRed LED = iota
	LEDGreen
)

const (
	AxisX Axis = iota // pitch
	AxisY             // roll
	AxisZ             // yaw
)

// OperateMode is the coarse flight phase of the vehicle.
type OperateMode int

func (m OperateMode) String() string {
	switch m {
	case ModeHalt:
		return "halt"
	case ModeUp:
		return "up"
	case ModeHover:
		return "hover"
	case ModeDown:
		return "down"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// Valid reports whether m is one of the known flight modes.
func (m OperateMode) Valid() bool {
	return m >= ModeHalt && m <= ModeDown
}

// CameraID selects one of the two on-board cameras.
type CameraID int

func (c CameraID) String() string {
	switch c {
	case CameraFront:
		return "front"
	case CameraBottom:
		return "bottom"
	default:
		return fmt.Sprintf("camera(%d)", int(c))
	}
}

func (c CameraID) Valid() bool {
	return c == CameraFront || c == CameraBottom
}

// ParseCameraID converts a configuration value ("front", "bottom") into a CameraID.
func ParseCameraID(s string) (CameraID, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "front":
		return CameraFront, nil
	case "bottom":
		return CameraBottom, nil
	default:
		return 0, fmt.Errorf("unknown camera '%s'", s)
	}
}

// LED selects one of the indicator LEDs.
type LED int

func (l LED) String() string {
	switch l {
	case LEDRed:
		return "red"
	case LEDGreen:
		return "green"
	default:
		return fmt.Sprintf("led(%d)", int(l))
	}
}

func (l LED) Valid() bool {
	return l == LEDRed || l == LEDGreen
}

// Axis selects the attitude axis of a destination angle.
type Axis int

func (a Axis) String() string {
	switch a {
	case AxisX:
		return "x"
	case AxisY:
		return "y"
	case AxisZ:
		return "z"
	default:
		return fmt.Sprintf("axis(%d)", int(a))
	}
}

func (a Axis) Valid() bool {
	return a >= AxisX && a <= AxisZ
}

// SelfState is a snapshot of the estimated attitude, vision-derived position
// and velocity, sonar height and battery level of the vehicle.
type SelfState struct {
	DegX     float32 `json:"degX"`     // Pitch in degrees
	DegY     float32 `json:"degY"`     // Roll in degrees
	DegZ     float32 `json:"degZ"`     // Yaw in degrees
	VisionTX float32 `json:"visionTX"` // Horizontal position offset X
	VisionTY float32 `json:"visionTY"` // Horizontal position offset Y
	VisionTZ float32 `json:"visionTZ"` // Vertical position offset
	VisionVX float32 `json:"visionVX"` // Velocity X
	VisionVY float32 `json:"visionVY"` // Velocity Y
	VisionVZ float32 `json:"visionVZ"` // Velocity Z
	Height   float32 `json:"height"`   // Estimated height in cm
	Battery  int     `json:"battery"`  // Raw battery level
}

// String renders the attitude, vision and height fields as a pipe separated
// telemetry line with two decimals per value.
func (s SelfState) String() string {
	values := []float32{s.DegX, s.DegY, s.DegZ, s.VisionTX, s.VisionTY, s.VisionTZ, s.Height}

	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = fmt.Sprintf("%.2f", v)
	}
	return strings.Join(parts, " | ")
}

// FeaturePoint is a visual landmark detected by the feature query,
// in raw and in lens corrected pixel coordinates.
type FeaturePoint struct {
	RawX float32 `json:"rawX"`
	RawY float32 `json:"rawY"`
	X    float32 `json:"x"`
	Y    float32 `json:"y"`
}

// BlobMark is the centroid and size of the colour blob matched by the blob filter.
// Valid is false when the last query found nothing; the coordinates then hold
// the last known values.
type BlobMark struct {
	Valid bool    `json:"valid"`
	X     float32 `json:"x"`
	Y     float32 `json:"y"`
	Size  float32 `json:"size"`
}

// YUVRange is the colour window of the blob filter.
type YUVRange struct {
	MinY float32 `yaml:"minY" json:"minY"`
	MaxY float32 `yaml:"maxY" json:"maxY"`
	MinU float32 `yaml:"minU" json:"minU"`
	MaxU float32 `yaml:"maxU" json:"maxU"`
	MinV float32 `yaml:"minV" json:"minV"`
	MaxV float32 `yaml:"maxV" json:"maxV"`
}

// Validate checks that every channel window lies within 0..255 and is not inverted.
func (r YUVRange) Validate() error {
	channels := []struct {
		name     string
		min, max float32
	}{
		{"Y", r.MinY, r.MaxY},
		{"U", r.MinU, r.MaxU},
		{"V", r.MinV, r.MaxV},
	}
	for _, ch := range channels {
		if !IsFinite(ch.min) || !IsFinite(ch.max) {
			return fmt.Errorf("%s range must be finite", ch.name)
		}
		if ch.min < 0 || ch.max > 255 {
			return fmt.Errorf("%s range must be within 0..255: %.1f..%.1f given", ch.name, ch.min, ch.max)
		}
		if ch.min > ch.max {
			return fmt.Errorf("%s range is inverted: %.1f..%.1f given", ch.name, ch.min, ch.max)
		}
	}
	return nil
}

// IsFinite reports whether f is neither NaN nor an infinity.
func IsFinite(f float32) bool {
	v := float64(f)
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
