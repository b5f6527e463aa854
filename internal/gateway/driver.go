package gateway

import (
	"github.com/roman-kulish/phenox-pilot/internal/phenox"
)

// Driver is the raw surface of the flight-control substrate. Every method is
// a direct call into the substrate; failures are reported through sentinel
// returns (false, nil) rather than errors, except for Init and Close.
//
// Implementations are not required to be safe for concurrent use: Gateway
// serializes every call.
type Driver interface {
	Init() error
	Close() error

	CPUReady() bool
	MotorStatus() bool

	SetConfig(cfg phenox.ControlConfig)
	Config() phenox.ControlConfig

	SelfState() phenox.SelfState
	SetKeepAlive()

	SetOperateMode(mode phenox.OperateMode)

	// OperateMode returns the raw mode value held by the substrate.
	OperateMode() int

	SetVisionTargetXY(tx, ty float32)
	SetRangeTargetZ(tz float32)
	SetDestinationAngle(axis phenox.Axis, deg float32)
	SetSelfPositionXY(tx, ty float32)

	RequestImageLine(camera phenox.CameraID)

	// Image returns the next complete frame, or false when no frame is ready.
	Image(camera phenox.CameraID) (*phenox.Frame, bool)

	// RequestFeatureQuery returns false while a previous query is in flight.
	RequestFeatureQuery(camera phenox.CameraID) bool

	// Features returns at most maxCount points, or false while the query is busy.
	Features(maxCount int) ([]phenox.FeaturePoint, bool)

	SetBlobFilter(camera phenox.CameraID, r phenox.YUVRange) bool
	BlobMark() phenox.BlobMark

	// WhistleDetected clears the flag when it reads true.
	WhistleDetected() bool
	ResetWhistle()

	SoundRecordState() int
	RequestSoundRecord(seconds float32) bool

	// Sound returns the captured samples, or false while recording.
	Sound(seconds float32) ([]int16, bool)

	SetLED(led phenox.LED, on bool)
	SetBuzzer(on bool)
	SetSystemLog()
	BatteryLow() bool
}
