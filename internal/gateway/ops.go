package gateway

import (
	"fmt"

	"github.com/roman-kulish/phenox-pilot/internal/phenox"
)

// MotorStatus reports whether the motors are rotating.
func (g *Gateway) MotorStatus() (bool, error) {
	return call(g, "MotorStatus", g.driver.MotorStatus)
}

// SetConfig pushes the control configuration to the substrate.
func (g *Gateway) SetConfig(cfg phenox.ControlConfig) error {
	if err := cfg.Validate(); err != nil {
		return phenox.NewInvalidArgumentError("SetConfig", "%s", err)
	}
	return do(g, "SetConfig", func() { g.driver.SetConfig(cfg) })
}

// Config reads back the active control configuration.
func (g *Gateway) Config() (phenox.ControlConfig, error) {
	return call(g, "Config", g.driver.Config)
}

func (g *Gateway) SelfState() (phenox.SelfState, error) {
	return call(g, "SelfState", g.driver.SelfState)
}

// SetKeepAlive signals host liveness to the firmware.
func (g *Gateway) SetKeepAlive() error {
	return do(g, "SetKeepAlive", g.driver.SetKeepAlive)
}

func (g *Gateway) SetOperateMode(mode phenox.OperateMode) error {
	if !mode.Valid() {
		return phenox.NewInvalidArgumentError("SetOperateMode", "unknown operate mode %d", int(mode))
	}
	return do(g, "SetOperateMode", func() { g.driver.SetOperateMode(mode) })
}

// OperateMode returns the mode held by the substrate. A value outside the
// known modes is reported as a device fault.
func (g *Gateway) OperateMode() (phenox.OperateMode, error) {
	raw, err := call(g, "OperateMode", g.driver.OperateMode)
	if err != nil {
		return phenox.ModeHalt, err
	}

	mode := phenox.OperateMode(raw)
	if !mode.Valid() {
		return phenox.ModeHalt, phenox.NewDeviceFaultError("OperateMode", fmt.Errorf("unknown operate mode %d reported", raw))
	}
	return mode, nil
}

// SetVisionTargetXY sets the horizontal station-keeping setpoint.
func (g *Gateway) SetVisionTargetXY(tx, ty float32) error {
	if err := finite("SetVisionTargetXY", tx, ty); err != nil {
		return err
	}
	return do(g, "SetVisionTargetXY", func() { g.driver.SetVisionTargetXY(tx, ty) })
}

// SetRangeTargetZ sets the height setpoint in centimetres.
func (g *Gateway) SetRangeTargetZ(tz float32) error {
	if err := finite("SetRangeTargetZ", tz); err != nil {
		return err
	}
	return do(g, "SetRangeTargetZ", func() { g.driver.SetRangeTargetZ(tz) })
}

func (g *Gateway) SetDestinationAngle(axis phenox.Axis, deg float32) error {
	if !axis.Valid() {
		return phenox.NewInvalidArgumentError("SetDestinationAngle", "unknown axis %d", int(axis))
	}
	if err := finite("SetDestinationAngle", deg); err != nil {
		return err
	}
	return do(g, "SetDestinationAngle", func() { g.driver.SetDestinationAngle(axis, deg) })
}

// SetDestinationAngles sets pitch, roll and yaw destinations in one call.
// Either all three are applied or, on a validation error, none.
func (g *Gateway) SetDestinationAngles(x, y, z float32) error {
	if err := finite("SetDestinationAngles", x, y, z); err != nil {
		return err
	}
	return do(g, "SetDestinationAngles", func() {
		g.driver.SetDestinationAngle(phenox.AxisX, x)
		g.driver.SetDestinationAngle(phenox.AxisY, y)
		g.driver.SetDestinationAngle(phenox.AxisZ, z)
	})
}

func (g *Gateway) SetSelfPositionXY(tx, ty float32) error {
	if err := finite("SetSelfPositionXY", tx, ty); err != nil {
		return err
	}
	return do(g, "SetSelfPositionXY", func() { g.driver.SetSelfPositionXY(tx, ty) })
}

// RequestImageLine advances the progressive fill of the image buffer. It has
// to be called at a steady cadence for frames to complete.
func (g *Gateway) RequestImageLine(camera phenox.CameraID) error {
	if err := validCamera("RequestImageLine", camera); err != nil {
		return err
	}
	return do(g, "RequestImageLine", func() { g.driver.RequestImageLine(camera) })
}

// Image returns the next complete frame or ErrNotReady. It never blocks on
// the camera.
func (g *Gateway) Image(camera phenox.CameraID) (*phenox.Frame, error) {
	if err := validCamera("Image", camera); err != nil {
		return nil, err
	}

	type result struct {
		frame *phenox.Frame
		ok    bool
	}
	r, err := call(g, "Image", func() result {
		f, ok := g.driver.Image(camera)
		return result{f, ok}
	})
	if err != nil {
		return nil, err
	}
	if !r.ok || r.frame == nil {
		return nil, phenox.ErrNotReady
	}
	return r.frame, nil
}

// RequestFeatureQuery starts a feature detection on the given camera. It
// returns false when a previous query is still in flight; requests are not queued.
func (g *Gateway) RequestFeatureQuery(camera phenox.CameraID) (bool, error) {
	if err := validCamera("RequestFeatureQuery", camera); err != nil {
		return false, err
	}
	return call(g, "RequestFeatureQuery", func() bool { return g.driver.RequestFeatureQuery(camera) })
}

// PollFeatures returns at most maxCount detected points, or ErrNotReady while
// the query is busy.
func (g *Gateway) PollFeatures(maxCount int) ([]phenox.FeaturePoint, error) {
	if maxCount <= 0 {
		return nil, phenox.NewInvalidArgumentError("PollFeatures", "maxCount must be positive: %d given", maxCount)
	}

	type result struct {
		points []phenox.FeaturePoint
		ok     bool
	}
	r, err := call(g, "PollFeatures", func() result {
		p, ok := g.driver.Features(maxCount)
		return result{p, ok}
	})
	if err != nil {
		return nil, err
	}
	if !r.ok {
		return nil, phenox.ErrNotReady
	}
	if len(r.points) > maxCount {
		r.points = r.points[:maxCount]
	}
	return r.points, nil
}

// SetBlobFilter configures the colour blob filter. It returns false when the
// substrate rejected the query.
func (g *Gateway) SetBlobFilter(camera phenox.CameraID, r phenox.YUVRange) (bool, error) {
	if err := validCamera("SetBlobFilter", camera); err != nil {
		return false, err
	}
	if err := r.Validate(); err != nil {
		return false, phenox.NewInvalidArgumentError("SetBlobFilter", "%s", err)
	}
	return call(g, "SetBlobFilter", func() bool { return g.driver.SetBlobFilter(camera, r) })
}

// BlobMark returns the last blob mark. There is no "not ready" state: an
// unmatched query is reported through BlobMark.Valid.
func (g *Gateway) BlobMark() (phenox.BlobMark, error) {
	return call(g, "BlobMark", g.driver.BlobMark)
}

// ConsumeWhistleEdge reports whether a whistle was detected since the last
// call. The substrate clears the flag when it reads true, so a true result is
// delivered exactly once; callers must not reset the flag afterwards.
func (g *Gateway) ConsumeWhistleEdge() (bool, error) {
	return call(g, "ConsumeWhistleEdge", g.driver.WhistleDetected)
}

// ResetWhistleFlag discards a pending whistle edge. It is meant for arming
// time only, never after ConsumeWhistleEdge.
func (g *Gateway) ResetWhistleFlag() error {
	return do(g, "ResetWhistleFlag", g.driver.ResetWhistle)
}

func (g *Gateway) SoundRecordState() (int, error) {
	return call(g, "SoundRecordState", g.driver.SoundRecordState)
}

// RequestSoundCapture starts a recording of the given duration. It returns
// false when the substrate rejected the request.
func (g *Gateway) RequestSoundCapture(seconds float32) (bool, error) {
	if _, err := phenox.SoundSamples(seconds); err != nil {
		return false, phenox.NewInvalidArgumentError("RequestSoundCapture", "%s", err)
	}
	return call(g, "RequestSoundCapture", func() bool { return g.driver.RequestSoundRecord(seconds) })
}

// PollSound returns the captured PCM samples, or ErrNotReady while the
// recording is in progress.
func (g *Gateway) PollSound(seconds float32) ([]int16, error) {
	n, err := phenox.SoundSamples(seconds)
	if err != nil {
		return nil, phenox.NewInvalidArgumentError("PollSound", "%s", err)
	}

	type result struct {
		samples []int16
		ok      bool
	}
	r, err := call(g, "PollSound", func() result {
		s, ok := g.driver.Sound(seconds)
		return result{s, ok}
	})
	if err != nil {
		return nil, err
	}
	if !r.ok || len(r.samples) == 0 {
		return nil, phenox.ErrNotReady
	}
	if len(r.samples) != n {
		return nil, phenox.NewDeviceFaultError("PollSound", fmt.Errorf("expected %d samples, got %d", n, len(r.samples)))
	}
	return r.samples, nil
}

func (g *Gateway) SetLED(led phenox.LED, on bool) error {
	if !led.Valid() {
		return phenox.NewInvalidArgumentError("SetLED", "unknown LED %d", int(led))
	}
	return do(g, "SetLED", func() { g.driver.SetLED(led, on) })
}

func (g *Gateway) SetBuzzer(on bool) error {
	return do(g, "SetBuzzer", func() { g.driver.SetBuzzer(on) })
}

// LogSystemEvent asks the firmware to append an entry to its system log.
func (g *Gateway) LogSystemEvent() error {
	return do(g, "LogSystemEvent", g.driver.SetSystemLog)
}

// BatteryLow reports whether the battery voltage is low.
func (g *Gateway) BatteryLow() (bool, error) {
	return call(g, "BatteryLow", g.driver.BatteryLow)
}

func validCamera(op string, camera phenox.CameraID) error {
	if !camera.Valid() {
		return phenox.NewInvalidArgumentError(op, "unknown camera %d", int(camera))
	}
	return nil
}

func finite(op string, values ...float32) error {
	for _, v := range values {
		if !phenox.IsFinite(v) {
			return phenox.NewInvalidArgumentError(op, "value must be finite: %v given", v)
		}
	}
	return nil
}
