// Package acquisition implements the request/poll cycles that fetch images,
// feature points, blob marks and sound from the device. Each cycle runs at
// its own cadence, independent of the control loop.
package acquisition

import (
	"errors"
	"io"
	"log/slog"

	"github.com/roman-kulish/phenox-pilot/internal/phenox"
)

// ImageDevice is the part of the device gateway used for image capture.
type ImageDevice interface {
	RequestImageLine(camera phenox.CameraID) error
	Image(camera phenox.CameraID) (*phenox.Frame, error)
}

// FeatureDevice is the part of the device gateway used for feature detection.
type FeatureDevice interface {
	RequestFeatureQuery(camera phenox.CameraID) (bool, error)
	PollFeatures(maxCount int) ([]phenox.FeaturePoint, error)
}

// BlobDevice is the part of the device gateway used for blob tracking.
type BlobDevice interface {
	SetBlobFilter(camera phenox.CameraID, r phenox.YUVRange) (bool, error)
	BlobMark() (phenox.BlobMark, error)
}

// SoundDevice is the part of the device gateway used for sound capture.
type SoundDevice interface {
	RequestSoundCapture(seconds float32) (bool, error)
	PollSound(seconds float32) ([]int16, error)
}

// Device is the complete acquisition surface of the device gateway.
type Device interface {
	ImageDevice
	FeatureDevice
	BlobDevice
	SoundDevice
}

// retryable reports whether a cycle may carry on after err. Substrate
// faults are retried at the next interval, except a wedged channel.
func retryable(err error) bool {
	return errors.Is(err, phenox.ErrDeviceFault) && !errors.Is(err, phenox.ErrChannelWedged)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil)) // nil logger
}

func componentLogger(logger *slog.Logger, component string) *slog.Logger {
	if logger == nil {
		logger = discardLogger()
	}
	return logger.With(slog.String("component", component))
}
