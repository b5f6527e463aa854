package acquisition

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/roman-kulish/phenox-pilot/internal/phenox"
)

const (
	// ImageInterval is the default cadence of image line requests.
	ImageInterval = 10 * time.Millisecond

	// GrabInterval is the default interval between image polls in Grab.
	GrabInterval = time.Millisecond
)

// WithImageInterval sets the cadence of image line requests
func WithImageInterval(interval time.Duration) func(*ImageStreamer) {
	return func(s *ImageStreamer) {
		s.interval = interval
	}
}

// WithGrabInterval sets the interval between image polls
func WithGrabInterval(interval time.Duration) func(*ImageStreamer) {
	return func(s *ImageStreamer) {
		s.grabInterval = interval
	}
}

// WithImageLogger sets the logger for the streamer
func WithImageLogger(logger *slog.Logger) func(*ImageStreamer) {
	return func(s *ImageStreamer) {
		s.logger = logger
	}
}

// ImageStreamer keeps the image buffer of one camera filling and hands out
// complete frames.
type ImageStreamer struct {
	dev    ImageDevice
	camera phenox.CameraID

	interval     time.Duration
	grabInterval time.Duration

	requests atomic.Uint64
	misses   atomic.Uint64

	logger *slog.Logger
}

func NewImageStreamer(dev ImageDevice, camera phenox.CameraID, options ...func(*ImageStreamer)) *ImageStreamer {
	s := ImageStreamer{
		dev:          dev,
		camera:       camera,
		interval:     ImageInterval,
		grabInterval: GrabInterval,
	}

	for _, option := range options {
		option(&s)
	}

	s.logger = componentLogger(s.logger, "image").With(slog.String("camera", camera.String()))

	return &s
}

// Run requests image lines at the configured cadence until ctx is done.
func (s *ImageStreamer) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Debug("image streaming started", slog.Duration("interval", s.interval))

	for {
		select {
		case <-ctx.Done():
			s.logger.Debug("image streaming stopped", slog.Uint64("requests", s.requests.Load()))
			return nil

		case <-ticker.C:
			if err := s.dev.RequestImageLine(s.camera); err != nil {
				if retryable(err) {
					s.logger.Warn("image line request failed", slog.String("error", err.Error()))
					continue
				}
				return fmt.Errorf("requesting image line: %w", err)
			}
			s.requests.Add(1)
		}
	}
}

// Grab polls for the next complete frame until one arrives or ctx is done.
// It returns the frame and the number of polls that found no frame.
func (s *ImageStreamer) Grab(ctx context.Context) (*phenox.Frame, int, error) {
	ticker := time.NewTicker(s.grabInterval)
	defer ticker.Stop()

	var failed int
	for {
		f, err := s.dev.Image(s.camera)
		switch {
		case err == nil:
			s.logger.Debug("frame grabbed", slog.Int("failedPolls", failed))
			return f, failed, nil

		case errors.Is(err, phenox.ErrNotReady):
			failed++
			s.misses.Add(1)

		default:
			return nil, failed, fmt.Errorf("polling image: %w", err)
		}

		select {
		case <-ctx.Done():
			return nil, failed, ctx.Err()
		case <-ticker.C:
		}
	}
}

// Requests returns the number of image lines requested so far.
func (s *ImageStreamer) Requests() uint64 {
	return s.requests.Load()
}

// Misses returns the number of image polls that found no frame.
func (s *ImageStreamer) Misses() uint64 {
	return s.misses.Load()
}
