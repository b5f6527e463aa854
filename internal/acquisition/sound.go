package acquisition

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/roman-kulish/phenox-pilot/internal/phenox"
)

// SoundPollInterval is the default interval between sound polls.
const SoundPollInterval = 500 * time.Millisecond

// ErrTooManyPolls is returned when a capture did not complete within the
// configured number of polls.
var ErrTooManyPolls = errors.New("sound capture did not complete")

// WithSoundPollInterval sets the interval between sound polls
func WithSoundPollInterval(interval time.Duration) func(*SoundCapture) {
	return func(c *SoundCapture) {
		c.pollInterval = interval
	}
}

// WithMaxPolls bounds the number of polls of one capture. Zero polls until
// ctx is done.
func WithMaxPolls(n int) func(*SoundCapture) {
	return func(c *SoundCapture) {
		c.maxPolls = n
	}
}

// WithSoundLogger sets the logger for the capture
func WithSoundLogger(logger *slog.Logger) func(*SoundCapture) {
	return func(c *SoundCapture) {
		c.logger = componentLogger(logger, "sound")
	}
}

// SoundCapture is the one-shot sound request/poll cycle.
type SoundCapture struct {
	dev SoundDevice

	pollInterval time.Duration
	maxPolls     int

	logger *slog.Logger
}

func NewSoundCapture(dev SoundDevice, options ...func(*SoundCapture)) *SoundCapture {
	c := SoundCapture{
		dev:          dev,
		pollInterval: SoundPollInterval,
		logger:       componentLogger(nil, "sound"),
	}

	for _, option := range options {
		option(&c)
	}

	return &c
}

// Capture requests a recording of the given duration and polls until the
// samples arrive. A rejected request is a device fault.
func (c *SoundCapture) Capture(ctx context.Context, seconds float32) ([]int16, error) {
	accepted, err := c.dev.RequestSoundCapture(seconds)
	if err != nil {
		return nil, fmt.Errorf("requesting sound capture: %w", err)
	}
	if !accepted {
		return nil, phenox.NewDeviceFaultError("RequestSoundCapture", fmt.Errorf("request rejected"))
	}

	c.logger.Info("recording sound", slog.Float64("seconds", float64(seconds)))

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	var polls int
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}

		polls++
		samples, err := c.dev.PollSound(seconds)
		switch {
		case err == nil:
			c.logger.Info("sound captured", slog.Int("samples", len(samples)), slog.Int("polls", polls))
			return samples, nil

		case errors.Is(err, phenox.ErrNotReady):
			if c.maxPolls > 0 && polls >= c.maxPolls {
				return nil, fmt.Errorf("%w after %d polls", ErrTooManyPolls, polls)
			}

		default:
			return nil, fmt.Errorf("polling sound: %w", err)
		}
	}
}

// CaptureSound runs a single sound capture.
func CaptureSound(ctx context.Context, dev SoundDevice, seconds float32, options ...func(*SoundCapture)) ([]int16, error) {
	return NewSoundCapture(dev, options...).Capture(ctx, seconds)
}
