package acquisition

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/roman-kulish/phenox-pilot/internal/phenox"
)

// BlobInterval is the default interval between blob mark polls.
const BlobInterval = 100 * time.Millisecond

// WithBlobInterval sets the interval between blob mark polls
func WithBlobInterval(interval time.Duration) func(*BlobTracker) {
	return func(t *BlobTracker) {
		t.interval = interval
	}
}

// WithOnBlob sets the callback receiving every polled mark
func WithOnBlob(fn func(phenox.BlobMark)) func(*BlobTracker) {
	return func(t *BlobTracker) {
		t.onBlob = fn
	}
}

// WithBlobLogger sets the logger for the tracker
func WithBlobLogger(logger *slog.Logger) func(*BlobTracker) {
	return func(t *BlobTracker) {
		t.logger = logger
	}
}

// BlobTracker sets the colour filter once and then follows the blob mark.
type BlobTracker struct {
	dev    BlobDevice
	camera phenox.CameraID
	filter phenox.YUVRange

	interval time.Duration
	onBlob   func(phenox.BlobMark)

	mu   sync.Mutex
	last phenox.BlobMark

	logger *slog.Logger
}

func NewBlobTracker(dev BlobDevice, camera phenox.CameraID, filter phenox.YUVRange, options ...func(*BlobTracker)) *BlobTracker {
	t := BlobTracker{
		dev:      dev,
		camera:   camera,
		filter:   filter,
		interval: BlobInterval,
	}

	for _, option := range options {
		option(&t)
	}

	t.logger = componentLogger(t.logger, "blob").With(slog.String("camera", camera.String()))

	return &t
}

// Run sets the filter and polls the mark at the configured interval until
// ctx is done. A rejected filter is a device fault.
func (t *BlobTracker) Run(ctx context.Context) error {
	accepted, err := t.dev.SetBlobFilter(t.camera, t.filter)
	if err != nil {
		return fmt.Errorf("setting blob filter: %w", err)
	}
	if !accepted {
		return phenox.NewDeviceFaultError("SetBlobFilter", fmt.Errorf("filter rejected"))
	}

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case <-ticker.C:
			mark, err := t.dev.BlobMark()
			if err != nil {
				if retryable(err) {
					t.logger.Warn("blob poll failed", slog.String("error", err.Error()))
					continue
				}
				return fmt.Errorf("polling blob mark: %w", err)
			}

			t.mu.Lock()
			t.last = mark
			t.mu.Unlock()

			if t.onBlob != nil {
				t.onBlob(mark)
			}
		}
	}
}

// Last returns the last polled mark.
func (t *BlobTracker) Last() phenox.BlobMark {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.last
}
