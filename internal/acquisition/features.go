package acquisition

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/roman-kulish/phenox-pilot/internal/phenox"
)

const (
	// FeatureInterval is the default interval between feature cycle steps.
	FeatureInterval = time.Second

	// MaxFeatures is the default upper bound of points fetched per query.
	MaxFeatures = 200
)

const (
	FeatureIdle FeatureState = iota
	FeatureAwaiting
)

// FeatureState is the state of the feature request/poll cycle.
type FeatureState int

func (s FeatureState) String() string {
	switch s {
	case FeatureIdle:
		return "idle"
	case FeatureAwaiting:
		return "awaiting"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// WithFeatureInterval sets the interval between steps
func WithFeatureInterval(interval time.Duration) func(*FeatureTracker) {
	return func(t *FeatureTracker) {
		t.interval = interval
	}
}

// WithMaxFeatures sets the maximum number of points fetched per query
func WithMaxFeatures(n int) func(*FeatureTracker) {
	return func(t *FeatureTracker) {
		t.maxFeatures = n
	}
}

// WithOnFeatures sets the callback receiving each completed query
func WithOnFeatures(fn func(camera phenox.CameraID, points []phenox.FeaturePoint)) func(*FeatureTracker) {
	return func(t *FeatureTracker) {
		t.onFeatures = fn
	}
}

// WithFeatureLogger sets the logger for the tracker
func WithFeatureLogger(logger *slog.Logger) func(*FeatureTracker) {
	return func(t *FeatureTracker) {
		t.logger = logger
	}
}

// FeatureTracker runs the two-state feature cycle of one camera: request a
// query while idle, poll for its result while awaiting.
type FeatureTracker struct {
	dev    FeatureDevice
	camera phenox.CameraID

	interval    time.Duration
	maxFeatures int
	onFeatures  func(phenox.CameraID, []phenox.FeaturePoint)

	mu    sync.Mutex
	state FeatureState

	lastCount atomic.Int64
	captures  atomic.Uint64

	logger *slog.Logger
}

func NewFeatureTracker(dev FeatureDevice, camera phenox.CameraID, options ...func(*FeatureTracker)) *FeatureTracker {
	t := FeatureTracker{
		dev:         dev,
		camera:      camera,
		interval:    FeatureInterval,
		maxFeatures: MaxFeatures,
	}
	t.lastCount.Store(-1)

	for _, option := range options {
		option(&t)
	}

	t.logger = componentLogger(t.logger, "features").With(slog.String("camera", camera.String()))

	return &t
}

// Step performs one transition of the cycle.
func (t *FeatureTracker) Step() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch t.state {
	case FeatureIdle:
		accepted, err := t.dev.RequestFeatureQuery(t.camera)
		if err != nil {
			return fmt.Errorf("requesting feature query: %w", err)
		}
		if accepted {
			t.state = FeatureAwaiting
		}
		return nil

	case FeatureAwaiting:
		points, err := t.dev.PollFeatures(t.maxFeatures)
		if errors.Is(err, phenox.ErrNotReady) {
			return nil
		}
		if err != nil {
			t.state = FeatureIdle
			return fmt.Errorf("polling features: %w", err)
		}

		t.state = FeatureIdle
		t.lastCount.Store(int64(len(points)))
		t.captures.Add(1)

		t.logger.Debug("features captured", slog.Int("count", len(points)))

		if t.onFeatures != nil {
			t.onFeatures(t.camera, points)
		}
		return nil

	default:
		return fmt.Errorf("unknown feature state %d", t.state)
	}
}

// Run steps the cycle at the configured interval until ctx is done.
func (t *FeatureTracker) Run(ctx context.Context) error {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case <-ticker.C:
			if err := t.Step(); err != nil {
				if retryable(err) {
					t.logger.Warn("feature cycle failed", slog.String("error", err.Error()))
					continue
				}
				return err
			}
		}
	}
}

// State returns the current state of the cycle.
func (t *FeatureTracker) State() FeatureState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// LastCount returns the number of points of the last completed query, or -1
// if no query completed yet.
func (t *FeatureTracker) LastCount() int {
	return int(t.lastCount.Load())
}

// Captures returns the number of completed queries.
func (t *FeatureTracker) Captures() uint64 {
	return t.captures.Load()
}
