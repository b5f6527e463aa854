package app

import (
	"context"
	"io"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/roman-kulish/phenox-pilot/internal/flight"
	"github.com/roman-kulish/phenox-pilot/internal/phenox"
	"github.com/roman-kulish/phenox-pilot/internal/storage"
	"github.com/roman-kulish/phenox-pilot/internal/telemetry"
)

// Publisher receives every recorded snapshot for live clients.
type Publisher interface {
	Publish(t *telemetry.Telemetry) error
}

// WithLogger sets the logger for the recorder
func WithLogger(logger *slog.Logger) func(*FlightRecorder) {
	return func(r *FlightRecorder) {
		r.logger = logger.With(slog.String("component", "recorder"))
	}
}

// WithMaxBatchSize sets the maximum number of snapshots stored within a
// single database transaction
func WithMaxBatchSize(size int) func(*FlightRecorder) {
	return func(r *FlightRecorder) {
		r.maxBatchSize = size
	}
}

// WithPublisher sets the live telemetry publisher
func WithPublisher(p Publisher) func(*FlightRecorder) {
	return func(r *FlightRecorder) {
		r.publisher = p
	}
}

// WithBacklog sets the number of snapshots queued before new ones are dropped
func WithBacklog(size int) func(*FlightRecorder) {
	return func(r *FlightRecorder) {
		r.backlog = size
	}
}

// WithClock sets the clock stamping snapshots
func WithClock(now func() time.Time) func(*FlightRecorder) {
	return func(r *FlightRecorder) {
		r.now = now
	}
}

// FlightRecorder persists the telemetry snapshots and acquisition captures
// of a flight session. Record and RecordFeatures never block the caller;
// a background goroutine writes in batches.
type FlightRecorder struct {
	store     storage.Store
	sessionID int64
	publisher Publisher

	maxBatchSize int
	backlog      int
	now          func() time.Time

	snapshots chan *telemetry.Telemetry
	captures  chan *flight.Capture
	dropped   atomic.Uint64

	wg     sync.WaitGroup
	mu     sync.RWMutex
	closed bool

	logger *slog.Logger
}

// NewFlightRecorder creates a recorder and starts its writer.
func NewFlightRecorder(store storage.Store, sessionID int64, options ...func(*FlightRecorder)) *FlightRecorder {
	r := FlightRecorder{
		store:        store,
		sessionID:    sessionID,
		maxBatchSize: defaultMaxBatchSize,
		backlog:      defaultRecordBacklog,
		now:          time.Now,
		logger:       slog.New(slog.NewTextHandler(io.Discard, nil)), // nil logger
	}

	for _, option := range options {
		option(&r)
	}

	r.snapshots = make(chan *telemetry.Telemetry, r.backlog)
	r.captures = make(chan *flight.Capture, r.backlog)

	r.wg.Add(1)
	go r.write()

	return &r
}

// Record queues a telemetry snapshot and publishes it to live clients.
func (r *FlightRecorder) Record(tick uint64, state phenox.SelfState, mode phenox.OperateMode) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return
	}

	t := &telemetry.Telemetry{
		Timestamp: r.now().UTC(),
		Tick:      tick,
		Mode:      mode,
		State:     state,
	}

	if r.publisher != nil {
		if err := r.publisher.Publish(t); err != nil {
			r.logger.Debug("failed to publish snapshot", slog.String("error", err.Error()))
		}
	}

	select {
	case r.snapshots <- t:
	default:
		r.dropped.Add(1)
	}
}

// RecordFeatures queues a feature capture record.
func (r *FlightRecorder) RecordFeatures(camera phenox.CameraID, points []phenox.FeaturePoint) {
	name := camera.String()
	r.RecordCapture(&flight.Capture{
		Timestamp: r.now().UTC(),
		Kind:      flight.CaptureFeatures,
		Camera:    &name,
		Count:     len(points),
	})
}

// RecordBlob queues a blob capture record for a valid mark.
func (r *FlightRecorder) RecordBlob(camera phenox.CameraID) func(phenox.BlobMark) {
	name := camera.String()
	return func(m phenox.BlobMark) {
		if !m.Valid {
			return
		}
		r.RecordCapture(&flight.Capture{
			Timestamp: r.now().UTC(),
			Kind:      flight.CaptureBlob,
			Camera:    &name,
			Count:     int(m.Size),
		})
	}
}

// RecordCapture queues a capture record.
func (r *FlightRecorder) RecordCapture(c *flight.Capture) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return
	}

	select {
	case r.captures <- c:
	default:
		r.dropped.Add(1)
	}
}

// Dropped returns the number of records dropped because the backlog was full.
func (r *FlightRecorder) Dropped() uint64 {
	return r.dropped.Load()
}

// Close stops accepting records and waits for queued ones to be written.
func (r *FlightRecorder) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	close(r.snapshots)
	close(r.captures)
	r.mu.Unlock()

	r.wg.Wait()

	if n := r.dropped.Load(); n > 0 {
		r.logger.Warn("records dropped", slog.Uint64("count", n))
	}
}

func (r *FlightRecorder) write() {
	defer r.wg.Done()

	ctx := context.Background()
	snapshots, captures := r.snapshots, r.captures
	batch := make([]*telemetry.Telemetry, 0, r.maxBatchSize)

	for snapshots != nil || captures != nil {
		select {
		case t, ok := <-snapshots:
			if !ok {
				snapshots = nil
				continue
			}

			batch = append(batch, t)

			// drain whatever else is queued into the same batch
			for len(batch) < r.maxBatchSize && len(snapshots) > 0 {
				batch = append(batch, <-snapshots)
			}
			r.storeTelemetry(ctx, batch)
			batch = batch[:0]

		case c, ok := <-captures:
			if !ok {
				captures = nil
				continue
			}
			if _, err := r.store.StoreCapture(ctx, r.sessionID, c); err != nil {
				r.logger.Error("failed to store capture", slog.String("error", err.Error()))
			}
		}
	}
}

func (r *FlightRecorder) storeTelemetry(ctx context.Context, batch []*telemetry.Telemetry) {
	for chunk := range slices.Chunk(batch, r.maxBatchSize) {
		if err := r.store.StoreTelemetry(ctx, r.sessionID, chunk); err != nil {
			r.logger.Error("failed to store telemetry", slog.String("error", err.Error()))
		}
	}
}
