package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/roman-kulish/phenox-pilot/internal/flight"
	"github.com/roman-kulish/phenox-pilot/internal/phenox"
	"github.com/roman-kulish/phenox-pilot/internal/storage"
	"github.com/roman-kulish/phenox-pilot/internal/telemetry"
)

type memoryStore struct {
	mu        sync.Mutex
	batches   [][]*telemetry.Telemetry
	captures  []*flight.Capture
	block     chan struct{}
	failStore bool
}

var _ storage.Store = (*memoryStore)(nil)

func (m *memoryStore) CreateSession(context.Context, string, string, any) (int64, error) {
	return 1, nil
}

func (m *memoryStore) Session(context.Context, int64) (*flight.Session, error) {
	return &flight.Session{ID: 1}, nil
}

func (m *memoryStore) Sessions(context.Context) ([]*flight.Session, error) {
	return nil, nil
}

func (m *memoryStore) StoreTelemetry(_ context.Context, _ int64, batch []*telemetry.Telemetry) error {
	if m.block != nil {
		<-m.block
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failStore {
		return errors.New("disk full")
	}
	m.batches = append(m.batches, append([]*telemetry.Telemetry(nil), batch...))
	return nil
}

func (m *memoryStore) StoreCapture(_ context.Context, _ int64, c *flight.Capture) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.captures = append(m.captures, c)
	return int64(len(m.captures)), nil
}

func (m *memoryStore) Captures(context.Context, int64) ([]*flight.Capture, error) {
	return m.captures, nil
}

func (m *memoryStore) Close() error {
	return nil
}

func (m *memoryStore) snapshots() []*telemetry.Telemetry {
	m.mu.Lock()
	defer m.mu.Unlock()

	var all []*telemetry.Telemetry
	for _, b := range m.batches {
		all = append(all, b...)
	}
	return all
}

type countingPublisher struct {
	mu    sync.Mutex
	ticks []uint64
}

func (p *countingPublisher) Publish(t *telemetry.Telemetry) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.ticks = append(p.ticks, t.Tick)
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestFlightRecorderRecord(t *testing.T) {
	store := &memoryStore{}
	publisher := &countingPublisher{}
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	r := NewFlightRecorder(store, 1, WithLogger(testLogger()),
		WithPublisher(publisher),
		WithMaxBatchSize(2),
		WithClock(func() time.Time { return now }))

	for tick := uint64(3); tick <= 15; tick += 3 {
		r.Record(tick, phenox.SelfState{Height: float32(tick)}, phenox.ModeHover)
	}
	r.Close()

	got := store.snapshots()
	if len(got) != 5 {
		t.Fatalf("Expected 5 snapshots, got %d", len(got))
	}
	for i, s := range got {
		if want := uint64(i+1) * 3; s.Tick != want {
			t.Errorf("Snapshot %d: expected tick %d, got %d", i, want, s.Tick)
		}
		if s.Mode != phenox.ModeHover || !s.Timestamp.Equal(now) {
			t.Errorf("Snapshot %d: unexpected mode %s or timestamp %s", i, s.Mode, s.Timestamp)
		}
	}
	for _, b := range store.batches {
		if len(b) > 2 {
			t.Errorf("Expected batches of at most 2 snapshots, got %d", len(b))
		}
	}

	if len(publisher.ticks) != 5 {
		t.Errorf("Expected 5 published snapshots, got %d", len(publisher.ticks))
	}
	if r.Dropped() != 0 {
		t.Errorf("Expected no drops, got %d", r.Dropped())
	}
}

func TestFlightRecorderDropsWhenBacklogFull(t *testing.T) {
	store := &memoryStore{block: make(chan struct{})}
	r := NewFlightRecorder(store, 1, WithLogger(testLogger()), WithBacklog(1))

	// the writer holds the first snapshot, the backlog the second
	for tick := uint64(1); tick <= 10; tick++ {
		r.Record(tick, phenox.SelfState{}, phenox.ModeHalt)
	}
	if r.Dropped() == 0 {
		t.Error("Expected snapshots to be dropped")
	}

	close(store.block)
	r.Close()

	if got := uint64(len(store.snapshots())) + r.Dropped(); got != 10 {
		t.Errorf("Expected stored and dropped snapshots to add up to 10, got %d", got)
	}
}

func TestFlightRecorderCaptures(t *testing.T) {
	store := &memoryStore{}
	r := NewFlightRecorder(store, 1)

	r.RecordFeatures(phenox.CameraFront, make([]phenox.FeaturePoint, 12))
	onBlob := r.RecordBlob(phenox.CameraBottom)
	onBlob(phenox.BlobMark{Valid: false})
	onBlob(phenox.BlobMark{Valid: true, X: 10, Y: 20, Size: 42})
	r.Close()

	if len(store.captures) != 2 {
		t.Fatalf("Expected 2 captures, got %d", len(store.captures))
	}

	features, blob := store.captures[0], store.captures[1]
	if features.Kind != flight.CaptureFeatures || features.Count != 12 || *features.Camera != "front" {
		t.Errorf("Unexpected feature capture: %+v", features)
	}
	if blob.Kind != flight.CaptureBlob || blob.Count != 42 || *blob.Camera != "bottom" {
		t.Errorf("Unexpected blob capture: %+v", blob)
	}
}

func TestFlightRecorderStoreFailure(t *testing.T) {
	store := &memoryStore{failStore: true}
	r := NewFlightRecorder(store, 1, WithLogger(testLogger()))

	r.Record(1, phenox.SelfState{}, phenox.ModeHalt)
	r.Close()

	if len(store.snapshots()) != 0 {
		t.Error("Expected no stored snapshots")
	}
}

func TestFlightRecorderAfterClose(t *testing.T) {
	store := &memoryStore{}
	r := NewFlightRecorder(store, 1, WithLogger(testLogger()))
	r.Close()
	r.Close()

	r.Record(1, phenox.SelfState{}, phenox.ModeHalt)
	r.RecordCapture(&flight.Capture{Kind: flight.CaptureImage})

	if len(store.snapshots()) != 0 || len(store.captures) != 0 {
		t.Error("Expected records after close to be ignored")
	}
}
