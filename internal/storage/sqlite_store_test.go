package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/roman-kulish/phenox-pilot/internal/flight"
	"github.com/roman-kulish/phenox-pilot/internal/phenox"
	"github.com/roman-kulish/phenox-pilot/internal/telemetry"
)

func newTestStore(t *testing.T) *SqliteStore {
	t.Helper()

	store := NewSqliteStore(filepath.Join(t.TempDir(), "flight.sqlite"))
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func snapshots(start time.Time, modes ...phenox.OperateMode) []*telemetry.Telemetry {
	batch := make([]*telemetry.Telemetry, len(modes))
	for i, mode := range modes {
		tick := uint64(i+1) * 3
		batch[i] = &telemetry.Telemetry{
			Timestamp: start.Add(time.Duration(i) * 30 * time.Millisecond),
			Tick:      tick,
			Mode:      mode,
			State: phenox.SelfState{
				DegX:     1.5,
				VisionTX: float32(i),
				VisionTY: float32(i) * 2,
				Height:   float32(i) * 50,
				Battery:  90,
			},
		}
	}
	return batch
}

func TestCreateSession(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	cfg := phenox.DefaultControlConfig()
	id, err := store.CreateSession(ctx, "run-1", "phenox-01", cfg)
	if err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}
	if _, err = store.CreateSession(ctx, "run-2", "phenox-02", nil); err != nil {
		t.Fatalf("Failed to create second session: %v", err)
	}

	sess, err := store.Session(ctx, id)
	if err != nil {
		t.Fatalf("Failed to read session: %v", err)
	}
	if sess.RunID != "run-1" || sess.Vehicle != "phenox-01" {
		t.Errorf("Expected run-1 on phenox-01, got %s on %s", sess.RunID, sess.Vehicle)
	}
	if sess.Config == nil {
		t.Error("Expected the configuration to be stored")
	}
	if sess.StartTime.IsZero() {
		t.Error("Expected a start time")
	}

	sessions, err := store.Sessions(ctx)
	if err != nil {
		t.Fatalf("Failed to list sessions: %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("Expected 2 sessions, got %d", len(sessions))
	}
	if sessions[1].Config != nil {
		t.Errorf("Expected no configuration, got %s", *sessions[1].Config)
	}
}

func TestCreateSessionDuplicateRunID(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	if _, err := store.CreateSession(ctx, "run-1", "phenox-01", `{"a":1}`); err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}
	if _, err := store.CreateSession(ctx, "run-1", "phenox-01", nil); err == nil {
		t.Error("Expected an error for a duplicate run ID")
	}
}

func TestStoreAndReadTelemetry(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	id, err := store.CreateSession(ctx, "run-1", "phenox-01", nil)
	if err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}

	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	batch := snapshots(start, phenox.ModeHalt, phenox.ModeUp, phenox.ModeHover, phenox.ModeHover, phenox.ModeDown)
	if err = store.StoreTelemetry(ctx, id, batch); err != nil {
		t.Fatalf("Failed to store telemetry: %v", err)
	}

	reader, err := store.ReadTelemetry(ctx, id)
	if err != nil {
		t.Fatalf("Failed to create reader: %v", err)
	}
	defer reader.Close()

	if reader.Session().RunID != "run-1" {
		t.Errorf("Expected session run-1, got %s", reader.Session().RunID)
	}

	var got []*flight.TelemetryRecord
	for reader.Next(ctx) {
		got = append(got, reader.Current())
	}
	if err = reader.Error(); err != nil {
		t.Fatalf("Failed to read telemetry: %v", err)
	}

	if len(got) != len(batch) {
		t.Fatalf("Expected %d records, got %d", len(batch), len(got))
	}
	for i, rec := range got {
		want := batch[i]
		if rec.Tick != want.Tick || rec.Mode != want.Mode {
			t.Errorf("Record %d: expected tick %d in %s, got tick %d in %s", i, want.Tick, want.Mode, rec.Tick, rec.Mode)
		}
		if rec.State != want.State {
			t.Errorf("Record %d: expected state %+v, got %+v", i, want.State, rec.State)
		}
		if !rec.Timestamp.Equal(want.Timestamp) {
			t.Errorf("Record %d: expected timestamp %s, got %s", i, want.Timestamp, rec.Timestamp)
		}
		if rec.SessionID != id {
			t.Errorf("Record %d: expected session %d, got %d", i, id, rec.SessionID)
		}
	}
}

func TestReadTelemetryFilters(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	id, err := store.CreateSession(ctx, "run-1", "phenox-01", nil)
	if err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}

	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	batch := snapshots(start, phenox.ModeHalt, phenox.ModeUp, phenox.ModeHover, phenox.ModeHover, phenox.ModeDown)
	if err = store.StoreTelemetry(ctx, id, batch); err != nil {
		t.Fatalf("Failed to store telemetry: %v", err)
	}

	tests := []struct {
		name     string
		opts     []ReaderOption
		expected []uint64
	}{
		{"modes", []ReaderOption{WithModes(phenox.ModeHover)}, []uint64{9, 12}},
		{"start time", []ReaderOption{WithStartTime(start.Add(90 * time.Millisecond))}, []uint64{12, 15}},
		{"end time", []ReaderOption{WithEndTime(start.Add(30 * time.Millisecond))}, []uint64{3, 6}},
		{"time range and mode", []ReaderOption{
			WithTimeRange(start.Add(30*time.Millisecond), start.Add(90*time.Millisecond)),
			WithModes(phenox.ModeUp, phenox.ModeDown),
		}, []uint64{6}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reader, err := store.ReadTelemetry(ctx, id, tt.opts...)
			if err != nil {
				t.Fatalf("Failed to create reader: %v", err)
			}
			defer reader.Close()

			var ticks []uint64
			for reader.Next(ctx) {
				ticks = append(ticks, reader.Current().Tick)
			}
			if err = reader.Error(); err != nil {
				t.Fatalf("Failed to read telemetry: %v", err)
			}

			if len(ticks) != len(tt.expected) {
				t.Fatalf("Expected ticks %v, got %v", tt.expected, ticks)
			}
			for i := range ticks {
				if ticks[i] != tt.expected[i] {
					t.Errorf("Expected ticks %v, got %v", tt.expected, ticks)
					break
				}
			}
		})
	}
}

func TestReadTelemetryInvalidRange(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	id, err := store.CreateSession(ctx, "run-1", "phenox-01", nil)
	if err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}

	now := time.Now()
	if _, err = store.ReadTelemetry(ctx, id, WithTimeRange(now, now.Add(-time.Second))); err == nil {
		t.Error("Expected an error for an inverted time range")
	}
	if _, err = store.ReadTelemetry(ctx, 999); err == nil {
		t.Error("Expected an error for an unknown session")
	}
}

func TestReadTelemetryEmptySession(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	id, err := store.CreateSession(ctx, "run-1", "phenox-01", nil)
	if err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}

	reader, err := store.ReadTelemetry(ctx, id)
	if err != nil {
		t.Fatalf("Failed to create reader: %v", err)
	}
	defer reader.Close()

	if reader.Next(ctx) {
		t.Error("Expected no telemetry")
	}
	if err = reader.Error(); err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
}

func TestStoreCapture(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	id, err := store.CreateSession(ctx, "run-1", "phenox-01", nil)
	if err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}

	camera, path := phenox.CameraBottom.String(), "/tmp/sound.raw"
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	captures := []*flight.Capture{
		{Timestamp: now, Kind: flight.CaptureFeatures, Camera: &camera, Count: 48},
		{Timestamp: now.Add(time.Second), Kind: flight.CaptureSound, Count: 30000, Path: &path, Bytes: 60000},
	}
	for _, c := range captures {
		if _, err = store.StoreCapture(ctx, id, c); err != nil {
			t.Fatalf("Failed to store capture: %v", err)
		}
	}

	got, err := store.Captures(ctx, id)
	if err != nil {
		t.Fatalf("Failed to read captures: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Expected 2 captures, got %d", len(got))
	}

	if got[0].Kind != flight.CaptureFeatures || got[0].Count != 48 || got[0].Camera == nil || *got[0].Camera != "bottom" {
		t.Errorf("Unexpected feature capture: %+v", got[0])
	}
	if got[0].Path != nil {
		t.Errorf("Expected no path, got %s", *got[0].Path)
	}
	if got[1].Kind != flight.CaptureSound || got[1].Bytes != 60000 || got[1].Path == nil || *got[1].Path != path {
		t.Errorf("Unexpected sound capture: %+v", got[1])
	}
	if !got[1].Timestamp.Equal(now.Add(time.Second)) {
		t.Errorf("Expected timestamp %s, got %s", now.Add(time.Second), got[1].Timestamp)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	store := NewSqliteStore(filepath.Join(t.TempDir(), "flight.sqlite"))
	if _, err := store.CreateSession(context.Background(), "run-1", "phenox-01", nil); err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}

	if err := store.Close(); err != nil {
		t.Fatalf("Failed to close store: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Errorf("Expected second close to succeed, got %v", err)
	}
}

func TestSqliteDatetimeScan(t *testing.T) {
	var d sqliteDatetime
	if err := d.Scan("2026-03-01 12:00:00.5+00:00"); err != nil {
		t.Fatalf("Failed to scan datetime: %v", err)
	}
	expected := time.Date(2026, 3, 1, 12, 0, 0, 500_000_000, time.UTC)
	if !d.Datetime.Equal(expected) {
		t.Errorf("Expected %s, got %s", expected, d.Datetime)
	}

	if err := d.Scan(""); err != nil || !d.Datetime.IsZero() {
		t.Errorf("Expected zero time for empty value, got %s (%v)", d.Datetime, err)
	}
	if err := d.Scan(42); err == nil {
		t.Error("Expected an error for an integer value")
	}
}
