package app

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/roman-kulish/phenox-pilot/internal/flight"
	"github.com/roman-kulish/phenox-pilot/internal/phenox"
	"github.com/roman-kulish/phenox-pilot/internal/storage"
	"github.com/roman-kulish/phenox-pilot/internal/telemetry"
)

func seedStore(t *testing.T) string {
	t.Helper()

	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "flight.sqlite")
	store := storage.NewSqliteStore(path)
	defer store.Close()

	id, err := store.CreateSession(ctx, "run-1", "phenox-01", nil)
	if err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}

	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	modes := []phenox.OperateMode{phenox.ModeHalt, phenox.ModeUp, phenox.ModeHover, phenox.ModeDown}
	batch := make([]*telemetry.Telemetry, len(modes))
	for i, mode := range modes {
		batch[i] = &telemetry.Telemetry{
			Timestamp: start.Add(time.Duration(i) * time.Second),
			Tick:      uint64(i+1) * 3,
			Mode:      mode,
			State:     phenox.SelfState{Height: float32(i) * 60, Battery: 90 - i},
		}
	}
	if err = store.StoreTelemetry(ctx, id, batch); err != nil {
		t.Fatalf("Failed to store telemetry: %v", err)
	}

	camera := "bottom"
	if _, err = store.StoreCapture(ctx, id, &flight.Capture{Timestamp: start, Kind: flight.CaptureFeatures, Camera: &camera, Count: 1200}); err != nil {
		t.Fatalf("Failed to store capture: %v", err)
	}

	return path
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRunListSessions(t *testing.T) {
	config := &Config{DBPath: seedStore(t)}

	var out bytes.Buffer
	if err := Run(context.Background(), config, &out, testLogger()); err != nil {
		t.Fatalf("Failed to list sessions: %v", err)
	}

	if !strings.Contains(out.String(), "run-1") || !strings.Contains(out.String(), "vehicle defaults") {
		t.Errorf("Unexpected session list:\n%s", out.String())
	}
}

func TestRunDumpTelemetry(t *testing.T) {
	config := &Config{DBPath: seedStore(t), SessionID: 1}
	if err := config.apply("hover,down", "", ""); err != nil {
		t.Fatalf("Failed to apply flags: %v", err)
	}

	var out bytes.Buffer
	if err := Run(context.Background(), config, &out, testLogger()); err != nil {
		t.Fatalf("Failed to dump telemetry: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("Expected a header and 2 rows, got:\n%s", out.String())
	}
	if !strings.Contains(lines[1], "hover") || !strings.Contains(lines[2], "down") {
		t.Errorf("Unexpected telemetry rows:\n%s", out.String())
	}
}

func TestRunListCaptures(t *testing.T) {
	config := &Config{DBPath: seedStore(t), SessionID: 1, Captures: true}

	var out bytes.Buffer
	if err := Run(context.Background(), config, &out, testLogger()); err != nil {
		t.Fatalf("Failed to list captures: %v", err)
	}

	if !strings.Contains(out.String(), "features") || !strings.Contains(out.String(), "1,200") {
		t.Errorf("Unexpected capture list:\n%s", out.String())
	}
}

func TestRunMissingDatabase(t *testing.T) {
	config := &Config{DBPath: filepath.Join(t.TempDir(), "missing.sqlite")}
	if err := Run(context.Background(), config, io.Discard, testLogger()); err == nil {
		t.Error("Expected an error for a missing database")
	}
}

func TestConfigApply(t *testing.T) {
	c := &Config{DBPath: "flight.sqlite"}
	if err := c.apply("Hover", "2026-03-01 12:00:00", ""); err != nil {
		t.Fatalf("Failed to apply flags: %v", err)
	}
	if len(c.Modes) != 1 || c.Modes[0] != phenox.ModeHover {
		t.Errorf("Expected hover mode, got %v", c.Modes)
	}
	if c.MinTimestamp == nil || c.MaxTimestamp != nil {
		t.Errorf("Expected only a start time, got %v and %v", c.MinTimestamp, c.MaxTimestamp)
	}

	for _, bad := range [][3]string{{"sideways", "", ""}, {"", "yesterday", ""}, {"", "", "12:00"}} {
		c := &Config{DBPath: "flight.sqlite"}
		if err := c.apply(bad[0], bad[1], bad[2]); err == nil {
			t.Errorf("Expected an error for %v", bad)
		}
	}
	if err := (&Config{}).apply("", "", ""); err == nil {
		t.Error("Expected an error without a db path")
	}
}
