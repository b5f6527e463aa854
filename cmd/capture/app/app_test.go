package app

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/roman-kulish/phenox-pilot/internal/gateway"
	"github.com/roman-kulish/phenox-pilot/internal/gateway/sim"
	"github.com/roman-kulish/phenox-pilot/internal/phenox"
)

func readyGateway(t *testing.T, simulator *sim.Simulator) *gateway.Gateway {
	t.Helper()

	gw := gateway.New(simulator)
	if err := gw.Initialize(); err != nil {
		t.Fatalf("Failed to initialize gateway: %v", err)
	}
	t.Cleanup(func() { _ = gw.Shutdown() })

	if err := gw.WaitReady(context.Background()); err != nil {
		t.Fatalf("Failed to wait for device: %v", err)
	}
	return gw
}

func TestBlink(t *testing.T) {
	simulator := sim.New()
	gw := readyGateway(t, simulator)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	if err := blink(context.Background(), gw, 1, true, logger); err != nil {
		t.Fatalf("Failed to blink: %v", err)
	}

	if simulator.LED(phenox.LEDGreen) || simulator.Buzzer() {
		t.Error("Expected the LED and buzzer to be switched off")
	}
}

func TestCaptureFeatures(t *testing.T) {
	simulator := sim.New()
	gw := readyGateway(t, simulator)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	points, err := captureFeatures(context.Background(), gw, phenox.CameraBottom, logger)
	if err != nil {
		t.Fatalf("Failed to capture features: %v", err)
	}
	if len(points) == 0 {
		t.Error("Expected feature points")
	}
}
