package app

import (
	"testing"

	"github.com/roman-kulish/phenox-pilot/internal/phenox"
)

func TestConfigApply(t *testing.T) {
	c := NewConfig()
	c.OutputFile = "frame"

	if err := c.apply("Image", "bottom", "JPEG", 3); err != nil {
		t.Fatalf("Failed to apply flags: %v", err)
	}
	if c.Mode != ModeImage || c.Camera != phenox.CameraBottom {
		t.Errorf("Expected image mode on bottom camera, got %s on %s", c.Mode, c.Camera)
	}
	if c.OutputFile != "frame.jpeg" {
		t.Errorf("Expected output file frame.jpeg, got %s", c.OutputFile)
	}
}

func TestConfigApplySound(t *testing.T) {
	c := NewConfig()
	c.OutputFile = "clip"

	if err := c.apply("sound", "front", "png", 2.5); err != nil {
		t.Fatalf("Failed to apply flags: %v", err)
	}
	if c.Seconds != 2.5 || c.OutputFile != "clip.raw" {
		t.Errorf("Expected 2.5s into clip.raw, got %.1fs into %s", c.Seconds, c.OutputFile)
	}
}

func TestConfigApplyErrors(t *testing.T) {
	tests := []struct {
		name    string
		output  string
		mode    string
		camera  string
		format  string
		seconds float64
		blinks  int
	}{
		{"unknown mode", "out", "video", "front", "png", 1, 1},
		{"unknown camera", "out", "image", "rear", "png", 1, 1},
		{"unknown format", "out", "image", "front", "gif", 1, 1},
		{"missing output", "", "features", "front", "png", 1, 1},
		{"sound too long", "out", "sound", "front", "png", 60, 1},
		{"sound zero", "out", "sound", "front", "png", 0, 1},
		{"no blinks", "", "blink", "front", "png", 1, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewConfig()
			c.OutputFile = tt.output
			c.Blinks = tt.blinks

			if err := c.apply(tt.mode, tt.camera, tt.format, tt.seconds); err == nil {
				t.Error("Expected an error")
			}
		})
	}
}
