package safety

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"testing"
)

type recordingCommander struct {
	mu    sync.Mutex
	calls []string
	fail  map[string]error
}

func (c *recordingCommander) Run(_ context.Context, name string, args ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, strings.Join(append([]string{name}, args...), " "))
	return c.fail[name]
}

func TestShutdownSequence(t *testing.T) {
	var order []string
	cmd := &recordingCommander{}

	s := New(
		WithCommander(cmd),
		WithRelease(func() error {
			order = append(order, "release")
			return nil
		}),
	)

	if s.Triggered() {
		t.Fatal("Expected supervisor not to be triggered")
	}

	if err := s.Shutdown(context.Background()); err != nil {
		t.Fatalf("Failed to shut down: %v", err)
	}

	order = append(order, cmd.calls...)
	expected := []string{"release", "umount /mnt", "shutdown -h now"}
	if !slices.Equal(order, expected) {
		t.Errorf("Expected %v, got %v", expected, order)
	}
	if !s.Triggered() {
		t.Error("Expected supervisor to be triggered")
	}
}

func TestShutdownRunsOnce(t *testing.T) {
	cmd := &recordingCommander{}
	releases := 0

	s := New(WithCommander(cmd), WithRelease(func() error {
		releases++
		return nil
	}))

	for range 3 {
		if err := s.Shutdown(context.Background()); err != nil {
			t.Fatalf("Failed to shut down: %v", err)
		}
	}

	if releases != 1 {
		t.Errorf("Expected 1 release, got %d", releases)
	}
	if len(cmd.calls) != 2 {
		t.Errorf("Expected 2 commands, got %v", cmd.calls)
	}
}

func TestShutdownUnmountFailureStillPowersOff(t *testing.T) {
	unmountErr := errors.New("target is busy")
	cmd := &recordingCommander{fail: map[string]error{unmountRuntime: unmountErr}}

	s := New(WithCommander(cmd), WithMountPoint("/media/sd"))

	err := s.Shutdown(context.Background())
	if !errors.Is(err, unmountErr) {
		t.Fatalf("Expected unmount error, got %v", err)
	}

	expected := []string{"umount /media/sd", "shutdown -h now"}
	if !slices.Equal(cmd.calls, expected) {
		t.Errorf("Expected %v, got %v", expected, cmd.calls)
	}
}

func TestShutdownReleaseFailureStillPowersOff(t *testing.T) {
	releaseErr := errors.New("channel wedged")
	poweroffErr := errors.New("not permitted")
	cmd := &recordingCommander{fail: map[string]error{poweroffRuntime: poweroffErr}}

	s := New(WithCommander(cmd), WithRelease(func() error { return releaseErr }))

	err := s.Shutdown(context.Background())
	if !errors.Is(err, releaseErr) {
		t.Errorf("Expected release error, got %v", err)
	}
	if !errors.Is(err, poweroffErr) {
		t.Errorf("Expected poweroff error, got %v", err)
	}
	if len(cmd.calls) != 2 {
		t.Errorf("Expected 2 commands, got %v", cmd.calls)
	}
}

func TestShutdownDryRun(t *testing.T) {
	cmd := &recordingCommander{}

	s := New(WithCommander(cmd), WithDryRun(true))
	if err := s.Shutdown(context.Background()); err != nil {
		t.Fatalf("Failed to shut down: %v", err)
	}

	if len(cmd.calls) != 0 {
		t.Errorf("Expected no commands on dry run, got %v", cmd.calls)
	}
	if !s.Triggered() {
		t.Error("Expected supervisor to be triggered")
	}
}

func TestShutdownWithoutMountPoint(t *testing.T) {
	cmd := &recordingCommander{}

	s := New(WithCommander(cmd), WithMountPoint(""))
	if err := s.Shutdown(context.Background()); err != nil {
		t.Fatalf("Failed to shut down: %v", err)
	}

	if !slices.Equal(cmd.calls, []string{"shutdown -h now"}) {
		t.Errorf("Expected poweroff only, got %v", cmd.calls)
	}
}

func TestRuntimeError(t *testing.T) {
	cause := errors.New("exit status 32")
	err := NewRuntimeError("umount", "target is busy", cause)

	if err.Error() != "umount: target is busy: exit status 32" {
		t.Errorf("Unexpected message: %s", err.Error())
	}
	if !errors.Is(err, cause) {
		t.Error("Expected runtime error to wrap its cause")
	}
}
