// Package safety powers the vehicle off after a serious fault. The sequence
// releases the device channel, unmounts external storage and halts the host.
package safety

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"sync/atomic"
)

const (
	// MountPoint is the default mount point of external storage.
	MountPoint = "/mnt"

	unmountRuntime  = "umount"
	poweroffRuntime = "shutdown"
)

// Commander runs a system command to completion.
type Commander interface {
	Run(ctx context.Context, name string, args ...string) error
}

// ExecCommander runs commands located by FindRuntime.
type ExecCommander struct{}

func (ExecCommander) Run(ctx context.Context, name string, args ...string) error {
	binPath, err := FindRuntime(name)
	if err != nil {
		return err
	}

	out, err := exec.CommandContext(ctx, binPath, args...).CombinedOutput()
	if err != nil {
		msg := strings.TrimSpace(string(out))
		if msg == "" {
			msg = "command failed"
		}
		return NewRuntimeError(name, msg, err)
	}

	return nil
}

// WithRelease sets the hook that releases the device channel
func WithRelease(release func() error) func(*Supervisor) {
	return func(s *Supervisor) {
		s.release = release
	}
}

// WithMountPoint sets the mount point to unmount before poweroff
func WithMountPoint(path string) func(*Supervisor) {
	return func(s *Supervisor) {
		s.mountPoint = path
	}
}

// WithDryRun logs the commands instead of running them
func WithDryRun(dryRun bool) func(*Supervisor) {
	return func(s *Supervisor) {
		s.dryRun = dryRun
	}
}

// WithCommander sets the command runner
func WithCommander(c Commander) func(*Supervisor) {
	return func(s *Supervisor) {
		s.commander = c
	}
}

// WithLogger sets the logger for the Supervisor
func WithLogger(logger *slog.Logger) func(*Supervisor) {
	return func(s *Supervisor) {
		s.logger = logger.With(slog.String("component", "safety"))
	}
}

type Supervisor struct {
	release    func() error
	mountPoint string
	dryRun     bool
	commander  Commander

	triggered atomic.Bool

	logger *slog.Logger
}

func New(options ...func(*Supervisor)) *Supervisor {
	s := Supervisor{
		mountPoint: MountPoint,
		commander:  ExecCommander{},
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)), // nil logger
	}

	for _, option := range options {
		option(&s)
	}

	return &s
}

// Shutdown runs the poweroff sequence. Only the first call has any effect.
// A failed release or unmount is logged and the sequence carries on.
func (s *Supervisor) Shutdown(ctx context.Context) error {
	if !s.triggered.CompareAndSwap(false, true) {
		return nil
	}

	s.logger.Warn("serious trouble, powering off", slog.String("mountPoint", s.mountPoint), slog.Bool("dryRun", s.dryRun))

	var errs []error

	if s.release != nil {
		if err := s.release(); err != nil {
			s.logger.Error("failed to release device channel", slog.String("error", err.Error()))
			errs = append(errs, fmt.Errorf("releasing device channel: %w", err))
		}
	}

	if s.mountPoint != "" {
		if err := s.run(ctx, unmountRuntime, s.mountPoint); err != nil {
			s.logger.Error("failed to unmount storage", slog.String("error", err.Error()))
			errs = append(errs, fmt.Errorf("unmounting %s: %w", s.mountPoint, err))
		}
	}

	if err := s.run(ctx, poweroffRuntime, "-h", "now"); err != nil {
		errs = append(errs, fmt.Errorf("powering off: %w", err))
	}

	return errors.Join(errs...)
}

// Triggered reports whether Shutdown was called.
func (s *Supervisor) Triggered() bool {
	return s.triggered.Load()
}

func (s *Supervisor) run(ctx context.Context, name string, args ...string) error {
	command := strings.Join(append([]string{name}, args...), " ")
	if s.dryRun {
		s.logger.Info("dry run", slog.String("command", command))
		return nil
	}

	s.logger.Info("running", slog.String("command", command))
	return s.commander.Run(ctx, name, args...)
}
