// Package control implements the periodic control loop of the autohover
// program: a fixed-rate, re-entrancy guarded tick that keeps the firmware
// alive, follows the flight mode state machine and shuts the vehicle down
// safely.
package control

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/roman-kulish/phenox-pilot/internal/phenox"
)

const (
	// Period is the default tick period.
	Period = 10 * time.Millisecond

	// TelemetryEvery is the default number of ticks between telemetry lines.
	TelemetryEvery = 3

	// TakeoffHeight is the default height target in centimetres set before
	// a whistle initiated takeoff.
	TakeoffHeight = 150.0
)

// ErrAlreadyRunning is returned by Run when the loop is already running.
var ErrAlreadyRunning = errors.New("control loop is already running")

// Device is the part of the device gateway used by the loop.
type Device interface {
	SetKeepAlive() error
	LogSystemEvent() error
	SelfState() (phenox.SelfState, error)
	OperateMode() (phenox.OperateMode, error)
	SetOperateMode(mode phenox.OperateMode) error
	SetVisionTargetXY(tx, ty float32) error
	SetRangeTargetZ(tz float32) error
	ConsumeWhistleEdge() (bool, error)
	BatteryLow() (bool, error)
}

// Recorder receives every telemetry snapshot emitted by the loop. Record is
// called from the tick and must not block.
type Recorder interface {
	Record(tick uint64, state phenox.SelfState, mode phenox.OperateMode)
}

// Supervisor runs the terminal shutdown sequence.
type Supervisor interface {
	Shutdown(ctx context.Context) error
}

// WithPeriod sets the tick period
func WithPeriod(period time.Duration) func(*Loop) {
	return func(l *Loop) {
		l.period = period
	}
}

// WithTelemetryEvery sets the number of ticks between telemetry snapshots
func WithTelemetryEvery(n uint64) func(*Loop) {
	return func(l *Loop) {
		l.telemetryEvery = max(1, n)
	}
}

// WithTakeoffHeight sets the height target of a whistle initiated takeoff
func WithTakeoffHeight(height float32) func(*Loop) {
	return func(l *Loop) {
		l.takeoffHeight = height
	}
}

// WithRecorder sets the recorder of telemetry snapshots
func WithRecorder(r Recorder) func(*Loop) {
	return func(l *Loop) {
		l.recorder = r
	}
}

// WithSupervisor sets the supervisor triggered when the loop stops in serious trouble
func WithSupervisor(s Supervisor) func(*Loop) {
	return func(l *Loop) {
		l.supervisor = s
	}
}

// WithLogger sets the logger for the loop
func WithLogger(logger *slog.Logger) func(*Loop) {
	return func(l *Loop) {
		l.logger = logger.With(slog.String("component", "control"))
	}
}

// Loop is the periodic control loop.
type Loop struct {
	device     Device
	recorder   Recorder
	supervisor Supervisor

	period         time.Duration
	telemetryEvery uint64
	takeoffHeight  float32

	state   State
	running atomic.Bool

	mu          sync.Mutex
	cancel      context.CancelFunc
	stopPending bool // Stop was called while the loop was not running

	logger *slog.Logger
}

// New creates a stopped Loop over the given device.
func New(device Device, options ...func(*Loop)) *Loop {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil)) // nil logger

	l := Loop{
		device:         device,
		period:         Period,
		telemetryEvery: TelemetryEvery,
		takeoffHeight:  TakeoffHeight,
		logger:         logger,
	}
	l.state.prevMode = phenox.ModeHalt

	for _, option := range options {
		option(&l)
	}

	return &l
}

// State returns the loop state.
func (l *Loop) State() *State {
	return &l.state
}

// Run starts the loop and blocks until Stop is called, ctx is done, a tick
// fails, or serious trouble is detected. On every exit path it waits for an
// in-flight tick, commands HALT once, and runs the supervisor if the vehicle
// is in serious trouble.
//
// A Stop issued while the loop is not running is held until the next Run,
// which then halts without ticking.
//
// Run returns ErrFatalShutdown when the loop stopped because of serious
// trouble, and refuses to start again afterwards.
func (l *Loop) Run(ctx context.Context) (err error) {
	if l.state.seriousTrouble.Load() {
		return phenox.ErrFatalShutdown
	}
	if !l.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer l.running.Store(false)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	l.mu.Lock()
	l.cancel = cancel
	stopped := l.stopPending
	l.stopPending = false
	l.mu.Unlock()

	defer func() {
		l.mu.Lock()
		l.cancel = nil
		l.mu.Unlock()
	}()

	if stopped {
		cancel()
		l.logger.Info("control loop stopped before it started")
	} else {
		l.state.enabled.Store(true)
		l.logger.Info("control loop started", slog.Duration("period", l.period))
	}

	ticker := time.NewTicker(l.period)
	defer ticker.Stop()

	var wg sync.WaitGroup
	failures := make(chan error, 1)

	defer func() {
		wg.Wait() // let an in-flight tick finish before halting
		if sErr := l.shutdown(ctx); sErr != nil {
			err = errors.Join(err, sErr)
		}
	}()

	for {
		select {
		case <-runCtx.Done():
			return nil

		case tErr := <-failures:
			return tErr

		case <-ticker.C:
			if !l.state.enabled.Load() {
				if l.state.seriousTrouble.Load() {
					return fmt.Errorf("stopping control loop: %w", phenox.ErrFatalShutdown)
				}
				return nil
			}

			wg.Add(1)
			go func() {
				defer wg.Done()

				if tErr := l.safeTick(); tErr != nil {
					select {
					case failures <- tErr:
					default: // a failure is already pending
					}
				}
			}()
		}
	}
}

// Stop requests the loop to stop. It takes effect at the next tick boundary,
// or at the start of the next Run when the loop is not running.
func (l *Loop) Stop() {
	l.state.enabled.Store(false)

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.cancel != nil {
		l.cancel()
		return
	}
	l.stopPending = true
}

// Tick executes one iteration of the loop. It returns false without touching
// the device or the state when another tick is still executing.
func (l *Loop) Tick() (bool, error) {
	if !l.state.busy.CompareAndSwap(false, true) {
		l.state.skipped.Add(1)
		l.logger.Debug("tick skipped, previous tick is still running")
		return false, nil
	}
	defer l.state.busy.Store(false)

	return true, l.tick()
}

func (l *Loop) safeTick() (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("tick panicked: %v", r)
		}
	}()

	_, err = l.Tick()
	return
}

func (l *Loop) tick() error {
	if err := l.device.SetKeepAlive(); err != nil {
		return fmt.Errorf("sending keepalive: %w", err)
	}
	if err := l.device.LogSystemEvent(); err != nil {
		return fmt.Errorf("logging system event: %w", err)
	}

	st, err := l.device.SelfState()
	if err != nil {
		return fmt.Errorf("reading self state: %w", err)
	}
	l.state.setSnapshot(st)

	n := l.state.ticks.Add(1)
	l.logger.Debug("tick", slog.Uint64("tick", n))

	emit := n%l.telemetryEvery == 0
	if emit {
		l.logger.Info(st.String(), slog.Uint64("tick", n))
	}

	mode, err := l.device.OperateMode()
	if err != nil {
		return fmt.Errorf("reading operate mode: %w", err)
	}
	if emit && l.recorder != nil {
		l.recorder.Record(n, st, mode)
	}

	// the firmware finished the ascent: hold the position reached
	if prev := l.state.swapMode(mode); prev == phenox.ModeUp && mode == phenox.ModeHover {
		if err = l.device.SetVisionTargetXY(st.VisionTX, st.VisionTY); err != nil {
			return fmt.Errorf("latching vision target: %w", err)
		}
		l.logger.Info("hover reached, vision target latched",
			slog.Float64("tx", float64(st.VisionTX)),
			slog.Float64("ty", float64(st.VisionTY)))
	}

	whistle, err := l.device.ConsumeWhistleEdge()
	if err != nil {
		return fmt.Errorf("reading whistle: %w", err)
	}
	if whistle {
		if err = l.onWhistle(mode); err != nil {
			return err
		}
	}

	low, err := l.device.BatteryLow()
	if err != nil {
		return fmt.Errorf("reading battery: %w", err)
	}
	if low {
		if !l.state.seriousTrouble.Swap(true) {
			l.logger.Error("battery is low, stopping", slog.Int("battery", st.Battery))
		}
		l.state.enabled.Store(false)
	}

	return nil
}

// onWhistle toggles between the halt and hover boundary states.
func (l *Loop) onWhistle(mode phenox.OperateMode) error {
	switch mode {
	case phenox.ModeHover:
		l.logger.Info("whistle detected, landing")
		if err := l.device.SetOperateMode(phenox.ModeDown); err != nil {
			return fmt.Errorf("commanding landing: %w", err)
		}

	case phenox.ModeHalt:
		l.logger.Info("whistle detected, taking off", slog.Float64("height", float64(l.takeoffHeight)))
		if err := l.device.SetRangeTargetZ(l.takeoffHeight); err != nil {
			return fmt.Errorf("setting takeoff height: %w", err)
		}
		if err := l.device.SetOperateMode(phenox.ModeUp); err != nil {
			return fmt.Errorf("commanding takeoff: %w", err)
		}

	default:
		l.logger.Debug("whistle ignored", slog.String("mode", mode.String()))
	}
	return nil
}

func (l *Loop) shutdown(ctx context.Context) error {
	l.state.enabled.Store(false)

	var errs []error
	if err := l.device.SetOperateMode(phenox.ModeHalt); err != nil {
		errs = append(errs, fmt.Errorf("halting: %w", err))
	}

	l.logger.Info("control loop stopped",
		slog.Uint64("ticks", l.state.Ticks()),
		slog.Uint64("skipped", l.state.Skipped()))

	if l.state.seriousTrouble.Load() && l.supervisor != nil {
		if err := l.supervisor.Shutdown(context.WithoutCancel(ctx)); err != nil {
			errs = append(errs, fmt.Errorf("running supervisor: %w", err))
		}
	}

	return errors.Join(errs...)
}
