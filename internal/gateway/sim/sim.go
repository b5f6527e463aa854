// Package sim implements an in-process flight-control substrate. It follows
// the firmware behaviour observable from the host side closely enough to fly
// the programs on a desk and to drive tests deterministically.
package sim

import (
	"errors"
	"io"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/roman-kulish/phenox-pilot/internal/gateway"
	"github.com/roman-kulish/phenox-pilot/internal/phenox"
)

const (
	// KeepAliveWindow is the default time the firmware waits for a keepalive
	// before it stops the motors.
	KeepAliveWindow = 500 * time.Millisecond

	// ImageBand is the default number of rows added by one image line request.
	ImageBand = 24

	// FeatureLatency is the default number of polls a feature query stays busy.
	FeatureLatency = 2

	// ReadyAfter is the default number of readiness polls before CPU1 is up.
	ReadyAfter = 5

	// BatteryFull and BatteryLow are the raw battery levels reported.
	BatteryFull = 100
	BatteryLow  = 10

	toneFrequency = 440.0
	toneAmplitude = 8000.0
)

const (
	SoundIdle = iota
	SoundRecording
	SoundComplete
)

var (
	ErrAlreadyOpen = errors.New("simulator is already open")
	ErrNotOpen     = errors.New("simulator is not open")
)

// WithClock replaces the wall clock used for timed behaviour.
func WithClock(now func() time.Time) func(*Simulator) {
	return func(s *Simulator) {
		s.now = now
	}
}

// WithLogger sets the logger for the simulator
func WithLogger(logger *slog.Logger) func(*Simulator) {
	return func(s *Simulator) {
		s.logger = logger.With(slog.String("driver", "sim"))
	}
}

// WithReadyAfter sets the number of readiness polls answered false.
func WithReadyAfter(polls int) func(*Simulator) {
	return func(s *Simulator) {
		s.readyAfter = polls
	}
}

// WithKeepAliveWindow sets the keepalive watchdog window. Zero disables the watchdog.
func WithKeepAliveWindow(window time.Duration) func(*Simulator) {
	return func(s *Simulator) {
		s.keepAliveWindow = window
	}
}

// WithImageBand sets the number of rows filled per image line request.
func WithImageBand(rows int) func(*Simulator) {
	return func(s *Simulator) {
		s.imageBand = max(1, rows)
	}
}

// WithFeatureLatency sets the number of polls a feature query stays busy.
func WithFeatureLatency(polls int) func(*Simulator) {
	return func(s *Simulator) {
		s.featureLatency = max(0, polls)
	}
}

type imageBuffer struct {
	camera phenox.CameraID
	rows   int
	frames uint64
	ready  *phenox.Frame
}

type featureQuery struct {
	active    bool
	camera    phenox.CameraID
	remaining int
}

type soundCapture struct {
	state   int
	seconds float32
	started time.Time
}

// Simulator is an in-process substrate. It is safe for concurrent use.
type Simulator struct {
	mu sync.Mutex

	now    func() time.Time
	logger *slog.Logger

	readyAfter      int
	keepAliveWindow time.Duration
	imageBand       int
	featureLatency  int

	open       bool
	readyPolls int

	cfg       phenox.ControlConfig
	mode      phenox.OperateMode
	modeSince time.Time
	keepAlive time.Time

	height       float32
	startHeight  float32
	rangeTarget  float32
	visionTarget [2]float32
	selfPosition [2]float32
	destination  [3]float32

	image    imageBuffer
	features featureQuery

	blobFilter *phenox.YUVRange
	blob       phenox.BlobMark

	whistle    bool
	batteryLow bool
	sound      soundCapture

	leds       map[phenox.LED]bool
	buzzer     bool
	systemLogs int
}

var _ gateway.Driver = (*Simulator)(nil)

// New creates a simulator with the reference control configuration.
func New(options ...func(*Simulator)) *Simulator {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil)) // nil logger

	s := Simulator{
		now:             time.Now,
		logger:          logger,
		readyAfter:      ReadyAfter,
		keepAliveWindow: KeepAliveWindow,
		imageBand:       ImageBand,
		featureLatency:  FeatureLatency,
		cfg:             phenox.DefaultControlConfig(),
		rangeTarget:     100,
		leds:            make(map[phenox.LED]bool),
	}

	for _, option := range options {
		option(&s)
	}

	return &s
}

func (s *Simulator) Init() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.open {
		return ErrAlreadyOpen
	}

	s.open = true
	s.readyPolls = 0
	s.mode = phenox.ModeHalt
	s.modeSince = s.now()
	s.keepAlive = s.modeSince

	s.logger.Debug("channel opened")
	return nil
}

func (s *Simulator) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.open {
		return ErrNotOpen
	}

	s.open = false
	s.mode = phenox.ModeHalt

	s.logger.Debug("channel closed")
	return nil
}

func (s *Simulator) CPUReady() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.readyPolls++
	return s.open && s.readyPolls > s.readyAfter
}

func (s *Simulator) MotorStatus() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.advanceLocked()
	return s.mode != phenox.ModeHalt
}

func (s *Simulator) SetConfig(cfg phenox.ControlConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cfg = cfg
}

func (s *Simulator) Config() phenox.ControlConfig {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.cfg
}

func (s *Simulator) SelfState() phenox.SelfState {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.advanceLocked()

	battery := BatteryFull
	if s.batteryLow {
		battery = BatteryLow
	}

	return phenox.SelfState{
		DegX:     s.destination[phenox.AxisX],
		DegY:     s.destination[phenox.AxisY],
		DegZ:     s.destination[phenox.AxisZ],
		VisionTX: s.selfPosition[0],
		VisionTY: s.selfPosition[1],
		VisionTZ: s.height,
		Height:   s.height,
		Battery:  battery,
	}
}

func (s *Simulator) SetKeepAlive() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.advanceLocked()
	s.keepAlive = s.now()
}

func (s *Simulator) SetOperateMode(mode phenox.OperateMode) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.advanceLocked()
	if mode != s.mode && mode != phenox.ModeHalt {
		// motors spinning up count as a sign of life
		s.keepAlive = s.now()
	}
	s.setModeLocked(mode)
}

func (s *Simulator) OperateMode() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.advanceLocked()
	return int(s.mode)
}

func (s *Simulator) SetVisionTargetXY(tx, ty float32) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.visionTarget = [2]float32{tx, ty}
}

func (s *Simulator) SetRangeTargetZ(tz float32) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.rangeTarget = tz
}

func (s *Simulator) SetDestinationAngle(axis phenox.Axis, deg float32) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if axis.Valid() {
		s.destination[axis] = deg
	}
}

func (s *Simulator) SetSelfPositionXY(tx, ty float32) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.selfPosition = [2]float32{tx, ty}
}

func (s *Simulator) BatteryLow() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.batteryLow
}

func (s *Simulator) SetLED(led phenox.LED, on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.leds[led] = on
}

func (s *Simulator) SetBuzzer(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.buzzer = on
}

func (s *Simulator) SetSystemLog() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.systemLogs++
}

// advanceLocked applies the timed firmware transitions: the end of the
// ascent and descent manoeuvres and the keepalive watchdog.
func (s *Simulator) advanceLocked() {
	now := s.now()
	elapsed := now.Sub(s.modeSince).Seconds()

	if s.mode != phenox.ModeHalt && s.keepAliveWindow > 0 && now.Sub(s.keepAlive) > s.keepAliveWindow {
		s.logger.Warn("keepalive watchdog expired, halting",
			slog.Duration("silence", now.Sub(s.keepAlive)))
		s.setModeLocked(phenox.ModeHalt)
		s.height = 0
		return
	}

	switch s.mode {
	case phenox.ModeUp:
		upTime := float64(s.cfg.UpTimeMax)
		if elapsed >= upTime {
			s.height = s.rangeTarget
			s.setModeLocked(phenox.ModeHover)
			return
		}
		s.height = s.startHeight + (s.rangeTarget-s.startHeight)*float32(elapsed/upTime)

	case phenox.ModeDown:
		downTime := float64(s.cfg.DownTimeMax)
		if elapsed >= downTime {
			s.height = 0
			s.setModeLocked(phenox.ModeHalt)
			return
		}
		s.height = float32(math.Max(0, float64(s.startHeight)*(1-elapsed/downTime)))
	}
}

func (s *Simulator) setModeLocked(mode phenox.OperateMode) {
	if mode == s.mode {
		return
	}

	s.logger.Debug("operate mode changed",
		slog.String("from", s.mode.String()),
		slog.String("to", mode.String()))

	s.mode = mode
	s.modeSince = s.now()
	s.startHeight = s.height
}

// TriggerWhistle raises the whistle flag as if a whistle had been heard.
func (s *Simulator) TriggerWhistle() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.whistle = true
}

// SetBatteryLow sets the battery voltage flag.
func (s *Simulator) SetBatteryLow(low bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.batteryLow = low
}

// Mode returns the current operate mode without advancing the simulation.
func (s *Simulator) Mode() phenox.OperateMode {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.mode
}

// VisionTarget returns the last horizontal setpoint.
func (s *Simulator) VisionTarget() (tx, ty float32) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.visionTarget[0], s.visionTarget[1]
}

// LED reports whether the given LED is lit.
func (s *Simulator) LED(led phenox.LED) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.leds[led]
}

// Buzzer reports whether the buzzer is on.
func (s *Simulator) Buzzer() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.buzzer
}

// SystemLogs returns the number of system log entries requested.
func (s *Simulator) SystemLogs() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.systemLogs
}
