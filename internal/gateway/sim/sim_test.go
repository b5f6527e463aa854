package sim

import (
	"sync"
	"testing"
	"time"

	"github.com/roman-kulish/phenox-pilot/internal/phenox"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func openSimulator(t *testing.T, clock *fakeClock, options ...func(*Simulator)) *Simulator {
	t.Helper()

	options = append([]func(*Simulator){WithClock(clock.Now), WithReadyAfter(0)}, options...)
	s := New(options...)
	if err := s.Init(); err != nil {
		t.Fatalf("Failed to open simulator: %v", err)
	}
	return s
}

func TestSimulator_InitClose(t *testing.T) {
	s := New(WithReadyAfter(2))

	if s.CPUReady() {
		t.Error("CPU must not be ready before the channel is open")
	}
	if err := s.Init(); err != nil {
		t.Fatalf("Failed to open simulator: %v", err)
	}
	if err := s.Init(); err != ErrAlreadyOpen {
		t.Errorf("Expected ErrAlreadyOpen, got %v", err)
	}

	var polls int
	for !s.CPUReady() {
		polls++
		if polls > 10 {
			t.Fatal("CPU never became ready")
		}
	}
	if polls != 2 {
		t.Errorf("Expected 2 unready polls, got %d", polls)
	}

	if err := s.Close(); err != nil {
		t.Errorf("Unexpected error: %v", err)
	}
	if err := s.Close(); err != ErrNotOpen {
		t.Errorf("Expected ErrNotOpen, got %v", err)
	}
}

func TestSimulator_TakeoffAndLanding(t *testing.T) {
	clock := newFakeClock()
	s := openSimulator(t, clock, WithKeepAliveWindow(0))

	s.SetRangeTargetZ(150)
	s.SetOperateMode(phenox.ModeUp)

	clock.Advance(400 * time.Millisecond)
	if mode := phenox.OperateMode(s.OperateMode()); mode != phenox.ModeUp {
		t.Fatalf("Expected up during ascent, got %s", mode)
	}
	if h := s.SelfState().Height; h <= 0 || h >= 150 {
		t.Errorf("Expected height between 0 and 150 during ascent, got %.2f", h)
	}

	clock.Advance(500 * time.Millisecond) // past uptime_max of 0.8s
	if mode := phenox.OperateMode(s.OperateMode()); mode != phenox.ModeHover {
		t.Fatalf("Expected hover after ascent, got %s", mode)
	}
	if h := s.SelfState().Height; h != 150 {
		t.Errorf("Expected height 150, got %.2f", h)
	}
	if !s.MotorStatus() {
		t.Error("Expected motors to rotate while hovering")
	}

	s.SetOperateMode(phenox.ModeDown)
	clock.Advance(3 * time.Second)
	if mode := phenox.OperateMode(s.OperateMode()); mode != phenox.ModeHalt {
		t.Fatalf("Expected halt after landing, got %s", mode)
	}
	if s.MotorStatus() {
		t.Error("Expected motors to stop after landing")
	}
}

func TestSimulator_KeepAliveWatchdog(t *testing.T) {
	clock := newFakeClock()
	s := openSimulator(t, clock, WithKeepAliveWindow(100*time.Millisecond))

	s.SetOperateMode(phenox.ModeUp)
	for i := 0; i < 5; i++ {
		clock.Advance(50 * time.Millisecond)
		s.SetKeepAlive()
	}
	if s.Mode() == phenox.ModeHalt {
		t.Fatal("Vehicle must keep flying while keepalives arrive")
	}

	clock.Advance(200 * time.Millisecond)
	if mode := phenox.OperateMode(s.OperateMode()); mode != phenox.ModeHalt {
		t.Errorf("Expected watchdog halt, got %s", mode)
	}
}

func TestSimulator_Whistle(t *testing.T) {
	s := openSimulator(t, newFakeClock())

	s.TriggerWhistle()
	if !s.WhistleDetected() {
		t.Fatal("Expected whistle to be detected")
	}
	if s.WhistleDetected() {
		t.Error("Whistle flag must clear when read true")
	}

	s.TriggerWhistle()
	s.ResetWhistle()
	if s.WhistleDetected() {
		t.Error("Whistle flag must clear on reset")
	}
}

func TestSimulator_Image(t *testing.T) {
	s := openSimulator(t, newFakeClock(), WithImageBand(48))

	for i := 0; i < 4; i++ {
		s.RequestImageLine(phenox.CameraFront)
		if _, ok := s.Image(phenox.CameraFront); ok {
			t.Fatalf("Frame must not be complete after %d bands", i+1)
		}
	}

	s.RequestImageLine(phenox.CameraFront)
	f, ok := s.Image(phenox.CameraFront)
	if !ok {
		t.Fatal("Expected a complete frame after 240 rows")
	}
	if err := f.Validate(); err != nil {
		t.Errorf("Invalid frame: %v", err)
	}
	if _, ok = s.Image(phenox.CameraFront); ok {
		t.Error("Each frame must be handed out once")
	}

	if _, ok = s.Image(phenox.CameraBottom); ok {
		t.Error("Frame of another camera must not be returned")
	}
}

func TestSimulator_Features(t *testing.T) {
	s := openSimulator(t, newFakeClock(), WithFeatureLatency(2))

	if _, ok := s.Features(10); ok {
		t.Error("Features must not be ready without a query")
	}
	if !s.RequestFeatureQuery(phenox.CameraBottom) {
		t.Fatal("Expected the query to be accepted")
	}
	if s.RequestFeatureQuery(phenox.CameraBottom) {
		t.Error("A second query must be rejected while one is in flight")
	}

	for i := 0; i < 2; i++ {
		if _, ok := s.Features(10); ok {
			t.Fatalf("Expected busy on poll %d", i+1)
		}
	}

	points, ok := s.Features(10)
	if !ok {
		t.Fatal("Expected features after the latency elapsed")
	}
	if len(points) != 10 {
		t.Errorf("Expected 10 points, got %d", len(points))
	}

	if !s.RequestFeatureQuery(phenox.CameraBottom) {
		t.Error("Expected a new query to be accepted once results were consumed")
	}
}

func TestSimulator_BlobMark(t *testing.T) {
	s := openSimulator(t, newFakeClock())

	if mark := s.BlobMark(); mark.Valid {
		t.Error("Blob mark must be invalid without a filter")
	}
	if !s.SetBlobFilter(phenox.CameraFront, phenox.YUVRange{MaxY: 255, MinU: 0, MaxU: 100, MinV: 150, MaxV: 250}) {
		t.Fatal("Expected the filter to be accepted")
	}

	mark := s.BlobMark()
	if !mark.Valid || mark.X != 160 || mark.Y != 120 {
		t.Errorf("Expected a valid centred mark, got %+v", mark)
	}
}

func TestSimulator_Sound(t *testing.T) {
	clock := newFakeClock()
	s := openSimulator(t, clock)

	if !s.RequestSoundRecord(3.0) {
		t.Fatal("Expected the sound request to be accepted")
	}
	if s.RequestSoundRecord(1.0) {
		t.Error("A second request must be rejected while recording")
	}
	if state := s.SoundRecordState(); state != SoundRecording {
		t.Errorf("Expected recording state, got %d", state)
	}

	clock.Advance(2 * time.Second)
	if _, ok := s.Sound(3.0); ok {
		t.Fatal("Sound must not be ready before the duration elapsed")
	}

	clock.Advance(time.Second)
	samples, ok := s.Sound(3.0)
	if !ok {
		t.Fatal("Expected sound after the duration elapsed")
	}
	if len(samples) != 30000 {
		t.Errorf("Expected 30000 samples, got %d", len(samples))
	}

	var peak int16
	for _, v := range samples {
		peak = max(peak, v)
	}
	if peak < 7900 {
		t.Errorf("Expected tone amplitude close to %v, got %d", toneAmplitude, peak)
	}

	if state := s.SoundRecordState(); state != SoundIdle {
		t.Errorf("Expected idle state after the buffer was read, got %d", state)
	}
}

func TestSimulator_BatteryAndIndicators(t *testing.T) {
	s := openSimulator(t, newFakeClock())

	if s.BatteryLow() {
		t.Error("Battery must not start low")
	}
	s.SetBatteryLow(true)
	if !s.BatteryLow() || s.SelfState().Battery != BatteryLow {
		t.Error("Expected low battery to be reported")
	}

	s.SetLED(phenox.LEDGreen, true)
	s.SetBuzzer(true)
	s.SetSystemLog()
	if !s.LED(phenox.LEDGreen) || s.LED(phenox.LEDRed) || !s.Buzzer() || s.SystemLogs() != 1 {
		t.Error("Unexpected indicator state")
	}
}
