package sim

import (
	"math"

	"github.com/roman-kulish/phenox-pilot/internal/phenox"
)

const (
	featureColumns = 8
	featureRows    = 6
)

func (s *Simulator) RequestImageLine(camera phenox.CameraID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.image.camera != camera {
		s.image.camera = camera
		s.image.rows = 0
	}

	s.image.rows += s.imageBand
	if s.image.rows < phenox.ImageHeight {
		return
	}

	s.image.rows = 0
	s.image.frames++
	s.image.ready = s.renderFrameLocked(camera, s.image.frames)
}

// Image hands out each completed frame once.
func (s *Simulator) Image(camera phenox.CameraID) (*phenox.Frame, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f := s.image.ready
	if f == nil || f.Camera != camera {
		return nil, false
	}

	s.image.ready = nil
	return f, true
}

// renderFrameLocked draws a gradient with a moving stripe so that consecutive
// frames differ.
func (s *Simulator) renderFrameLocked(camera phenox.CameraID, n uint64) *phenox.Frame {
	f := phenox.NewFrame(camera)
	f.Timestamp = s.now()

	stripe := int(n*8) % phenox.ImageWidth
	for y := 0; y < phenox.ImageHeight; y++ {
		for x := 0; x < phenox.ImageWidth; x++ {
			i := (y*phenox.ImageWidth + x) * phenox.BytesPerPixel

			b := uint8(x * 255 / (phenox.ImageWidth - 1))
			g := uint8(y * 255 / (phenox.ImageHeight - 1))
			r := uint8(0x40)
			if camera == phenox.CameraBottom {
				r = 0xa0
			}
			if x >= stripe && x < stripe+4 {
				b, g, r = 0xff, 0xff, 0xff
			}

			f.Pix[i], f.Pix[i+1], f.Pix[i+2] = b, g, r
		}
	}
	return f
}

func (s *Simulator) RequestFeatureQuery(camera phenox.CameraID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.features.active {
		return false
	}

	s.features = featureQuery{
		active:    true,
		camera:    camera,
		remaining: s.featureLatency,
	}
	return true
}

// Features reports busy until the query latency has elapsed, then returns a
// grid of points whose density follows the camera's contrast threshold.
func (s *Simulator) Features(maxCount int) ([]phenox.FeaturePoint, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.features.active {
		return nil, false
	}
	if s.features.remaining > 0 {
		s.features.remaining--
		return nil, false
	}

	contrast := s.cfg.FeatureContrastFront
	if s.features.camera == phenox.CameraBottom {
		contrast = s.cfg.FeatureContrastBottom
	}
	s.features = featureQuery{}

	// lower contrast thresholds detect more points
	step := 1
	if contrast > 30 {
		step = 2
	}

	var points []phenox.FeaturePoint
	for row := 0; row < featureRows; row++ {
		for col := 0; col < featureColumns; col += step {
			if len(points) >= maxCount {
				return points, true
			}

			rawX := float32((col + 1) * phenox.ImageWidth / (featureColumns + 1))
			rawY := float32((row + 1) * phenox.ImageHeight / (featureRows + 1))
			points = append(points, phenox.FeaturePoint{
				RawX: rawX,
				RawY: rawY,
				X:    rawX - phenox.ImageWidth/2,
				Y:    rawY - phenox.ImageHeight/2,
			})
		}
	}
	return points, true
}

func (s *Simulator) SetBlobFilter(camera phenox.CameraID, r phenox.YUVRange) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !camera.Valid() || r.Validate() != nil {
		return false
	}

	s.blobFilter = &r
	return true
}

// BlobMark returns a centred mark sized by the width of the filter window once
// a filter is set, and the last known mark otherwise.
func (s *Simulator) BlobMark() phenox.BlobMark {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.blobFilter == nil {
		mark := s.blob
		mark.Valid = false
		return mark
	}

	r := s.blobFilter
	s.blob = phenox.BlobMark{
		Valid: true,
		X:     phenox.ImageWidth/2 + s.selfPosition[0],
		Y:     phenox.ImageHeight/2 + s.selfPosition[1],
		Size:  (r.MaxU - r.MinU + r.MaxV - r.MinV) / 2,
	}
	return s.blob
}

// WhistleDetected clears the flag when it reads true.
func (s *Simulator) WhistleDetected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	detected := s.whistle
	s.whistle = false
	return detected
}

func (s *Simulator) ResetWhistle() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.whistle = false
}

func (s *Simulator) SoundRecordState() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.advanceSoundLocked()
	return s.sound.state
}

func (s *Simulator) RequestSoundRecord(seconds float32) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.advanceSoundLocked()
	if s.sound.state == SoundRecording {
		return false
	}
	if _, err := phenox.SoundSamples(seconds); err != nil {
		return false
	}

	s.sound = soundCapture{
		state:   SoundRecording,
		seconds: seconds,
		started: s.now(),
	}
	return true
}

// Sound returns a 440 Hz tone once the requested duration has been recorded.
// The buffer is handed out once.
func (s *Simulator) Sound(seconds float32) ([]int16, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.advanceSoundLocked()
	if s.sound.state != SoundComplete || s.sound.seconds != seconds {
		return nil, false
	}

	n, err := phenox.SoundSamples(seconds)
	if err != nil {
		return nil, false
	}
	s.sound = soundCapture{}

	samples := make([]int16, n)
	for i := range samples {
		t := float64(i) / phenox.SoundSampleRate
		samples[i] = int16(toneAmplitude * math.Sin(2*math.Pi*toneFrequency*t))
	}
	return samples, true
}

func (s *Simulator) advanceSoundLocked() {
	if s.sound.state != SoundRecording {
		return
	}

	duration := float64(s.sound.seconds)
	if s.now().Sub(s.sound.started).Seconds() >= duration {
		s.sound.state = SoundComplete
	}
}
