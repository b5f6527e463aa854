package phenox

import (
	"fmt"
	"image"
	"image/color"
	"time"
)

const (
	ImageWidth    = 320
	ImageHeight   = 240
	BytesPerPixel = 3

	// SoundSampleRate is the microphone sampling rate in samples per second.
	SoundSampleRate = 10000

	// MaxSoundSeconds is the longest sound capture the substrate buffers.
	MaxSoundSeconds = 50
)

// Frame is a complete camera image in the camera's native BGR byte order,
// ImageWidth x ImageHeight pixels, row-major.
type Frame struct {
	Camera    CameraID
	Timestamp time.Time
	Pix       []byte
}

// NewFrame allocates a zeroed frame for the given camera.
func NewFrame(camera CameraID) *Frame {
	return &Frame{
		Camera: camera,
		Pix:    make([]byte, ImageWidth*ImageHeight*BytesPerPixel),
	}
}

// Validate checks that the pixel buffer holds exactly one frame.
func (f *Frame) Validate() error {
	if want := ImageWidth * ImageHeight * BytesPerPixel; len(f.Pix) != want {
		return fmt.Errorf("frame buffer must hold %d bytes: %d given", want, len(f.Pix))
	}
	return nil
}

// BGR returns the blue, green and red components of pixel (x, y).
func (f *Frame) BGR(x, y int) (b, g, r uint8) {
	i := (y*ImageWidth + x) * BytesPerPixel
	return f.Pix[i], f.Pix[i+1], f.Pix[i+2]
}

// RGBA converts the frame into a standard library image.
func (f *Frame) RGBA() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, ImageWidth, ImageHeight))
	for y := 0; y < ImageHeight; y++ {
		for x := 0; x < ImageWidth; x++ {
			b, g, r := f.BGR(x, y)
			img.SetRGBA(x, y, color.RGBA{R: r, G: g, B: b, A: 0xff})
		}
	}
	return img
}

// SoundSamples returns the number of PCM samples in a capture of the given
// duration, and an error when the duration is outside (0, MaxSoundSeconds].
func SoundSamples(seconds float32) (int, error) {
	if !IsFinite(seconds) || seconds <= 0 || seconds > MaxSoundSeconds {
		return 0, fmt.Errorf("sound duration must be within (0, %d] seconds: %.2f given", MaxSoundSeconds, seconds)
	}
	return int(seconds * SoundSampleRate), nil
}
