package app

import (
	"errors"
	"flag"
	"fmt"
	"strings"
	"time"

	"github.com/roman-kulish/phenox-pilot/internal/phenox"
)

const (
	ImagePNG  = "png"
	ImageJPEG = "jpeg"
)

const (
	ModeImage    CaptureMode = "image"
	ModeFeatures CaptureMode = "features"
	ModeSound    CaptureMode = "sound"
	ModeBlink    CaptureMode = "blink"
)

type ImageFormat string

type CaptureMode string

type Config struct {
	Mode          CaptureMode
	Camera        phenox.CameraID
	OutputFile    string
	Format        ImageFormat
	Scale         int
	Seconds       float32
	Blinks        int
	Buzzer        bool
	ReadyTimeout  time.Duration
	Verbose       bool
	NoAnnotations bool
}

var validImageFormats = map[ImageFormat]struct{}{
	ImagePNG:  {},
	ImageJPEG: {},
}

var validModes = map[CaptureMode]struct{}{
	ModeImage:    {},
	ModeFeatures: {},
	ModeSound:    {},
	ModeBlink:    {},
}

func NewConfig() *Config {
	return &Config{
		Mode:         ModeImage,
		Camera:       phenox.CameraFront,
		Format:       ImagePNG,
		Scale:        2,
		Seconds:      3,
		Blinks:       5,
		ReadyTimeout: 10 * time.Second,
	}
}

func NewConfigFromCLI() (*Config, error) {
	c := NewConfig()

	var mode, camera, imageFormat string
	var seconds float64
	flag.StringVar(&mode, "m", string(ModeImage), "Capture mode. [image, features, sound, blink]")
	flag.StringVar(&camera, "camera", phenox.CameraFront.String(), "Camera to capture from. [front, bottom]")
	flag.StringVar(&c.OutputFile, "o", "", "Path to the output file, without extension")
	flag.StringVar(&imageFormat, "f", string(ImagePNG), "Output image format. [png, jpeg]")
	flag.IntVar(&c.Scale, "scale", c.Scale, "Output image scale factor")
	flag.Float64Var(&seconds, "seconds", float64(c.Seconds), "Sound capture duration in seconds")
	flag.IntVar(&c.Blinks, "blink", c.Blinks, "Number of LED toggles in blink mode")
	flag.BoolVar(&c.Buzzer, "buzzer", false, "Sound the buzzer along with the LED in blink mode")
	flag.DurationVar(&c.ReadyTimeout, "ready-timeout", c.ReadyTimeout, "How long to wait for the vehicle")
	flag.BoolVar(&c.Verbose, "verbose", false, "Enable more verbose output")
	flag.BoolVar(&c.NoAnnotations, "no-annotations", false, "Disable annotations such as the capture info bar")
	flag.Parse()

	if err := c.apply(mode, camera, imageFormat, seconds); err != nil {
		flag.Usage()
		return nil, err
	}
	return c, nil
}

func (c *Config) apply(mode, camera, imageFormat string, seconds float64) error {
	mode = strings.ToLower(mode)
	imageFormat = strings.ToLower(imageFormat)

	var err error
	if _, ok := validModes[CaptureMode(mode)]; !ok {
		return fmt.Errorf("invalid capture mode: %s", mode)
	}
	if c.Camera, err = phenox.ParseCameraID(camera); err != nil {
		return err
	}

	c.Mode = CaptureMode(mode)
	c.Seconds = float32(seconds)

	switch c.Mode {
	case ModeImage, ModeFeatures:
		if c.OutputFile == "" {
			err = errors.New("output file is required")
		} else if _, ok := validImageFormats[ImageFormat(imageFormat)]; !ok {
			err = fmt.Errorf("invalid image format: %s", imageFormat)
		} else if c.Scale < 1 {
			err = fmt.Errorf("invalid scale factor: %d", c.Scale)
		}
		c.Format = ImageFormat(imageFormat)
		c.OutputFile = fmt.Sprintf("%s.%s", c.OutputFile, c.Format)

	case ModeSound:
		if c.OutputFile == "" {
			err = errors.New("output file is required")
		} else if _, serr := phenox.SoundSamples(c.Seconds); serr != nil {
			err = serr
		}
		c.OutputFile = fmt.Sprintf("%s.raw", c.OutputFile)

	case ModeBlink:
		if c.Blinks <= 0 {
			err = fmt.Errorf("invalid number of blinks: %d", c.Blinks)
		}
	}

	return err
}
