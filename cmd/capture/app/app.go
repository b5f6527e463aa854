package app

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/roman-kulish/phenox-pilot/internal/acquisition"
	"github.com/roman-kulish/phenox-pilot/internal/gateway"
	"github.com/roman-kulish/phenox-pilot/internal/gateway/sim"
	"github.com/roman-kulish/phenox-pilot/internal/phenox"
)

const (
	blinkInterval       = time.Second
	featurePollInterval = 10 * time.Millisecond
)

func Run(ctx context.Context, config *Config, logger *slog.Logger) error {
	gw := gateway.New(sim.New(sim.WithLogger(logger)),
		gateway.WithLogger(logger),
		gateway.WithReadyTimeout(config.ReadyTimeout))

	if err := gw.Initialize(); err != nil {
		return fmt.Errorf("initializing device channel: %w", err)
	}
	defer func() {
		if err := gw.Shutdown(); err != nil {
			logger.Error("failed to release device channel", slog.String("error", err.Error()))
		}
	}()

	if err := gw.WaitReady(ctx); err != nil {
		return fmt.Errorf("waiting for device: %w", err)
	}

	switch config.Mode {
	case ModeImage, ModeFeatures:
		return captureImage(ctx, gw, config, logger)
	case ModeSound:
		return captureSound(ctx, gw, config, logger)
	case ModeBlink:
		return blink(ctx, gw, config.Blinks, config.Buzzer, logger)
	default:
		return fmt.Errorf("unknown capture mode: %s", config.Mode)
	}
}

func captureImage(ctx context.Context, gw *gateway.Gateway, config *Config, logger *slog.Logger) error {
	info := CaptureInfo{Camera: config.Camera}

	if config.Mode == ModeFeatures {
		points, err := captureFeatures(ctx, gw, config.Camera, logger)
		if err != nil {
			return err
		}
		info.Features = points
	}

	streamer := acquisition.NewImageStreamer(gw, config.Camera, acquisition.WithImageLogger(logger))

	streamCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	streamDone := make(chan error, 1)
	go func() { streamDone <- streamer.Run(streamCtx) }()

	frame, failed, err := streamer.Grab(ctx)
	cancel()
	if streamErr := <-streamDone; streamErr != nil {
		err = errors.Join(err, streamErr)
	}
	if err != nil {
		return fmt.Errorf("grabbing frame: %w", err)
	}

	info.Timestamp = frame.Timestamp
	info.FailedPolls = failed

	logger.Info("frame grabbed",
		slog.String("camera", config.Camera.String()),
		slog.Int("failedPolls", failed),
		slog.Uint64("lineRequests", streamer.Requests()))

	img := Scale(frame.RGBA(), config.Scale)

	if !config.NoAnnotations {
		annotator, err := NewAnnotator()
		if err != nil {
			return fmt.Errorf("creating annotator: %w", err)
		}
		if err = annotator.Annotate(img, config.Scale, &info); err != nil {
			return fmt.Errorf("annotating frame: %w", err)
		}
	}

	logger.Info("writing image",
		slog.Group("image",
			slog.String("destination", config.OutputFile),
			slog.String("format", string(config.Format)),
			slog.Int("width", img.Bounds().Dx()),
			slog.Int("height", img.Bounds().Dy()),
		))

	return writeImage(config.OutputFile, config.Format, img)
}

func captureFeatures(ctx context.Context, gw *gateway.Gateway, camera phenox.CameraID, logger *slog.Logger) ([]phenox.FeaturePoint, error) {
	var points []phenox.FeaturePoint
	var captured bool

	tracker := acquisition.NewFeatureTracker(gw, camera,
		acquisition.WithFeatureLogger(logger),
		acquisition.WithOnFeatures(func(_ phenox.CameraID, p []phenox.FeaturePoint) {
			points, captured = p, true
		}))

	ticker := time.NewTicker(featurePollInterval)
	defer ticker.Stop()

	for {
		if err := tracker.Step(); err != nil {
			return nil, fmt.Errorf("querying features: %w", err)
		}
		if captured {
			logger.Info("features captured", slog.Int("count", len(points)))
			return points, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func writeImage(path string, format ImageFormat, img image.Image) (err error) {
	out, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := out.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	switch format {
	case ImagePNG:
		err = png.Encode(out, img)

	case ImageJPEG:
		err = jpeg.Encode(out, img, &jpeg.Options{
			Quality: 98,
		})
	}
	return err
}

func captureSound(ctx context.Context, gw *gateway.Gateway, config *Config, logger *slog.Logger) error {
	state, err := gw.SoundRecordState()
	if err != nil {
		return fmt.Errorf("reading sound recorder state: %w", err)
	}
	logger.Info("recording sound", slog.Float64("seconds", float64(config.Seconds)), slog.Int("recorderState", state))

	samples, err := acquisition.CaptureSound(ctx, gw, config.Seconds, acquisition.WithSoundLogger(logger))
	if err != nil {
		return fmt.Errorf("capturing sound: %w", err)
	}

	out, err := os.Create(config.OutputFile)
	if err != nil {
		return err
	}

	n, err := writeSamples(out, samples)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("writing samples: %w", err)
	}

	logger.Info("sound written",
		slog.String("destination", config.OutputFile),
		slog.String("samples", humanize.Comma(int64(len(samples)))),
		slog.String("size", humanize.Bytes(uint64(n))))

	return nil
}

// writeSamples writes PCM samples as 16-bit little-endian integers.
func writeSamples(w io.Writer, samples []int16) (int64, error) {
	bw := bufio.NewWriter(w)
	if err := binary.Write(bw, binary.LittleEndian, samples); err != nil {
		return 0, err
	}
	if err := bw.Flush(); err != nil {
		return 0, err
	}
	return int64(len(samples) * 2), nil
}

func blink(ctx context.Context, gw *gateway.Gateway, count int, buzzer bool, logger *slog.Logger) error {
	ticker := time.NewTicker(blinkInterval)
	defer ticker.Stop()

	var on bool
	for i := 0; i < count; i++ {
		on = !on
		if err := gw.SetLED(phenox.LEDGreen, on); err != nil {
			return fmt.Errorf("switching LED: %w", err)
		}
		if buzzer {
			if err := gw.SetBuzzer(on); err != nil {
				return fmt.Errorf("switching buzzer: %w", err)
			}
		}
		logger.Debug("led switched", slog.Bool("on", on))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}

	if !on {
		return nil
	}
	if buzzer {
		if err := gw.SetBuzzer(false); err != nil {
			return fmt.Errorf("switching buzzer: %w", err)
		}
	}
	return gw.SetLED(phenox.LEDGreen, false)
}
