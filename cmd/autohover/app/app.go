package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/roman-kulish/phenox-pilot/internal/acquisition"
	"github.com/roman-kulish/phenox-pilot/internal/control"
	"github.com/roman-kulish/phenox-pilot/internal/flight"
	"github.com/roman-kulish/phenox-pilot/internal/gateway"
	"github.com/roman-kulish/phenox-pilot/internal/gateway/sim"
	"github.com/roman-kulish/phenox-pilot/internal/phenox"
	"github.com/roman-kulish/phenox-pilot/internal/safety"
	"github.com/roman-kulish/phenox-pilot/internal/storage"
	"github.com/roman-kulish/phenox-pilot/internal/telemetry"
)

const serverShutdownTimeout = 5 * time.Second

func Run(ctx context.Context, config *Config, logger *slog.Logger) error {
	store, err := createStorage(&config.Storage)
	if err != nil {
		return fmt.Errorf("failed to create storage: %w", err)
	}
	defer store.Close()

	simulator := sim.New(sim.WithLogger(logger))

	gw, err := openGateway(ctx, simulator, &config.Vehicle, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := gw.Shutdown(); err != nil {
			logger.Error("failed to release device channel", slog.String("error", err.Error()))
		}
	}()

	if config.Control != nil {
		if err = pushControlConfig(gw, *config.Control); err != nil {
			return err
		}
		logger.Info("control parameters applied")
	}

	var sessionConfig any
	if config.Control != nil {
		sessionConfig = config.Control
	}

	runID := uuid.NewString()
	sessionID, err := store.CreateSession(ctx, runID, config.Vehicle.Name, sessionConfig)
	if err != nil {
		return fmt.Errorf("creating session: %w", err)
	}

	logger = logger.With(slog.String("runID", runID))
	logger.Info("flight session created", slog.Int64("sessionID", sessionID))

	broadcaster := telemetry.NewBroadcaster(telemetry.WithLogger(logger))
	defer broadcaster.Close()

	if config.Telemetry.Listen != "" {
		stop, err := serveTelemetry(config.Telemetry.Listen, broadcaster, logger)
		if err != nil {
			return err
		}
		defer stop()
	}

	recorder := NewFlightRecorder(store, sessionID,
		WithLogger(logger),
		WithMaxBatchSize(config.Storage.MaxBatchSize),
		WithPublisher(broadcaster))
	defer recorder.Close()

	supervisor := safety.New(
		safety.WithRelease(gw.Shutdown),
		safety.WithMountPoint(config.Safety.MountPoint),
		safety.WithDryRun(config.Safety.DryRun),
		safety.WithLogger(logger))

	// discard a whistle heard before the loop is armed
	if err = gw.ResetWhistleFlag(); err != nil {
		return fmt.Errorf("resetting whistle flag: %w", err)
	}

	loop := control.New(gw,
		control.WithPeriod(config.Loop.Period.Duration()),
		control.WithTelemetryEvery(config.Loop.TelemetryEvery),
		control.WithTakeoffHeight(config.Loop.TakeoffHeight),
		control.WithRecorder(recorder),
		control.WithSupervisor(supervisor),
		control.WithLogger(logger))

	coordinator := createCoordinator(gw, config, recorder, logger)

	watchSignals(ctx, simulator, logger)

	return fly(ctx, loop, coordinator, logger)
}

// fly runs the control loop and the acquisition cycles until either stops.
func fly(ctx context.Context, loop *control.Loop, coordinator *acquisition.Coordinator, logger *slog.Logger) error {
	acqCtx, cancelAcq := context.WithCancel(ctx)
	defer cancelAcq()

	acqDone := make(chan error, 1)
	go func() {
		err := coordinator.Run(acqCtx)
		if err != nil {
			loop.Stop()
		}
		acqDone <- err
	}()

	logger.Info("control loop armed")

	loopErr := loop.Run(ctx)
	cancelAcq()

	acqErr := <-acqDone
	if loopErr != nil && errors.Is(acqErr, phenox.ErrChannelUnready) {
		acqErr = nil // the channel was released by the shutdown sequence
	}

	if errors.Is(loopErr, phenox.ErrFatalShutdown) {
		logger.Warn("flight ended in serious trouble")
	}

	return errors.Join(loopErr, acqErr)
}

func openGateway(ctx context.Context, driver gateway.Driver, config *VehicleConfig, logger *slog.Logger) (*gateway.Gateway, error) {
	options := []func(*gateway.Gateway){
		gateway.WithLogger(logger),
		gateway.WithReadyTimeout(config.ReadyTimeout.Duration()),
	}
	if config.CallTimeout > 0 {
		options = append(options, gateway.WithCallTimeout(config.CallTimeout.Duration()))
	}

	gw := gateway.New(driver, options...)
	if err := gw.Initialize(); err != nil {
		return nil, fmt.Errorf("initializing device channel: %w", err)
	}

	if err := gw.WaitReady(ctx); err != nil {
		_ = gw.Shutdown()
		return nil, fmt.Errorf("waiting for device: %w", err)
	}

	motors, err := gw.MotorStatus()
	if err != nil {
		_ = gw.Shutdown()
		return nil, fmt.Errorf("reading motor status: %w", err)
	}
	logger.Info("vehicle is ready", slog.String("vehicle", config.Name), slog.Bool("motors", motors))

	return gw, nil
}

// pushControlConfig applies the control parameters and reads them back.
func pushControlConfig(gw *gateway.Gateway, cfg phenox.ControlConfig) error {
	if err := gw.SetConfig(cfg); err != nil {
		return fmt.Errorf("applying control parameters: %w", err)
	}

	applied, err := gw.Config()
	if err != nil {
		return fmt.Errorf("reading control parameters: %w", err)
	}
	if applied != cfg {
		return fmt.Errorf("control parameters were not applied as sent")
	}

	return nil
}

func createCoordinator(gw *gateway.Gateway, config *Config, recorder *FlightRecorder, logger *slog.Logger) *acquisition.Coordinator {
	camera := config.Camera()
	acq := &config.Acquisition

	var options []func(*acquisition.Coordinator)

	if acq.Image.Enabled {
		streamer := acquisition.NewImageStreamer(gw, camera,
			acquisition.WithImageLogger(logger),
			acquisition.WithImageInterval(acq.Image.Interval.Duration()))

		options = append(options,
			acquisition.WithRunner("images", streamer),
			acquisition.WithRunner("frames", &frameRecorder{streamer: streamer, camera: camera, recorder: recorder}))
	}

	if acq.Features.Enabled {
		options = append(options, acquisition.WithRunner("features", acquisition.NewFeatureTracker(gw, camera,
			acquisition.WithFeatureLogger(logger),
			acquisition.WithMaxFeatures(acq.Features.MaxFeatures),
			acquisition.WithFeatureInterval(acq.Features.Interval.Duration()),
			acquisition.WithOnFeatures(recorder.RecordFeatures))))
	}

	if acq.Blob.Enabled {
		options = append(options, acquisition.WithRunner("blob", acquisition.NewBlobTracker(gw, camera, acq.Blob.Filter,
			acquisition.WithBlobLogger(logger),
			acquisition.WithBlobInterval(acq.Blob.Interval.Duration()),
			acquisition.WithOnBlob(recorder.RecordBlob(camera)))))
	}

	options = append(options, acquisition.WithCoordinatorLogger(logger))

	return acquisition.NewCoordinator(options...)
}

// frameRecorder grabs every completed frame and records it as a capture.
type frameRecorder struct {
	streamer *acquisition.ImageStreamer
	camera   phenox.CameraID
	recorder *FlightRecorder
}

func (f *frameRecorder) Run(ctx context.Context) error {
	name := f.camera.String()
	for {
		frame, _, err := f.streamer.Grab(ctx)
		switch {
		case ctx.Err() != nil:
			return nil
		case errors.Is(err, phenox.ErrChannelWedged):
			return err
		case errors.Is(err, phenox.ErrDeviceFault):
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(acquisition.ImageInterval):
			}
			continue
		case err != nil:
			return err
		}

		f.recorder.RecordCapture(&flight.Capture{
			Timestamp: frame.Timestamp.UTC(),
			Kind:      flight.CaptureImage,
			Camera:    &name,
			Count:     phenox.ImageWidth * phenox.ImageHeight,
		})
	}
}

func serveTelemetry(addr string, handler http.Handler, logger *slog.Logger) (func(), error) {
	mux := http.NewServeMux()
	mux.Handle("GET /telemetry", handler)

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listening on %s: %w", addr, err)
	}

	server := &http.Server{Handler: mux}
	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("telemetry server failed", slog.String("error", err.Error()))
		}
	}()

	logger.Info("telemetry server is listening", slog.String("addr", listener.Addr().String()))

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), serverShutdownTimeout)
		defer cancel()
		_ = server.Shutdown(ctx)
	}, nil
}

func createStorage(config *StorageConfig) (*storage.SqliteStore, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to get current working directory: %w", err)
	}

	dbPath := config.DataDirectory
	if !filepath.IsAbs(dbPath) {
		dbPath = filepath.Join(wd, dbPath)
	}

	stat, err := os.Stat(dbPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("storage directory '%s' does not exist: %w", dbPath, err)
		}
		return nil, fmt.Errorf("checking storage directory '%s': %w", dbPath, err)
	}
	if !stat.IsDir() {
		return nil, fmt.Errorf("invalid storage directory '%s'", dbPath)
	}

	dbPath = filepath.Join(dbPath, fmt.Sprintf("flight_%s.sqlite", time.Now().UTC().Format("20060102_150405")))
	return storage.NewSqliteStore(dbPath), nil
}
