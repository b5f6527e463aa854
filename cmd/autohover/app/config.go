package app

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roman-kulish/phenox-pilot/internal/acquisition"
	"github.com/roman-kulish/phenox-pilot/internal/control"
	"github.com/roman-kulish/phenox-pilot/internal/gateway"
	"github.com/roman-kulish/phenox-pilot/internal/phenox"
	"github.com/roman-kulish/phenox-pilot/internal/safety"
)

const (
	DriverSim = "sim"

	defaultVehicleName   = "phenox"
	defaultStorageDir    = "data"
	defaultMaxBatchSize  = 100
	defaultRecordBacklog = 1024
)

// Config represents the main application configuration. A control section
// is decoded over the default control parameters; `control: ~` leaves the
// parameters on the vehicle untouched.
type Config struct {
	Settings    Settings              `yaml:"settings"`
	Vehicle     VehicleConfig         `yaml:"vehicle"`
	Loop        LoopConfig            `yaml:"loop"`
	Acquisition AcquisitionConfig     `yaml:"acquisition"`
	Storage     StorageConfig         `yaml:"storage"`
	Telemetry   TelemetryConfig       `yaml:"telemetry"`
	Safety      SafetyConfig          `yaml:"safety"`
	Control     *phenox.ControlConfig `yaml:"control"`
}

// Settings represents global application settings
type Settings struct {
	LogLevel slog.Level `yaml:"logLevel"`
}

// VehicleConfig selects the device substrate and its channel timeouts
type VehicleConfig struct {
	Name         string       `yaml:"name"`
	Driver       string       `yaml:"driver"`
	ReadyTimeout TimeDuration `yaml:"readyTimeout"`
	CallTimeout  TimeDuration `yaml:"callTimeout"`
}

// LoopConfig represents control loop settings
type LoopConfig struct {
	Period         TimeDuration `yaml:"period"`
	TelemetryEvery uint64       `yaml:"telemetryEvery"`
	TakeoffHeight  float32      `yaml:"takeoffHeight"`
}

// AcquisitionConfig represents the optional acquisition cycles
type AcquisitionConfig struct {
	Camera   string         `yaml:"camera"`
	Features FeaturesConfig `yaml:"features"`
	Image    ImageConfig    `yaml:"image"`
	Blob     BlobConfig     `yaml:"blob"`
}

type FeaturesConfig struct {
	Enabled     bool         `yaml:"enabled"`
	MaxFeatures int          `yaml:"maxFeatures"`
	Interval    TimeDuration `yaml:"interval"`
}

type ImageConfig struct {
	Enabled  bool         `yaml:"enabled"`
	Interval TimeDuration `yaml:"interval"`
}

type BlobConfig struct {
	Enabled  bool            `yaml:"enabled"`
	Interval TimeDuration    `yaml:"interval"`
	Filter   phenox.YUVRange `yaml:"filter"`
}

// StorageConfig represents storage settings
type StorageConfig struct {
	DataDirectory string `yaml:"dataDirectory"`
	MaxBatchSize  int    `yaml:"maxBatchSize"`
}

// TelemetryConfig represents the live telemetry endpoint. An empty Listen
// address disables it.
type TelemetryConfig struct {
	Listen string `yaml:"listen"`
}

// SafetyConfig represents the poweroff sequence settings
type SafetyConfig struct {
	MountPoint string `yaml:"mountPoint"`
	DryRun     bool   `yaml:"dryRun"`
}

// NewConfig returns a configuration with every default applied
func NewConfig() *Config {
	controlConfig := phenox.DefaultControlConfig()

	return &Config{
		Settings: Settings{LogLevel: slog.LevelInfo},
		Vehicle: VehicleConfig{
			Name:         defaultVehicleName,
			Driver:       DriverSim,
			ReadyTimeout: NewTimeDuration(gateway.ReadyTimeout),
		},
		Loop: LoopConfig{
			Period:         NewTimeDuration(control.Period),
			TelemetryEvery: control.TelemetryEvery,
			TakeoffHeight:  control.TakeoffHeight,
		},
		Acquisition: AcquisitionConfig{
			Camera: phenox.CameraBottom.String(),
			Features: FeaturesConfig{
				MaxFeatures: acquisition.MaxFeatures,
				Interval:    NewTimeDuration(acquisition.FeatureInterval),
			},
			Image: ImageConfig{
				Interval: NewTimeDuration(acquisition.ImageInterval),
			},
			Blob: BlobConfig{
				Interval: NewTimeDuration(acquisition.BlobInterval),
				Filter:   phenox.YUVRange{MaxY: 255, MaxU: 255, MaxV: 255},
			},
		},
		Storage: StorageConfig{
			DataDirectory: defaultStorageDir,
			MaxBatchSize:  defaultMaxBatchSize,
		},
		Safety: SafetyConfig{
			MountPoint: safety.MountPoint,
			DryRun:     true,
		},
		Control: &controlConfig,
	}
}

// LoadConfig reads the YAML configuration file at path over the defaults
// and validates the result
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig decodes a YAML configuration over the defaults and validates it
func ParseConfig(data []byte) (*Config, error) {
	c := NewConfig()
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return c, nil
}

// Validate checks the configuration for values the programs cannot run with
func (c *Config) Validate() error {
	var errs []error

	if c.Vehicle.Name == "" {
		errs = append(errs, errors.New("vehicle.name is required"))
	}
	if c.Vehicle.Driver != DriverSim {
		errs = append(errs, fmt.Errorf("vehicle.driver: unknown driver '%s'", c.Vehicle.Driver))
	}
	if c.Vehicle.ReadyTimeout < 0 || c.Vehicle.CallTimeout < 0 {
		errs = append(errs, errors.New("vehicle timeouts must not be negative"))
	}
	if c.Loop.Period <= 0 {
		errs = append(errs, errors.New("loop.period must be positive"))
	}
	if c.Loop.TelemetryEvery == 0 {
		errs = append(errs, errors.New("loop.telemetryEvery must be positive"))
	}
	if !phenox.IsFinite(c.Loop.TakeoffHeight) || c.Loop.TakeoffHeight <= 0 {
		errs = append(errs, errors.New("loop.takeoffHeight must be a positive number"))
	}
	if _, err := phenox.ParseCameraID(c.Acquisition.Camera); err != nil {
		errs = append(errs, fmt.Errorf("acquisition.camera: %w", err))
	}
	if c.Acquisition.Features.Enabled {
		if c.Acquisition.Features.MaxFeatures <= 0 {
			errs = append(errs, errors.New("acquisition.features.maxFeatures must be positive"))
		}
		if c.Acquisition.Features.Interval <= 0 {
			errs = append(errs, errors.New("acquisition.features.interval must be positive"))
		}
	}
	if c.Acquisition.Image.Enabled && c.Acquisition.Image.Interval <= 0 {
		errs = append(errs, errors.New("acquisition.image.interval must be positive"))
	}
	if c.Acquisition.Blob.Enabled {
		if c.Acquisition.Blob.Interval <= 0 {
			errs = append(errs, errors.New("acquisition.blob.interval must be positive"))
		}
		if err := c.Acquisition.Blob.Filter.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("acquisition.blob.filter: %w", err))
		}
	}
	if c.Storage.MaxBatchSize <= 0 {
		errs = append(errs, errors.New("storage.maxBatchSize must be positive"))
	}
	if c.Control != nil {
		if err := c.Control.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("control: %w", err))
		}
	}

	return errors.Join(errs...)
}

// Camera returns the configured acquisition camera
func (c *Config) Camera() phenox.CameraID {
	camera, _ := phenox.ParseCameraID(c.Acquisition.Camera)
	return camera
}

type TimeDuration time.Duration

func NewTimeDuration(d time.Duration) TimeDuration {
	return TimeDuration(d)
}

func (d *TimeDuration) UnmarshalYAML(value *yaml.Node) error {
	duration, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("app.TimeDuration: failed to parse: %s", err)
	}

	*d = TimeDuration(duration)
	return nil
}

func (d TimeDuration) MarshalYAML() (interface{}, error) {
	return d.String(), nil
}

func (d TimeDuration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d TimeDuration) Duration() time.Duration {
	return time.Duration(d)
}

func (d TimeDuration) String() string {
	return time.Duration(d).String()
}
