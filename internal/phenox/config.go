package phenox

import (
	"fmt"
)

// ControlConfig is the flat record of tunables pushed to the flight-control
// substrate before flight. Values are passed through as they are; nothing in
// this module computes with them.
type ControlConfig struct {
	DutyHover     float32 `yaml:"dutyHover" json:"dutyHover"`
	DutyHoverMax  float32 `yaml:"dutyHoverMax" json:"dutyHoverMax"`
	DutyHoverMin  float32 `yaml:"dutyHoverMin" json:"dutyHoverMin"`
	DutyUp        float32 `yaml:"dutyUp" json:"dutyUp"`
	DutyDown      float32 `yaml:"dutyDown" json:"dutyDown"`
	DutyBiasFront float32 `yaml:"dutyBiasFront" json:"dutyBiasFront"`
	DutyBiasBack  float32 `yaml:"dutyBiasBack" json:"dutyBiasBack"`
	DutyBiasLeft  float32 `yaml:"dutyBiasLeft" json:"dutyBiasLeft"`
	DutyBiasRight float32 `yaml:"dutyBiasRight" json:"dutyBiasRight"`

	PGainVisionTX float32 `yaml:"pGainVisionTX" json:"pGainVisionTX"`
	PGainVisionTY float32 `yaml:"pGainVisionTY" json:"pGainVisionTY"`
	DGainVisionTX float32 `yaml:"dGainVisionTX" json:"dGainVisionTX"`
	DGainVisionTY float32 `yaml:"dGainVisionTY" json:"dGainVisionTY"`
	PGainSonar    float32 `yaml:"pGainSonar" json:"pGainSonar"`
	DGainSonar    float32 `yaml:"dGainSonar" json:"dGainSonar"`

	WhistleBorder int `yaml:"whistleBorder" json:"whistleBorder"`
	SoundBorder   int `yaml:"soundBorder" json:"soundBorder"`

	UpTimeMax     float32 `yaml:"upTimeMax" json:"upTimeMax"`         // Seconds
	DownTimeMax   float32 `yaml:"downTimeMax" json:"downTimeMax"`     // Seconds
	SelXYTimeMax  float32 `yaml:"selXYTimeMax" json:"selXYTimeMax"`   // Seconds
	DAngZRotSpeed float32 `yaml:"dAngZRotSpeed" json:"dAngZRotSpeed"` // Degrees per second

	FeatureContrastFront  int `yaml:"featureContrastFront" json:"featureContrastFront"`
	FeatureContrastBottom int `yaml:"featureContrastBottom" json:"featureContrastBottom"`

	PGainDegX float32 `yaml:"pGainDegX" json:"pGainDegX"`
	PGainDegY float32 `yaml:"pGainDegY" json:"pGainDegY"`
	PGainDegZ float32 `yaml:"pGainDegZ" json:"pGainDegZ"`
	DGainDegX float32 `yaml:"dGainDegX" json:"dGainDegX"`
	DGainDegY float32 `yaml:"dGainDegY" json:"dGainDegY"`
	DGainDegZ float32 `yaml:"dGainDegZ" json:"dGainDegZ"`

	PWMOrServo       int `yaml:"pwmOrServo" json:"pwmOrServo"`             // 0 = PWM, 1 = servo
	PropellerMonitor int `yaml:"propellerMonitor" json:"propellerMonitor"` // 0 = off, 1 = on
}

// DefaultControlConfig returns the reference tuning of the vehicle.
func DefaultControlConfig() ControlConfig {
	return ControlConfig{
		DutyHover:     1200,
		DutyHoverMax:  1350,
		DutyHoverMin:  1000,
		DutyUp:        1350,
		DutyDown:      1000,
		DutyBiasFront: 0,
		DutyBiasBack:  0,
		DutyBiasLeft:  130,
		DutyBiasRight: -130,

		PGainVisionTX: 0.032,
		PGainVisionTY: 0.032,
		DGainVisionTX: 0.80,
		DGainVisionTY: 0.80,
		PGainSonar:    45.0 / 1000.0,
		DGainSonar:    20.0,

		WhistleBorder: 280,
		SoundBorder:   1000,

		UpTimeMax:             0.8,
		DownTimeMax:           3.0,
		SelXYTimeMax:          3,
		DAngZRotSpeed:         15.0,
		FeatureContrastFront:  35,
		FeatureContrastBottom: 25,

		PGainDegX: 880,
		PGainDegY: 880,
		PGainDegZ: 2400,
		DGainDegX: 22,
		DGainDegY: 22,
		DGainDegZ: 28,

		PWMOrServo:       0,
		PropellerMonitor: 1,
	}
}

// Validate checks the record for values the substrate cannot accept.
func (c *ControlConfig) Validate() error {
	floats := map[string]float32{
		"dutyHover": c.DutyHover, "dutyHoverMax": c.DutyHoverMax, "dutyHoverMin": c.DutyHoverMin,
		"dutyUp": c.DutyUp, "dutyDown": c.DutyDown,
		"dutyBiasFront": c.DutyBiasFront, "dutyBiasBack": c.DutyBiasBack,
		"dutyBiasLeft": c.DutyBiasLeft, "dutyBiasRight": c.DutyBiasRight,
		"pGainVisionTX": c.PGainVisionTX, "pGainVisionTY": c.PGainVisionTY,
		"dGainVisionTX": c.DGainVisionTX, "dGainVisionTY": c.DGainVisionTY,
		"pGainSonar": c.PGainSonar, "dGainSonar": c.DGainSonar,
		"upTimeMax": c.UpTimeMax, "downTimeMax": c.DownTimeMax, "selXYTimeMax": c.SelXYTimeMax,
		"dAngZRotSpeed": c.DAngZRotSpeed,
		"pGainDegX": c.PGainDegX, "pGainDegY": c.PGainDegY, "pGainDegZ": c.PGainDegZ,
		"dGainDegX": c.DGainDegX, "dGainDegY": c.DGainDegY, "dGainDegZ": c.DGainDegZ,
	}
	for name, v := range floats {
		if !IsFinite(v) {
			return fmt.Errorf("phenox.ControlConfig: %s must be finite", name)
		}
	}

	if c.DutyHoverMin > c.DutyHoverMax {
		return fmt.Errorf("phenox.ControlConfig: dutyHoverMin must not exceed dutyHoverMax: %.0f > %.0f given",
			c.DutyHoverMin, c.DutyHoverMax)
	}
	if c.DutyHover < c.DutyHoverMin || c.DutyHover > c.DutyHoverMax {
		return fmt.Errorf("phenox.ControlConfig: dutyHover must be between %.0f and %.0f: %.0f given",
			c.DutyHoverMin, c.DutyHoverMax, c.DutyHover)
	}

	if c.UpTimeMax < 0 || c.DownTimeMax < 0 || c.SelXYTimeMax < 0 {
		return fmt.Errorf("phenox.ControlConfig: timings cannot be negative")
	}

	if c.WhistleBorder < 0 || c.SoundBorder < 0 {
		return fmt.Errorf("phenox.ControlConfig: sound borders cannot be negative")
	}
	if c.FeatureContrastFront < 0 || c.FeatureContrastBottom < 0 {
		return fmt.Errorf("phenox.ControlConfig: feature contrast cannot be negative")
	}

	if c.PWMOrServo != 0 && c.PWMOrServo != 1 {
		return fmt.Errorf("phenox.ControlConfig: pwmOrServo must be 0 or 1: %d given", c.PWMOrServo)
	}
	if c.PropellerMonitor != 0 && c.PropellerMonitor != 1 {
		return fmt.Errorf("phenox.ControlConfig: propellerMonitor must be 0 or 1: %d given", c.PropellerMonitor)
	}

	return nil
}
