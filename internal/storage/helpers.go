package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/roman-kulish/phenox-pilot/internal/flight"
	"github.com/roman-kulish/phenox-pilot/internal/phenox"
	"github.com/roman-kulish/phenox-pilot/internal/telemetry"
)

func closeWithError(cl interface{ Close() error }, err *error) {
	if cErr := cl.Close(); cErr != nil && *err == nil {
		*err = cErr
	}
}

func rollbackWithError(rb interface{ Rollback() error }, err *error) {
	if cErr := rb.Rollback(); cErr != nil && cErr != sql.ErrTxDone && *err == nil {
		*err = cErr
	}
}

func configToNullString(config any) (sql.NullString, error) {
	var configData sql.NullString

	switch v := config.(type) {
	case nil:
		return configData, nil

	case string:
		configData.String = v

	case []byte:
		configData.String = string(v)

	default:
		p, err := json.Marshal(config)
		if err != nil {
			return configData, fmt.Errorf("marshaling config: %w", err)
		}
		configData.String = string(p)
	}

	configData.Valid = true
	return configData, nil
}

func toTelemetryData(sessionID int64, t *telemetry.Telemetry) *telemetryData {
	s := t.State

	return &telemetryData{
		SessionID: sessionID,
		Timestamp: t.Timestamp.UTC(),
		Tick:      int64(t.Tick),
		Mode:      int(t.Mode),
		DegX:      toNullFloat64(s.DegX),
		DegY:      toNullFloat64(s.DegY),
		DegZ:      toNullFloat64(s.DegZ),
		VisionTX:  toNullFloat64(s.VisionTX),
		VisionTY:  toNullFloat64(s.VisionTY),
		VisionTZ:  toNullFloat64(s.VisionTZ),
		VisionVX:  toNullFloat64(s.VisionVX),
		VisionVY:  toNullFloat64(s.VisionVY),
		VisionVZ:  toNullFloat64(s.VisionVZ),
		Height:    toNullFloat64(s.Height),
		Battery:   sql.NullInt64{Int64: int64(s.Battery), Valid: true},
	}
}

func fromTelemetryData(d *telemetryData) *flight.TelemetryRecord {
	return &flight.TelemetryRecord{
		ID:        d.ID,
		SessionID: d.SessionID,
		Telemetry: telemetry.Telemetry{
			Timestamp: d.Timestamp.UTC(),
			Tick:      uint64(d.Tick),
			Mode:      phenox.OperateMode(d.Mode),
			State: phenox.SelfState{
				DegX:     fromNullFloat64(d.DegX),
				DegY:     fromNullFloat64(d.DegY),
				DegZ:     fromNullFloat64(d.DegZ),
				VisionTX: fromNullFloat64(d.VisionTX),
				VisionTY: fromNullFloat64(d.VisionTY),
				VisionTZ: fromNullFloat64(d.VisionTZ),
				VisionVX: fromNullFloat64(d.VisionVX),
				VisionVY: fromNullFloat64(d.VisionVY),
				VisionVZ: fromNullFloat64(d.VisionVZ),
				Height:   fromNullFloat64(d.Height),
				Battery:  int(d.Battery.Int64),
			},
		},
	}
}

func toCaptureData(sessionID int64, c *flight.Capture) *captureData {
	return &captureData{
		SessionID: sessionID,
		Timestamp: c.Timestamp.UTC(),
		Kind:      string(c.Kind),
		Camera:    toNullString(c.Camera),
		Count:     c.Count,
		Path:      toNullString(c.Path),
		Bytes:     c.Bytes,
	}
}

func fromCaptureData(d *captureData) *flight.Capture {
	c := flight.Capture{
		ID:        d.ID,
		SessionID: d.SessionID,
		Timestamp: d.Timestamp.UTC(),
		Kind:      flight.CaptureKind(d.Kind),
		Count:     d.Count,
		Bytes:     d.Bytes,
	}
	if d.Camera.Valid {
		c.Camera = &d.Camera.String
	}
	if d.Path.Valid {
		c.Path = &d.Path.String
	}
	return &c
}

// toNullFloat64 stores non-finite readings as NULL.
func toNullFloat64(f float32) sql.NullFloat64 {
	if !phenox.IsFinite(f) {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: float64(f), Valid: true}
}

func fromNullFloat64(f sql.NullFloat64) float32 {
	if !f.Valid {
		return 0
	}
	return float32(f.Float64)
}

func toNullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}
