package storage

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"
)

type telemetryData struct {
	ID        int64
	SessionID int64
	Timestamp time.Time
	Tick      int64
	Mode      int
	DegX      sql.NullFloat64
	DegY      sql.NullFloat64
	DegZ      sql.NullFloat64
	VisionTX  sql.NullFloat64
	VisionTY  sql.NullFloat64
	VisionTZ  sql.NullFloat64
	VisionVX  sql.NullFloat64
	VisionVY  sql.NullFloat64
	VisionVZ  sql.NullFloat64
	Height    sql.NullFloat64
	Battery   sql.NullInt64
}

type captureData struct {
	ID        int64
	SessionID int64
	Timestamp time.Time
	Kind      string
	Camera    sql.NullString
	Count     int
	Path      sql.NullString
	Bytes     int64
}

// sqliteDatetime scans timestamps returned by aggregate functions, which
// the driver hands out as text because the result column has no declared type.
type sqliteDatetime struct {
	Datetime time.Time
}

func (d *sqliteDatetime) Scan(src any) error {
	var s string
	switch v := src.(type) {
	case nil:
		d.Datetime = time.Time{}
		return nil
	case time.Time:
		d.Datetime = v
		return nil
	case string:
		s = v
	case []byte:
		s = string(v)
	default:
		return fmt.Errorf("unsupported datetime type %T", src)
	}

	s = strings.TrimSuffix(s, "Z")
	if s == "" {
		d.Datetime = time.Time{}
		return nil
	}

	for _, layout := range sqlite3.SQLiteTimestampFormats {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			d.Datetime = t.UTC()
			return nil
		}
	}

	return fmt.Errorf("invalid datetime %q", s)
}
