package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/roman-kulish/phenox-pilot/internal/flight"
	"github.com/roman-kulish/phenox-pilot/internal/phenox"
)

// TelemetryReader provides an iterator-based interface for reading the
// telemetry snapshots of a flight session with optional time and mode filtering.
type TelemetryReader interface {
	// Session returns metadata about the flight session this reader is accessing.
	Session() *flight.Session

	// Next advances the iterator and returns true if there is another snapshot
	// to read, false when the iteration is complete or if an error occurred.
	Next(context.Context) bool

	// Current returns the current snapshot in the iteration.
	// If called after Next() returns false, the behavior is undefined.
	Current() *flight.TelemetryRecord

	// Error returns any error that occurred during iteration.
	// If Next() returns false, Error() should be checked to distinguish between
	// end of data and an error condition.
	Error() error

	// Close releases any resources associated with the reader.
	Close() error
}

// ReaderOption configures a SqliteTelemetryReader with specific filtering criteria.
type ReaderOption func(*SqliteTelemetryReader)

// WithStartTime excludes snapshots taken before t.
func WithStartTime(t time.Time) ReaderOption {
	return func(r *SqliteTelemetryReader) {
		t = t.UTC()
		r.startTime = &t
	}
}

// WithEndTime excludes snapshots taken after t.
func WithEndTime(t time.Time) ReaderOption {
	return func(r *SqliteTelemetryReader) {
		t = t.UTC()
		r.endTime = &t
	}
}

// WithTimeRange sets both start and end time filters.
func WithTimeRange(startTime, endTime time.Time) ReaderOption {
	return func(r *SqliteTelemetryReader) {
		WithStartTime(startTime)(r)
		WithEndTime(endTime)(r)
	}
}

// WithModes keeps only snapshots taken in one of the given operate modes.
func WithModes(modes ...phenox.OperateMode) ReaderOption {
	return func(r *SqliteTelemetryReader) {
		r.modes = modes
	}
}

func newSqliteTelemetryReader(ctx context.Context, db *sql.DB, sessionID int64, opts ...ReaderOption) (*SqliteTelemetryReader, error) {
	tr := &SqliteTelemetryReader{
		db:        db,
		sessionID: sessionID,
	}
	for _, opt := range opts {
		opt(tr)
	}
	if err := tr.init(ctx); err != nil {
		return nil, fmt.Errorf("initializing reader: %w", err)
	}
	return tr, nil
}

// SqliteTelemetryReader implements TelemetryReader for SQLite database backend.
type SqliteTelemetryReader struct {
	db *sql.DB

	sessionID int64
	session   *flight.Session

	startTime *time.Time // Optional start of time range filter
	endTime   *time.Time // Optional end of time range filter
	modes     []phenox.OperateMode

	current *flight.TelemetryRecord
	rows    *sql.Rows
	err     error
}

var _ TelemetryReader = (*SqliteTelemetryReader)(nil)

func (tr *SqliteTelemetryReader) init(ctx context.Context) error {
	if tr.db == nil {
		return errors.New("database connection required")
	}
	if tr.sessionID <= 0 {
		return errors.New("session ID required")
	}

	steps := []struct {
		msg string
		fn  func(context.Context) error
	}{
		{msg: "loading session", fn: tr.loadSession},
		{msg: "initializing filters", fn: tr.initFilters},
		{msg: "initializing query", fn: tr.initQuery},
	}
	for _, s := range steps {
		if err := s.fn(ctx); err != nil {
			return fmt.Errorf("%s: %w", s.msg, err)
		}
	}
	return nil
}

func (tr *SqliteTelemetryReader) loadSession(ctx context.Context) (err error) {
	stmt, err := tr.db.PrepareContext(ctx, selectSessionSQL)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer closeWithError(stmt, &err)

	if tr.session, err = scanSession(stmt.QueryRowContext(ctx, tr.sessionID)); err != nil {
		return fmt.Errorf("querying session: %w", err)
	}
	return
}

func (tr *SqliteTelemetryReader) initFilters(ctx context.Context) (err error) {
	if tr.startTime != nil && tr.endTime != nil {
		if tr.startTime.After(*tr.endTime) {
			return fmt.Errorf("start time %s is after end time %s", tr.startTime, tr.endTime)
		}
		return nil
	}

	stmt, err := tr.db.PrepareContext(ctx, selectTelemetryBoundsSQL)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer closeWithError(stmt, &err)

	var startTime, endTime sqliteDatetime
	if err = stmt.QueryRowContext(ctx, tr.sessionID).Scan(&startTime, &endTime); err != nil {
		return fmt.Errorf("scanning filters data: %w", err)
	}

	if tr.startTime == nil {
		tr.startTime = &startTime.Datetime
	}
	if tr.endTime == nil {
		tr.endTime = &endTime.Datetime
	}

	return nil
}

func (tr *SqliteTelemetryReader) initQuery(ctx context.Context) (err error) {
	stmt, err := tr.db.PrepareContext(ctx, selectTelemetrySQL)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer closeWithError(stmt, &err)

	if tr.rows, err = stmt.QueryContext(ctx, tr.sessionID, *tr.startTime, *tr.endTime); err != nil {
		return err
	}
	return nil
}

func (tr *SqliteTelemetryReader) scanRecord() (*flight.TelemetryRecord, error) {
	data := telemetryData{SessionID: tr.sessionID}
	err := tr.rows.Scan(
		&data.ID,
		&data.Timestamp,
		&data.Tick,
		&data.Mode,
		&data.DegX,
		&data.DegY,
		&data.DegZ,
		&data.VisionTX,
		&data.VisionTY,
		&data.VisionTZ,
		&data.VisionVX,
		&data.VisionVY,
		&data.VisionVZ,
		&data.Height,
		&data.Battery,
	)
	if err != nil {
		return nil, fmt.Errorf("scanning telemetry: %w", err)
	}
	return fromTelemetryData(&data), nil
}

func (tr *SqliteTelemetryReader) Session() *flight.Session {
	return tr.session
}

func (tr *SqliteTelemetryReader) Next(ctx context.Context) bool {
	if tr.err != nil || tr.rows == nil {
		return false
	}

	for {
		select {
		case <-ctx.Done():
			tr.err = ctx.Err()
			return false
		default:
		}

		if !tr.rows.Next() {
			tr.current = nil
			return false
		}

		rec, err := tr.scanRecord()
		if err != nil {
			tr.err = err
			return false
		}

		if len(tr.modes) > 0 && !slices.Contains(tr.modes, rec.Mode) {
			continue
		}

		tr.current = rec
		return true
	}
}

func (tr *SqliteTelemetryReader) Current() *flight.TelemetryRecord {
	return tr.current
}

func (tr *SqliteTelemetryReader) Error() error {
	if tr.err != nil {
		return tr.err
	}
	if tr.rows != nil {
		return tr.rows.Err()
	}
	return nil
}

func (tr *SqliteTelemetryReader) Close() error {
	if tr.rows != nil {
		err := tr.rows.Close()
		tr.current = nil
		tr.rows = nil
		return err
	}
	return nil
}
