package storage

import (
	"context"

	_ "github.com/mattn/go-sqlite3"

	"github.com/roman-kulish/phenox-pilot/internal/flight"
	"github.com/roman-kulish/phenox-pilot/internal/telemetry"
)

// Store provides an interface for managing flight run data storage operations.
// It handles sessions, telemetry snapshots and acquisition captures in a thread-safe manner.
// All operations that write to the database should be considered atomic.
type Store interface {
	// CreateSession initializes a new flight session and returns its unique identifier.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeouts
	//   - runID: Run identifier, unique across vehicles and databases
	//   - vehicle: Name of the vehicle
	//   - config: Optional control configuration. Can be string, []byte, or JSON-serializable object
	//
	// Returns:
	//   - sessionID: Unique identifier for the created session
	//   - error: If session creation fails or context is cancelled
	CreateSession(ctx context.Context, runID, vehicle string, config any) (sessionID int64, err error)

	// Session retrieves a specific flight session by its ID.
	Session(ctx context.Context, id int64) (session *flight.Session, err error)

	// Sessions returns all flight sessions stored in the database,
	// ordered by start time in ascending order.
	Sessions(ctx context.Context) (sessions []*flight.Session, err error)

	// StoreTelemetry saves a batch of telemetry snapshots for a specific session
	// in a single transaction.
	StoreTelemetry(ctx context.Context, sessionID int64, batch []*telemetry.Telemetry) error

	// StoreCapture saves an acquisition capture record and returns its identifier.
	StoreCapture(ctx context.Context, sessionID int64, c *flight.Capture) (captureID int64, err error)

	// Captures returns all capture records of a session in time order.
	Captures(ctx context.Context, sessionID int64) ([]*flight.Capture, error)

	// Close releases all database connections and resources.
	// It is safe to call Close multiple times.
	Close() error
}
