package phenox

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidArgument matches every InvalidArgumentError.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrDeviceFault matches every DeviceFaultError.
	ErrDeviceFault = errors.New("device fault")

	// ErrChannelUnready is returned when an operation is attempted before the
	// channel has been initialised and reported ready, or after it was released.
	ErrChannelUnready = errors.New("device channel is not ready")

	// ErrAlreadyInitialized is returned by a second channel initialisation.
	ErrAlreadyInitialized = errors.New("device channel is already initialized")

	// ErrNotReady is returned by poll style queries that found no new data.
	// It is expected and callers retry.
	ErrNotReady = errors.New("data not ready")

	// ErrChannelWedged is returned once a device call exceeded its timeout.
	// The channel is not used again.
	ErrChannelWedged = errors.New("device channel is not responding")

	// ErrFatalShutdown is returned when the vehicle is in serious trouble and
	// only the terminal shutdown sequence may follow.
	ErrFatalShutdown = errors.New("fatal shutdown requested")
)

// InvalidArgumentError is returned when a parameter is rejected before it
// reaches the flight-control substrate.
type InvalidArgumentError struct {
	Op  string
	msg string
}

func NewInvalidArgumentError(op, format string, args ...any) *InvalidArgumentError {
	return &InvalidArgumentError{Op: op, msg: fmt.Sprintf(format, args...)}
}

func (e *InvalidArgumentError) Error() string {
	return fmt.Sprintf("%s: invalid argument: %s", e.Op, e.msg)
}

func (e *InvalidArgumentError) Is(target error) bool {
	return target == ErrInvalidArgument
}

// DeviceFaultError is returned when the substrate reports a failed operation.
type DeviceFaultError struct {
	Op  string
	Err error
}

func NewDeviceFaultError(op string, err error) *DeviceFaultError {
	return &DeviceFaultError{Op: op, Err: err}
}

func (e *DeviceFaultError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: device fault", e.Op)
	}
	return fmt.Sprintf("%s: device fault: %s", e.Op, e.Err)
}

func (e *DeviceFaultError) Unwrap() error {
	return e.Err
}

func (e *DeviceFaultError) Is(target error) bool {
	return target == ErrDeviceFault
}
