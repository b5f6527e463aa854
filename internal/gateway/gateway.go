package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/roman-kulish/phenox-pilot/internal/phenox"
)

const (
	// ReadyPollInterval is the default interval between readiness checks.
	ReadyPollInterval = 10 * time.Millisecond

	// ReadyTimeout is the default upper bound of WaitReady.
	ReadyTimeout = 30 * time.Second
)

// ErrReadyTimeout is returned by WaitReady when the substrate did not report
// readiness within the configured timeout.
var ErrReadyTimeout = errors.New("timed out waiting for device readiness")

type channelState int

const (
	stateUninitialized channelState = iota
	stateInitialized
	stateReady
	stateClosed
)

func (s channelState) String() string {
	switch s {
	case stateUninitialized:
		return "uninitialized"
	case stateInitialized:
		return "initialized"
	case stateReady:
		return "ready"
	case stateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// WithLogger sets the logger for the gateway
func WithLogger(logger *slog.Logger) func(*Gateway) {
	return func(g *Gateway) {
		g.logger = logger.With(slog.String("component", "gateway"))
	}
}

// WithCallTimeout bounds every substrate call. A call that does not return in
// time marks the channel wedged and every later call fails fast. Zero disables
// the bound.
func WithCallTimeout(timeout time.Duration) func(*Gateway) {
	return func(g *Gateway) {
		g.callTimeout = timeout
	}
}

// WithReadyPollInterval sets the interval between readiness checks in WaitReady.
func WithReadyPollInterval(interval time.Duration) func(*Gateway) {
	return func(g *Gateway) {
		g.readyPollInterval = interval
	}
}

// WithReadyTimeout sets the upper bound of WaitReady. Zero waits until the
// context is done.
func WithReadyTimeout(timeout time.Duration) func(*Gateway) {
	return func(g *Gateway) {
		g.readyTimeout = timeout
	}
}

// Gateway is the validated, sequenced and serialized access point to the
// flight-control substrate. It is safe to share between goroutines.
type Gateway struct {
	driver Driver

	mu     sync.Mutex
	state  channelState
	wedged bool

	callTimeout       time.Duration
	readyPollInterval time.Duration
	readyTimeout      time.Duration

	logger *slog.Logger
}

// New creates a Gateway over the given driver. The channel is not opened
// until Initialize is called.
func New(driver Driver, options ...func(*Gateway)) *Gateway {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil)) // nil logger

	g := Gateway{
		driver:            driver,
		readyPollInterval: ReadyPollInterval,
		readyTimeout:      ReadyTimeout,
		logger:            logger,
	}

	for _, option := range options {
		option(&g)
	}

	return &g
}

// Initialize opens the channel to the substrate. It must be called exactly once.
func (g *Gateway) Initialize() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.state != stateUninitialized {
		return phenox.ErrAlreadyInitialized
	}

	if err := g.driver.Init(); err != nil {
		return phenox.NewDeviceFaultError("Initialize", err)
	}

	g.state = stateInitialized
	g.logger.Info("device channel initialized")

	return nil
}

// IsReady reports whether the substrate side reports readiness.
func (g *Gateway) IsReady() (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	switch {
	case g.wedged:
		return false, phenox.NewDeviceFaultError("IsReady", phenox.ErrChannelWedged)
	case g.state == stateReady:
		return true, nil
	case g.state != stateInitialized:
		return false, fmt.Errorf("IsReady: %w", phenox.ErrChannelUnready)
	}

	ready, err := invoke(g, "IsReady", g.driver.CPUReady)
	if err != nil {
		return false, err
	}
	if ready {
		g.state = stateReady
	}
	return ready, nil
}

// WaitReady blocks until the substrate reports readiness, ctx is done, or the
// ready timeout elapses, whichever comes first.
func (g *Gateway) WaitReady(ctx context.Context) error {
	if g.readyTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.readyTimeout)
		defer cancel()
	}

	ticker := time.NewTicker(g.readyPollInterval)
	defer ticker.Stop()

	start := time.Now()
	for {
		ready, err := g.IsReady()
		if err != nil {
			return fmt.Errorf("waiting for readiness: %w", err)
		}
		if ready {
			g.logger.Info("device is ready", slog.Duration("waited", time.Since(start)))
			return nil
		}

		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return fmt.Errorf("%w after %s", ErrReadyTimeout, time.Since(start).Round(time.Millisecond))
			}
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Shutdown releases the channel. Only the first call has an effect; every
// operation after it fails with ErrChannelUnready.
func (g *Gateway) Shutdown() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.state == stateClosed || g.state == stateUninitialized {
		g.state = stateClosed
		return nil
	}

	g.state = stateClosed

	if g.wedged {
		g.logger.Warn("device channel is wedged, skipping release")
		return phenox.NewDeviceFaultError("Shutdown", phenox.ErrChannelWedged)
	}

	if err := g.driver.Close(); err != nil {
		return phenox.NewDeviceFaultError("Shutdown", err)
	}

	g.logger.Info("device channel released")
	return nil
}

// call runs fn against the driver once the channel is ready, under the gateway lock.
func call[T any](g *Gateway, op string, fn func() T) (T, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.checkReadyLocked(op); err != nil {
		var zero T
		return zero, err
	}
	return invoke(g, op, fn)
}

func do(g *Gateway, op string, fn func()) error {
	_, err := call(g, op, func() struct{} {
		fn()
		return struct{}{}
	})
	return err
}

// invoke runs fn, bounded by the call timeout if one is configured.
// The caller must hold g.mu.
func invoke[T any](g *Gateway, op string, fn func() T) (T, error) {
	if g.callTimeout <= 0 {
		return fn(), nil
	}

	result := make(chan T, 1)
	go func() {
		result <- fn()
	}()

	timer := time.NewTimer(g.callTimeout)
	defer timer.Stop()

	select {
	case v := <-result:
		return v, nil

	case <-timer.C:
		g.wedged = true
		g.logger.Error("device call timed out, channel is wedged",
			slog.String("op", op),
			slog.Duration("timeout", g.callTimeout))

		var zero T
		return zero, phenox.NewDeviceFaultError(op, phenox.ErrChannelWedged)
	}
}

func (g *Gateway) checkReadyLocked(op string) error {
	if g.wedged {
		return phenox.NewDeviceFaultError(op, phenox.ErrChannelWedged)
	}
	if g.state != stateReady {
		return fmt.Errorf("%s: %w (channel is %s)", op, phenox.ErrChannelUnready, g.state)
	}
	return nil
}
