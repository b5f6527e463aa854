package acquisition

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"
)

// Runner is an acquisition cycle that runs until its context is done.
type Runner interface {
	Run(ctx context.Context) error
}

// WithRunner adds a cycle to the coordinator
func WithRunner(name string, r Runner) func(*Coordinator) {
	return func(c *Coordinator) {
		c.names = append(c.names, name)
		c.runners = append(c.runners, r)
	}
}

// WithCoordinatorLogger sets the logger for the coordinator
func WithCoordinatorLogger(logger *slog.Logger) func(*Coordinator) {
	return func(c *Coordinator) {
		c.logger = logger
	}
}

// Coordinator runs several acquisition cycles concurrently. The first cycle
// to fail cancels the rest.
type Coordinator struct {
	names   []string
	runners []Runner

	logger *slog.Logger
}

func NewCoordinator(options ...func(*Coordinator)) *Coordinator {
	c := Coordinator{}

	for _, option := range options {
		option(&c)
	}

	c.logger = componentLogger(c.logger, "acquisition")

	return &c
}

// Run starts all cycles and blocks until every one has returned. It returns
// nil when the cycles were stopped by ctx, otherwise the error of the first
// cycle that failed. Run holds no state between calls.
func (c *Coordinator) Run(ctx context.Context) error {
	if len(c.runners) == 0 {
		<-ctx.Done()
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	for i, r := range c.runners {
		logger := c.logger.With(slog.String("cycle", c.names[i]))
		g.Go(func() error {
			return run(gctx, logger, r)
		})
	}

	return g.Wait()
}

func run(ctx context.Context, logger *slog.Logger, r Runner) error {
	logger.Debug("cycle started")

	if err := r.Run(ctx); err != nil {
		logger.Error("cycle failed", slog.String("error", err.Error()))
		return err
	}

	logger.Debug("cycle stopped")
	return nil
}
