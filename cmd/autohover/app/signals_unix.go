//go:build unix

package app

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/roman-kulish/phenox-pilot/internal/gateway/sim"
)

// watchSignals lets an operator drive the simulated vehicle: SIGUSR1 blows
// the whistle and SIGUSR2 drains the battery.
func watchSignals(ctx context.Context, simulator *sim.Simulator, logger *slog.Logger) {
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGUSR1, syscall.SIGUSR2)

	go func() {
		defer signal.Stop(signals)

		for {
			select {
			case <-ctx.Done():
				return
			case sig := <-signals:
				switch sig {
				case syscall.SIGUSR1:
					logger.Info("whistle")
					simulator.TriggerWhistle()
				case syscall.SIGUSR2:
					logger.Info("battery drained")
					simulator.SetBatteryLow(true)
				}
			}
		}
	}()
}
