//go:build !unix

package app

import (
	"context"
	"log/slog"

	"github.com/roman-kulish/phenox-pilot/internal/gateway/sim"
)

func watchSignals(context.Context, *sim.Simulator, *slog.Logger) {}
