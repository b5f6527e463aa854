package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/roman-kulish/phenox-pilot/internal/flight"
	"github.com/roman-kulish/phenox-pilot/internal/storage"
)

func Run(ctx context.Context, config *Config, out io.Writer, logger *slog.Logger) error {
	if _, err := os.Stat(config.DBPath); err != nil && os.IsNotExist(err) {
		return fmt.Errorf("database file '%s' does not exist: %w", config.DBPath, err)
	}

	store := storage.NewSqliteStore(config.DBPath)
	defer store.Close()

	switch {
	case config.SessionID == 0:
		return listSessions(ctx, store, out)
	case config.Captures:
		return listCaptures(ctx, store, config.SessionID, out)
	default:
		return dumpTelemetry(ctx, store, config, out, logger)
	}
}

func listSessions(ctx context.Context, store storage.Store, out io.Writer) error {
	sessions, err := store.Sessions(ctx)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tRUN\tVEHICLE\tSTARTED\tCONFIG")
	for _, s := range sessions {
		config := "vehicle defaults"
		if s.Config != nil {
			config = humanize.Bytes(uint64(len(*s.Config)))
		}
		_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%s (%s)\t%s\n",
			s.ID, s.RunID, s.Vehicle, s.StartTime.Format(time.DateTime), humanize.Time(s.StartTime), config)
	}
	return w.Flush()
}

func listCaptures(ctx context.Context, store storage.Store, sessionID int64, out io.Writer) error {
	captures, err := store.Captures(ctx, sessionID)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "TIME\tKIND\tCAMERA\tCOUNT\tFILE")
	for _, c := range captures {
		camera, file := "-", "-"
		if c.Camera != nil {
			camera = *c.Camera
		}
		if c.Path != nil {
			file = fmt.Sprintf("%s (%s)", *c.Path, humanize.Bytes(uint64(c.Bytes)))
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			c.Timestamp.Format(time.StampMilli), c.Kind, camera, humanize.Comma(int64(c.Count)), file)
	}
	return w.Flush()
}

func dumpTelemetry(ctx context.Context, store *storage.SqliteStore, config *Config, out io.Writer, logger *slog.Logger) error {
	var opts []storage.ReaderOption
	var filters []any

	switch {
	case config.MinTimestamp != nil && config.MaxTimestamp != nil:
		opts = append(opts, storage.WithTimeRange(*config.MinTimestamp, *config.MaxTimestamp))

		filters = append(filters,
			slog.String("minTimestamp", config.MinTimestamp.Format(time.DateTime)),
			slog.String("maxTimestamp", config.MaxTimestamp.Format(time.DateTime)))

	case config.MinTimestamp != nil:
		opts = append(opts, storage.WithStartTime(*config.MinTimestamp))
		filters = append(filters, slog.String("minTimestamp", config.MinTimestamp.Format(time.DateTime)))

	case config.MaxTimestamp != nil:
		opts = append(opts, storage.WithEndTime(*config.MaxTimestamp))
		filters = append(filters, slog.String("maxTimestamp", config.MaxTimestamp.Format(time.DateTime)))
	}

	if len(config.Modes) > 0 {
		opts = append(opts, storage.WithModes(config.Modes...))
		filters = append(filters, slog.Any("modes", config.Modes))
	}

	logger.Info("iterator configuration", filters...)

	iter, err := store.ReadTelemetry(ctx, config.SessionID, opts...)
	if err != nil {
		return err
	}
	defer iter.Close()

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', tabwriter.AlignRight)
	_, _ = fmt.Fprintln(w, "TICK\tTIME\tMODE\tHEIGHT\tTX\tTY\tDEG X\tDEG Y\tDEG Z\tBATTERY\t")

	var stats flightStats
	for iter.Next(ctx) {
		rec := iter.Current()
		stats.update(rec)

		s := rec.State
		_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%.1f\t%.1f\t%.1f\t%.2f\t%.2f\t%.2f\t%d\t\n",
			rec.Tick, rec.Timestamp.Format(time.StampMilli), rec.Mode,
			s.Height, s.VisionTX, s.VisionTY, s.DegX, s.DegY, s.DegZ, s.Battery)
	}
	if err = iter.Error(); err != nil {
		return err
	}
	if err = w.Flush(); err != nil {
		return err
	}

	session := iter.Session()
	logger.Info("finished reading telemetry",
		slog.Group("session",
			slog.String("runID", session.RunID),
			slog.String("vehicle", session.Vehicle),
			slog.String("started", humanize.Time(session.StartTime)),
		),
		slog.Group("stats",
			slog.String("snapshots", humanize.Comma(stats.count)),
			slog.String("duration", stats.duration().String()),
			slog.String("maxHeight", humanize.SIWithDigits(float64(stats.maxHeight)/100, 2, "m")),
			slog.Int("minBattery", stats.minBattery),
		))

	return nil
}

type flightStats struct {
	count      int64
	first      time.Time
	last       time.Time
	maxHeight  float32
	minBattery int
}

func (s *flightStats) update(rec *flight.TelemetryRecord) {
	if s.count == 0 {
		s.first = rec.Timestamp
		s.minBattery = rec.State.Battery
	}
	s.count++
	s.last = rec.Timestamp
	s.maxHeight = max(s.maxHeight, rec.State.Height)
	s.minBattery = min(s.minBattery, rec.State.Battery)
}

func (s *flightStats) duration() time.Duration {
	return s.last.Sub(s.first)
}
