package app

import (
	"errors"
	"flag"
	"fmt"
	"strings"
	"time"

	"github.com/roman-kulish/phenox-pilot/internal/phenox"
)

type Config struct {
	DBPath       string
	SessionID    int64
	Modes        []phenox.OperateMode
	MinTimestamp *time.Time
	MaxTimestamp *time.Time
	Captures     bool
}

func NewConfig() *Config {
	return &Config{}
}

func NewConfigFromCLI() (*Config, error) {
	c := NewConfig()

	var modes, minTime, maxTime string
	flag.StringVar(&c.DBPath, "db", "", "Path to the database file")
	flag.Int64Var(&c.SessionID, "s", 0, "Session ID, lists all sessions when omitted")
	flag.StringVar(&modes, "modes", "", "Comma separated operate modes to keep. [halt, up, hover, down]")
	flag.StringVar(&minTime, "from", "", "Skip telemetry before this time (format "+time.DateTime+", UTC)")
	flag.StringVar(&maxTime, "to", "", "Skip telemetry after this time (format "+time.DateTime+", UTC)")
	flag.BoolVar(&c.Captures, "captures", false, "List acquisition captures instead of telemetry")
	flag.Parse()

	if err := c.apply(modes, minTime, maxTime); err != nil {
		flag.Usage()
		return nil, err
	}
	return c, nil
}

func (c *Config) apply(modes, minTime, maxTime string) error {
	if c.DBPath == "" {
		return errors.New("db path is required")
	}
	if c.SessionID < 0 {
		return fmt.Errorf("invalid session id: %d", c.SessionID)
	}

	if modes != "" {
		for _, name := range strings.Split(modes, ",") {
			mode, err := parseMode(strings.TrimSpace(name))
			if err != nil {
				return err
			}
			c.Modes = append(c.Modes, mode)
		}
	}

	var err error
	if c.MinTimestamp, err = parseTime(minTime); err != nil {
		return fmt.Errorf("invalid start time: %w", err)
	}
	if c.MaxTimestamp, err = parseTime(maxTime); err != nil {
		return fmt.Errorf("invalid end time: %w", err)
	}

	return nil
}

func parseMode(name string) (phenox.OperateMode, error) {
	for _, mode := range []phenox.OperateMode{phenox.ModeHalt, phenox.ModeUp, phenox.ModeHover, phenox.ModeDown} {
		if strings.EqualFold(mode.String(), name) {
			return mode, nil
		}
	}
	return 0, fmt.Errorf("invalid operate mode: %s", name)
}

func parseTime(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.ParseInLocation(time.DateTime, s, time.UTC)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
