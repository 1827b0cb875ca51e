// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/calltally/lib/cli"
	"github.com/bureau-foundation/calltally/lib/config"
	"github.com/bureau-foundation/calltally/lib/tally"
)

// configFlags is the --config flag shared by every command that reads
// the configuration file.
type configFlags struct {
	path string
}

func (f *configFlags) register(flagSet *pflag.FlagSet) {
	flagSet.StringVarP(&f.path, "config", "c", "", "configuration file (default: $CALLTALLY_CONFIG)")
}

// load reads and validates the configuration. Offline commands pass
// local=true and skip the Matrix section.
func (f *configFlags) load(local bool) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if f.path != "" {
		cfg, err = config.LoadFile(f.path)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}

	validate := cfg.Validate
	if local {
		validate = cfg.ValidateLocal
	}
	if err := validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration:\n%w", err)
	}
	return cfg, nil
}

func newFlagSet(name string) *pflag.FlagSet {
	return pflag.NewFlagSet(name, pflag.ContinueOnError)
}

func loggerFor(cfg *config.Config) *slog.Logger {
	level, err := cli.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = slog.LevelInfo
	}
	return cli.NewLogger(level)
}

// counterStore is what the commands need from a backend.
type counterStore interface {
	tally.Store
	tally.Archiver
}

func openStore(ctx context.Context, cfg *config.Config, location *time.Location, logger *slog.Logger) (counterStore, error) {
	switch cfg.Storage.Driver {
	case config.DriverMemory:
		logger.Warn("using the in-memory counter store; counts are lost on exit")
		return tally.NewMemoryStore(location), nil
	case config.DriverSQLite:
		if err := cfg.EnsurePaths(); err != nil {
			return nil, err
		}
		store, err := tally.OpenSQLite(ctx, tally.SQLiteConfig{
			Path:     cfg.Storage.SQLitePath,
			PoolSize: cfg.Storage.PoolSize,
			Location: location,
			Logger:   logger,
		})
		if err != nil {
			return nil, err
		}
		return store, nil
	case config.DriverPostgres:
		store, err := tally.OpenPostgres(ctx, tally.PostgresConfig{
			DSN:          cfg.Storage.PostgresDSN,
			MaxOpenConns: cfg.Storage.PoolSize,
			Location:     location,
			Logger:       logger,
		})
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
}

// scheduleNote describes the report schedule for chat users. A cron
// expression of the form "M H * * *" is shown as a time of day.
func scheduleNote(cfg *config.Config) string {
	daily := "on the schedule " + strconv.Quote(cfg.Schedule.DailyCron)
	fields := strings.Fields(cfg.Schedule.DailyCron)
	if len(fields) == 5 && fields[2] == "*" && fields[3] == "*" && fields[4] == "*" {
		minute, minuteErr := strconv.Atoi(fields[0])
		hour, hourErr := strconv.Atoi(fields[1])
		if minuteErr == nil && hourErr == nil {
			daily = fmt.Sprintf("at %02d:%02d", hour, minute)
		}
	}
	return fmt.Sprintf("A daily summary is posted every weekday %s and a monthly summary on the last weekday of the month at %s (%s time).",
		daily, cfg.Schedule.MonthlyTime, cfg.Timezone)
}
