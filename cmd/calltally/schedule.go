// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/calltally/lib/cli"
	"github.com/bureau-foundation/calltally/lib/clock"
	"github.com/bureau-foundation/calltally/lib/config"
	"github.com/bureau-foundation/calltally/lib/schedule"
	"github.com/bureau-foundation/calltally/lib/tally"
)

func scheduleCommand() *cli.Command {
	var (
		flags configFlags
		count int
	)
	return &cli.Command{
		Name:    "schedule",
		Summary: "List upcoming report runs",
		Description: `Show when the next daily and monthly reports will be posted with the
current configuration. Weekend daily matches are left out because the
bot skips them.`,
		Flags: func() *pflag.FlagSet {
			flagSet := newFlagSet("schedule")
			flags.register(flagSet)
			flagSet.IntVarP(&count, "count", "n", 10, "number of runs to list")
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) > 0 {
				return fmt.Errorf("unexpected argument %q", args[0])
			}
			if count <= 0 {
				return fmt.Errorf("--count must be positive")
			}
			cfg, err := flags.load(true)
			if err != nil {
				return err
			}
			return printSchedule(os.Stdout, cfg, time.Now(), count)
		},
	}
}

// noJobs satisfies schedule.Jobs for a scheduler that is never started.
type noJobs struct{}

func (noJobs) DailyReport(context.Context, tally.Day) error     { return nil }
func (noJobs) MonthlyReport(context.Context, tally.Month) error { return nil }

func printSchedule(w io.Writer, cfg *config.Config, from time.Time, count int) error {
	location, err := cfg.Location()
	if err != nil {
		return err
	}
	daily, err := cfg.DailySchedule()
	if err != nil {
		return err
	}
	monthlyAt, err := cfg.MonthlyTime()
	if err != nil {
		return err
	}
	scheduler, err := schedule.New(schedule.Config{
		Clock:     clock.Real(),
		Location:  location,
		Daily:     daily,
		MonthlyAt: monthlyAt,
		Jobs:      noJobs{},
	})
	if err != nil {
		return err
	}
	firings, err := scheduler.Upcoming(from, count)
	if err != nil {
		return err
	}

	writer := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "KIND\tWHEN\tPERIOD")
	for _, firing := range firings {
		at := firing.At.In(location)
		period := tally.DayOf(at, location).String()
		if firing.Kind == schedule.KindMonthly {
			period = tally.MonthOf(at, location).String()
		}
		fmt.Fprintf(writer, "%s\t%s\t%s\n", firing.Kind, at.Format("Mon 2006-01-02 15:04 MST"), period)
	}
	return writer.Flush()
}
