// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/calltally/lib/cli"
	"github.com/bureau-foundation/calltally/lib/report"
	"github.com/bureau-foundation/calltally/lib/tally"
)

func reportCommand() *cli.Command {
	return &cli.Command{
		Name:    "report",
		Summary: "Print a daily or monthly report from the counter store",
		Description: `Print a report straight from the configured counter store without
contacting Matrix. Counters are not reset.`,
		Subcommands: []*cli.Command{
			dailyReportCommand(),
			monthlyReportCommand(),
		},
	}
}

// reportFlags are shared by both report subcommands.
type reportFlags struct {
	configFlags
	period   string
	markdown bool
}

func (f *reportFlags) register(flagSet *pflag.FlagSet, periodName, periodHelp string) {
	f.configFlags.register(flagSet)
	flagSet.StringVar(&f.period, periodName, "", periodHelp)
	flagSet.BoolVar(&f.markdown, "markdown", false, "print the Markdown sent to chats instead of terminal output")
}

func dailyReportCommand() *cli.Command {
	var flags reportFlags
	return &cli.Command{
		Name:    "daily",
		Summary: "Print the report for one day",
		Flags: func() *pflag.FlagSet {
			flagSet := newFlagSet("daily")
			flags.register(flagSet, "day", "day as YYYY-MM-DD (default: today)")
			return flagSet
		},
		Examples: []cli.Example{
			{Description: "Today's counts", Command: "calltally report daily"},
			{Description: "A past day as Markdown", Command: "calltally report daily --day 2026-03-10 --markdown"},
		},
		Run: func(args []string) error {
			return printReport(os.Stdout, &flags, func(ctx context.Context, generator *report.Generator, location *time.Location) (report.Report, error) {
				day := tally.DayOf(time.Now(), location)
				if flags.period != "" {
					parsed, err := tally.ParseDay(flags.period)
					if err != nil {
						return report.Report{}, err
					}
					day = parsed
				}
				return generator.Daily(ctx, day)
			}, args)
		},
	}
}

func monthlyReportCommand() *cli.Command {
	var flags reportFlags
	return &cli.Command{
		Name:    "monthly",
		Summary: "Print the report for one month",
		Flags: func() *pflag.FlagSet {
			flagSet := newFlagSet("monthly")
			flags.register(flagSet, "month", "month as YYYY-MM (default: this month)")
			return flagSet
		},
		Examples: []cli.Example{
			{Description: "February totals", Command: "calltally report monthly --month 2026-02"},
		},
		Run: func(args []string) error {
			return printReport(os.Stdout, &flags, func(ctx context.Context, generator *report.Generator, location *time.Location) (report.Report, error) {
				month := tally.MonthOf(time.Now(), location)
				if flags.period != "" {
					parsed, err := tally.ParseMonth(flags.period)
					if err != nil {
						return report.Report{}, err
					}
					month = parsed
				}
				return generator.Monthly(ctx, month)
			}, args)
		},
	}
}

type buildReport func(ctx context.Context, generator *report.Generator, location *time.Location) (report.Report, error)

func printReport(w io.Writer, flags *reportFlags, build buildReport, args []string) error {
	if len(args) > 0 {
		return fmt.Errorf("unexpected argument %q", args[0])
	}
	cfg, err := flags.load(true)
	if err != nil {
		return err
	}
	location, err := cfg.Location()
	if err != nil {
		return err
	}

	ctx := context.Background()
	store, err := openStore(ctx, cfg, location, loggerFor(cfg))
	if err != nil {
		return err
	}
	defer store.Close()

	built, err := build(ctx, &report.Generator{Store: store}, location)
	if err != nil {
		return err
	}
	if flags.markdown {
		_, err = fmt.Fprintln(w, built.Markdown())
		return err
	}
	_, err = fmt.Fprintln(w, built.Terminal(report.NewTerminalRenderer(w, nil)))
	return err
}
