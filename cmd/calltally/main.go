// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Command calltally runs the ambulance call logging bot and its
// maintenance tools.
package main

import (
	"fmt"
	"os"

	"github.com/bureau-foundation/calltally/lib/cli"
	"github.com/bureau-foundation/calltally/lib/version"
)

func main() {
	if err := run(); err != nil {
		if coder, ok := err.(interface{ ExitCode() int }); ok {
			os.Exit(coder.ExitCode())
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	return rootCommand().Execute(os.Args[1:])
}

func rootCommand() *cli.Command {
	return &cli.Command{
		Name: "calltally",
		Description: `calltally: ambulance call logging bot.

Members of registered Matrix rooms report calls by naming a building
("UK1".."UK14") in a message or photo caption. calltally counts them per
day and per month and posts summaries on a schedule.`,
		Subcommands: []*cli.Command{
			runCommand(),
			reportCommand(),
			scheduleCommand(),
			extractCommand(),
			exportCommand(),
			importCommand(),
			tokenCommand(),
			{
				Name:    "version",
				Summary: "Print version information",
				Run: func(args []string) error {
					fmt.Printf("calltally %s\n", version.Full())
					return nil
				},
			},
		},
	}
}
