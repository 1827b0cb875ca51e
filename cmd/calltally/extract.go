// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/bureau-foundation/calltally/lib/building"
	"github.com/bureau-foundation/calltally/lib/cli"
)

func extractCommand() *cli.Command {
	return &cli.Command{
		Name:    "extract",
		Summary: "Show which building a message would be counted for",
		Usage:   "calltally extract [TEXT...]",
		Description: `Run the building code extractor over each argument, or over each
line of standard input when no arguments are given. Prints the code
found, or "-" when the text would be rejected.`,
		Examples: []cli.Example{
			{Description: "Check a single message", Command: `calltally extract "UK7, 3rd floor"`},
			{Description: "Check a file of messages", Command: "calltally extract < messages.txt"},
		},
		Run: func(args []string) error {
			if len(args) > 0 {
				for _, text := range args {
					writeExtraction(os.Stdout, text)
				}
				return nil
			}
			return extractLines(os.Stdout, os.Stdin)
		},
	}
}

func extractLines(w io.Writer, r io.Reader) error {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		writeExtraction(w, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading input: %w", err)
	}
	return nil
}

func writeExtraction(w io.Writer, text string) {
	code, ok := building.Extract(text)
	if !ok {
		fmt.Fprintf(w, "-\t%s\n", text)
		return
	}
	fmt.Fprintf(w, "%s\t%s\n", code, text)
}
