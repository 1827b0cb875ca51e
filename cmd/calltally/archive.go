// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/calltally/lib/archive"
	"github.com/bureau-foundation/calltally/lib/atomicfile"
	"github.com/bureau-foundation/calltally/lib/cli"
)

func exportCommand() *cli.Command {
	var (
		flags       configFlags
		output      string
		compression string
	)
	return &cli.Command{
		Name:    "export",
		Summary: "Write every counter to an archive file",
		Description: `Export the daily and monthly counters from the configured store into a
compressed archive. The archive can be imported into any backend, which
is how counters move between SQLite and PostgreSQL.`,
		Flags: func() *pflag.FlagSet {
			flagSet := newFlagSet("export")
			flags.register(flagSet)
			flagSet.StringVarP(&output, "output", "o", "-", `archive path, or "-" for standard output`)
			flagSet.StringVar(&compression, "compression", "zstd", "zstd, lz4 or none")
			return flagSet
		},
		Examples: []cli.Example{
			{Description: "Back up the counters", Command: "calltally export -o counters.ctar"},
		},
		Run: func(args []string) error {
			if len(args) > 0 {
				return fmt.Errorf("unexpected argument %q", args[0])
			}
			chosen, err := archive.ParseCompression(compression)
			if err != nil {
				return err
			}
			cfg, err := flags.load(true)
			if err != nil {
				return err
			}
			location, err := cfg.Location()
			if err != nil {
				return err
			}
			logger := loggerFor(cfg)

			ctx := context.Background()
			store, err := openStore(ctx, cfg, location, logger)
			if err != nil {
				return err
			}
			defer store.Close()

			var buffer bytes.Buffer
			header, used, err := archive.Export(ctx, &buffer, store, archive.ExportOptions{
				Compression: chosen,
				Now:         time.Now(),
				Location:    cfg.Timezone,
			})
			if err != nil {
				return err
			}
			if err := writeOutput(output, buffer.Bytes()); err != nil {
				return err
			}
			logger.Info("counters exported",
				"records", header.Records,
				"compression", used.String(),
				"bytes", buffer.Len(),
				"output", output,
			)
			return nil
		},
	}
}

func importCommand() *cli.Command {
	var flags configFlags
	return &cli.Command{
		Name:    "import",
		Summary: "Restore counters from an archive file",
		Usage:   "calltally import [flags] FILE",
		Description: `Restore counters written by "calltally export" into the configured
store. Imported rows replace existing rows for the same period and
building. Nothing is written if the archive is corrupt.`,
		Flags: func() *pflag.FlagSet {
			flagSet := newFlagSet("import")
			flags.register(flagSet)
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("expected one archive path (use - for standard input)")
			}
			cfg, err := flags.load(true)
			if err != nil {
				return err
			}
			location, err := cfg.Location()
			if err != nil {
				return err
			}
			logger := loggerFor(cfg)

			input, err := openInput(args[0])
			if err != nil {
				return err
			}
			defer input.Close()

			ctx := context.Background()
			store, err := openStore(ctx, cfg, location, logger)
			if err != nil {
				return err
			}
			defer store.Close()

			header, err := archive.Import(ctx, input, store)
			if err != nil {
				return err
			}
			logger.Info("counters imported",
				"records", header.Records,
				"created_at", header.CreatedAt,
				"archive_timezone", header.Location,
			)
			return nil
		},
	}
}

// writeOutput writes data to path atomically, or to standard output
// when path is "-".
func writeOutput(path string, data []byte) error {
	if path == "-" {
		_, err := os.Stdout.Write(data)
		return err
	}
	return atomicfile.Write(path, data, 0o600)
}

func openInput(path string) (io.ReadCloser, error) {
	if path == "-" {
		return io.NopCloser(os.Stdin), nil
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening archive: %w", err)
	}
	return file, nil
}
