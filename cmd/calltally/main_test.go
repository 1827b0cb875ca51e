// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/bureau-foundation/calltally/lib/building"
	"github.com/bureau-foundation/calltally/lib/config"
	"github.com/bureau-foundation/calltally/lib/tally"
)

func writeConfig(t *testing.T, directory, body string) string {
	t.Helper()
	path := filepath.Join(directory, "calltally.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func sqliteConfig(t *testing.T, directory string) string {
	t.Helper()
	return writeConfig(t, directory, fmt.Sprintf(`
log_level: error
paths:
  state: %s
storage:
  driver: sqlite
  sqlite_path: %s
`, directory, filepath.Join(directory, "calltally.db")))
}

func TestExtractLines(t *testing.T) {
	input := strings.NewReader("UK3\nno code here\nwe went to uk12, then back\nUK15\n")
	var output bytes.Buffer
	if err := extractLines(&output, input); err != nil {
		t.Fatalf("extractLines: %v", err)
	}
	want := "UK3\tUK3\n" +
		"-\tno code here\n" +
		"UK12\twe went to uk12, then back\n" +
		"-\tUK15\n"
	if output.String() != want {
		t.Errorf("output:\n%s\nwant:\n%s", output.String(), want)
	}
}

func TestScheduleNote(t *testing.T) {
	cfg := config.Default()
	note := scheduleNote(cfg)
	if !strings.Contains(note, "every weekday at 19:00") {
		t.Errorf("note = %q, want the daily time of day", note)
	}
	if !strings.Contains(note, "last weekday of the month at 19:00") || !strings.Contains(note, "Europe/Moscow") {
		t.Errorf("note = %q, want the monthly time and zone", note)
	}

	cfg.Schedule.DailyCron = "*/30 18-20 * * 1-5"
	if note := scheduleNote(cfg); !strings.Contains(note, `"*/30 18-20 * * 1-5"`) {
		t.Errorf("note = %q, want the raw cron expression", note)
	}
}

func TestPrintSchedule(t *testing.T) {
	cfg := config.Default()
	moscow, err := cfg.Location()
	if err != nil {
		t.Fatalf("Location: %v", err)
	}
	// Friday before the last weekday of March 2026 (Tuesday the 31st).
	from := time.Date(2026, time.March, 27, 12, 0, 0, 0, moscow)

	var output bytes.Buffer
	if err := printSchedule(&output, cfg, from, 4); err != nil {
		t.Fatalf("printSchedule: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(output.String()), "\n")
	if len(lines) != 5 {
		t.Fatalf("got %d lines:\n%s", len(lines), output.String())
	}
	wantPrefixes := []string{"KIND", "daily", "daily", "daily", "monthly"}
	wantPeriods := []string{"PERIOD", "2026-03-27", "2026-03-30", "2026-03-31", "2026-03"}
	for index, line := range lines {
		fields := strings.Fields(line)
		if fields[0] != wantPrefixes[index] || fields[len(fields)-1] != wantPeriods[index] {
			t.Errorf("line %d = %q, want %s ... %s", index, line, wantPrefixes[index], wantPeriods[index])
		}
	}
}

func TestUnknownCommandSuggestion(t *testing.T) {
	err := rootCommand().Execute([]string{"expor"})
	if err == nil {
		t.Fatal("Execute accepted an unknown command")
	}
	if !strings.Contains(err.Error(), `did you mean "export"`) {
		t.Errorf("error = %v, want a suggestion", err)
	}
}

func TestConfigFlagsLocalSkipsMatrix(t *testing.T) {
	path := sqliteConfig(t, t.TempDir())

	flags := configFlags{path: path}
	if _, err := flags.load(true); err != nil {
		t.Errorf("load(local) = %v, want success without a homeserver", err)
	}
	if _, err := flags.load(false); err == nil {
		t.Error("load(full) succeeded without a homeserver")
	}
}

func TestExportImportBetweenStores(t *testing.T) {
	ctx := context.Background()
	sourceDirectory := t.TempDir()
	targetDirectory := t.TempDir()
	sourceConfig := sqliteConfig(t, sourceDirectory)
	targetConfig := sqliteConfig(t, targetDirectory)
	archivePath := filepath.Join(t.TempDir(), "counters.ctar")
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	openConfigured := func(path string) counterStore {
		t.Helper()
		cfg, err := config.LoadFile(path)
		if err != nil {
			t.Fatalf("LoadFile: %v", err)
		}
		location, err := cfg.Location()
		if err != nil {
			t.Fatalf("Location: %v", err)
		}
		store, err := openStore(ctx, cfg, location, logger)
		if err != nil {
			t.Fatalf("openStore: %v", err)
		}
		return store
	}

	now := time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)
	source := openConfigured(sourceConfig)
	for _, code := range []building.Code{1, 1, 7} {
		if _, err := source.Increment(ctx, code, now); err != nil {
			t.Fatalf("Increment: %v", err)
		}
	}
	source.Close()

	if err := rootCommand().Execute([]string{"export", "--config", sourceConfig, "-o", archivePath, "--compression", "lz4"}); err != nil {
		t.Fatalf("export: %v", err)
	}
	if err := rootCommand().Execute([]string{"import", "--config", targetConfig, archivePath}); err != nil {
		t.Fatalf("import: %v", err)
	}

	target := openConfigured(targetConfig)
	defer target.Close()
	moscow, _ := time.LoadLocation("Europe/Moscow")
	daily, err := target.DailySnapshot(ctx, tally.DayOf(now, moscow))
	if err != nil {
		t.Fatalf("DailySnapshot: %v", err)
	}
	if daily.Get(1) != 2 || daily.Get(7) != 1 || daily.Total() != 3 {
		t.Errorf("imported daily snapshot = %+v", daily)
	}
	monthly, err := target.MonthlySnapshot(ctx, tally.MonthOf(now, moscow))
	if err != nil {
		t.Fatalf("MonthlySnapshot: %v", err)
	}
	if monthly.Total() != 3 {
		t.Errorf("imported monthly total = %d, want 3", monthly.Total())
	}
}

func TestImportRequiresPath(t *testing.T) {
	path := sqliteConfig(t, t.TempDir())
	if err := rootCommand().Execute([]string{"import", "--config", path}); err == nil {
		t.Error("import without an archive path succeeded")
	}
}
