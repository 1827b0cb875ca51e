// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package tally

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/bureau-foundation/calltally/lib/building"
)

var moscow = time.FixedZone("MSK", 3*60*60)

// storeFactory opens a fresh, empty store for one subtest.
type storeFactory func(t *testing.T) Store

func storeBackends(t *testing.T) map[string]storeFactory {
	backends := map[string]storeFactory{
		"memory": func(t *testing.T) Store {
			return NewMemoryStore(moscow)
		},
		"sqlite": func(t *testing.T) Store {
			store, err := OpenSQLite(context.Background(), SQLiteConfig{
				Path:     filepath.Join(t.TempDir(), "counters.db"),
				Location: moscow,
			})
			if err != nil {
				t.Fatalf("OpenSQLite: %v", err)
			}
			t.Cleanup(func() { store.Close() })
			return store
		},
	}
	if dsn := os.Getenv("CALLTALLY_TEST_POSTGRES_DSN"); dsn != "" {
		backends["postgres"] = func(t *testing.T) Store {
			store, err := OpenPostgres(context.Background(), PostgresConfig{DSN: dsn, Location: moscow})
			if err != nil {
				t.Fatalf("OpenPostgres: %v", err)
			}
			for _, table := range []string{"calltally_daily_counts", "calltally_monthly_counts"} {
				if _, err := store.db.Exec("DELETE FROM " + table); err != nil {
					t.Fatalf("truncate %s: %v", table, err)
				}
			}
			t.Cleanup(func() { store.Close() })
			return store
		}
	}
	return backends
}

func forEachBackend(t *testing.T, test func(t *testing.T, store Store)) {
	for name, open := range storeBackends(t) {
		t.Run(name, func(t *testing.T) {
			test(t, open(t))
		})
	}
}

func at(value string) time.Time {
	parsed, err := time.Parse(time.RFC3339, value)
	if err != nil {
		panic(err)
	}
	return parsed
}

func TestIncrementCounts(t *testing.T) {
	forEachBackend(t, func(t *testing.T, store Store) {
		ctx := context.Background()
		now := at("2026-03-10T09:00:00+03:00")

		first, err := store.Increment(ctx, 3, now)
		if err != nil {
			t.Fatalf("Increment: %v", err)
		}
		if first.DailyCount != 1 || first.MonthlyCount != 1 || first.DailyTotal != 1 {
			t.Errorf("first increment = %+v, want daily 1, monthly 1, total 1", first)
		}

		if _, err := store.Increment(ctx, 5, now); err != nil {
			t.Fatalf("Increment: %v", err)
		}
		second, err := store.Increment(ctx, 3, now.Add(time.Hour))
		if err != nil {
			t.Fatalf("Increment: %v", err)
		}
		if second.DailyCount != 2 {
			t.Errorf("DailyCount = %d, want 2", second.DailyCount)
		}
		if second.MonthlyCount != 2 {
			t.Errorf("MonthlyCount = %d, want 2", second.MonthlyCount)
		}
		if second.DailyTotal != 3 {
			t.Errorf("DailyTotal = %d, want 3", second.DailyTotal)
		}
		wantDay := Day{2026, time.March, 10}
		if second.Day != wantDay || second.Month != (Month{2026, time.March}) {
			t.Errorf("period = %v/%v, want %v/2026-03", second.Day, second.Month, wantDay)
		}
	})
}

func TestIncrementUsesStoreLocation(t *testing.T) {
	forEachBackend(t, func(t *testing.T, store Store) {
		// 21:30 UTC on the last day of March is already April 1 in Moscow.
		counts, err := store.Increment(context.Background(), 1, at("2026-03-31T21:30:00Z"))
		if err != nil {
			t.Fatalf("Increment: %v", err)
		}
		if want := (Day{2026, time.April, 1}); counts.Day != want {
			t.Errorf("Day = %v, want %v", counts.Day, want)
		}
		if want := (Month{2026, time.April}); counts.Month != want {
			t.Errorf("Month = %v, want %v", counts.Month, want)
		}
	})
}

func TestSnapshots(t *testing.T) {
	forEachBackend(t, func(t *testing.T, store Store) {
		ctx := context.Background()
		monday := at("2026-03-09T12:00:00+03:00")
		tuesday := at("2026-03-10T12:00:00+03:00")

		increments := []struct {
			code building.Code
			when time.Time
		}{
			{1, monday}, {1, monday}, {1, monday},
			{5, monday}, {5, monday},
			{10, monday},
			{14, tuesday},
		}
		for _, increment := range increments {
			if _, err := store.Increment(ctx, increment.code, increment.when); err != nil {
				t.Fatalf("Increment(%v): %v", increment.code, err)
			}
		}

		daily, err := store.DailySnapshot(ctx, DayOf(monday, moscow))
		if err != nil {
			t.Fatalf("DailySnapshot: %v", err)
		}
		var want Snapshot
		want[0], want[4], want[9] = 3, 2, 1
		if daily != want {
			t.Errorf("DailySnapshot(monday) = %v, want %v", daily, want)
		}
		if daily.Total() != 6 {
			t.Errorf("Total = %d, want 6", daily.Total())
		}

		again, err := store.DailySnapshot(ctx, DayOf(monday, moscow))
		if err != nil {
			t.Fatalf("DailySnapshot: %v", err)
		}
		if again != daily {
			t.Errorf("repeated DailySnapshot = %v, want %v", again, daily)
		}

		monthly, err := store.MonthlySnapshot(ctx, MonthOf(monday, moscow))
		if err != nil {
			t.Fatalf("MonthlySnapshot: %v", err)
		}
		if monthly.Get(1) != 3 || monthly.Get(14) != 1 || monthly.Total() != 7 {
			t.Errorf("MonthlySnapshot = %v, want UK1=3 UK14=1 total 7", monthly)
		}

		empty, err := store.DailySnapshot(ctx, Day{2026, time.March, 11})
		if err != nil {
			t.Fatalf("DailySnapshot(empty day): %v", err)
		}
		if empty != (Snapshot{}) {
			t.Errorf("empty day snapshot = %v, want all zero", empty)
		}
	})
}

func TestResetDailyKeepsMonthly(t *testing.T) {
	forEachBackend(t, func(t *testing.T, store Store) {
		ctx := context.Background()
		now := at("2026-03-10T12:00:00+03:00")
		day := DayOf(now, moscow)
		other := at("2026-03-09T12:00:00+03:00")

		for _, code := range []building.Code{2, 2, 7} {
			if _, err := store.Increment(ctx, code, now); err != nil {
				t.Fatalf("Increment: %v", err)
			}
		}
		if _, err := store.Increment(ctx, 2, other); err != nil {
			t.Fatalf("Increment: %v", err)
		}

		if err := store.ResetDaily(ctx, day); err != nil {
			t.Fatalf("ResetDaily: %v", err)
		}
		daily, err := store.DailySnapshot(ctx, day)
		if err != nil {
			t.Fatalf("DailySnapshot: %v", err)
		}
		if daily.Total() != 0 {
			t.Errorf("daily total after reset = %d, want 0", daily.Total())
		}

		previous, err := store.DailySnapshot(ctx, DayOf(other, moscow))
		if err != nil {
			t.Fatalf("DailySnapshot: %v", err)
		}
		if previous.Get(2) != 1 {
			t.Errorf("other day UK2 = %d after reset, want 1", previous.Get(2))
		}

		monthly, err := store.MonthlySnapshot(ctx, day.CalendarMonth())
		if err != nil {
			t.Fatalf("MonthlySnapshot: %v", err)
		}
		if monthly.Get(2) != 3 || monthly.Get(7) != 1 {
			t.Errorf("monthly after reset = %v, want UK2=3 UK7=1", monthly)
		}

		// Counting resumes from zero on the reset day.
		counts, err := store.Increment(ctx, 2, now)
		if err != nil {
			t.Fatalf("Increment: %v", err)
		}
		if counts.DailyCount != 1 || counts.MonthlyCount != 4 {
			t.Errorf("after reset = %+v, want daily 1 monthly 4", counts)
		}

		if err := store.ResetDaily(ctx, Day{2026, time.January, 1}); err != nil {
			t.Errorf("ResetDaily on empty day: %v", err)
		}
	})
}

func TestConcurrentIncrements(t *testing.T) {
	forEachBackend(t, func(t *testing.T, store Store) {
		ctx := context.Background()
		now := at("2026-03-10T12:00:00+03:00")

		const workers = 8
		const perWorker = 25
		var waitGroup sync.WaitGroup
		errs := make(chan error, workers)
		for range workers {
			waitGroup.Add(1)
			go func() {
				defer waitGroup.Done()
				for range perWorker {
					if _, err := store.Increment(ctx, 4, now); err != nil {
						errs <- err
						return
					}
				}
			}()
		}
		waitGroup.Wait()
		close(errs)
		for err := range errs {
			t.Fatalf("Increment: %v", err)
		}

		daily, err := store.DailySnapshot(ctx, DayOf(now, moscow))
		if err != nil {
			t.Fatalf("DailySnapshot: %v", err)
		}
		if daily.Get(4) != workers*perWorker {
			t.Errorf("UK4 = %d, want %d", daily.Get(4), workers*perWorker)
		}
		monthly, err := store.MonthlySnapshot(ctx, MonthOf(now, moscow))
		if err != nil {
			t.Fatalf("MonthlySnapshot: %v", err)
		}
		if monthly.Get(4) != workers*perWorker {
			t.Errorf("monthly UK4 = %d, want %d", monthly.Get(4), workers*perWorker)
		}
	})
}

func TestIncrementRejectsInvalidCode(t *testing.T) {
	forEachBackend(t, func(t *testing.T, store Store) {
		if _, err := store.Increment(context.Background(), 15, time.Now()); err == nil {
			t.Error("Increment(15) succeeded, want error")
		}
	})
}

func TestArchiveRoundTrip(t *testing.T) {
	backends := storeBackends(t)
	for name, open := range backends {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			source := open(t)
			for _, code := range []building.Code{1, 1, 9} {
				if _, err := source.Increment(ctx, code, at("2026-02-27T10:00:00+03:00")); err != nil {
					t.Fatalf("Increment: %v", err)
				}
			}
			if _, err := source.Increment(ctx, 3, at("2026-03-02T10:00:00+03:00")); err != nil {
				t.Fatalf("Increment: %v", err)
			}

			records, err := source.(Archiver).Records(ctx)
			if err != nil {
				t.Fatalf("Records: %v", err)
			}
			want := []Record{
				{ScopeDaily, "2026-02-27", 1, 2},
				{ScopeDaily, "2026-02-27", 9, 1},
				{ScopeDaily, "2026-03-02", 3, 1},
				{ScopeMonthly, "2026-02", 1, 2},
				{ScopeMonthly, "2026-02", 9, 1},
				{ScopeMonthly, "2026-03", 3, 1},
			}
			if len(records) != len(want) {
				t.Fatalf("Records = %v, want %v", records, want)
			}
			for index := range want {
				if records[index] != want[index] {
					t.Errorf("Records[%d] = %+v, want %+v", index, records[index], want[index])
				}
			}

			destination := NewMemoryStore(moscow)
			if err := destination.Restore(ctx, records); err != nil {
				t.Fatalf("Restore: %v", err)
			}
			monthly, err := destination.MonthlySnapshot(ctx, Month{2026, time.February})
			if err != nil {
				t.Fatalf("MonthlySnapshot: %v", err)
			}
			if monthly.Get(1) != 2 || monthly.Get(9) != 1 {
				t.Errorf("restored February = %v", monthly)
			}
		})
	}
}

func TestRestoreValidatesFirst(t *testing.T) {
	forEachBackend(t, func(t *testing.T, store Store) {
		ctx := context.Background()
		records := []Record{
			{ScopeDaily, "2026-03-10", 2, 5},
			{ScopeDaily, "2026-03-10", 99, 1},
		}
		if err := store.(Archiver).Restore(ctx, records); err == nil {
			t.Fatal("Restore with an invalid code succeeded")
		}
		daily, err := store.DailySnapshot(ctx, Day{2026, time.March, 10})
		if err != nil {
			t.Fatalf("DailySnapshot: %v", err)
		}
		if daily.Total() != 0 {
			t.Errorf("partial restore wrote %v", daily)
		}
	})
}

func TestRestoreReplacesCounts(t *testing.T) {
	forEachBackend(t, func(t *testing.T, store Store) {
		ctx := context.Background()
		if _, err := store.Increment(ctx, 6, at("2026-03-10T10:00:00+03:00")); err != nil {
			t.Fatalf("Increment: %v", err)
		}
		err := store.(Archiver).Restore(ctx, []Record{{ScopeDaily, "2026-03-10", 6, 4}})
		if err != nil {
			t.Fatalf("Restore: %v", err)
		}
		daily, err := store.DailySnapshot(ctx, Day{2026, time.March, 10})
		if err != nil {
			t.Fatalf("DailySnapshot: %v", err)
		}
		if daily.Get(6) != 4 {
			t.Errorf("UK6 after restore = %d, want 4", daily.Get(6))
		}
	})
}

func TestClosedMemoryStoreReturnsStorageError(t *testing.T) {
	store := NewMemoryStore(moscow)
	if err := store.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	_, err := store.Increment(context.Background(), 1, time.Now())
	var storageError *StorageError
	if !errors.As(err, &storageError) {
		t.Fatalf("Increment after Close error = %v, want *StorageError", err)
	}
	if storageError.Op != "increment" {
		t.Errorf("Op = %q, want increment", storageError.Op)
	}
}

func TestSQLiteStorePersists(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "persist.db")
	now := at("2026-03-10T12:00:00+03:00")

	first, err := OpenSQLite(ctx, SQLiteConfig{Path: path, Location: moscow})
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	if _, err := first.Increment(ctx, 11, now); err != nil {
		t.Fatalf("Increment: %v", err)
	}
	if err := first.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	second, err := OpenSQLite(ctx, SQLiteConfig{Path: path, Location: moscow})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer second.Close()
	counts, err := second.Increment(ctx, 11, now)
	if err != nil {
		t.Fatalf("Increment: %v", err)
	}
	if counts.DailyCount != 2 || counts.MonthlyCount != 2 {
		t.Errorf("after reopen = %+v, want daily 2 monthly 2", counts)
	}
}

func TestSQLiteOpenFailure(t *testing.T) {
	_, err := OpenSQLite(context.Background(), SQLiteConfig{
		Path:     filepath.Join(t.TempDir(), "missing", "dir", "counters.db"),
		Location: moscow,
	})
	var storageError *StorageError
	if !errors.As(err, &storageError) {
		t.Fatalf("OpenSQLite in missing directory error = %v, want *StorageError", err)
	}
}
