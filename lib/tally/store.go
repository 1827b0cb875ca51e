// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package tally

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bureau-foundation/calltally/lib/building"
)

// Store records calls and answers per-period snapshots. Implementations
// are safe for concurrent use.
type Store interface {
	// Increment records one call to code at instant now, bumping both
	// the daily and the monthly counter atomically. It returns the
	// updated counts. On failure neither counter changes.
	Increment(ctx context.Context, code building.Code, now time.Time) (Counts, error)

	// DailySnapshot returns every code's count for day.
	DailySnapshot(ctx context.Context, day Day) (Snapshot, error)

	// MonthlySnapshot returns every code's count for month.
	MonthlySnapshot(ctx context.Context, month Month) (Snapshot, error)

	// ResetDaily clears all daily counters for day. Monthly counters
	// are not touched. Resetting a day with no calls is a no-op.
	ResetDaily(ctx context.Context, day Day) error

	// Close releases backend resources.
	Close() error
}

// Counts is the result of a successful increment.
type Counts struct {
	Code       building.Code
	Day        Day
	Month      Month
	DailyCount int
	// DailyTotal is the sum over all codes for Day, including this call.
	DailyTotal   int
	MonthlyCount int
}

// Snapshot holds one count per building, indexed by Code.Index. The
// zero value is an all-zero snapshot.
type Snapshot [building.Count]int

// Get returns the count for code.
func (s Snapshot) Get(code building.Code) int {
	return s[code.Index()]
}

// Total returns the sum of all counts.
func (s Snapshot) Total() int {
	total := 0
	for _, count := range s {
		total += count
	}
	return total
}

// Scope distinguishes daily rows from monthly rows in exports.
type Scope string

const (
	ScopeDaily   Scope = "daily"
	ScopeMonthly Scope = "monthly"
)

// Record is one stored counter row. Period is a Day string for daily
// rows and a Month string for monthly rows.
type Record struct {
	Scope  Scope         `cbor:"scope"`
	Period string        `cbor:"period"`
	Code   building.Code `cbor:"code"`
	Count  int           `cbor:"count"`
}

// Validate checks that the record can be restored.
func (r Record) Validate() error {
	if !r.Code.Valid() {
		return fmt.Errorf("tally: record has invalid code %d", int(r.Code))
	}
	if r.Count < 0 {
		return fmt.Errorf("tally: record %s %s %s has negative count %d", r.Scope, r.Period, r.Code, r.Count)
	}
	switch r.Scope {
	case ScopeDaily:
		if _, err := ParseDay(r.Period); err != nil {
			return err
		}
	case ScopeMonthly:
		if _, err := ParseMonth(r.Period); err != nil {
			return err
		}
	default:
		return fmt.Errorf("tally: record has unknown scope %q", r.Scope)
	}
	return nil
}

// Archiver is implemented by stores that can export and bulk-load
// every counter row.
type Archiver interface {
	// Records returns all stored rows with a positive count, daily rows
	// first, each scope ordered by period and code.
	Records(ctx context.Context) ([]Record, error)

	// Restore writes records, replacing any existing count for the same
	// (scope, period, code). All records are validated before anything
	// is written.
	Restore(ctx context.Context, records []Record) error
}

var errStoreClosed = errors.New("store is closed")

// StorageError reports a backend failure.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("tally: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

func validateRecords(records []Record) error {
	for _, record := range records {
		if err := record.Validate(); err != nil {
			return err
		}
	}
	return nil
}
