// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package tally

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/bureau-foundation/calltally/lib/building"
)

// MemoryStore keeps counters in process memory. Counters are lost when
// the process exits.
type MemoryStore struct {
	location *time.Location

	mu      sync.Mutex
	daily   map[Day]*Snapshot
	monthly map[Month]*Snapshot
	closed  bool
}

// NewMemoryStore creates an empty store that assigns instants to days
// in location.
func NewMemoryStore(location *time.Location) *MemoryStore {
	return &MemoryStore{
		location: location,
		daily:    make(map[Day]*Snapshot),
		monthly:  make(map[Month]*Snapshot),
	}
}

func (s *MemoryStore) Increment(ctx context.Context, code building.Code, now time.Time) (Counts, error) {
	if !code.Valid() {
		return Counts{}, fmt.Errorf("tally: invalid code %d", int(code))
	}
	if err := ctx.Err(); err != nil {
		return Counts{}, &StorageError{Op: "increment", Err: err}
	}

	day := DayOf(now, s.location)
	month := day.CalendarMonth()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return Counts{}, &StorageError{Op: "increment", Err: errStoreClosed}
	}

	daily := s.daily[day]
	if daily == nil {
		daily = new(Snapshot)
		s.daily[day] = daily
	}
	monthly := s.monthly[month]
	if monthly == nil {
		monthly = new(Snapshot)
		s.monthly[month] = monthly
	}
	daily[code.Index()]++
	monthly[code.Index()]++

	return Counts{
		Code:         code,
		Day:          day,
		Month:        month,
		DailyCount:   daily[code.Index()],
		DailyTotal:   daily.Total(),
		MonthlyCount: monthly[code.Index()],
	}, nil
}

func (s *MemoryStore) DailySnapshot(ctx context.Context, day Day) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return Snapshot{}, &StorageError{Op: "daily snapshot", Err: errStoreClosed}
	}
	if snapshot := s.daily[day]; snapshot != nil {
		return *snapshot, nil
	}
	return Snapshot{}, nil
}

func (s *MemoryStore) MonthlySnapshot(ctx context.Context, month Month) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return Snapshot{}, &StorageError{Op: "monthly snapshot", Err: errStoreClosed}
	}
	if snapshot := s.monthly[month]; snapshot != nil {
		return *snapshot, nil
	}
	return Snapshot{}, nil
}

func (s *MemoryStore) ResetDaily(ctx context.Context, day Day) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return &StorageError{Op: "reset daily", Err: errStoreClosed}
	}
	delete(s.daily, day)
	return nil
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *MemoryStore) Records(ctx context.Context) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var records []Record
	for day, snapshot := range s.daily {
		records = appendRecords(records, ScopeDaily, day.String(), snapshot)
	}
	for month, snapshot := range s.monthly {
		records = appendRecords(records, ScopeMonthly, month.String(), snapshot)
	}
	sortRecords(records)
	return records, nil
}

func (s *MemoryStore) Restore(ctx context.Context, records []Record) error {
	if err := validateRecords(records); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return &StorageError{Op: "restore", Err: errStoreClosed}
	}

	for _, record := range records {
		var snapshot *Snapshot
		switch record.Scope {
		case ScopeDaily:
			day, _ := ParseDay(record.Period)
			snapshot = s.daily[day]
			if snapshot == nil {
				snapshot = new(Snapshot)
				s.daily[day] = snapshot
			}
		case ScopeMonthly:
			month, _ := ParseMonth(record.Period)
			snapshot = s.monthly[month]
			if snapshot == nil {
				snapshot = new(Snapshot)
				s.monthly[month] = snapshot
			}
		}
		snapshot[record.Code.Index()] = record.Count
	}
	return nil
}

func appendRecords(records []Record, scope Scope, period string, snapshot *Snapshot) []Record {
	for index, count := range snapshot {
		if count > 0 {
			records = append(records, Record{
				Scope:  scope,
				Period: period,
				Code:   building.Code(index + 1),
				Count:  count,
			})
		}
	}
	return records
}

// sortRecords orders daily before monthly, then by period and code.
func sortRecords(records []Record) {
	slices.SortFunc(records, func(a, b Record) int {
		if a.Scope != b.Scope {
			if a.Scope == ScopeDaily {
				return -1
			}
			return 1
		}
		return cmp.Or(cmp.Compare(a.Period, b.Period), cmp.Compare(a.Code, b.Code))
	})
}
