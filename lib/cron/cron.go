// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cron

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Schedule is a parsed cron expression bound to a location.
type Schedule struct {
	expression  string
	location    *time.Location
	minutes     bitset64
	hours       bitset64
	daysOfMonth bitset64
	months      bitset64
	daysOfWeek  bitset64
}

type bitset64 uint64

func (b bitset64) has(value int) bool { return b&(1<<uint(value)) != 0 }
func (b *bitset64) set(value int)     { *b |= 1 << uint(value) }

type fieldSpec struct {
	name     string
	minimum  int
	maximum  int
	aliases  map[string]int
	location func(*Schedule) *bitset64
}

var weekdayNames = map[string]int{
	"sun": 0, "mon": 1, "tue": 2, "wed": 3, "thu": 4, "fri": 5, "sat": 6,
}

var fields = []fieldSpec{
	{"minute", 0, 59, nil, func(s *Schedule) *bitset64 { return &s.minutes }},
	{"hour", 0, 23, nil, func(s *Schedule) *bitset64 { return &s.hours }},
	{"day-of-month", 1, 31, nil, func(s *Schedule) *bitset64 { return &s.daysOfMonth }},
	{"month", 1, 12, nil, func(s *Schedule) *bitset64 { return &s.months }},
	{"day-of-week", 0, 6, weekdayNames, func(s *Schedule) *bitset64 { return &s.daysOfWeek }},
}

// Parse parses a 5-field expression. The result evaluates in UTC.
func Parse(expression string) (Schedule, error) {
	parts := strings.Fields(expression)
	if len(parts) != len(fields) {
		return Schedule{}, fmt.Errorf("cron: expected %d fields, got %d", len(fields), len(parts))
	}

	schedule := Schedule{expression: strings.Join(parts, " "), location: time.UTC}
	for index, spec := range fields {
		bits, err := parseField(strings.ToLower(parts[index]), spec)
		if err != nil {
			return Schedule{}, fmt.Errorf("cron: %s field: %w", spec.name, err)
		}
		*spec.location(&schedule) = bits
	}
	return schedule, nil
}

// MustParse is Parse for expressions known at compile time.
func MustParse(expression string) Schedule {
	schedule, err := Parse(expression)
	if err != nil {
		panic(err)
	}
	return schedule
}

// In returns a copy of s that evaluates fields against wall-clock time
// in location.
func (s Schedule) In(location *time.Location) Schedule {
	s.location = location
	return s
}

// Location returns the zone the schedule evaluates in.
func (s Schedule) Location() *time.Location {
	if s.location == nil {
		return time.UTC
	}
	return s.location
}

// String returns the normalized expression.
func (s Schedule) String() string {
	return s.expression
}

// Matches reports whether t, truncated to the minute, satisfies every
// field in the schedule's location.
func (s Schedule) Matches(t time.Time) bool {
	local := t.In(s.Location())
	return s.months.has(int(local.Month())) &&
		s.daysOfMonth.has(local.Day()) &&
		s.daysOfWeek.has(int(local.Weekday())) &&
		s.hours.has(local.Hour()) &&
		s.minutes.has(local.Minute())
}

// Next returns the earliest instant strictly after t that matches.
// Impossible schedules (Feb 30) return an error after searching four
// years.
func (s Schedule) Next(t time.Time) (time.Time, error) {
	location := s.Location()
	local := t.In(location).Truncate(time.Minute).Add(time.Minute)
	limit := local.AddDate(4, 0, 0)

	for local.Before(limit) {
		year, month, day := local.Date()
		switch {
		case !s.months.has(int(month)):
			local = time.Date(year, month+1, 1, 0, 0, 0, 0, location)
		case !s.daysOfMonth.has(day) || !s.daysOfWeek.has(int(local.Weekday())):
			local = time.Date(year, month, day+1, 0, 0, 0, 0, location)
		case !s.hours.has(local.Hour()):
			local = time.Date(year, month, day, local.Hour()+1, 0, 0, 0, location)
		case !s.minutes.has(local.Minute()):
			local = local.Add(time.Minute)
		default:
			return local, nil
		}
	}
	return time.Time{}, fmt.Errorf("cron: %q has no match within 4 years of %s",
		s.expression, t.Format(time.RFC3339))
}

func parseField(field string, spec fieldSpec) (bitset64, error) {
	var result bitset64
	for _, term := range strings.Split(field, ",") {
		bits, err := parseTerm(term, spec)
		if err != nil {
			return 0, err
		}
		result |= bits
	}
	if result == 0 {
		return 0, fmt.Errorf("%q produces an empty set", field)
	}
	return result, nil
}

// parseTerm parses *, */N, V, V-V or V-V/N.
func parseTerm(term string, spec fieldSpec) (bitset64, error) {
	rangeExpression, stepExpression, hasStep := strings.Cut(term, "/")
	step := 1
	if hasStep {
		parsed, err := strconv.Atoi(stepExpression)
		if err != nil {
			return 0, fmt.Errorf("invalid step %q", stepExpression)
		}
		if parsed <= 0 {
			return 0, fmt.Errorf("step must be positive, got %d", parsed)
		}
		step = parsed
	}

	start, end := spec.minimum, spec.maximum
	if rangeExpression != "*" {
		startText, endText, isRange := strings.Cut(rangeExpression, "-")
		var err error
		if start, err = parseValue(startText, spec); err != nil {
			return 0, err
		}
		end = start
		if isRange {
			if end, err = parseValue(endText, spec); err != nil {
				return 0, err
			}
			if start > end {
				return 0, fmt.Errorf("range start %d > end %d", start, end)
			}
		}
	}
	if start < spec.minimum || end > spec.maximum {
		return 0, fmt.Errorf("value out of range [%d-%d]: got %d-%d", spec.minimum, spec.maximum, start, end)
	}

	var result bitset64
	for value := start; value <= end; value += step {
		result.set(value)
	}
	return result, nil
}

func parseValue(text string, spec fieldSpec) (int, error) {
	if value, ok := spec.aliases[text]; ok {
		return value, nil
	}
	value, err := strconv.Atoi(text)
	if err != nil {
		return 0, fmt.Errorf("invalid value %q", text)
	}
	return value, nil
}
