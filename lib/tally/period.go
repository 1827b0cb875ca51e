// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package tally

import (
	"fmt"
	"time"
)

const (
	dayLayout   = "2006-01-02"
	monthLayout = "2006-01"
)

// Day is a civil calendar date with no time zone attached. The zero
// value is not a valid day.
type Day struct {
	Year  int
	Month time.Month
	Day   int
}

// DayOf returns the calendar date of t in loc.
func DayOf(t time.Time, loc *time.Location) Day {
	year, month, day := t.In(loc).Date()
	return Day{Year: year, Month: month, Day: day}
}

// ParseDay parses a "2006-01-02" date.
func ParseDay(value string) (Day, error) {
	parsed, err := time.Parse(dayLayout, value)
	if err != nil {
		return Day{}, fmt.Errorf("tally: invalid day %q: %w", value, err)
	}
	return DayOf(parsed, time.UTC), nil
}

// String returns the "2006-01-02" form used as the storage key.
func (d Day) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

// IsZero reports whether d is the zero Day.
func (d Day) IsZero() bool {
	return d == Day{}
}

// CalendarMonth returns the calendar month containing d.
func (d Day) CalendarMonth() Month {
	return Month{Year: d.Year, Month: d.Month}
}

// Start returns midnight at the beginning of d in loc.
func (d Day) Start(loc *time.Location) time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, loc)
}

// Weekday returns the day of the week of d.
func (d Day) Weekday() time.Weekday {
	return d.Start(time.UTC).Weekday()
}

// IsWeekday reports whether d falls on Monday through Friday.
func (d Day) IsWeekday() bool {
	weekday := d.Weekday()
	return weekday != time.Saturday && weekday != time.Sunday
}

// Month is a civil calendar month with no time zone attached.
type Month struct {
	Year  int
	Month time.Month
}

// MonthOf returns the calendar month of t in loc.
func MonthOf(t time.Time, loc *time.Location) Month {
	year, month, _ := t.In(loc).Date()
	return Month{Year: year, Month: month}
}

// ParseMonth parses a "2006-01" month.
func ParseMonth(value string) (Month, error) {
	parsed, err := time.Parse(monthLayout, value)
	if err != nil {
		return Month{}, fmt.Errorf("tally: invalid month %q: %w", value, err)
	}
	return Month{Year: parsed.Year(), Month: parsed.Month()}, nil
}

// String returns the "2006-01" form used as the storage key.
func (m Month) String() string {
	return fmt.Sprintf("%04d-%02d", m.Year, int(m.Month))
}

// IsZero reports whether m is the zero Month.
func (m Month) IsZero() bool {
	return m == Month{}
}

// Start returns midnight on the first day of m in loc.
func (m Month) Start(loc *time.Location) time.Time {
	return time.Date(m.Year, m.Month, 1, 0, 0, 0, 0, loc)
}

// Next returns the month after m.
func (m Month) Next() Month {
	next := m.Start(time.UTC).AddDate(0, 1, 0)
	return Month{Year: next.Year(), Month: next.Month()}
}

// LastDay returns the final calendar day of m.
func (m Month) LastDay() Day {
	last := m.Start(time.UTC).AddDate(0, 1, -1)
	return DayOf(last, time.UTC)
}

// LastWeekday returns the last Monday-through-Friday day of m: the most
// recent weekday on or before the month's final day.
func (m Month) LastWeekday() Day {
	day := m.LastDay().Start(time.UTC)
	for day.Weekday() == time.Saturday || day.Weekday() == time.Sunday {
		day = day.AddDate(0, 0, -1)
	}
	return DayOf(day, time.UTC)
}
