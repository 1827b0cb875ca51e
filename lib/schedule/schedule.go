// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package schedule fires the daily and monthly report jobs.
//
// The daily trigger follows a cron expression evaluated in the
// configured location (19:00 every day by default). Firings that land
// on Saturday or Sunday are logged and skipped; the cron expression
// itself stays a plain wall-clock rule.
//
// The monthly trigger is a one-shot timer aimed at the last weekday of
// the current month. After it fires (or on Start) the next target is
// recomputed from the calendar with [NextMonthlyFire], so the schedule
// never drifts. Monthly counters are never reset by the scheduler.
//
// Jobs run on the timer goroutine. A slow job delays only its own
// re-arm; the other trigger is independent.
package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/bureau-foundation/calltally/lib/clock"
	"github.com/bureau-foundation/calltally/lib/cron"
	"github.com/bureau-foundation/calltally/lib/tally"
)

// Jobs is the work the scheduler triggers. Errors are logged; they
// never stop the schedule.
type Jobs interface {
	DailyReport(ctx context.Context, day tally.Day) error
	MonthlyReport(ctx context.Context, month tally.Month) error
}

// TimeOfDay is a wall-clock time with minute precision.
type TimeOfDay struct {
	Hour   int
	Minute int
}

// ParseTimeOfDay parses "HH:MM" in 24-hour form.
func ParseTimeOfDay(value string) (TimeOfDay, error) {
	hourText, minuteText, found := strings.Cut(strings.TrimSpace(value), ":")
	if !found {
		return TimeOfDay{}, fmt.Errorf("schedule: time of day %q is not HH:MM", value)
	}
	hour, hourErr := strconv.Atoi(hourText)
	minute, minuteErr := strconv.Atoi(minuteText)
	if hourErr != nil || minuteErr != nil || hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return TimeOfDay{}, fmt.Errorf("schedule: time of day %q is not HH:MM", value)
	}
	return TimeOfDay{Hour: hour, Minute: minute}, nil
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// On returns the instant at t on day in location.
func (t TimeOfDay) On(day tally.Day, location *time.Location) time.Time {
	return time.Date(day.Year, day.Month, day.Day, t.Hour, t.Minute, 0, 0, location)
}

// NextMonthlyFire returns the next monthly report instant strictly
// after now: the last weekday of now's month at "at", or the next
// month's last weekday when this month's has already passed.
func NextMonthlyFire(now time.Time, location *time.Location, at TimeOfDay) time.Time {
	month := tally.MonthOf(now, location)
	candidate := at.On(month.LastWeekday(), location)
	if !candidate.After(now) {
		candidate = at.On(month.Next().LastWeekday(), location)
	}
	return candidate
}

// Kind names a trigger.
type Kind string

const (
	KindDaily   Kind = "daily"
	KindMonthly Kind = "monthly"
)

// Firing is one planned job run.
type Firing struct {
	Kind Kind
	At   time.Time
}

// Config holds the scheduler's collaborators. Clock, Location, Daily
// and Jobs are required.
type Config struct {
	Clock    clock.Clock
	Location *time.Location

	// Daily is evaluated in Location.
	Daily cron.Schedule

	// MonthlyAt is the time of day of the monthly report.
	MonthlyAt TimeOfDay

	Jobs   Jobs
	Logger *slog.Logger
}

// Scheduler arms and re-arms the two report timers.
type Scheduler struct {
	clock     clock.Clock
	location  *time.Location
	daily     cron.Schedule
	monthlyAt TimeOfDay
	jobs      Jobs
	logger    *slog.Logger

	mu           sync.Mutex
	ctx          context.Context
	running      bool
	nextDaily    time.Time
	nextMonthly  time.Time
	dailyTimer   *clock.Timer
	monthlyTimer *clock.Timer
}

// New validates cfg and returns a stopped scheduler.
func New(cfg Config) (*Scheduler, error) {
	if cfg.Clock == nil {
		return nil, fmt.Errorf("schedule: Clock is required")
	}
	if cfg.Location == nil {
		return nil, fmt.Errorf("schedule: Location is required")
	}
	if cfg.Jobs == nil {
		return nil, fmt.Errorf("schedule: Jobs is required")
	}
	if cfg.Daily.String() == "" {
		return nil, fmt.Errorf("schedule: Daily schedule is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Scheduler{
		clock:     cfg.Clock,
		location:  cfg.Location,
		daily:     cfg.Daily.In(cfg.Location),
		monthlyAt: cfg.MonthlyAt,
		jobs:      cfg.Jobs,
		logger:    logger,
	}, nil
}

// Start arms both timers. Jobs receive ctx; cancelling it stops the
// scheduler.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return fmt.Errorf("schedule: already started")
	}

	now := s.clock.Now()
	nextDaily, err := s.daily.Next(now)
	if err != nil {
		return fmt.Errorf("schedule: daily: %w", err)
	}

	s.ctx = ctx
	s.running = true
	s.armDailyLocked(nextDaily)
	s.armMonthlyLocked(NextMonthlyFire(now, s.location, s.monthlyAt))

	s.logger.Info("report schedule started",
		"daily_cron", s.daily.String(),
		"next_daily", s.nextDaily,
		"next_monthly", s.nextMonthly,
		"location", s.location.String(),
	)

	context.AfterFunc(ctx, s.Stop)
	return nil
}

// Stop cancels both timers. Safe to call more than once.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	s.running = false
	if s.dailyTimer != nil {
		s.dailyTimer.Stop()
	}
	if s.monthlyTimer != nil {
		s.monthlyTimer.Stop()
	}
	s.logger.Info("report schedule stopped")
}

// Next returns the armed daily and monthly fire instants. Both are zero
// before Start.
func (s *Scheduler) Next() (daily, monthly time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextDaily, s.nextMonthly
}

// Upcoming lists the next n job runs strictly after from, in order.
// Weekend daily matches are omitted because they do no work.
func (s *Scheduler) Upcoming(from time.Time, n int) ([]Firing, error) {
	if n <= 0 {
		return nil, nil
	}
	var firings []Firing

	// A weekend-only cron expression never yields a weekday firing.
	cursor := from
	for attempts := 0; len(firings) < n && attempts < 1000*n; attempts++ {
		next, err := s.daily.Next(cursor)
		if err != nil {
			return nil, fmt.Errorf("schedule: daily: %w", err)
		}
		cursor = next
		if tally.DayOf(next, s.location).IsWeekday() {
			firings = append(firings, Firing{Kind: KindDaily, At: next})
		}
	}

	cursor = from
	for range n {
		cursor = NextMonthlyFire(cursor, s.location, s.monthlyAt)
		firings = append(firings, Firing{Kind: KindMonthly, At: cursor})
	}

	slices.SortStableFunc(firings, func(a, b Firing) int {
		return a.At.Compare(b.At)
	})
	return firings[:min(n, len(firings))], nil
}

// delayUntil is the timer duration to reach at. Never zero: a zero
// AfterFunc runs synchronously, which would re-enter the mutex.
func (s *Scheduler) delayUntil(at time.Time) time.Duration {
	return max(at.Sub(s.clock.Now()), time.Nanosecond)
}

func (s *Scheduler) armDailyLocked(at time.Time) {
	s.nextDaily = at
	s.dailyTimer = s.clock.AfterFunc(s.delayUntil(at), func() { s.fireDaily(at) })
}

func (s *Scheduler) armMonthlyLocked(at time.Time) {
	s.nextMonthly = at
	s.monthlyTimer = s.clock.AfterFunc(s.delayUntil(at), func() { s.fireMonthly(at) })
}

func (s *Scheduler) fireDaily(at time.Time) {
	ctx, ok := s.runningContext()
	if !ok {
		return
	}

	day := tally.DayOf(at, s.location)
	if day.IsWeekday() {
		s.runJob(KindDaily, day.String(), func() error { return s.jobs.DailyReport(ctx, day) })
	} else {
		s.logger.Info("daily report skipped on weekend", "day", day.String(), "weekday", day.Weekday().String())
	}

	next, err := s.daily.Next(at)
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	if err != nil {
		s.logger.Error("daily schedule has no next firing", "error", err)
		return
	}
	s.armDailyLocked(next)
}

func (s *Scheduler) fireMonthly(at time.Time) {
	ctx, ok := s.runningContext()
	if !ok {
		return
	}

	month := tally.MonthOf(at, s.location)
	s.runJob(KindMonthly, month.String(), func() error { return s.jobs.MonthlyReport(ctx, month) })

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		s.armMonthlyLocked(NextMonthlyFire(at, s.location, s.monthlyAt))
	}
}

func (s *Scheduler) runningContext() (context.Context, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctx, s.running
}

// runJob runs one job, converting a panic into a logged failure so the
// timer is always re-armed.
func (s *Scheduler) runJob(kind Kind, period string, job func() error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			s.logger.Error("report job panicked", "kind", kind, "period", period, "panic", recovered)
		}
	}()

	started := s.clock.Now()
	if err := job(); err != nil {
		s.logger.Error("report job failed", "kind", kind, "period", period, "error", err)
		return
	}
	s.logger.Info("report job finished", "kind", kind, "period", period,
		"duration", s.clock.Now().Sub(started))
}
