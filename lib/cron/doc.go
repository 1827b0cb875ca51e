// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package cron parses 5-field cron expressions and finds the next
// matching wall-clock instant in a time zone.
//
//	┌───────────── minute (0-59)
//	│ ┌───────────── hour (0-23)
//	│ │ ┌───────────── day of month (1-31)
//	│ │ │ ┌───────────── month (1-12)
//	│ │ │ │ ┌───────────── day of week (0-6, 0=Sunday; or sun..sat)
//	│ │ │ │ │
//	0 19 * * *
//
// Fields accept values, ranges (1-5), lists (1,3,5), steps (*/15,
// 1-30/5) and the wildcard. Day-of-week also accepts three-letter
// names, so "0 19 * * mon-fri" is valid.
//
// A parsed [Schedule] evaluates in UTC until [Schedule.In] binds it to
// a location; the report schedule is bound to the configured zone so
// "0 19 * * *" means 19:00 local time.
package cron
