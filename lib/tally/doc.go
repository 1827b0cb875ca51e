// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package tally stores ambulance-call counters per building, scoped to a
// calendar day and to a calendar month.
//
// Every recorded call bumps two independent counters: the (day, code)
// counter and the (month, code) counter. Monthly totals are accumulated
// on their own rather than derived from daily rows, so resetting a day
// after its report has been broadcast leaves the month untouched.
//
// [Store] is the capability set shared by all backends:
//
//   - [MemoryStore] keeps counters in maps behind a mutex. Used by tests
//     and by the "memory" storage driver.
//   - [SQLiteStore] persists counters in a SQLite database through
//     lib/sqlitepool. Each increment is a single IMMEDIATE transaction
//     with an upsert, so concurrent increments never lose updates.
//   - [PostgresStore] persists counters in PostgreSQL through a pgx
//     connection pool using the same upsert statement.
//
// Day and month keys are derived from an instant in the store's
// configured location; callers pass the instant, never a pre-computed
// date string. Snapshots always contain all building codes, with absent
// rows read as zero.
//
// Backend failures are reported as [*StorageError]. A failed increment
// never returns a count.
//
// [Archiver] is an optional capability (implemented by all three
// backends) for exporting and restoring every counter row; lib/archive
// builds on it.
package tally
