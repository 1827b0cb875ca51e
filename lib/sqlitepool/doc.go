// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package sqlitepool opens SQLite connection pools with the pragmas and
// schema versioning every calltally database shares.
//
// It wraps zombiezen.com/go/sqlite. Callers [Pool.Take] a connection,
// do their work with sqlitex.Execute, and [Pool.Put] it back.
// Connections are not safe for concurrent use; each goroutine holds
// its own for the duration of its work.
//
// # Pragmas
//
// Every connection is initialized with:
//
//   - journal_mode=WAL: readers never block the single writer.
//   - synchronous=NORMAL: commits survive a process crash. A lost OS
//     page cache can drop the last few increments, which is acceptable
//     for call counters.
//   - busy_timeout=5000: wait up to 5 seconds for the write lock
//     instead of failing with SQLITE_BUSY.
//   - temp_store=MEMORY.
//
// # Migrations
//
// [Config.Migrations] is an ordered list of SQL scripts. Open applies
// the ones the database has not seen yet inside a single IMMEDIATE
// transaction and records progress in PRAGMA user_version. Scripts are
// append-only: editing an already-applied script has no effect on
// existing databases.
//
//	pool, err := sqlitepool.Open(sqlitepool.Config{
//	    Path:       "/var/lib/calltally/counters.db",
//	    Logger:     logger,
//	    Migrations: []string{schemaV1},
//	})
package sqlitepool
