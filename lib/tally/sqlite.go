// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package tally

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/bureau-foundation/calltally/lib/building"
	"github.com/bureau-foundation/calltally/lib/sqlitepool"
)

// sqliteMigrations is append-only; see lib/sqlitepool.
var sqliteMigrations = []string{
	`
	CREATE TABLE daily_counts (
		day   TEXT    NOT NULL,
		code  INTEGER NOT NULL,
		calls INTEGER NOT NULL,
		PRIMARY KEY (day, code)
	) WITHOUT ROWID;

	CREATE TABLE monthly_counts (
		month TEXT    NOT NULL,
		code  INTEGER NOT NULL,
		calls INTEGER NOT NULL,
		PRIMARY KEY (month, code)
	) WITHOUT ROWID;
	`,
}

// SQLiteConfig holds the parameters for opening a SQLite-backed store.
type SQLiteConfig struct {
	// Path is the database file. The parent directory must exist.
	Path string

	// PoolSize defaults to sqlitepool.DefaultPoolSize.
	PoolSize int

	// Location assigns instants to days and months. Required.
	Location *time.Location

	Logger *slog.Logger
}

// SQLiteStore persists counters in a SQLite database.
type SQLiteStore struct {
	pool     *sqlitepool.Pool
	location *time.Location
}

// OpenSQLite opens (creating if needed) a counter database.
func OpenSQLite(ctx context.Context, cfg SQLiteConfig) (*SQLiteStore, error) {
	if cfg.Location == nil {
		return nil, fmt.Errorf("tally: sqlite store: Location is required")
	}
	pool, err := sqlitepool.Open(ctx, sqlitepool.Config{
		Path:       cfg.Path,
		PoolSize:   cfg.PoolSize,
		Logger:     cfg.Logger,
		Migrations: sqliteMigrations,
	})
	if err != nil {
		return nil, &StorageError{Op: "open", Err: err}
	}
	return &SQLiteStore{pool: pool, location: cfg.Location}, nil
}

func (s *SQLiteStore) Increment(ctx context.Context, code building.Code, now time.Time) (counts Counts, err error) {
	if !code.Valid() {
		return Counts{}, fmt.Errorf("tally: invalid code %d", int(code))
	}

	day := DayOf(now, s.location)
	month := day.CalendarMonth()

	conn, err := s.pool.Take(ctx)
	if err != nil {
		return Counts{}, &StorageError{Op: "increment", Err: err}
	}
	defer s.pool.Put(conn)

	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return Counts{}, &StorageError{Op: "increment", Err: err}
	}
	defer endTransaction(&err)

	counts = Counts{Code: code, Day: day, Month: month}

	counts.DailyCount, err = upsertCount(conn, "daily_counts", "day", day.String(), code)
	if err != nil {
		return Counts{}, &StorageError{Op: "increment daily", Err: err}
	}
	counts.MonthlyCount, err = upsertCount(conn, "monthly_counts", "month", month.String(), code)
	if err != nil {
		return Counts{}, &StorageError{Op: "increment monthly", Err: err}
	}
	err = sqlitex.Execute(conn,
		"SELECT coalesce(sum(calls), 0) FROM daily_counts WHERE day = ?",
		&sqlitex.ExecOptions{
			Args: []any{day.String()},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				counts.DailyTotal = stmt.ColumnInt(0)
				return nil
			},
		})
	if err != nil {
		return Counts{}, &StorageError{Op: "daily total", Err: err}
	}
	return counts, nil
}

// upsertCount bumps one counter row and returns its new value. table and
// keyColumn are package constants, never caller input.
func upsertCount(conn *sqlite.Conn, table, keyColumn, key string, code building.Code) (int, error) {
	query := fmt.Sprintf(`
		INSERT INTO %[1]s (%[2]s, code, calls) VALUES (?, ?, 1)
		ON CONFLICT (%[2]s, code) DO UPDATE SET calls = calls + 1
		RETURNING calls`, table, keyColumn)

	var calls int
	err := sqlitex.Execute(conn, query, &sqlitex.ExecOptions{
		Args: []any{key, int(code)},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			calls = stmt.ColumnInt(0)
			return nil
		},
	})
	return calls, err
}

func (s *SQLiteStore) DailySnapshot(ctx context.Context, day Day) (Snapshot, error) {
	snapshot, err := s.snapshot(ctx, "SELECT code, calls FROM daily_counts WHERE day = ?", day.String())
	if err != nil {
		return Snapshot{}, &StorageError{Op: "daily snapshot", Err: err}
	}
	return snapshot, nil
}

func (s *SQLiteStore) MonthlySnapshot(ctx context.Context, month Month) (Snapshot, error) {
	snapshot, err := s.snapshot(ctx, "SELECT code, calls FROM monthly_counts WHERE month = ?", month.String())
	if err != nil {
		return Snapshot{}, &StorageError{Op: "monthly snapshot", Err: err}
	}
	return snapshot, nil
}

func (s *SQLiteStore) snapshot(ctx context.Context, query, key string) (Snapshot, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	defer s.pool.Put(conn)

	var snapshot Snapshot
	err = sqlitex.Execute(conn, query, &sqlitex.ExecOptions{
		Args: []any{key},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			code := building.Code(stmt.ColumnInt(0))
			// Rows outside the tracked range are ignored.
			if code.Valid() {
				snapshot[code.Index()] = stmt.ColumnInt(1)
			}
			return nil
		},
	})
	return snapshot, err
}

func (s *SQLiteStore) ResetDaily(ctx context.Context, day Day) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return &StorageError{Op: "reset daily", Err: err}
	}
	defer s.pool.Put(conn)

	err = sqlitex.Execute(conn, "DELETE FROM daily_counts WHERE day = ?", &sqlitex.ExecOptions{
		Args: []any{day.String()},
	})
	if err != nil {
		return &StorageError{Op: "reset daily", Err: err}
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.pool.Close()
}

func (s *SQLiteStore) Records(ctx context.Context) ([]Record, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, &StorageError{Op: "records", Err: err}
	}
	defer s.pool.Put(conn)

	var records []Record
	collect := func(scope Scope) func(stmt *sqlite.Stmt) error {
		return func(stmt *sqlite.Stmt) error {
			records = append(records, Record{
				Scope:  scope,
				Period: stmt.ColumnText(0),
				Code:   building.Code(stmt.ColumnInt(1)),
				Count:  stmt.ColumnInt(2),
			})
			return nil
		}
	}

	err = sqlitex.Execute(conn,
		"SELECT day, code, calls FROM daily_counts WHERE calls > 0 ORDER BY day, code",
		&sqlitex.ExecOptions{ResultFunc: collect(ScopeDaily)})
	if err != nil {
		return nil, &StorageError{Op: "records", Err: err}
	}
	err = sqlitex.Execute(conn,
		"SELECT month, code, calls FROM monthly_counts WHERE calls > 0 ORDER BY month, code",
		&sqlitex.ExecOptions{ResultFunc: collect(ScopeMonthly)})
	if err != nil {
		return nil, &StorageError{Op: "records", Err: err}
	}
	return records, nil
}

func (s *SQLiteStore) Restore(ctx context.Context, records []Record) (err error) {
	if err := validateRecords(records); err != nil {
		return err
	}

	conn, err := s.pool.Take(ctx)
	if err != nil {
		return &StorageError{Op: "restore", Err: err}
	}
	defer s.pool.Put(conn)

	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return &StorageError{Op: "restore", Err: err}
	}
	defer endTransaction(&err)

	for _, record := range records {
		query := `
			INSERT INTO daily_counts (day, code, calls) VALUES (?, ?, ?)
			ON CONFLICT (day, code) DO UPDATE SET calls = excluded.calls`
		if record.Scope == ScopeMonthly {
			query = `
				INSERT INTO monthly_counts (month, code, calls) VALUES (?, ?, ?)
				ON CONFLICT (month, code) DO UPDATE SET calls = excluded.calls`
		}
		err = sqlitex.Execute(conn, query, &sqlitex.ExecOptions{
			Args: []any{record.Period, int(record.Code), record.Count},
		})
		if err != nil {
			return &StorageError{Op: "restore", Err: err}
		}
	}
	return nil
}
