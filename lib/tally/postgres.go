// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package tally

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	// Registers the "pgx" database/sql driver.
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/bureau-foundation/calltally/lib/building"
)

var postgresSchema = []string{`
	CREATE TABLE IF NOT EXISTS calltally_daily_counts (
		day   TEXT     NOT NULL,
		code  SMALLINT NOT NULL,
		calls INTEGER  NOT NULL,
		PRIMARY KEY (day, code)
	)`, `
	CREATE TABLE IF NOT EXISTS calltally_monthly_counts (
		month TEXT     NOT NULL,
		code  SMALLINT NOT NULL,
		calls INTEGER  NOT NULL,
		PRIMARY KEY (month, code)
	)`,
}

// PostgresConfig holds the parameters for a PostgreSQL-backed store.
type PostgresConfig struct {
	// DSN is a pgx connection string or URL.
	DSN string

	// MaxOpenConns caps the database/sql pool. Zero leaves it
	// unlimited.
	MaxOpenConns int

	// Location assigns instants to days and months. Required.
	Location *time.Location

	Logger *slog.Logger
}

// PostgresStore persists counters in PostgreSQL.
type PostgresStore struct {
	db       *sql.DB
	location *time.Location
}

// OpenPostgres connects, pings, and creates the counter tables if they
// do not exist.
func OpenPostgres(ctx context.Context, cfg PostgresConfig) (*PostgresStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("tally: postgres store: DSN is required")
	}
	if cfg.Location == nil {
		return nil, fmt.Errorf("tally: postgres store: Location is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	db, err := sql.Open("pgx", cfg.DSN)
	if err != nil {
		return nil, &StorageError{Op: "open", Err: err}
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}

	pingContext, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingContext); err != nil {
		db.Close()
		return nil, &StorageError{Op: "ping", Err: err}
	}
	for _, statement := range postgresSchema {
		if _, err := db.ExecContext(ctx, statement); err != nil {
			db.Close()
			return nil, &StorageError{Op: "create schema", Err: err}
		}
	}

	logger.Info("postgres counter store opened")
	return &PostgresStore{db: db, location: cfg.Location}, nil
}

func (s *PostgresStore) Increment(ctx context.Context, code building.Code, now time.Time) (Counts, error) {
	if !code.Valid() {
		return Counts{}, fmt.Errorf("tally: invalid code %d", int(code))
	}

	day := DayOf(now, s.location)
	month := day.CalendarMonth()
	counts := Counts{Code: code, Day: day, Month: month}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Counts{}, &StorageError{Op: "increment", Err: err}
	}
	defer tx.Rollback()

	err = tx.QueryRowContext(ctx, `
		INSERT INTO calltally_daily_counts (day, code, calls) VALUES ($1, $2, 1)
		ON CONFLICT (day, code) DO UPDATE SET calls = calltally_daily_counts.calls + 1
		RETURNING calls`, day.String(), int(code)).Scan(&counts.DailyCount)
	if err != nil {
		return Counts{}, &StorageError{Op: "increment daily", Err: err}
	}
	err = tx.QueryRowContext(ctx, `
		INSERT INTO calltally_monthly_counts (month, code, calls) VALUES ($1, $2, 1)
		ON CONFLICT (month, code) DO UPDATE SET calls = calltally_monthly_counts.calls + 1
		RETURNING calls`, month.String(), int(code)).Scan(&counts.MonthlyCount)
	if err != nil {
		return Counts{}, &StorageError{Op: "increment monthly", Err: err}
	}
	err = tx.QueryRowContext(ctx,
		`SELECT coalesce(sum(calls), 0) FROM calltally_daily_counts WHERE day = $1`,
		day.String()).Scan(&counts.DailyTotal)
	if err != nil {
		return Counts{}, &StorageError{Op: "daily total", Err: err}
	}

	if err := tx.Commit(); err != nil {
		return Counts{}, &StorageError{Op: "increment commit", Err: err}
	}
	return counts, nil
}

func (s *PostgresStore) DailySnapshot(ctx context.Context, day Day) (Snapshot, error) {
	snapshot, err := s.snapshot(ctx,
		`SELECT code, calls FROM calltally_daily_counts WHERE day = $1`, day.String())
	if err != nil {
		return Snapshot{}, &StorageError{Op: "daily snapshot", Err: err}
	}
	return snapshot, nil
}

func (s *PostgresStore) MonthlySnapshot(ctx context.Context, month Month) (Snapshot, error) {
	snapshot, err := s.snapshot(ctx,
		`SELECT code, calls FROM calltally_monthly_counts WHERE month = $1`, month.String())
	if err != nil {
		return Snapshot{}, &StorageError{Op: "monthly snapshot", Err: err}
	}
	return snapshot, nil
}

func (s *PostgresStore) snapshot(ctx context.Context, query, key string) (Snapshot, error) {
	rows, err := s.db.QueryContext(ctx, query, key)
	if err != nil {
		return Snapshot{}, err
	}
	defer rows.Close()

	var snapshot Snapshot
	for rows.Next() {
		var code, calls int
		if err := rows.Scan(&code, &calls); err != nil {
			return Snapshot{}, err
		}
		if building.Code(code).Valid() {
			snapshot[building.Code(code).Index()] = calls
		}
	}
	return snapshot, rows.Err()
}

func (s *PostgresStore) ResetDaily(ctx context.Context, day Day) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM calltally_daily_counts WHERE day = $1`, day.String())
	if err != nil {
		return &StorageError{Op: "reset daily", Err: err}
	}
	return nil
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func (s *PostgresStore) Records(ctx context.Context) ([]Record, error) {
	var records []Record
	queries := []struct {
		scope Scope
		query string
	}{
		{ScopeDaily, `SELECT day, code, calls FROM calltally_daily_counts WHERE calls > 0 ORDER BY day, code`},
		{ScopeMonthly, `SELECT month, code, calls FROM calltally_monthly_counts WHERE calls > 0 ORDER BY month, code`},
	}
	for _, entry := range queries {
		rows, err := s.db.QueryContext(ctx, entry.query)
		if err != nil {
			return nil, &StorageError{Op: "records", Err: err}
		}
		for rows.Next() {
			record := Record{Scope: entry.scope}
			var code int
			if err := rows.Scan(&record.Period, &code, &record.Count); err != nil {
				rows.Close()
				return nil, &StorageError{Op: "records", Err: err}
			}
			record.Code = building.Code(code)
			records = append(records, record)
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, &StorageError{Op: "records", Err: err}
		}
	}
	return records, nil
}

func (s *PostgresStore) Restore(ctx context.Context, records []Record) error {
	if err := validateRecords(records); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &StorageError{Op: "restore", Err: err}
	}
	defer tx.Rollback()

	for _, record := range records {
		query := `
			INSERT INTO calltally_daily_counts (day, code, calls) VALUES ($1, $2, $3)
			ON CONFLICT (day, code) DO UPDATE SET calls = excluded.calls`
		if record.Scope == ScopeMonthly {
			query = `
				INSERT INTO calltally_monthly_counts (month, code, calls) VALUES ($1, $2, $3)
				ON CONFLICT (month, code) DO UPDATE SET calls = excluded.calls`
		}
		if _, err := tx.ExecContext(ctx, query, record.Period, int(record.Code), record.Count); err != nil {
			return &StorageError{Op: "restore", Err: err}
		}
	}
	if err := tx.Commit(); err != nil {
		return &StorageError{Op: "restore commit", Err: err}
	}
	return nil
}
