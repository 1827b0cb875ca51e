// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sqlitepool

import (
	"context"
	"fmt"
	"log/slog"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

// DefaultPoolSize is used when Config.PoolSize is not positive. SQLite
// serializes writers, so a handful of connections covers concurrent
// readers.
const DefaultPoolSize = 4

// Config holds the parameters for opening a pool. Path is required.
type Config struct {
	// Path is the database file. The parent directory must exist.
	Path string

	// PoolSize is the number of connections. Defaults to
	// DefaultPoolSize.
	PoolSize int

	// Logger receives open/close/migration messages. Nil discards.
	Logger *slog.Logger

	// Migrations are applied in order on Open. Index i moves the
	// schema from user_version i to i+1.
	Migrations []string
}

// Pool is a fixed-size pool of configured SQLite connections. Safe for
// concurrent use.
type Pool struct {
	inner  *sqlitex.Pool
	logger *slog.Logger
	path   string
}

// Open creates the pool, applies connection pragmas, and brings the
// schema up to date. The caller must Close the pool.
func Open(ctx context.Context, cfg Config) (*Pool, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("sqlitepool: Path is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	poolSize := cfg.PoolSize
	if poolSize <= 0 {
		poolSize = DefaultPoolSize
	}

	inner, err := sqlitex.NewPool(cfg.Path, sqlitex.PoolOptions{
		PoolSize:    poolSize,
		PrepareConn: prepareConnection,
	})
	if err != nil {
		return nil, fmt.Errorf("sqlitepool: opening %s: %w", cfg.Path, err)
	}

	pool := &Pool{inner: inner, logger: logger, path: cfg.Path}
	if err := pool.migrate(ctx, cfg.Migrations); err != nil {
		inner.Close()
		return nil, err
	}

	logger.Info("sqlite pool opened",
		"path", cfg.Path,
		"pool_size", poolSize,
		"schema_version", len(cfg.Migrations),
	)
	return pool, nil
}

// Take borrows a connection, blocking until one is free or ctx is
// done. The caller must Put it back.
func (p *Pool) Take(ctx context.Context) (*sqlite.Conn, error) {
	conn, err := p.inner.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("sqlitepool: take: %w", err)
	}
	return conn, nil
}

// Put returns a connection to the pool. Nil is a no-op.
func (p *Pool) Put(conn *sqlite.Conn) {
	p.inner.Put(conn)
}

// Close closes every connection, waiting for borrowed ones to return.
func (p *Pool) Close() error {
	if err := p.inner.Close(); err != nil {
		p.logger.Error("sqlite pool close error", "path", p.path, "error", err)
		return fmt.Errorf("sqlitepool: closing %s: %w", p.path, err)
	}
	p.logger.Info("sqlite pool closed", "path", p.path)
	return nil
}

// SchemaVersion reads PRAGMA user_version.
func SchemaVersion(conn *sqlite.Conn) (int, error) {
	var version int
	err := sqlitex.ExecuteTransient(conn, "PRAGMA user_version", &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			version = stmt.ColumnInt(0)
			return nil
		},
	})
	if err != nil {
		return 0, fmt.Errorf("sqlitepool: reading user_version: %w", err)
	}
	return version, nil
}

func (p *Pool) migrate(ctx context.Context, migrations []string) (err error) {
	if len(migrations) == 0 {
		return nil
	}

	conn, err := p.Take(ctx)
	if err != nil {
		return err
	}
	defer p.Put(conn)

	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return fmt.Errorf("sqlitepool: begin migration: %w", err)
	}
	defer endTransaction(&err)

	current, err := SchemaVersion(conn)
	if err != nil {
		return err
	}
	if current > len(migrations) {
		return fmt.Errorf("sqlitepool: %s has schema version %d, newer than the %d known migrations",
			p.path, current, len(migrations))
	}

	for version := current; version < len(migrations); version++ {
		if err := sqlitex.ExecuteScript(conn, migrations[version], nil); err != nil {
			return fmt.Errorf("sqlitepool: migration %d: %w", version+1, err)
		}
		p.logger.Info("sqlite migration applied", "path", p.path, "version", version+1)
	}

	// PRAGMA values cannot be bound as parameters.
	pragma := fmt.Sprintf("PRAGMA user_version = %d", len(migrations))
	if err := sqlitex.ExecuteTransient(conn, pragma, nil); err != nil {
		return fmt.Errorf("sqlitepool: setting user_version: %w", err)
	}
	return nil
}

func prepareConnection(conn *sqlite.Conn) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA temp_store=MEMORY",
	}
	for _, pragma := range pragmas {
		if err := sqlitex.ExecuteTransient(conn, pragma, nil); err != nil {
			return fmt.Errorf("sqlitepool: %s: %w", pragma, err)
		}
	}
	return nil
}
