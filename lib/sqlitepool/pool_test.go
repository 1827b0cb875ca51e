// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sqlitepool_test

import (
	"context"
	"path/filepath"
	"testing"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/bureau-foundation/calltally/lib/sqlitepool"
)

func TestOpenAppliesPragmas(t *testing.T) {
	pool := openTestPool(t, filepath.Join(t.TempDir(), "pragmas.db"), nil)

	conn, err := pool.Take(context.Background())
	if err != nil {
		t.Fatalf("Take: %v", err)
	}
	defer pool.Put(conn)

	var journalMode string
	err = sqlitex.Execute(conn, "PRAGMA journal_mode", &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			journalMode = stmt.ColumnText(0)
			return nil
		},
	})
	if err != nil {
		t.Fatalf("PRAGMA journal_mode: %v", err)
	}
	if journalMode != "wal" {
		t.Errorf("journal_mode = %q, want %q", journalMode, "wal")
	}
}

func TestMigrationsApplyOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "migrate.db")
	migrations := []string{
		`CREATE TABLE numbers (value INTEGER NOT NULL);`,
		`INSERT INTO numbers (value) VALUES (1), (2);`,
	}

	first := openPool(t, path, migrations)
	if got := countRows(t, first); got != 2 {
		t.Fatalf("rows after first open = %d, want 2", got)
	}
	if err := first.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// Reopening must not re-run the insert.
	second := openTestPool(t, path, migrations)
	if got := countRows(t, second); got != 2 {
		t.Errorf("rows after reopen = %d, want 2", got)
	}

	conn, err := second.Take(context.Background())
	if err != nil {
		t.Fatalf("Take: %v", err)
	}
	defer second.Put(conn)
	version, err := sqlitepool.SchemaVersion(conn)
	if err != nil {
		t.Fatalf("SchemaVersion: %v", err)
	}
	if version != len(migrations) {
		t.Errorf("SchemaVersion = %d, want %d", version, len(migrations))
	}
}

func TestMigrationsAppend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "append.db")
	v1 := []string{`CREATE TABLE numbers (value INTEGER NOT NULL);`}
	first := openPool(t, path, v1)
	if err := first.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	v2 := append(v1, `INSERT INTO numbers (value) VALUES (7);`)
	second := openTestPool(t, path, v2)
	if got := countRows(t, second); got != 1 {
		t.Errorf("rows after upgrade = %d, want 1", got)
	}
}

func TestNewerSchemaRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "newer.db")
	first := openPool(t, path, []string{
		`CREATE TABLE a (x INTEGER);`,
		`CREATE TABLE b (x INTEGER);`,
	})
	if err := first.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	_, err := sqlitepool.Open(context.Background(), sqlitepool.Config{
		Path:       path,
		Migrations: []string{`CREATE TABLE a (x INTEGER);`},
	})
	if err == nil {
		t.Fatal("Open with fewer migrations than applied succeeded, want error")
	}
}

func TestFailedMigrationRollsBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rollback.db")
	_, err := sqlitepool.Open(context.Background(), sqlitepool.Config{
		Path: path,
		Migrations: []string{
			`CREATE TABLE numbers (value INTEGER NOT NULL);`,
			`INSERT INTO missing_table VALUES (1);`,
		},
	})
	if err == nil {
		t.Fatal("Open with a broken migration succeeded")
	}

	pool := openTestPool(t, path, nil)
	conn, err := pool.Take(context.Background())
	if err != nil {
		t.Fatalf("Take: %v", err)
	}
	defer pool.Put(conn)
	version, err := sqlitepool.SchemaVersion(conn)
	if err != nil {
		t.Fatalf("SchemaVersion: %v", err)
	}
	if version != 0 {
		t.Errorf("SchemaVersion after failed migration = %d, want 0", version)
	}
}

func TestEmptyPathRejected(t *testing.T) {
	if _, err := sqlitepool.Open(context.Background(), sqlitepool.Config{}); err == nil {
		t.Fatal("expected error for empty Path")
	}
}

func TestContextCancellation(t *testing.T) {
	pool, err := sqlitepool.Open(context.Background(), sqlitepool.Config{
		Path:     filepath.Join(t.TempDir(), "cancel.db"),
		PoolSize: 1,
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer pool.Close()

	conn, err := pool.Take(context.Background())
	if err != nil {
		t.Fatalf("Take: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := pool.Take(ctx); err == nil {
		t.Fatal("expected error from cancelled context")
	}

	pool.Put(conn)
}

// openTestPool opens a pool that is closed when the test completes.
func openTestPool(t *testing.T, path string, migrations []string) *sqlitepool.Pool {
	t.Helper()
	pool := openPool(t, path, migrations)
	t.Cleanup(func() {
		if err := pool.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	})
	return pool
}

// openPool opens a pool the caller must close.
func openPool(t *testing.T, path string, migrations []string) *sqlitepool.Pool {
	t.Helper()
	pool, err := sqlitepool.Open(context.Background(), sqlitepool.Config{
		Path:       path,
		PoolSize:   2,
		Migrations: migrations,
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return pool
}

func countRows(t *testing.T, pool *sqlitepool.Pool) int {
	t.Helper()

	conn, err := pool.Take(context.Background())
	if err != nil {
		t.Fatalf("Take: %v", err)
	}
	defer pool.Put(conn)

	var count int
	err = sqlitex.Execute(conn, "SELECT count(*) FROM numbers", &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			count = stmt.ColumnInt(0)
			return nil
		},
	})
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	return count
}
