// Package sqlite implements the repository interfaces using SQLite as the storage backend.
//
// WHY SQLITE?
// SQLite is an embedded database: it lives inside the binary as a single file.
// No separate database server to install for a small billing office, and tests
// can use ":memory:" for a throwaway database per test.
//
// WHY modernc.org/sqlite INSTEAD OF github.com/mattn/go-sqlite3?
// modernc.org/sqlite is a pure Go translation of the SQLite C code: no CGo,
// no C compiler needed, cross-compiles everywhere Go does.
//
// SCHEMA MIGRATIONS:
// The schema lives in migrations/*.sql, embedded into the binary with go:embed
// and applied by golang-migrate on every start. golang-migrate records the
// applied version in schema_migrations, so each file runs exactly once.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	// BLANK IMPORT:
	// Registers the "sqlite" driver with database/sql at init time.
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/sakif/billing-tracker/internal/repository"
)

// compile-time check that *DB provides every repository the services need
var _ repository.Store = (*DB)(nil)

// DB wraps a sql.DB connection pool and provides repository methods.
//
// One *DB satisfies UserRepository, CustomerRepository and ReportRepository,
// so the composition root can hand the same value to every service.
type DB struct {
	conn *sql.DB
}

// New opens the SQLite database at dbPath and brings its schema up to date.
//
// dbPath examples:
//   - "data/billing.db"  → file-based database (persistent)
//   - ":memory:"         → in-memory database (tests; lost on close)
//
// SINGLE CONNECTION:
// SQLite allows one writer at a time, and every ":memory:" connection is a
// separate empty database. Capping the pool at one connection makes both
// cases behave: writes are serialised by database/sql, and the in-memory
// schema created by the migrations is the one every query sees.
func New(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}
	conn.SetMaxOpenConns(1)

	// Ping verifies the connection actually works.
	// Without this, a bad path or permissions issue would only surface
	// on the first query: which is much harder to debug.
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	// WAL lets readers proceed while a write is in flight.
	// (For ":memory:" SQLite answers "memory" and ignores it.)
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: setting WAL mode: %w", err)
	}

	// Foreign keys are OFF by default in SQLite (for backwards compatibility).
	// Payment history and reports cascade from their owners, so turn them on.
	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: enabling foreign keys: %w", err)
	}

	db := &DB{conn: conn}

	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return db, nil
}

// Ping reports whether the database is still reachable. Used by /api/health.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// Close closes the database connection pool.
//
// ALWAYS DEFER CLOSE:
//
//	db, err := sqlite.New("data/billing.db")
//	if err != nil { ... }
//	defer db.Close()
func (db *DB) Close() error {
	return db.conn.Close()
}

// isUniqueViolation reports whether err came from a UNIQUE index.
//
// The unique indexes on users(username) and customers(user_id, box_id) are
// what make "check then insert" atomic: we simply insert, and translate this
// error into an apperror.Conflict.
func isUniqueViolation(err error) bool {
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE ||
			sqliteErr.Code() == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
	}
	return false
}

// nullable turns an optional patch field into a driver value: nil stays SQL NULL,
// which COALESCE(?, column) treats as "keep the current value".
func nullable[T any](p *T) any {
	if p == nil {
		return nil
	}
	return *p
}
