// Package store persists collected playlists and their diagnostics.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"
	_ "github.com/mattn/go-sqlite3"
)

const (
	DriverSQLite = "sqlite3"
	DriverDuckDB = "duckdb"
)

const (
	timestampLayout = "2006-01-02T15:04:05.000000Z"
	dateLayout      = time.DateOnly
)

type Store struct {
	db     *sql.DB
	driver string
	now    func() time.Time
}

// New opens (creating if needed) the database at path with the given driver.
// An empty driver means SQLite.
func New(driver, path string) (*Store, error) {
	if driver == "" {
		driver = DriverSQLite
	}
	if driver != DriverSQLite && driver != DriverDuckDB {
		return nil, fmt.Errorf("unknown database driver %q", driver)
	}

	db, err := sql.Open(driver, path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if driver == DriverSQLite {
		// One writer at a time; transactions would otherwise hit SQLITE_BUSY.
		db.SetMaxOpenConns(1)
	}

	if err := createTables(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating tables: %w", err)
	}

	return &Store{db: db, driver: driver, now: time.Now}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Driver() string {
	return s.driver
}

// SetClock replaces the clock used for first_seen/last_updated stamps.
func (s *Store) SetClock(now func() time.Time) {
	s.now = now
}

// Ping checks that the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func createTables(db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("executing %.40q: %w", stmt, err)
		}
	}
	return nil
}

func (s *Store) timestamp() string {
	return formatTimestamp(s.now())
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

func formatDate(t time.Time) string {
	return t.UTC().Format(dateLayout)
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullBool(b *bool) sql.NullBool {
	if b == nil {
		return sql.NullBool{}
	}
	return sql.NullBool{Bool: *b, Valid: true}
}
