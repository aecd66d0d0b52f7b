package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"gallery/internal/store"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"
)

// DBType represents the type of database
type DBType string

const (
	SQLite     DBType = "sqlite3" // cgo driver
	SQLitePure DBType = "sqlite"  // modernc.org/sqlite
	Postgres   DBType = "postgres"
)

// SQLStore implements store.KV on top of a single kv_store table.
type SQLStore struct {
	db     *sql.DB
	dbType DBType
}

var _ store.KV = (*SQLStore)(nil)

// New creates a new SQLStore with the given driver and connection string
func New(ctx context.Context, driver, connStr string) (*SQLStore, error) {
	dbType := DBType(driver)
	switch dbType {
	case SQLite, SQLitePure, Postgres:
	default:
		return nil, fmt.Errorf("sqlstore: unsupported driver %q", driver)
	}

	db, err := sql.Open(driver, connStr)
	if err != nil {
		return nil, err
	}
	if dbType != Postgres {
		// One connection keeps ":memory:" databases shared and serializes writers.
		db.SetMaxOpenConns(1)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}

	s := &SQLStore{
		db:     db,
		dbType: dbType,
	}

	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL
func (s *SQLStore) rebind(query string) string {
	if s.dbType != Postgres {
		return query
	}
	var result strings.Builder
	argNum := 1
	for _, c := range query {
		if c == '?' {
			result.WriteString(fmt.Sprintf("$%d", argNum))
			argNum++
		} else {
			result.WriteRune(c)
		}
	}
	return result.String()
}

func (s *SQLStore) initSchema(ctx context.Context) error {
	var createKVTable string

	if s.dbType == Postgres {
		createKVTable = `
		CREATE TABLE IF NOT EXISTS kv_store (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at TIMESTAMP NOT NULL
		);`
	} else {
		createKVTable = `
		CREATE TABLE IF NOT EXISTS kv_store (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at DATETIME NOT NULL
		);`
	}

	_, err := s.db.ExecContext(ctx, createKVTable)
	return err
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

func (s *SQLStore) Get(ctx context.Context, key string) ([]byte, error) {
	var value string
	err := s.db.QueryRowContext(ctx, s.rebind("SELECT value FROM kv_store WHERE key = ?"), key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return []byte(value), nil
}

// Set upserts the value; both SQLite (3.24+) and PostgreSQL accept ON CONFLICT.
func (s *SQLStore) Set(ctx context.Context, key string, value []byte) error {
	query := `INSERT INTO kv_store (key, value, updated_at) VALUES (?, ?, ?)
	          ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`
	_, err := s.db.ExecContext(ctx, s.rebind(query), key, string(value), time.Now().UTC())
	return err
}

func (s *SQLStore) Delete(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, s.rebind("DELETE FROM kv_store WHERE key = ?"), key)
	return err
}
