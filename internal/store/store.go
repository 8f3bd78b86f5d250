// Package store is the hand-rolled database/sql persistence layer for the
// control plane. There is no generated ORM client in this repository (the
// teacher's ent codegen output isn't part of the retrieval pack), so every
// entity in the data model gets a small repository-style file here, grouped
// by the component that owns it.
package store

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// Store wraps the shared connection pool. Every background loop and
// repository method hangs off this type; callers never touch *sql.DB
// directly so query shape stays centralized.
type Store struct {
	DB     *sql.DB
	Driver string
}

// ParseDatabase dispatches a connection URL to a driver name and DSN,
// following cmd/server/main.go's original sqlite://  vs postgresql:// /
// postgres:// convention.
func ParseDatabase(dbURL string) (driver, dsn string, err error) {
	switch {
	case strings.HasPrefix(dbURL, "sqlite://"):
		driver = "sqlite3"
		dsn = strings.TrimPrefix(dbURL, "sqlite://")

		dir := filepath.Dir(dsn)
		if dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return "", "", fmt.Errorf("failed to create database directory: %w", err)
			}
		}

		if !strings.Contains(dsn, "?") {
			dsn += "?_fk=1"
		}
		return driver, dsn, nil

	case strings.HasPrefix(dbURL, "postgresql://"), strings.HasPrefix(dbURL, "postgres://"):
		return "postgres", dbURL, nil

	default:
		return "", "", fmt.Errorf("unsupported database URL format: %s (use sqlite:// or postgresql://)", dbURL)
	}
}

// Open parses dbURL, opens the pool, bootstraps the schema, and (for
// sqlite) pins the writer to a single connection so WAL-mode serialisation
// matches the spec's "single writer pool" framing.
func Open(ctx context.Context, dbURL string) (*Store, error) {
	driver, dsn, err := ParseDatabase(dbURL)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed opening connection to %s: %w", driver, err)
	}

	if driver == "sqlite3" {
		db.SetMaxOpenConns(1)
		if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed enabling WAL mode: %w", err)
		}
		if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys=ON"); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed enabling foreign keys: %w", err)
		}
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed pinging database: %w", err)
	}

	s := &Store{DB: db, Driver: driver}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// migrate applies schema.sql. There is no versioned migration framework in
// this repository's scope; every statement is CREATE TABLE/INDEX IF NOT
// EXISTS, so re-applying on every startup is idempotent.
func (s *Store) migrate(ctx context.Context) error {
	for _, stmt := range strings.Split(schemaSQL, ";\n") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := s.DB.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("schema migration failed on statement %q: %w", firstLine(stmt), err)
		}
	}
	return nil
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

// Close releases the underlying pool.
func (s *Store) Close() error {
	return s.DB.Close()
}

// WithTx runs fn inside a transaction, committing on success and rolling
// back (recovering a panic first) on any error, adapted from the teacher's
// internal/db/tx.go panic-recovery wrapper to a plain *sql.Tx instead of an
// ent transaction.
func (s *Store) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) (err error) {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		} else if err != nil {
			tx.Rollback()
		} else {
			err = tx.Commit()
		}
	}()

	err = fn(tx)
	return err
}
