// Copyright 2025 Certen Protocol
//
// Store is a Postgres-backed storage.KV, grounded on pkg/database/client.go
// in the teacher repository: connection pooling via database/sql plus
// lib/pq, embedded migrations via //go:embed, and a functional-options
// constructor with an injected *log.Logger. Unlike the teacher's
// proof-artifact-specific schema, this package's migration creates a single
// generic key/value table, since storage.Storage itself owns the key
// layout (pkg/storage/keys.go) and only needs byte-string get/set/scan.

package sqlstore

import (
	"bytes"
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"log"
	"sort"
	"strings"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/certen/independant-validator/pkg/storage"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store is a Postgres-backed storage.KV.
type Store struct {
	db     *sql.DB
	logger *log.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets a custom logger for the store.
func WithLogger(logger *log.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// Config names the connection parameters a Store needs. Kept narrow and
// separate from pkg/config.Config since this package has no dependency on
// the agent's broader runtime configuration.
type Config struct {
	DatabaseURL      string
	MaxOpenConns     int
	MaxIdleConns     int
	ConnMaxIdleTime  time.Duration
	ConnMaxLifetime  time.Duration
}

// Open connects to Postgres, applies pending migrations, and returns a ready Store.
func Open(ctx context.Context, cfg Config, opts ...Option) (*Store, error) {
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("sqlstore: database URL cannot be empty")
	}

	s := &Store{
		logger: log.New(log.Writer(), "[sqlstore] ", log.LstdFlags),
	}
	for _, opt := range opts {
		opt(s)
	}

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: open database: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxIdleTime > 0 {
		db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlstore: ping database: %w", err)
	}

	s.db = db
	if err := s.migrateUp(ctx); err != nil {
		db.Close()
		return nil, err
	}
	s.logger.Println("connected and migrated")
	return s, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) migrateUp(ctx context.Context) error {
	entries, err := fs.ReadDir(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("sqlstore: list migrations: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	for _, name := range names {
		sqlBytes, err := migrationsFS.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("sqlstore: read migration %s: %w", name, err)
		}
		if _, err := s.db.ExecContext(ctx, string(sqlBytes)); err != nil {
			return fmt.Errorf("sqlstore: apply migration %s: %w", name, err)
		}
	}
	return nil
}

// Get returns the value at key, or storage.ErrNotFound if absent.
func (s *Store) Get(key []byte) ([]byte, error) {
	var value []byte
	err := s.db.QueryRow(`SELECT value FROM kv_entries WHERE key = $1`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlstore: get: %w", err)
	}
	return value, nil
}

// Set stores value at key, overwriting any prior value.
func (s *Store) Set(key, value []byte) error {
	_, err := s.db.Exec(`
		INSERT INTO kv_entries (key, value) VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`, key, value)
	if err != nil {
		return fmt.Errorf("sqlstore: set: %w", err)
	}
	return nil
}

// Delete removes key, if present.
func (s *Store) Delete(key []byte) error {
	_, err := s.db.Exec(`DELETE FROM kv_entries WHERE key = $1`, key)
	if err != nil {
		return fmt.Errorf("sqlstore: delete: %w", err)
	}
	return nil
}

// ScanPrefix returns every key/value pair whose key starts with prefix, in
// ascending key order.
func (s *Store) ScanPrefix(prefix []byte) ([]storage.KVPair, error) {
	// Postgres lacks a native "bytea prefix" operator usable as an index
	// condition here without a dedicated opclass, so the prefix match is
	// applied in Go over every row fetched in key order; the kv_entries table is
	// not expected to grow past what a full prefix scan can handle for a
	// single agent's own storage (spec.md §6 leaves the store an external
	// collaborator, not a scale target in itself).
	rows, err := s.db.Query(`SELECT key, value FROM kv_entries ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: scan: %w", err)
	}
	defer rows.Close()

	var out []storage.KVPair
	for rows.Next() {
		var k, v []byte
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("sqlstore: scan row: %w", err)
		}
		if bytes.HasPrefix(k, prefix) {
			out = append(out, storage.KVPair{Key: k, Value: v})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlstore: scan rows: %w", err)
	}
	return out, nil
}
