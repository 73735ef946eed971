// Copyright 2026 Jeremy Hahn
// SPDX-License-Identifier: MIT

package securestore

import (
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite" // sqlite driver
)

const (
	// sqliteSchemaVersion is stored in PRAGMA user_version.
	sqliteSchemaVersion = 1

	sqliteSchema = `CREATE TABLE pinning_data (
		key        TEXT PRIMARY KEY,
		value      BLOB NOT NULL,
		updated_at INTEGER NOT NULL
	);`
)

// SQLiteStore keeps values in a SQLite database file. Every key is one row
// of pinning_data; Save replaces the row in a single statement, so readers
// in other processes see either the old or the new value.
type SQLiteStore struct {
	db     *sql.DB
	closed atomic.Bool
}

// NewSQLiteStore opens (and if necessary creates) the database at path.
// In-memory databases are rejected since they would not survive the process.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path == "" || strings.Contains(path, ":memory:") {
		return nil, fmt.Errorf("%w: a database file path is required", ErrStorage)
	}
	noFile, _ := strings.CutPrefix(path, "file:")

	params := make(url.Values)
	params.Add("_txlock", "immediate")
	params.Add("_pragma", "journal_mode(WAL)")
	params.Add("_pragma", "busy_timeout(1000)")
	params.Add("_pragma", "synchronous(NORMAL)")

	db, err := sql.Open("sqlite", "file:"+noFile+"?"+params.Encode())
	if err != nil {
		return nil, fmt.Errorf("%w: opening database: %w", ErrStorage, err)
	}
	// A single writer avoids SQLITE_BUSY between our own connections.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.setup(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// setup applies the schema to a new database and rejects databases written
// by an incompatible version.
func (s *SQLiteStore) setup() error {
	var version int
	if err := s.db.QueryRow("PRAGMA user_version;").Scan(&version); err != nil {
		return fmt.Errorf("%w: checking schema version: %w", ErrStorage, err)
	}
	switch version {
	case 0:
		if _, err := s.db.Exec(sqliteSchema); err != nil {
			return fmt.Errorf("%w: applying schema: %w", ErrStorage, err)
		}
		if _, err := s.db.Exec(fmt.Sprintf("PRAGMA user_version = %d", sqliteSchemaVersion)); err != nil {
			return fmt.Errorf("%w: writing schema version: %w", ErrStorage, err)
		}
		return nil
	case sqliteSchemaVersion:
		return nil
	default:
		return fmt.Errorf("%w: schema version mismatch: expected %d, have %d",
			ErrStorage, sqliteSchemaVersion, version)
	}
}

// Load returns the value stored under key, or nil if absent.
func (s *SQLiteStore) Load(key string) ([]byte, error) {
	if err := s.check(key); err != nil {
		return nil, err
	}
	var value []byte
	err := s.db.QueryRow("SELECT value FROM pinning_data WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStorage, err)
	}
	return value, nil
}

// Save inserts or replaces the value stored under key.
func (s *SQLiteStore) Save(key string, data []byte) error {
	if err := s.check(key); err != nil {
		return err
	}
	if data == nil {
		data = []byte{}
	}
	_, err := s.db.Exec(`INSERT INTO pinning_data (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, data, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("%w: %w", ErrStorage, err)
	}
	return nil
}

// Remove deletes the value stored under key.
func (s *SQLiteStore) Remove(key string) error {
	if err := s.check(key); err != nil {
		return err
	}
	if _, err := s.db.Exec("DELETE FROM pinning_data WHERE key = ?", key); err != nil {
		return fmt.Errorf("%w: %w", ErrStorage, err)
	}
	return nil
}

// Close closes the database. It is safe to call multiple times.
func (s *SQLiteStore) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) check(key string) error {
	if s.closed.Load() {
		return ErrClosed
	}
	if key == "" {
		return ErrInvalidKey
	}
	return nil
}
