// Copyright 2026 Jeremy Hahn
// SPDX-License-Identifier: MIT

package certstore

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// persistedVersion is the version of the on-disk database document.
const persistedVersion = 1

// persistedData is the document saved through the DataStore.
type persistedData struct {
	Version      int         `json:"version"`
	Certificates []WireEntry `json:"certificates"`
	NextUpdate   int64       `json:"next_update"`
}

// snapshot is an immutable view of the persisted entries.
type snapshot struct {
	entries    []Entry
	nextUpdate time.Time
}

// Database holds the persisted fingerprint entries and the bundled
// fallback entries. Readers never block; each read sees one complete
// snapshot.
type Database struct {
	mu       sync.Mutex
	current  atomic.Pointer[snapshot]
	fallback []Entry
	storage  DataStore
	key      string
	logger   *slog.Logger
}

// newDatabase loads the persisted set for key. Unreadable data is logged
// and treated as an empty database.
func newDatabase(storage DataStore, key string, fallback []Entry, logger *slog.Logger) *Database {
	db := &Database{
		fallback: fallback,
		storage:  storage,
		key:      key,
		logger:   logger,
	}
	db.current.Store(db.load())
	return db
}

func (db *Database) load() *snapshot {
	empty := &snapshot{}

	data, err := db.storage.Load(db.key)
	if err != nil {
		db.logger.Error("failed to load fingerprint database", "key", db.key, "error", err)
		return empty
	}
	if len(data) == 0 {
		return empty
	}

	var doc persistedData
	if err := json.Unmarshal(data, &doc); err != nil {
		db.logger.Error("failed to decode fingerprint database", "key", db.key, "error", err)
		return empty
	}
	if doc.Version != persistedVersion {
		db.logger.Error("unsupported fingerprint database version", "key", db.key, "version", doc.Version)
		return empty
	}

	entries := make([]Entry, 0, len(doc.Certificates))
	for _, w := range doc.Certificates {
		e := FromWire(w)
		if err := e.Validate(); err != nil {
			db.logger.Warn("dropping invalid persisted entry", "error", err)
			continue
		}
		entries = append(entries, e)
	}

	db.logger.Debug("loaded fingerprint database", "key", db.key, "entries", len(entries))
	return &snapshot{
		entries:    normalizeEntries(entries),
		nextUpdate: time.Unix(doc.NextUpdate, 0),
	}
}

// Lookup returns every non-expired persisted or fallback entry pinned to
// commonName.
func (db *Database) Lookup(commonName string, now time.Time) []Entry {
	snap := db.current.Load()
	var out []Entry
	for _, set := range [][]Entry{snap.entries, db.fallback} {
		for _, e := range set {
			if e.CommonName == commonName && !e.IsExpired(now) {
				out = append(out, e)
			}
		}
	}
	return out
}

// IsEmpty reports whether neither persisted nor fallback entries are usable at now.
func (db *Database) IsEmpty(now time.Time) bool {
	return db.validPersisted(now) == 0 && countValid(db.fallback, now) == 0
}

// validPersisted counts the persisted entries still usable at now.
func (db *Database) validPersisted(now time.Time) int {
	return countValid(db.current.Load().entries, now)
}

// Entries returns a copy of the persisted entries.
func (db *Database) Entries() []Entry {
	return cloneEntries(db.current.Load().entries)
}

// Fallback returns a copy of the fallback entries.
func (db *Database) Fallback() []Entry {
	return cloneEntries(db.fallback)
}

// NextUpdate returns the scheduled time of the next silent update. It is
// the zero time when nothing was ever persisted.
func (db *Database) NextUpdate() time.Time {
	return db.current.Load().nextUpdate
}

// Replace persists entries as the new persisted set and then makes them
// visible. If saving fails the previous set stays in place.
func (db *Database) Replace(entries []Entry, nextUpdate time.Time) error {
	next := &snapshot{
		entries:    normalizeEntries(entries),
		nextUpdate: nextUpdate,
	}

	doc := persistedData{
		Version:      persistedVersion,
		Certificates: make([]WireEntry, 0, len(next.entries)),
		NextUpdate:   nextUpdate.Unix(),
	}
	for _, e := range next.entries {
		doc.Certificates = append(doc.Certificates, ToWire(e))
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPersistFailed, err)
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	if err := db.storage.Save(db.key, data); err != nil {
		return fmt.Errorf("%w: %w", ErrPersistFailed, err)
	}
	db.current.Store(next)
	return nil
}

// Reset drops the persisted set from memory and storage. Fallback entries remain.
func (db *Database) Reset() error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if err := db.storage.Remove(db.key); err != nil {
		return fmt.Errorf("%w: %w", ErrPersistFailed, err)
	}
	db.current.Store(&snapshot{})
	db.logger.Warn("fingerprint database reset", "key", db.key)
	return nil
}

func countValid(entries []Entry, now time.Time) int {
	n := 0
	for _, e := range entries {
		if !e.IsExpired(now) {
			n++
		}
	}
	return n
}
