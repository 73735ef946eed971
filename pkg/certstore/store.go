// Copyright 2026 Jeremy Hahn
// SPDX-License-Identifier: MIT

package certstore

import (
	"crypto"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Store is a certificate pinning trust store. It is safe for concurrent use.
type Store struct {
	cfg       *Config
	db        *Database
	publicKey crypto.PublicKey
	scheduler scheduler
	logger    *slog.Logger

	// mu guards the in-flight update.
	mu      sync.Mutex
	current *flight

	observersMu sync.RWMutex
	observers   []ValidationObserver
}

// NewStore validates cfg, imports the public key and loads the persisted
// database. The configuration is copied; later changes to cfg have no effect.
func NewStore(cfg *Config) (*Store, error) {
	resolved, err := cfg.resolve()
	if err != nil {
		return nil, err
	}

	publicKey, err := resolved.Crypto.ImportPublicKey(resolved.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %w: %w", ErrInvalidConfig, ErrInvalidPublicKey, err)
	}

	logger := resolved.Logger.With("component", "certstore", "identifier", resolved.Identifier)
	s := &Store{
		cfg:       resolved,
		publicKey: publicKey,
		scheduler: scheduler{
			periodic:   resolved.PeriodicUpdateInterval,
			threshold:  resolved.ExpirationUpdateThreshold,
			multiplier: thresholdMultiplier,
		},
		logger: logger,
	}
	s.db = newDatabase(resolved.Storage, resolved.Identifier, resolved.FallbackEntries, logger)
	resolved.Metrics.setEntries(len(s.db.current.Load().entries))
	return s, nil
}

// Database exposes the fingerprint database for inspection.
func (s *Store) Database() *Database {
	return s.db
}

// ExpectedCommonNames returns a copy of the configured allow-list.
func (s *Store) ExpectedCommonNames() []string {
	return append([]string(nil), s.cfg.ExpectedCommonNames...)
}

// Reset removes all persisted entries. Fallback entries remain.
func (s *Store) Reset() error {
	if err := s.db.Reset(); err != nil {
		return err
	}
	s.cfg.Metrics.setEntries(0)
	return nil
}

func (s *Store) now() time.Time {
	return s.cfg.Now()
}
