// Copyright 2026 Jeremy Hahn
// SPDX-License-Identifier: MIT

package certstore

import (
	"bytes"
	"fmt"
	"log/slog"
	"net/url"
	"slices"
	"time"

	"github.com/jeremyhahn/go-certpin/pkg/pincrypto"
	"github.com/jeremyhahn/go-certpin/pkg/securestore"
)

const (
	// DefaultIdentifier is the persistence namespace used when none is configured.
	DefaultIdentifier = "default"

	// DefaultPeriodicUpdateInterval is how often a silent update is scheduled
	// when no pinned certificate is close to expiry.
	DefaultPeriodicUpdateInterval = 7 * 24 * time.Hour

	// DefaultExpirationUpdateThreshold is how far ahead of the nearest expiry
	// the store starts polling more often.
	DefaultExpirationUpdateThreshold = 14 * 24 * time.Hour

	// thresholdMultiplier shortens the update interval once the nearest
	// expiry falls inside the threshold.
	thresholdMultiplier = 0.125
)

// Config configures a Store.
type Config struct {
	// ServiceURL is the absolute URL of the fingerprint service. Required.
	ServiceURL string

	// PublicKey is the distributor's ECDSA P-256 public key, either a
	// 65-byte uncompressed point or PKIX DER. Required.
	PublicKey []byte

	// ExpectedCommonNames optionally restricts which hosts the store will
	// ever report as trusted.
	ExpectedCommonNames []string

	// FallbackEntries are bundled pins that are always available and never
	// persisted. Their signatures are not checked.
	FallbackEntries []Entry

	// Identifier namespaces the persisted database. Defaults to DefaultIdentifier.
	Identifier string

	// PeriodicUpdateInterval defaults to DefaultPeriodicUpdateInterval.
	PeriodicUpdateInterval time.Duration

	// ExpirationUpdateThreshold defaults to DefaultExpirationUpdateThreshold.
	ExpirationUpdateThreshold time.Duration

	// UseChallenge enables challenge/response signing of whole responses.
	UseChallenge bool

	// Remote fetches documents from the fingerprint service. Required.
	Remote RemoteDataProvider

	// Crypto defaults to the ECDSA P-256 provider from pincrypto.
	Crypto CryptoProvider

	// Storage defaults to an in-memory store.
	Storage DataStore

	// Dispatcher runs observer callbacks. Defaults to a serial background queue.
	Dispatcher Dispatcher

	// Metrics is optional.
	Metrics *Metrics

	// Logger for structured logging. Defaults to slog.Default().
	Logger *slog.Logger

	// Now overrides the clock. Defaults to time.Now.
	Now func() time.Time
}

// resolve validates cfg and returns a private copy with defaults applied.
func (cfg *Config) resolve() (*Config, error) {
	if cfg == nil {
		return nil, ErrInvalidConfig
	}
	if cfg.ServiceURL == "" {
		return nil, fmt.Errorf("%w: service URL is required", ErrInvalidConfig)
	}
	u, err := url.Parse(cfg.ServiceURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("%w: service URL %q must be absolute", ErrInvalidConfig, cfg.ServiceURL)
	}
	if len(cfg.PublicKey) == 0 {
		return nil, fmt.Errorf("%w: public key is required", ErrInvalidConfig)
	}
	if cfg.Remote == nil {
		return nil, fmt.Errorf("%w: remote data provider is required", ErrInvalidConfig)
	}
	if cfg.PeriodicUpdateInterval < 0 || cfg.ExpirationUpdateThreshold < 0 {
		return nil, fmt.Errorf("%w: update intervals must not be negative", ErrInvalidConfig)
	}
	for _, e := range cfg.FallbackEntries {
		if err := e.Validate(); err != nil {
			return nil, fmt.Errorf("%w: fallback: %w", ErrInvalidConfig, err)
		}
	}

	out := &Config{
		ServiceURL:                cfg.ServiceURL,
		PublicKey:                 bytes.Clone(cfg.PublicKey),
		ExpectedCommonNames:       slices.Clone(cfg.ExpectedCommonNames),
		FallbackEntries:           normalizeEntries(cfg.FallbackEntries),
		Identifier:                cfg.Identifier,
		PeriodicUpdateInterval:    cfg.PeriodicUpdateInterval,
		ExpirationUpdateThreshold: cfg.ExpirationUpdateThreshold,
		UseChallenge:              cfg.UseChallenge,
		Remote:                    cfg.Remote,
		Crypto:                    cfg.Crypto,
		Storage:                   cfg.Storage,
		Dispatcher:                cfg.Dispatcher,
		Metrics:                   cfg.Metrics,
		Logger:                    cfg.Logger,
		Now:                       cfg.Now,
	}

	if out.Identifier == "" {
		out.Identifier = DefaultIdentifier
	}
	if out.PeriodicUpdateInterval == 0 {
		out.PeriodicUpdateInterval = DefaultPeriodicUpdateInterval
	}
	if out.ExpirationUpdateThreshold == 0 {
		out.ExpirationUpdateThreshold = DefaultExpirationUpdateThreshold
	}
	if out.Crypto == nil {
		out.Crypto = pincrypto.New()
	}
	if out.Storage == nil {
		out.Storage = securestore.NewMemoryStore()
	}
	if out.Dispatcher == nil {
		out.Dispatcher = NewSerialDispatcher()
	}
	if out.Logger == nil {
		out.Logger = slog.Default()
	}
	if out.Now == nil {
		out.Now = time.Now
	}
	return out, nil
}

// allowsCommonName reports whether the allow-list admits commonName. An
// empty allow-list admits every name.
func (cfg *Config) allowsCommonName(commonName string) bool {
	return len(cfg.ExpectedCommonNames) == 0 || slices.Contains(cfg.ExpectedCommonNames, commonName)
}
