// Copyright 2026 Jeremy Hahn
// SPDX-License-Identifier: MIT

package main

import (
	"context"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/jeremyhahn/go-certpin/pkg/certstore"
	"github.com/jeremyhahn/go-certpin/pkg/dane"
	"github.com/jeremyhahn/go-certpin/pkg/remote"
	"github.com/jeremyhahn/go-certpin/pkg/securestore"
)

const (
	// defaultTimeout bounds network operations of the client commands.
	defaultTimeout = 15 * time.Second

	// defaultTLSPort is assumed when a host is given without a port.
	defaultTLSPort = 443
)

// clientSettings is the resolved client configuration.
type clientSettings struct {
	ServiceURL   string
	MirrorURLs   []string
	PublicKey    []byte
	StoreDir     string
	SQLitePath   string
	Identifier   string
	Challenge    bool
	ServicePins  []string
	Insecure     bool
	ExpectedCNs  []string
	FallbackFile string
	DANEFallback string
	DNSServer    string
	Timeout      time.Duration
}

// loadClientSettings reads the client settings from the global configuration.
func loadClientSettings() (*clientSettings, error) {
	s := &clientSettings{
		ServiceURL:   config.GetString(keyServiceURL),
		MirrorURLs:   config.GetStringSlice(keyMirrorURL),
		StoreDir:     config.GetString(keyStoreDir),
		SQLitePath:   config.GetString(keySQLite),
		Identifier:   config.GetString(keyIdentifier),
		Challenge:    config.GetBool(keyChallenge),
		ServicePins:  config.GetStringSlice(keyServicePin),
		Insecure:     config.GetBool(keyInsecure),
		ExpectedCNs:  config.GetStringSlice(keyExpectedCN),
		FallbackFile: config.GetString(keyFallbackFile),
		DANEFallback: config.GetString(keyDANEFallback),
		DNSServer:    config.GetString(keyDNSServer),
		Timeout:      config.GetDuration(keyTimeout),
	}
	if s.ServiceURL == "" {
		return nil, fmt.Errorf("%w: --%s is required", ErrInvalidInput, keyServiceURL)
	}
	if s.StoreDir != "" && s.SQLitePath != "" {
		return nil, fmt.Errorf("%w: --%s and --%s are mutually exclusive", ErrInvalidInput, keyStoreDir, keySQLite)
	}
	if s.Timeout <= 0 {
		s.Timeout = defaultTimeout
	}

	key, err := loadPublicKey(config.GetString(keyPublicKey), config.GetString(keyPublicKeyFile))
	if err != nil {
		return nil, err
	}
	s.PublicKey = key
	return s, nil
}

// loadPublicKey decodes the distributor key from base64 or a PEM file.
func loadPublicKey(encoded, file string) ([]byte, error) {
	switch {
	case encoded != "" && file != "":
		return nil, fmt.Errorf("%w: --%s and --%s are mutually exclusive", ErrInvalidInput, keyPublicKey, keyPublicKeyFile)
	case encoded != "":
		key, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return nil, fmt.Errorf("%w: --%s: %w", ErrKeyOperation, keyPublicKey, err)
		}
		return key, nil
	case file != "":
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("%w: reading %s: %w", ErrFileOperation, file, err)
		}
		block, _ := pem.Decode(data)
		if block == nil || block.Type != "PUBLIC KEY" {
			return nil, fmt.Errorf("%w: no PUBLIC KEY block in %s", ErrKeyOperation, file)
		}
		return block.Bytes, nil
	default:
		return nil, fmt.Errorf("%w: --%s or --%s is required", ErrInvalidInput, keyPublicKey, keyPublicKeyFile)
	}
}

// openStorage returns the persistence backend selected by s and a closer.
func openStorage(s *clientSettings) (certstore.DataStore, func() error, error) {
	noop := func() error { return nil }
	switch {
	case s.SQLitePath != "":
		store, err := securestore.NewSQLiteStore(s.SQLitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %w", ErrFileOperation, err)
		}
		return store, store.Close, nil
	case s.StoreDir != "":
		store, err := securestore.NewFileStore(s.StoreDir)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %w", ErrFileOperation, err)
		}
		return store, noop, nil
	default:
		slog.Debug("no store configured, fingerprints are kept in memory")
		return securestore.NewMemoryStore(), noop, nil
	}
}

// loadFallback collects fallback entries from the bundled file and DANE.
// A failed DANE lookup is logged and skipped.
func loadFallback(ctx context.Context, s *clientSettings) ([]certstore.Entry, error) {
	var entries []certstore.Entry
	if s.FallbackFile != "" {
		data, err := os.ReadFile(s.FallbackFile)
		if err != nil {
			return nil, fmt.Errorf("%w: reading %s: %w", ErrFileOperation, s.FallbackFile, err)
		}
		parsed, err := certstore.ParseFallbackData(data)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
		}
		entries = append(entries, parsed...)
	}

	if s.DANEFallback != "" {
		host, port, err := splitHostPort(s.DANEFallback)
		if err != nil {
			return nil, err
		}
		resolver, err := dane.NewResolver(&dane.ResolverConfig{Server: s.DNSServer, Timeout: s.Timeout})
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
		}
		pins, err := resolver.LookupPins(ctx, host, port, dane.DefaultPinValidity)
		if err != nil {
			slog.Warn("DANE fallback unavailable", "host", host, "port", port, "error", err)
		} else {
			slog.Debug("DANE fallback loaded", "host", host, "pins", len(pins))
			entries = append(entries, pins...)
		}
	}
	return entries, nil
}

// newProvider returns the provider for the service URL, or a failover
// provider when mirrors are configured.
func newProvider(s *clientSettings) (certstore.RemoteDataProvider, error) {
	opts := &remote.Options{
		Timeout:            s.Timeout,
		SPKIPins:           s.ServicePins,
		InsecureSkipVerify: s.Insecure,
		UserAgent:          userAgent(),
		Logger:             slog.Default(),
	}
	if len(s.MirrorURLs) == 0 {
		return remote.NewProvider(s.ServiceURL, opts)
	}
	urls := append([]string{s.ServiceURL}, s.MirrorURLs...)
	failover, err := remote.NewFailoverFromURLs(urls, opts)
	if err != nil {
		return nil, err
	}
	return failover, nil
}

// newStore builds a certstore.Store from s. The returned function releases
// the storage backend and remote provider.
func newStore(ctx context.Context, s *clientSettings) (*certstore.Store, func() error, error) {
	fallback, err := loadFallback(ctx, s)
	if err != nil {
		return nil, nil, err
	}

	provider, err := newProvider(s)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}

	storage, closeStorage, err := openStorage(s)
	if err != nil {
		return nil, nil, err
	}

	store, err := certstore.NewStore(&certstore.Config{
		ServiceURL:          s.ServiceURL,
		PublicKey:           s.PublicKey,
		ExpectedCommonNames: s.ExpectedCNs,
		FallbackEntries:     fallback,
		Identifier:          s.Identifier,
		UseChallenge:        s.Challenge,
		Remote:              provider,
		Storage:             storage,
		Logger:              slog.Default(),
	})
	if err != nil {
		_ = closeStorage()
		return nil, nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}

	cleanup := func() error {
		var errs []error
		if c, ok := provider.(io.Closer); ok {
			errs = append(errs, c.Close())
		}
		errs = append(errs, closeStorage())
		return errors.Join(errs...)
	}
	return store, cleanup, nil
}

// openClientStore loads the settings and opens the store in one step.
func openClientStore(ctx context.Context) (*certstore.Store, func() error, error) {
	s, err := loadClientSettings()
	if err != nil {
		return nil, nil, err
	}
	return newStore(ctx, s)
}

// splitHostPort parses "host" or "host:port", defaulting to port 443.
func splitHostPort(addr string) (string, uint16, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		if addr == "" {
			return "", 0, fmt.Errorf("%w: empty host", ErrInvalidInput)
		}
		return addr, defaultTLSPort, nil
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil || port == 0 {
		return "", 0, fmt.Errorf("%w: invalid port %q", ErrInvalidInput, portStr)
	}
	return host, uint16(port), nil
}
