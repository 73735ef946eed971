// Copyright 2026 Jeremy Hahn
// SPDX-License-Identifier: MIT

// Package certstore implements a client-side certificate pinning trust store.
// It keeps a signed, periodically refreshed database of expected certificate
// fingerprints per common name, fetches and verifies updates from a
// fingerprint distribution service, and decides whether a presented
// certificate is trusted for a host.
package certstore

import "errors"

var (
	// ErrInvalidConfig is returned when the store configuration is nil or incomplete.
	ErrInvalidConfig = errors.New("certstore: invalid configuration")

	// ErrInvalidPublicKey is returned when the configured public key cannot be imported.
	ErrInvalidPublicKey = errors.New("certstore: invalid public key")

	// ErrInvalidEntry is returned when a fingerprint entry has an empty
	// common name or a fingerprint of the wrong length.
	ErrInvalidEntry = errors.New("certstore: invalid fingerprint entry")

	// ErrInvalidFallbackData is returned when bundled fallback data cannot be parsed.
	ErrInvalidFallbackData = errors.New("certstore: invalid fallback data")

	// ErrPersistFailed is returned when the fingerprint database cannot be saved.
	ErrPersistFailed = errors.New("certstore: persisting database failed")

	// ErrUnknownObserver is returned when removing an observer that was never added.
	ErrUnknownObserver = errors.New("certstore: unknown observer")
)
