// Copyright 2026 Jeremy Hahn
// SPDX-License-Identifier: MIT

// Package distributor is the server side of certificate pinning: it signs
// fingerprint entries with the distributor key and serves the resulting
// document over HTTP and over the Noise transport.
package distributor

import "errors"

var (
	// ErrInvalidKey is returned when the signing key is missing or not ECDSA P-256.
	ErrInvalidKey = errors.New("distributor: invalid signing key")

	// ErrInvalidCertificate is returned when a certificate has no common name.
	ErrInvalidCertificate = errors.New("distributor: invalid certificate")

	// ErrInvalidDocument is returned when a document cannot be parsed or fails verification.
	ErrInvalidDocument = errors.New("distributor: invalid document")

	// ErrInvalidChallenge is returned when a challenge header is not valid base64.
	ErrInvalidChallenge = errors.New("distributor: invalid challenge")

	// ErrInvalidConfig is returned when a required handler dependency is missing.
	ErrInvalidConfig = errors.New("distributor: invalid configuration")

	// ErrAlreadyStarted is returned by Start on a server that was already started.
	ErrAlreadyStarted = errors.New("distributor: http server already started")

	// ErrListen is returned when the listen address cannot be bound.
	ErrListen = errors.New("distributor: listen failed")
)
