// Copyright 2026 Jeremy Hahn
// SPDX-License-Identifier: MIT

// Package pincrypto provides the ECDSA P-256 and SHA-256 primitives used to
// sign and verify certificate pinning data.
package pincrypto

import "errors"

var (
	// ErrInvalidPublicKey is returned when a public key cannot be parsed or
	// is not an ECDSA P-256 key.
	ErrInvalidPublicKey = errors.New("pincrypto: invalid public key")

	// ErrInvalidPrivateKey is returned when a private key cannot be parsed or
	// is not an ECDSA P-256 key.
	ErrInvalidPrivateKey = errors.New("pincrypto: invalid private key")

	// ErrSigningFailed is returned when producing a signature fails.
	ErrSigningFailed = errors.New("pincrypto: signing failed")

	// ErrRandomFailed is returned when the system random source fails.
	ErrRandomFailed = errors.New("pincrypto: random generation failed")
)
