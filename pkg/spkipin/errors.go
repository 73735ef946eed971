// Copyright 2026 Jeremy Hahn
// SPDX-License-Identifier: MIT

// Package spkipin pins the TLS channel to the fingerprint service by the
// SHA-256 hash of its SubjectPublicKeyInfo. Pins are written either as 64
// hex characters or in the "sha256/<base64>" form used by HPKP.
package spkipin

import "errors"

var (
	// ErrPinMismatch is returned when no certificate in the chain matches any configured pin.
	ErrPinMismatch = errors.New("spkipin: SPKI pin mismatch")

	// ErrNoPinConfigured is returned when no pin is provided.
	ErrNoPinConfigured = errors.New("spkipin: no SPKI pin configured")

	// ErrNoCertificates is returned when the peer presents no certificates.
	ErrNoCertificates = errors.New("spkipin: no certificates presented")

	// ErrInvalidPinFormat is returned when a pin is neither hex nor sha256/base64 of the right length.
	ErrInvalidPinFormat = errors.New("spkipin: invalid pin format")
)
