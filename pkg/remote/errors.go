// Copyright 2026 Jeremy Hahn
// SPDX-License-Identifier: MIT

// Package remote implements certstore.RemoteDataProvider over HTTPS and
// over the Noise transport.
package remote

import "errors"

var (
	// ErrFetchFailed is returned when the service cannot be reached or answers with a non-2xx status.
	ErrFetchFailed = errors.New("remote: fingerprint fetch failed")

	// ErrResponseTooLarge is returned when the body exceeds MaxResponseSize.
	ErrResponseTooLarge = errors.New("remote: response too large")

	// ErrUnsupportedScheme is returned by NewProvider for URL schemes it cannot serve.
	ErrUnsupportedScheme = errors.New("remote: unsupported URL scheme")

	// ErrInvalidConfig is returned for missing or malformed provider settings.
	ErrInvalidConfig = errors.New("remote: invalid configuration")
)
