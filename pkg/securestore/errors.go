// Copyright 2026 Jeremy Hahn
// SPDX-License-Identifier: MIT

// Package securestore provides byte stores for persisting certificate
// pinning data: in memory, as files in a private directory, or in SQLite.
package securestore

import "errors"

var (
	// ErrInvalidKey is returned when a key is empty or contains path separators.
	ErrInvalidKey = errors.New("securestore: invalid key")

	// ErrStorage is returned when the underlying storage fails.
	ErrStorage = errors.New("securestore: storage failure")

	// ErrClosed is returned when a closed store is used.
	ErrClosed = errors.New("securestore: store closed")
)
