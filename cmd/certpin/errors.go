// Copyright 2026 Jeremy Hahn
// SPDX-License-Identifier: MIT

package main

import "errors"

// Exit codes for the CLI.
const (
	// ExitSuccess indicates the command completed successfully.
	ExitSuccess = 0

	// ExitFetchFailed indicates an update, lookup or server operation failed.
	ExitFetchFailed = 1

	// ExitConfigError indicates a configuration or input validation error.
	ExitConfigError = 2

	// ExitUntrusted indicates a certificate was not trusted by the pin store.
	ExitUntrusted = 3
)

// Sentinel errors for CLI operations.
var (
	// ErrInvalidInput is returned when required input parameters are missing or invalid.
	ErrInvalidInput = errors.New("invalid input")

	// ErrFetchFailed is returned when a fingerprint update or DNS lookup fails.
	ErrFetchFailed = errors.New("fetch failed")

	// ErrVerificationFailed is returned when a certificate is not trusted.
	ErrVerificationFailed = errors.New("verification failed")

	// ErrKeyOperation is returned when a key generation or decoding operation fails.
	ErrKeyOperation = errors.New("key operation failed")

	// ErrFileOperation is returned when a file read or write operation fails.
	ErrFileOperation = errors.New("file operation failed")

	// ErrServerStart is returned when the distributor fails to start.
	ErrServerStart = errors.New("server start failed")
)

// exitCode maps a command error to the process exit status.
func exitCode(err error) int {
	switch {
	case err == nil:
		return ExitSuccess
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrKeyOperation):
		return ExitConfigError
	case errors.Is(err, ErrVerificationFailed):
		return ExitUntrusted
	default:
		return ExitFetchFailed
	}
}
