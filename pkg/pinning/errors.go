// Copyright 2026 Jeremy Hahn
// SPDX-License-Identifier: MIT

// Package pinning plugs a certstore validator into crypto/tls and net/http
// clients, turning validation verdicts into handshake errors.
package pinning

import "errors"

var (
	// ErrUntrusted is returned when the presented certificate does not match
	// any pin for the host, or the host is outside the allow-list.
	ErrUntrusted = errors.New("pinning: certificate is not trusted")

	// ErrEmpty is returned when no pins exist for the host and empty
	// verdicts are not allowed.
	ErrEmpty = errors.New("pinning: no pins available for host")

	// ErrNoCertificates is returned when the peer presented no usable certificate.
	ErrNoCertificates = errors.New("pinning: no peer certificates")

	// ErrUpdateFailed is returned by WaitReady when a blocking update fails.
	ErrUpdateFailed = errors.New("pinning: fingerprint update failed")
)
