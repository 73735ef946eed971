// Copyright 2026 Jeremy Hahn
// SPDX-License-Identifier: MIT

// Package dane publishes and discovers certificate pins through DNS TLSA
// records (RFC 6698). A DANE-EE record with the full-certificate selector and
// SHA-256 matching ("3 0 1") carries exactly the fingerprint a pin entry
// holds, so such records convert to fallback entries and back.
package dane

import "errors"

// DNS lookup errors.
var (
	// ErrNoTLSARecords indicates no TLSA records were found for the queried name.
	ErrNoTLSARecords = errors.New("dane: no TLSA records found")

	// ErrNoPinRecords indicates TLSA records exist but none carry a pin fingerprint.
	ErrNoPinRecords = errors.New("dane: no pin-compatible TLSA records")

	// ErrDNSLookupFailed indicates the DNS query for TLSA records failed.
	ErrDNSLookupFailed = errors.New("dane: DNS lookup failed")

	// ErrDNSSECRequired indicates the AD flag was required but not set.
	ErrDNSSECRequired = errors.New("dane: DNSSEC validation required but AD flag not set")
)

// Record matching errors.
var (
	ErrTLSAVerificationFailed = errors.New("dane: TLSA verification failed")
	ErrUnsupportedSelector    = errors.New("dane: unsupported TLSA selector")
	ErrUnsupportedMatching    = errors.New("dane: unsupported TLSA matching type")
)

// Input validation errors.
var (
	ErrInvalidCertificate = errors.New("dane: invalid certificate")
	ErrInvalidHostname    = errors.New("dane: invalid hostname")
	ErrInvalidPort        = errors.New("dane: invalid port")
	ErrInvalidRecord      = errors.New("dane: invalid TLSA record")
	ErrResolverConfig     = errors.New("dane: invalid resolver configuration")
)
