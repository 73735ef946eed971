// Copyright 2026 Jeremy Hahn
// SPDX-License-Identifier: MIT

package dane

import "time"

// Certificate usage values (RFC 6698 Section 2.1.1). The usage tells a
// verifier whether the association data names a trust anchor or the
// service certificate itself, and whether PKIX validation still applies.
const (
	// UsageCAConstraint (PKIX-TA) restricts which CA may issue the service
	// certificate. The chain must also pass PKIX validation.
	UsageCAConstraint uint8 = 0

	// UsageServiceCert (PKIX-EE) names the service certificate. The chain
	// must also pass PKIX validation.
	UsageServiceCert uint8 = 1

	// UsageDANETA (DANE-TA) names a trust anchor for the domain. The record
	// alone establishes trust, no public CA is consulted.
	UsageDANETA uint8 = 2

	// UsageDANEEE (DANE-EE) names the service certificate and establishes
	// trust on its own. Pins are published with this usage.
	UsageDANEEE uint8 = 3
)

// Selector values (RFC 6698 Section 2.1.2) choose the part of the
// certificate that is matched.
const (
	// SelectorFullCert matches the DER encoding of the whole certificate.
	// Pin fingerprints are computed over this form.
	SelectorFullCert uint8 = 0

	// SelectorSPKI matches the DER-encoded SubjectPublicKeyInfo, which
	// survives re-issuance with the same key.
	SelectorSPKI uint8 = 1
)

// Matching type values (RFC 6698 Section 2.1.3) choose how the selected
// bytes are presented in the record.
const (
	// MatchingExact carries the selected bytes unhashed.
	MatchingExact uint8 = 0

	// MatchingSHA256 carries the SHA-256 digest of the selected bytes.
	MatchingSHA256 uint8 = 1

	// MatchingSHA512 carries the SHA-512 digest of the selected bytes.
	MatchingSHA512 uint8 = 2
)

// Record is a parsed TLSA resource record (RFC 6698 Section 2.1).
type Record struct {
	// Usage is the certificate usage field, one of the Usage constants.
	Usage uint8

	// Selector is one of the Selector constants.
	Selector uint8

	// MatchingType is one of the Matching constants.
	MatchingType uint8

	// CertData is the certificate association data: raw certificate or
	// SPKI bytes for MatchingExact, otherwise a digest of them.
	CertData []byte

	// TTL is the record TTL as served. Zero for generated records.
	TTL time.Duration
}

// IsPin reports whether the record carries a pin fingerprint: an end-entity
// usage with the SHA-256 of the full certificate.
func (r *Record) IsPin() bool {
	if r == nil {
		return false
	}
	endEntity := r.Usage == UsageDANEEE || r.Usage == UsageServiceCert
	return endEntity && r.Selector == SelectorFullCert && r.MatchingType == MatchingSHA256 && len(r.CertData) == 32
}

// ResolverConfig configures the DNS resolver used for TLSA lookups.
type ResolverConfig struct {
	// Server is the resolver address, e.g. "8.8.8.8:53". When empty the
	// first nameserver of ResolvConf is used.
	Server string

	// ResolvConf defaults to /etc/resolv.conf.
	ResolvConf string

	// UseTLS enables DNS-over-TLS on port 853.
	UseTLS bool

	// TLSServerName is the SNI for DNS-over-TLS.
	TLSServerName string

	// RequireAD requires the Authenticated Data flag in responses, i.e. a
	// DNSSEC-validating resolver.
	RequireAD bool

	// Timeout defaults to 5 seconds.
	Timeout time.Duration
}

// ZoneRecord is a TLSA record formatted for a DNS zone file, as produced by
// the generators in this package.
type ZoneRecord struct {
	// Name is the owner name, e.g. "_443._tcp.api.example.com.".
	Name string

	// Usage, Selector and MatchingType repeat the record fields.
	Usage        uint8
	Selector     uint8
	MatchingType uint8

	// HexData is the association data in lower-case hex.
	HexData string

	// ZoneLine is the full zone file line, e.g.
	// "_443._tcp.api.example.com. IN TLSA 3 0 1 9f86d0...".
	ZoneLine string
}
