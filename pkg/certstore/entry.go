// Copyright 2026 Jeremy Hahn
// SPDX-License-Identifier: MIT

package certstore

import (
	"bytes"
	"fmt"
	"slices"
	"strings"
	"time"
)

// FingerprintSize is the length of a SHA-256 certificate fingerprint.
const FingerprintSize = 32

// Entry pins one certificate fingerprint to a common name until Expires.
type Entry struct {
	// CommonName is the host name the fingerprint is pinned to.
	CommonName string

	// Fingerprint is the SHA-256 digest of the certificate's DER encoding.
	Fingerprint []byte

	// Expires is the first instant at which the entry is ignored.
	Expires time.Time

	// Signature is the distributor's ECDSA signature over SignedBytes.
	Signature []byte
}

// IsExpired reports whether the entry is no longer usable at now, i.e.
// now is at or after Expires. An entry is usable only while now < Expires.
func (e Entry) IsExpired(now time.Time) bool {
	return !now.Before(e.Expires)
}

// Validate checks the structural invariants of the entry.
func (e Entry) Validate() error {
	if e.CommonName == "" {
		return fmt.Errorf("%w: empty common name", ErrInvalidEntry)
	}
	if len(e.Fingerprint) != FingerprintSize {
		return fmt.Errorf("%w: fingerprint for %q is %d bytes, expected %d",
			ErrInvalidEntry, e.CommonName, len(e.Fingerprint), FingerprintSize)
	}
	return nil
}

// SignedBytes returns the canonical bytes covered by the entry signature.
func (e Entry) SignedBytes() []byte {
	return SignedBytes(e.CommonName, e.Fingerprint, e.Expires)
}

// clone returns a deep copy so callers cannot mutate a published snapshot.
func (e Entry) clone() Entry {
	return Entry{
		CommonName:  e.CommonName,
		Fingerprint: bytes.Clone(e.Fingerprint),
		Expires:     e.Expires,
		Signature:   bytes.Clone(e.Signature),
	}
}

// sameKey reports whether both entries pin the same fingerprint to the same
// name, regardless of expiry and signature.
func (e Entry) sameKey(other Entry) bool {
	return e.CommonName == other.CommonName && bytes.Equal(e.Fingerprint, other.Fingerprint)
}

// compareEntries orders by common name, then newest expiry first.
func compareEntries(a, b Entry) int {
	if c := strings.Compare(a.CommonName, b.CommonName); c != 0 {
		return c
	}
	if c := b.Expires.Compare(a.Expires); c != 0 {
		return c
	}
	return bytes.Compare(a.Fingerprint, b.Fingerprint)
}

// normalizeEntries returns a sorted copy of entries with duplicate
// (common name, fingerprint) pairs collapsed to the newest one.
func normalizeEntries(entries []Entry) []Entry {
	sorted := make([]Entry, 0, len(entries))
	for _, e := range entries {
		sorted = append(sorted, e.clone())
	}
	slices.SortFunc(sorted, compareEntries)

	out := sorted[:0]
	for _, e := range sorted {
		duplicate := slices.ContainsFunc(out, func(kept Entry) bool {
			return kept.sameKey(e)
		})
		if !duplicate {
			out = append(out, e)
		}
	}
	return out
}

func cloneEntries(entries []Entry) []Entry {
	out := make([]Entry, len(entries))
	for i, e := range entries {
		out[i] = e.clone()
	}
	return out
}
