// Copyright 2026 Jeremy Hahn
// SPDX-License-Identifier: MIT

package dane

import (
	"bytes"
	"time"

	"github.com/jeremyhahn/go-certpin/pkg/certstore"
)

// Entries converts the pin-compatible records to unsigned pin entries for
// commonName, valid until expires. Other records are skipped.
func Entries(records []*Record, commonName string, expires time.Time) []certstore.Entry {
	entries := make([]certstore.Entry, 0, len(records))
	for _, r := range records {
		if !r.IsPin() {
			continue
		}
		entries = append(entries, certstore.Entry{
			CommonName:  commonName,
			Fingerprint: bytes.Clone(r.CertData),
			Expires:     expires,
		})
	}
	return entries
}

// RecordFromEntry returns the DANE-EE 3 0 1 record publishing e.
func RecordFromEntry(e certstore.Entry) (*Record, error) {
	if err := e.Validate(); err != nil {
		return nil, ErrInvalidRecord
	}
	return &Record{
		Usage:        UsageDANEEE,
		Selector:     SelectorFullCert,
		MatchingType: MatchingSHA256,
		CertData:     bytes.Clone(e.Fingerprint),
	}, nil
}
