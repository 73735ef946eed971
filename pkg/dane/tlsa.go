// Copyright 2026 Jeremy Hahn
// SPDX-License-Identifier: MIT

package dane

import (
	"crypto/sha256"
	"crypto/sha512"
	"crypto/subtle"
	"crypto/x509"
)

// selectors extracts the bytes named by each supported selector.
var selectors = map[uint8]func(*x509.Certificate) []byte{
	SelectorFullCert: func(c *x509.Certificate) []byte { return c.Raw },
	SelectorSPKI:     func(c *x509.Certificate) []byte { return c.RawSubjectPublicKeyInfo },
}

// matchers turns selected bytes into association data for each supported
// matching type.
var matchers = map[uint8]func([]byte) []byte{
	MatchingExact:  func(d []byte) []byte { return d },
	MatchingSHA256: func(d []byte) []byte { h := sha256.Sum256(d); return h[:] },
	MatchingSHA512: func(d []byte) []byte { h := sha512.Sum512(d); return h[:] },
}

// ComputeAssociationData returns the certificate association data of cert
// for the given selector and matching type, i.e. the bytes a TLSA record
// with those parameters must carry to match cert. Unknown selectors and
// matching types yield ErrUnsupportedSelector and ErrUnsupportedMatching.
func ComputeAssociationData(cert *x509.Certificate, selector, matchingType uint8) ([]byte, error) {
	if cert == nil {
		return nil, ErrInvalidCertificate
	}
	sel, ok := selectors[selector]
	if !ok {
		return nil, ErrUnsupportedSelector
	}
	match, ok := matchers[matchingType]
	if !ok {
		return nil, ErrUnsupportedMatching
	}
	return match(sel(cert)), nil
}

// Verify checks cert against one record. The association data is computed
// with the record's selector and matching type and compared in constant
// time. A mismatch yields ErrTLSAVerificationFailed.
//
// The certificate usage is not interpreted here: callers that need PKIX
// validation for usages 0 and 1 perform it separately.
func Verify(cert *x509.Certificate, record *Record) error {
	if cert == nil {
		return ErrInvalidCertificate
	}
	if record == nil {
		return ErrInvalidRecord
	}
	computed, err := ComputeAssociationData(cert, record.Selector, record.MatchingType)
	if err != nil {
		return err
	}
	if subtle.ConstantTimeCompare(computed, record.CertData) != 1 {
		return ErrTLSAVerificationFailed
	}
	return nil
}

// VerifyAny succeeds when any certificate matches any record, so a chain
// can be checked against a record set that mixes trust-anchor and
// end-entity entries. Nil certificates and records are skipped. It returns
// ErrNoTLSARecords for an empty record set and ErrTLSAVerificationFailed
// when nothing matches.
func VerifyAny(certs []*x509.Certificate, records []*Record) error {
	if len(certs) == 0 {
		return ErrInvalidCertificate
	}
	if len(records) == 0 {
		return ErrNoTLSARecords
	}
	for _, cert := range certs {
		if cert == nil {
			continue
		}
		for _, record := range records {
			if record != nil && Verify(cert, record) == nil {
				return nil
			}
		}
	}
	return ErrTLSAVerificationFailed
}
