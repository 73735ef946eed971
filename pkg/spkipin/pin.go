// Copyright 2026 Jeremy Hahn
// SPDX-License-Identifier: MIT

package spkipin

import (
	"bytes"
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
)

const base64Prefix = "sha256/"

// ComputeSPKIPin returns the hex encoded SHA-256 of the certificate's SPKI.
func ComputeSPKIPin(cert *x509.Certificate) string {
	hash := sha256.Sum256(cert.RawSubjectPublicKeyInfo)
	return hex.EncodeToString(hash[:])
}

// ComputeBase64Pin returns the pin of cert in "sha256/<base64>" form.
func ComputeBase64Pin(cert *x509.Certificate) string {
	hash := sha256.Sum256(cert.RawSubjectPublicKeyInfo)
	return base64Prefix + base64.StdEncoding.EncodeToString(hash[:])
}

// ParsePin decodes a hex or sha256/base64 pin into its 32 raw bytes.
func ParsePin(pin string) ([]byte, error) {
	pin = strings.TrimSpace(pin)
	if pin == "" {
		return nil, ErrNoPinConfigured
	}

	var (
		raw []byte
		err error
	)
	if encoded, ok := strings.CutPrefix(pin, base64Prefix); ok {
		raw, err = base64.StdEncoding.DecodeString(encoded)
	} else {
		raw, err = hex.DecodeString(strings.ToLower(pin))
	}
	if err != nil || len(raw) != sha256.Size {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPinFormat, pin)
	}
	return raw, nil
}

// ParsePins decodes every pin, failing on the first invalid one.
func ParsePins(pins []string) ([][]byte, error) {
	if len(pins) == 0 {
		return nil, ErrNoPinConfigured
	}
	out := make([][]byte, 0, len(pins))
	for _, p := range pins {
		raw, err := ParsePin(p)
		if err != nil {
			return nil, err
		}
		out = append(out, raw)
	}
	return out, nil
}

// VerifySPKIPins returns nil when any certificate in certs matches any pin.
func VerifySPKIPins(certs []*x509.Certificate, pins [][]byte) error {
	if len(pins) == 0 {
		return ErrNoPinConfigured
	}
	if len(certs) == 0 {
		return ErrNoCertificates
	}
	for _, cert := range certs {
		hash := sha256.Sum256(cert.RawSubjectPublicKeyInfo)
		for _, pin := range pins {
			if bytes.Equal(hash[:], pin) {
				return nil
			}
		}
	}
	return ErrPinMismatch
}

// NewPinnedTLSConfig returns a TLS configuration that accepts the server
// when its chain contains a key matching one of pins. The system roots are
// not consulted; the pins are distributed out of band. Several pins allow
// key rotation on the service.
func NewPinnedTLSConfig(pins ...string) (*tls.Config, error) {
	parsed, err := ParsePins(pins)
	if err != nil {
		return nil, err
	}

	return &tls.Config{
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: true, //nolint:gosec // Chain verification is replaced by the SPKI pin check.
		VerifyPeerCertificate: func(rawCerts [][]byte, _ [][]*x509.Certificate) error {
			if len(rawCerts) == 0 {
				return ErrNoCertificates
			}
			certs := make([]*x509.Certificate, 0, len(rawCerts))
			for _, rawCert := range rawCerts {
				cert, parseErr := x509.ParseCertificate(rawCert)
				if parseErr != nil {
					continue
				}
				certs = append(certs, cert)
			}
			return VerifySPKIPins(certs, parsed)
		},
	}, nil
}
