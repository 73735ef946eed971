// Copyright 2026 Jeremy Hahn
// SPDX-License-Identifier: MIT

package distributor

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/jeremyhahn/go-certpin/pkg/certstore"
	"github.com/jeremyhahn/go-certpin/pkg/pincrypto"
)

// Signer signs fingerprint entries and challenge responses with the
// distributor key. Clients hold only the matching public key, see
// PublicKey.
type Signer struct {
	key       *ecdsa.PrivateKey
	publicKey []byte
}

// NewSigner wraps an ECDSA P-256 private key.
func NewSigner(key *ecdsa.PrivateKey) (*Signer, error) {
	if key == nil || key.Curve != elliptic.P256() {
		return nil, ErrInvalidKey
	}
	pub, err := pincrypto.MarshalPublicKey(&key.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidKey, err)
	}
	return &Signer{key: key, publicKey: pub}, nil
}

// NewSignerFromPEM parses a PEM private key and wraps it.
func NewSignerFromPEM(data []byte) (*Signer, error) {
	key, err := pincrypto.DecodePrivateKeyPEM(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidKey, err)
	}
	return NewSigner(key)
}

// PublicKey returns the 65-byte uncompressed public point clients configure.
func (s *Signer) PublicKey() []byte {
	return append([]byte(nil), s.publicKey...)
}

// SignEntry returns a signed entry for the given pin.
func (s *Signer) SignEntry(commonName string, fingerprint []byte, expires time.Time) (certstore.Entry, error) {
	e := certstore.Entry{
		CommonName:  commonName,
		Fingerprint: append([]byte(nil), fingerprint...),
		Expires:     expires.Truncate(time.Second),
	}
	if err := e.Validate(); err != nil {
		return certstore.Entry{}, err
	}
	sig, err := pincrypto.Sign(s.key, e.SignedBytes())
	if err != nil {
		return certstore.Entry{}, err
	}
	e.Signature = sig
	return e, nil
}

// SignCertificate pins cert for its subject common name until it expires.
func (s *Signer) SignCertificate(cert *x509.Certificate) (certstore.Entry, error) {
	e, err := EntryFromCertificate(cert)
	if err != nil {
		return certstore.Entry{}, err
	}
	return s.SignEntry(e.CommonName, e.Fingerprint, e.Expires)
}

// SignChallenge signs challenge&body and returns the base64 signature for
// the response header. The challenge must be non-empty base64 as sent by
// the client; anything else yields ErrInvalidChallenge.
func (s *Signer) SignChallenge(challenge string, body []byte) (string, error) {
	if _, err := base64.StdEncoding.DecodeString(challenge); err != nil || challenge == "" {
		return "", ErrInvalidChallenge
	}
	sig, err := pincrypto.Sign(s.key, certstore.ChallengeSignedBytes(challenge, body))
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(sig), nil
}

// EntryFromCertificate builds the unsigned entry for cert: its subject common
// name, the SHA-256 of its DER encoding and its NotAfter time.
func EntryFromCertificate(cert *x509.Certificate) (certstore.Entry, error) {
	if cert == nil || cert.Subject.CommonName == "" {
		return certstore.Entry{}, fmt.Errorf("%w: missing subject common name", ErrInvalidCertificate)
	}
	sum := sha256.Sum256(cert.Raw)
	return certstore.Entry{
		CommonName:  cert.Subject.CommonName,
		Fingerprint: sum[:],
		Expires:     cert.NotAfter,
	}, nil
}
