// Copyright 2026 Jeremy Hahn
// SPDX-License-Identifier: MIT

package pincrypto

import (
	"crypto"
	"crypto/ecdh"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"fmt"
	"io"
	"math/big"
)

// uncompressedPointSize is the length of an uncompressed P-256 point (0x04 || X || Y).
const uncompressedPointSize = 65

// Provider implements SHA-256 hashing and ECDSA P-256 verification.
type Provider struct {
	rand io.Reader
}

// New returns a Provider backed by crypto/rand.
func New() *Provider {
	return &Provider{rand: rand.Reader}
}

// HashSHA256 returns the SHA-256 digest of data.
func (p *Provider) HashSHA256(data []byte) []byte {
	sum := sha256.Sum256(data)
	return sum[:]
}

// ImportPublicKey accepts either an uncompressed P-256 point or a PKIX
// (SubjectPublicKeyInfo) DER encoding.
func (p *Provider) ImportPublicKey(raw []byte) (crypto.PublicKey, error) {
	return ParsePublicKey(raw)
}

// VerifySignature verifies an ASN.1 ECDSA signature over SHA-256(data).
func (p *Provider) VerifySignature(data, signature []byte, key crypto.PublicKey) bool {
	pub, ok := key.(*ecdsa.PublicKey)
	if !ok || pub == nil {
		return false
	}
	digest := sha256.Sum256(data)
	return ecdsa.VerifyASN1(pub, digest[:], signature)
}

// RandomBytes returns n random bytes.
func (p *Provider) RandomBytes(n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(p.rand, buf); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRandomFailed, err)
	}
	return buf, nil
}

// ParsePublicKey parses an ECDSA P-256 public key from an uncompressed
// point or PKIX DER.
func ParsePublicKey(raw []byte) (*ecdsa.PublicKey, error) {
	if len(raw) == uncompressedPointSize && raw[0] == 0x04 {
		// ecdh validates that the point is on the curve.
		if _, err := ecdh.P256().NewPublicKey(raw); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidPublicKey, err)
		}
		return &ecdsa.PublicKey{
			Curve: elliptic.P256(),
			X:     new(big.Int).SetBytes(raw[1:33]),
			Y:     new(big.Int).SetBytes(raw[33:]),
		}, nil
	}

	key, err := x509.ParsePKIXPublicKey(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPublicKey, err)
	}
	pub, ok := key.(*ecdsa.PublicKey)
	if !ok || pub.Curve != elliptic.P256() {
		return nil, fmt.Errorf("%w: expected ECDSA P-256 key", ErrInvalidPublicKey)
	}
	return pub, nil
}
