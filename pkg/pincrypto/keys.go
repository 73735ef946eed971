// Copyright 2026 Jeremy Hahn
// SPDX-License-Identifier: MIT

package pincrypto

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"encoding/pem"
	"fmt"
)

// GenerateSigningKey creates a new ECDSA P-256 signing key.
func GenerateSigningKey() (*ecdsa.PrivateKey, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSigningFailed, err)
	}
	return key, nil
}

// Sign returns an ASN.1 ECDSA signature over SHA-256(data).
func Sign(key *ecdsa.PrivateKey, data []byte) ([]byte, error) {
	if key == nil {
		return nil, ErrInvalidPrivateKey
	}
	digest := sha256.Sum256(data)
	sig, err := ecdsa.SignASN1(rand.Reader, key, digest[:])
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSigningFailed, err)
	}
	return sig, nil
}

// MarshalPublicKey returns the uncompressed point encoding of pub, the
// compact form clients embed in their configuration.
func MarshalPublicKey(pub *ecdsa.PublicKey) ([]byte, error) {
	if pub == nil {
		return nil, ErrInvalidPublicKey
	}
	ecdhKey, err := pub.ECDH()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPublicKey, err)
	}
	return ecdhKey.Bytes(), nil
}

// EncodePrivateKeyPEM encodes key as an "EC PRIVATE KEY" PEM block.
func EncodePrivateKeyPEM(key *ecdsa.PrivateKey) ([]byte, error) {
	der, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPrivateKey, err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: der}), nil
}

// DecodePrivateKeyPEM parses a P-256 key from an "EC PRIVATE KEY" or
// "PRIVATE KEY" PEM block.
func DecodePrivateKeyPEM(data []byte) (*ecdsa.PrivateKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("%w: no PEM block found", ErrInvalidPrivateKey)
	}

	decoders := map[string]func([]byte) (any, error){
		"EC PRIVATE KEY": func(der []byte) (any, error) { return x509.ParseECPrivateKey(der) },
		"PRIVATE KEY":    x509.ParsePKCS8PrivateKey,
	}
	decode, ok := decoders[block.Type]
	if !ok {
		return nil, fmt.Errorf("%w: unsupported PEM type %q", ErrInvalidPrivateKey, block.Type)
	}
	parsed, err := decode(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPrivateKey, err)
	}
	key, ok := parsed.(*ecdsa.PrivateKey)
	if !ok || key.Curve != elliptic.P256() {
		return nil, fmt.Errorf("%w: expected ECDSA P-256 key", ErrInvalidPrivateKey)
	}
	return key, nil
}

// EncodePublicKeyPEM encodes pub as a PKIX "PUBLIC KEY" PEM block.
func EncodePublicKeyPEM(pub *ecdsa.PublicKey) ([]byte, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPublicKey, err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}), nil
}
