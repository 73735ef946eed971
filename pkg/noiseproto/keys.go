// Copyright 2026 Jeremy Hahn
// SPDX-License-Identifier: MIT

package noiseproto

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/flynn/noise"
	"golang.org/x/crypto/curve25519"
)

// KeySize is the size of Curve25519 keys in bytes.
const KeySize = 32

// GenerateStaticKey creates a server identity key pair.
func GenerateStaticKey() (*noise.DHKey, error) {
	key, err := noise.DH25519.GenerateKeypair(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrHandshakeFailed, err)
	}
	return &key, nil
}

// LoadStaticKey rebuilds a key pair from its private half.
func LoadStaticKey(privateKey []byte) (*noise.DHKey, error) {
	if len(privateKey) != KeySize {
		return nil, ErrInvalidKeySize
	}

	priv := make([]byte, KeySize)
	copy(priv, privateKey)

	pub, err := curve25519.X25519(priv, curve25519.Basepoint)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidKeySize, err)
	}
	return &noise.DHKey{Private: priv, Public: pub}, nil
}

// EncodeStaticKey hex encodes the private half of key.
func EncodeStaticKey(key *noise.DHKey) string {
	return hex.EncodeToString(key.Private)
}

// DecodeStaticKey parses a hex private key as written by EncodeStaticKey.
func DecodeStaticKey(encoded string) (*noise.DHKey, error) {
	privateKey, err := hex.DecodeString(strings.TrimSpace(encoded))
	if err != nil {
		return nil, fmt.Errorf("%w: invalid hex encoding: %w", ErrInvalidKeySize, err)
	}
	defer clear(privateKey)
	return LoadStaticKey(privateKey)
}

// DecodePublicKey parses the hex form of a server public key as handed to clients.
func DecodePublicKey(encoded string) ([]byte, error) {
	pub, err := hex.DecodeString(strings.TrimSpace(encoded))
	if err != nil {
		return nil, fmt.Errorf("%w: invalid hex encoding: %w", ErrInvalidKeySize, err)
	}
	if len(pub) != KeySize {
		return nil, ErrInvalidKeySize
	}
	return pub, nil
}

// WipeDHKey zeroes both halves of key. The garbage collector may still hold
// earlier copies.
func WipeDHKey(key *noise.DHKey) {
	if key == nil {
		return
	}
	clear(key.Private)
	clear(key.Public)
}
