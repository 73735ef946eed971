// Copyright 2026 Jeremy Hahn
// SPDX-License-Identifier: MIT

package noiseproto

import (
	"bytes"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/flynn/noise"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateStaticKey(t *testing.T) {
	key1, err := GenerateStaticKey()
	require.NoError(t, err)
	key2, err := GenerateStaticKey()
	require.NoError(t, err)

	assert.Len(t, key1.Private, KeySize)
	assert.Len(t, key1.Public, KeySize)
	assert.False(t, bytes.Equal(key1.Private, make([]byte, KeySize)), "private key must not be zero")
	assert.False(t, bytes.Equal(key1.Private, key2.Private), "two generated keys must differ")
}

func TestLoadStaticKey_DerivesPublicKey(t *testing.T) {
	original, err := GenerateStaticKey()
	require.NoError(t, err)

	input := append([]byte(nil), original.Private...)
	loaded, err := LoadStaticKey(input)
	require.NoError(t, err)
	assert.Equal(t, original.Public, loaded.Public)

	input[0] ^= 0xFF
	assert.Equal(t, original.Private, loaded.Private, "input must be copied")
}

func TestLoadStaticKey_InvalidSize(t *testing.T) {
	for _, size := range []int{0, 16, KeySize - 1, KeySize + 1, 64} {
		_, err := LoadStaticKey(make([]byte, size))
		assert.ErrorIs(t, err, ErrInvalidKeySize, "size %d", size)
	}
	_, err := LoadStaticKey(nil)
	assert.ErrorIs(t, err, ErrInvalidKeySize)
}

func TestEncodeDecodeStaticKey(t *testing.T) {
	key, err := GenerateStaticKey()
	require.NoError(t, err)

	encoded := EncodeStaticKey(key)
	assert.Len(t, encoded, KeySize*2)
	assert.Equal(t, strings.ToLower(encoded), encoded)

	decoded, err := DecodeStaticKey(encoded + "\n")
	require.NoError(t, err)
	assert.Equal(t, key.Private, decoded.Private)
	assert.Equal(t, key.Public, decoded.Public)
}

func TestDecodeStaticKey_Invalid(t *testing.T) {
	tests := map[string]string{
		"empty":        "",
		"non-hex":      "xyz123ghijklmnop",
		"odd length":   "abcde",
		"short key":    hex.EncodeToString(make([]byte, 16)),
		"long key":     hex.EncodeToString(make([]byte, 33)),
		"spaces in it": "ab cd ef 01",
	}
	for name, encoded := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeStaticKey(encoded)
			assert.ErrorIs(t, err, ErrInvalidKeySize)
		})
	}
}

func TestDecodePublicKey(t *testing.T) {
	key, err := GenerateStaticKey()
	require.NoError(t, err)

	pub, err := DecodePublicKey(hex.EncodeToString(key.Public))
	require.NoError(t, err)
	assert.Equal(t, key.Public, pub)

	_, err = DecodePublicKey("abcd")
	assert.ErrorIs(t, err, ErrInvalidKeySize)
	_, err = DecodePublicKey("zz")
	assert.ErrorIs(t, err, ErrInvalidKeySize)
}

func TestWipeDHKey(t *testing.T) {
	key := &noise.DHKey{Private: []byte{1, 2, 3}, Public: []byte{4, 5, 6}}
	WipeDHKey(key)
	assert.Equal(t, []byte{0, 0, 0}, key.Private)
	assert.Equal(t, []byte{0, 0, 0}, key.Public)

	assert.NotPanics(t, func() { WipeDHKey(nil) })
}
