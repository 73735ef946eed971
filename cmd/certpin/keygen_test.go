// Copyright 2026 Jeremy Hahn
// SPDX-License-Identifier: MIT

package main

import (
	"encoding/base64"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeremyhahn/go-certpin/pkg/distributor"
	"github.com/jeremyhahn/go-certpin/pkg/noiseproto"
	"github.com/jeremyhahn/go-certpin/pkg/pincrypto"
)

func TestRunKeygen_SigningKey(t *testing.T) {
	keyPath := filepath.Join(t.TempDir(), "signing.pem")
	read := captureOutput(t, "json")

	setFlags(t, keygenCmd, map[string]string{"key-file": keyPath})
	require.NoError(t, runKeygen(keygenCmd, nil))

	var out keygenOutput
	decodeJSON(t, read(), &out)
	assert.Equal(t, "ecdsa-p256", out.Type)

	info, err := os.Stat(keyPath)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	data, err := os.ReadFile(keyPath)
	require.NoError(t, err)
	signer, err := distributor.NewSignerFromPEM(data)
	require.NoError(t, err)

	pub, err := base64.StdEncoding.DecodeString(out.PublicKey)
	require.NoError(t, err)
	assert.Equal(t, signer.PublicKey(), pub)
	_, err = pincrypto.ParsePublicKey(pub)
	assert.NoError(t, err)
}

func TestRunKeygen_NoiseKey(t *testing.T) {
	keyPath := filepath.Join(t.TempDir(), "noise.key")
	read := captureOutput(t, "text")

	setFlags(t, keygenCmd, map[string]string{"key-file": keyPath, "noise": "true"})
	require.NoError(t, runKeygen(keygenCmd, nil))

	loaded, err := loadOrGenerateNoiseKey(keyPath)
	require.NoError(t, err)
	assert.Equal(t, hex.EncodeToString(loaded.Public)+"\n", string(read()))
}

func TestRunKeygen_ExistingFile(t *testing.T) {
	keyPath := filepath.Join(t.TempDir(), "signing.pem")
	require.NoError(t, os.WriteFile(keyPath, []byte("keep"), 0600))
	captureOutput(t, "text")

	setFlags(t, keygenCmd, map[string]string{"key-file": keyPath})
	assert.ErrorIs(t, runKeygen(keygenCmd, nil), ErrInvalidInput)

	data, err := os.ReadFile(keyPath)
	require.NoError(t, err)
	assert.Equal(t, "keep", string(data))

	setFlags(t, keygenCmd, map[string]string{"force": "true"})
	require.NoError(t, runKeygen(keygenCmd, nil))
	data, err = os.ReadFile(keyPath)
	require.NoError(t, err)
	assert.NotEqual(t, "keep", string(data))
}

func TestRunKeygen_MissingKeyFile(t *testing.T) {
	resetFlags(keygenCmd)
	assert.ErrorIs(t, runKeygen(keygenCmd, nil), ErrInvalidInput)
}

func TestRunKeygen_WriteError(t *testing.T) {
	setFlags(t, keygenCmd, map[string]string{"key-file": "/nonexistent/dir/signing.pem"})
	assert.ErrorIs(t, runKeygen(keygenCmd, nil), ErrFileOperation)
}

func TestLoadOrGenerateNoiseKey_GeneratesNew(t *testing.T) {
	keyPath := filepath.Join(t.TempDir(), "test.key")

	key, err := loadOrGenerateNoiseKey(keyPath)
	require.NoError(t, err)
	assert.Len(t, key.Private, 32)
	assert.Len(t, key.Public, 32)

	info, err := os.Stat(keyPath)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestLoadOrGenerateNoiseKey_LoadsExisting(t *testing.T) {
	key, err := noiseproto.GenerateStaticKey()
	require.NoError(t, err)

	keyPath := filepath.Join(t.TempDir(), "existing.key")
	require.NoError(t, os.WriteFile(keyPath, []byte(noiseproto.EncodeStaticKey(key)+"\n"), 0600))

	loaded, err := loadOrGenerateNoiseKey(keyPath)
	require.NoError(t, err)
	assert.Equal(t, key.Public, loaded.Public)
}

func TestLoadOrGenerateNoiseKey_InvalidHex(t *testing.T) {
	keyPath := filepath.Join(t.TempDir(), "bad.key")
	require.NoError(t, os.WriteFile(keyPath, []byte("not-valid-hex\n"), 0600))

	_, err := loadOrGenerateNoiseKey(keyPath)
	assert.ErrorIs(t, err, ErrKeyOperation)
}

func TestLoadOrGenerateNoiseKey_ReadError(t *testing.T) {
	// A directory cannot be read as a key file.
	_, err := loadOrGenerateNoiseKey(t.TempDir())
	assert.ErrorIs(t, err, ErrKeyOperation)
}

func TestLoadOrGenerateNoiseKey_WriteError(t *testing.T) {
	_, err := loadOrGenerateNoiseKey("/nonexistent/dir/noise.key")
	assert.ErrorIs(t, err, ErrFileOperation)
}
