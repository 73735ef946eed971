// Copyright 2026 Jeremy Hahn
// SPDX-License-Identifier: MIT

package main

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/flynn/noise"
	"github.com/spf13/cobra"

	"github.com/jeremyhahn/go-certpin/pkg/noiseproto"
	"github.com/jeremyhahn/go-certpin/pkg/pincrypto"
)

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate a distributor signing key or Noise static key",
	Long: `Generate an ECDSA P-256 signing key for the fingerprint distributor and
print the base64 public key clients pass as --public-key.

With --noise a Curve25519 static key for the Noise_NK transport is generated
instead and its hex public key is printed for noise:// service URLs.`,
	RunE: runKeygen,
}

func init() {
	keygenCmd.Flags().String("key-file", "", "path for the new private key (required)")
	keygenCmd.Flags().Bool("noise", false, "generate a Noise static key instead of a signing key")
	keygenCmd.Flags().Bool("force", false, "overwrite an existing key file")
}

// keygenOutput describes a generated key.
type keygenOutput struct {
	Type      string `json:"type"`
	KeyFile   string `json:"key_file"`
	PublicKey string `json:"public_key"`
}

func runKeygen(cmd *cobra.Command, args []string) error {
	keyFile, _ := cmd.Flags().GetString("key-file")
	noiseKey, _ := cmd.Flags().GetBool("noise")
	force, _ := cmd.Flags().GetBool("force")

	if keyFile == "" {
		return fmt.Errorf("%w: --key-file is required", ErrInvalidInput)
	}
	if _, err := os.Stat(keyFile); err == nil && !force {
		return fmt.Errorf("%w: %s exists, use --force to overwrite", ErrInvalidInput, keyFile)
	}

	var out keygenOutput
	if noiseKey {
		key, err := noiseproto.GenerateStaticKey()
		if err != nil {
			return fmt.Errorf("%w: %w", ErrKeyOperation, err)
		}
		defer noiseproto.WipeDHKey(key)
		if err := writeKeyFile(keyFile, []byte(noiseproto.EncodeStaticKey(key)+"\n")); err != nil {
			return err
		}
		out = keygenOutput{Type: "noise", KeyFile: keyFile, PublicKey: hex.EncodeToString(key.Public)}
	} else {
		key, err := pincrypto.GenerateSigningKey()
		if err != nil {
			return fmt.Errorf("%w: %w", ErrKeyOperation, err)
		}
		privPEM, err := pincrypto.EncodePrivateKeyPEM(key)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrKeyOperation, err)
		}
		pub, err := pincrypto.MarshalPublicKey(&key.PublicKey)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrKeyOperation, err)
		}
		if err := writeKeyFile(keyFile, privPEM); err != nil {
			return err
		}
		out = keygenOutput{Type: "ecdsa-p256", KeyFile: keyFile, PublicKey: base64.StdEncoding.EncodeToString(pub)}
	}

	slog.Info("key written", "path", keyFile, "type", out.Type)
	return printResult(out, out.PublicKey)
}

// writeKeyFile writes private key material readable only by the owner.
func writeKeyFile(path string, data []byte) error {
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("%w: writing %s: %w", ErrFileOperation, path, err)
	}
	return nil
}

// loadOrGenerateNoiseKey loads a hex Noise static key from keyFile. When the
// file does not exist a new key is generated and written with 0600
// permissions.
func loadOrGenerateNoiseKey(keyFile string) (*noise.DHKey, error) {
	data, err := os.ReadFile(keyFile)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: reading %s: %w", ErrKeyOperation, keyFile, err)
		}

		slog.Debug("generating new Noise static key")
		key, genErr := noiseproto.GenerateStaticKey()
		if genErr != nil {
			return nil, fmt.Errorf("%w: %w", ErrKeyOperation, genErr)
		}
		if err := writeKeyFile(keyFile, []byte(noiseproto.EncodeStaticKey(key)+"\n")); err != nil {
			return nil, err
		}
		slog.Info("key written", "path", keyFile, "public_key", hex.EncodeToString(key.Public))
		return key, nil
	}

	defer func() {
		for i := range data {
			data[i] = 0
		}
	}()
	key, err := noiseproto.DecodeStaticKey(strings.TrimSpace(string(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: decoding %s: %w", ErrKeyOperation, keyFile, err)
	}
	slog.Info("loaded Noise static key", "path", keyFile)
	return key, nil
}
