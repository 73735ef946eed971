// Copyright 2026 Jeremy Hahn
// SPDX-License-Identifier: MIT

package main

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jeremyhahn/go-certpin/pkg/certstore"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a certificate against the pin store",
	Long: `Validate a certificate fingerprint for a host against the pin store.

The fingerprint comes from --fingerprint (hex SHA-256 of the certificate
DER), a PEM file or the leaf presented by a live TLS server. Unless
--no-update is given the store is brought up to date first, and the
command waits for that update to finish (and be persisted) before it
validates.

The exit status is 0 for TRUSTED and 3 for UNTRUSTED. EMPTY (no pins for the
host) exits 3 as well unless --allow-empty is set.`,
	RunE: runValidate,
}

func init() {
	validateCmd.Flags().String("host", "", "common name to validate (default: the --connect host or the certificate CN)")
	validateCmd.Flags().String("fingerprint", "", "hex SHA-256 fingerprint of the certificate DER")
	validateCmd.Flags().String("cert-file", "", "path to PEM certificate file (the first certificate is used)")
	validateCmd.Flags().String("connect", "", "host:port of a TLS server to fetch the leaf from")
	validateCmd.Flags().Bool("no-update", false, "validate against the cached database only")
	validateCmd.Flags().Bool("allow-empty", false, "exit 0 when the store has no pins for the host")
}

// validateOutput is the validate command result.
type validateOutput struct {
	Host        string `json:"host"`
	Fingerprint string `json:"fingerprint"`
	Result      string `json:"result"`
}

func runValidate(cmd *cobra.Command, args []string) error {
	host, _ := cmd.Flags().GetString("host")
	fpHex, _ := cmd.Flags().GetString("fingerprint")
	certFile, _ := cmd.Flags().GetString("cert-file")
	connect, _ := cmd.Flags().GetString("connect")
	noUpdate, _ := cmd.Flags().GetBool("no-update")
	allowEmpty, _ := cmd.Flags().GetBool("allow-empty")

	sources := 0
	for _, v := range []string{fpHex, certFile, connect} {
		if v != "" {
			sources++
		}
	}
	if sources != 1 {
		return fmt.Errorf("%w: exactly one of --fingerprint, --cert-file or --connect is required", ErrInvalidInput)
	}
	if host == "" && connect != "" {
		h, _, err := splitHostPort(connect)
		if err != nil {
			return err
		}
		host = h
	}
	if host == "" && fpHex != "" {
		return fmt.Errorf("%w: --host is required with --fingerprint", ErrInvalidInput)
	}

	ctx, cancel := commandContext(cmd)
	defer cancel()

	var fingerprint []byte
	switch {
	case fpHex != "":
		fp, err := hex.DecodeString(strings.ReplaceAll(strings.TrimSpace(fpHex), ":", ""))
		if err != nil || len(fp) != certstore.FingerprintSize {
			return fmt.Errorf("%w: --fingerprint must be %d hex bytes", ErrInvalidInput, certstore.FingerprintSize)
		}
		fingerprint = fp
	case certFile != "":
		certs, err := loadCertificatesPEMFile(certFile)
		if err != nil {
			return err
		}
		if host == "" {
			host = certs[0].Subject.CommonName
		}
		if host == "" {
			return fmt.Errorf("%w: %s has no common name, --host is required", ErrInvalidInput, certFile)
		}
		sum := sha256.Sum256(certs[0].Raw)
		fingerprint = sum[:]
	default:
		certs, err := fetchPeerCertificates(ctx, connect, host)
		if err != nil {
			return err
		}
		sum := sha256.Sum256(certs[0].Raw)
		fingerprint = sum[:]
	}

	store, closeStore, err := openClientStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	if !noUpdate {
		if updateType, result, err := store.Update(ctx, certstore.UpdateModeDefault); err != nil || result != certstore.UpdateOK {
			slog.Warn("fingerprint update failed, validating against cached pins",
				"type", updateType, "result", result, "error", err)
		}
	}

	result := store.ValidateFingerprint(host, fingerprint)
	out := validateOutput{
		Host:        host,
		Fingerprint: hex.EncodeToString(fingerprint),
		Result:      result.String(),
	}
	if err := printResult(out, fmt.Sprintf("%s: %s", host, strings.ToUpper(out.Result))); err != nil {
		return err
	}

	switch {
	case result == certstore.ValidationTrusted:
		return nil
	case result == certstore.ValidationEmpty && allowEmpty:
		return nil
	default:
		return fmt.Errorf("%w: %s is %s", ErrVerificationFailed, host, result)
	}
}
