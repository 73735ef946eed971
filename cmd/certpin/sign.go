// Copyright 2026 Jeremy Hahn
// SPDX-License-Identifier: MIT

package main

import (
	"encoding/hex"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jeremyhahn/go-certpin/pkg/certstore"
	"github.com/jeremyhahn/go-certpin/pkg/distributor"
)

var signCmd = &cobra.Command{
	Use:   "sign",
	Short: "Produce a signed fingerprint document",
	Long: `Sign certificate fingerprints with the distributor key and write the
fingerprint document served by 'certpin serve --document'.

Entries come from PEM certificates (--cert, repeatable; the common name,
fingerprint and expiry are taken from each certificate) or from a single
--name/--fingerprint/--expires triple. --merge appends the signed entries
to an existing document, replacing entries with the same name and
fingerprint.`,
	RunE: runSign,
}

func init() {
	signCmd.Flags().String("key", "", "PEM ECDSA P-256 signing key (required)")
	signCmd.Flags().StringSlice("cert", nil, "PEM certificate file to pin (repeatable)")
	signCmd.Flags().String("name", "", "common name of a manual entry")
	signCmd.Flags().String("fingerprint", "", "hex SHA-256 fingerprint of a manual entry")
	signCmd.Flags().String("expires", "", "RFC 3339 expiry of a manual entry")
	signCmd.Flags().String("merge", "", "existing document to extend")
}

func runSign(cmd *cobra.Command, args []string) error {
	keyFile, _ := cmd.Flags().GetString("key")
	certFiles, _ := cmd.Flags().GetStringSlice("cert")
	name, _ := cmd.Flags().GetString("name")
	fpHex, _ := cmd.Flags().GetString("fingerprint")
	expiresStr, _ := cmd.Flags().GetString("expires")
	mergeFile, _ := cmd.Flags().GetString("merge")

	signer, err := loadSigner(keyFile)
	if err != nil {
		return err
	}

	var entries []certstore.Entry
	if mergeFile != "" {
		data, err := os.ReadFile(mergeFile)
		if err != nil {
			return fmt.Errorf("%w: reading %s: %w", ErrFileOperation, mergeFile, err)
		}
		if entries, err = distributor.ParseDocument(data); err != nil {
			return fmt.Errorf("%w: %s: %w", ErrInvalidInput, mergeFile, err)
		}
	}

	var signed []certstore.Entry
	for _, certFile := range certFiles {
		certs, err := loadCertificatesPEMFile(certFile)
		if err != nil {
			return err
		}
		// Only the leaf of a chain file is pinned.
		entry, err := signer.SignCertificate(certs[0])
		if err != nil {
			return fmt.Errorf("%w: %s: %w", ErrInvalidInput, certFile, err)
		}
		signed = append(signed, entry)
	}

	if name != "" || fpHex != "" || expiresStr != "" {
		entry, err := signManualEntry(signer, name, fpHex, expiresStr)
		if err != nil {
			return err
		}
		signed = append(signed, entry)
	}
	if len(signed) == 0 {
		return fmt.Errorf("%w: --cert or --name/--fingerprint/--expires is required", ErrInvalidInput)
	}

	doc, err := distributor.NewDocument(mergeEntries(entries, signed))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	return writeOutput(append(doc.Body(), '\n'))
}

// loadSigner reads the PEM signing key named by --key.
func loadSigner(keyFile string) (*distributor.Signer, error) {
	if keyFile == "" {
		return nil, fmt.Errorf("%w: --key is required", ErrInvalidInput)
	}
	data, err := os.ReadFile(keyFile)
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %w", ErrFileOperation, keyFile, err)
	}
	defer func() {
		for i := range data {
			data[i] = 0
		}
	}()
	signer, err := distributor.NewSignerFromPEM(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrKeyOperation, keyFile, err)
	}
	return signer, nil
}

func signManualEntry(signer *distributor.Signer, name, fpHex, expiresStr string) (certstore.Entry, error) {
	if name == "" || fpHex == "" || expiresStr == "" {
		return certstore.Entry{}, fmt.Errorf("%w: --name, --fingerprint and --expires must be given together", ErrInvalidInput)
	}
	fp, err := hex.DecodeString(strings.ReplaceAll(strings.TrimSpace(fpHex), ":", ""))
	if err != nil {
		return certstore.Entry{}, fmt.Errorf("%w: --fingerprint: %w", ErrInvalidInput, err)
	}
	expires, err := time.Parse(time.RFC3339, expiresStr)
	if err != nil {
		return certstore.Entry{}, fmt.Errorf("%w: --expires: %w", ErrInvalidInput, err)
	}
	entry, err := signer.SignEntry(name, fp, expires)
	if err != nil {
		return certstore.Entry{}, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	return entry, nil
}

// mergeEntries returns existing with every entry of added appended,
// dropping existing entries that share a name and fingerprint with one of them.
func mergeEntries(existing, added []certstore.Entry) []certstore.Entry {
	type key struct{ name, fp string }
	replaced := make(map[key]bool, len(added))
	for _, e := range added {
		replaced[key{e.CommonName, string(e.Fingerprint)}] = true
	}
	out := make([]certstore.Entry, 0, len(existing)+len(added))
	for _, e := range existing {
		if !replaced[key{e.CommonName, string(e.Fingerprint)}] {
			out = append(out, e)
		}
	}
	return append(out, added...)
}
