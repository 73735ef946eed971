// Copyright 2026 Jeremy Hahn
// SPDX-License-Identifier: MIT

package main

import (
	"context"
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jeremyhahn/go-certpin/pkg/distributor"
	"github.com/jeremyhahn/go-certpin/pkg/spkipin"
)

var fingerprintCmd = &cobra.Command{
	Use:   "fingerprint",
	Short: "Show the pin fingerprint of a certificate",
	Long: `Compute the SHA-256 fingerprint of a certificate as stored in the pin
database, along with its SPKI pin for --service-pin.

The certificate is read from a PEM file or fetched from a live TLS server.`,
	RunE: runFingerprint,
}

func init() {
	fingerprintCmd.Flags().String("cert-file", "", "path to PEM certificate file")
	fingerprintCmd.Flags().String("connect", "", "host:port of a TLS server to fetch the certificate from")
	fingerprintCmd.Flags().String("server-name", "", "SNI for --connect (default: the host)")
}

// fingerprintOutput describes one certificate.
type fingerprintOutput struct {
	CommonName        string    `json:"common_name"`
	Fingerprint       string    `json:"fingerprint"`
	FingerprintBase64 string    `json:"fingerprint_base64"`
	SPKIPin           string    `json:"spki_pin"`
	NotAfter          time.Time `json:"not_after"`
}

func runFingerprint(cmd *cobra.Command, args []string) error {
	certFile, _ := cmd.Flags().GetString("cert-file")
	connect, _ := cmd.Flags().GetString("connect")
	serverName, _ := cmd.Flags().GetString("server-name")

	var certs []*x509.Certificate
	switch {
	case certFile != "" && connect != "":
		return fmt.Errorf("%w: --cert-file and --connect are mutually exclusive", ErrInvalidInput)
	case certFile != "":
		var err error
		if certs, err = loadCertificatesPEMFile(certFile); err != nil {
			return err
		}
	case connect != "":
		ctx, cancel := commandContext(cmd)
		defer cancel()
		var err error
		if certs, err = fetchPeerCertificates(ctx, connect, serverName); err != nil {
			return err
		}
		certs = certs[:1]
	default:
		return fmt.Errorf("%w: --cert-file or --connect is required", ErrInvalidInput)
	}

	out := make([]fingerprintOutput, 0, len(certs))
	var b strings.Builder
	for i, cert := range certs {
		fp := sha256.Sum256(cert.Raw)
		o := fingerprintOutput{
			CommonName:        cert.Subject.CommonName,
			Fingerprint:       hex.EncodeToString(fp[:]),
			FingerprintBase64: base64.StdEncoding.EncodeToString(fp[:]),
			SPKIPin:           spkipin.ComputeBase64Pin(cert),
			NotAfter:          cert.NotAfter.UTC(),
		}
		out = append(out, o)
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "Common Name:  %s\n", o.CommonName)
		fmt.Fprintf(&b, "Fingerprint:  %s\n", o.Fingerprint)
		fmt.Fprintf(&b, "Base64:       %s\n", o.FingerprintBase64)
		fmt.Fprintf(&b, "SPKI Pin:     %s\n", o.SPKIPin)
		fmt.Fprintf(&b, "Not After:    %s\n", o.NotAfter.Format(time.RFC3339))
	}
	return printResult(out, b.String())
}

// loadCertificatesPEMFile reads every certificate from a PEM file.
func loadCertificatesPEMFile(certFile string) ([]*x509.Certificate, error) {
	data, err := os.ReadFile(certFile)
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %w", ErrFileOperation, certFile, err)
	}
	certs, err := distributor.ParseCertificatesPEM(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalidInput, certFile, err)
	}
	return certs, nil
}

// fetchPeerCertificates completes a TLS handshake with addr and returns the
// presented chain without verifying it. Trust decisions are left to the caller.
func fetchPeerCertificates(ctx context.Context, addr, serverName string) ([]*x509.Certificate, error) {
	host, port, err := splitHostPort(addr)
	if err != nil {
		return nil, err
	}
	if serverName == "" {
		serverName = host
	}

	timeout := config.GetDuration(keyTimeout)
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	dialer := &tls.Dialer{
		NetDialer: &net.Dialer{Timeout: timeout},
		Config: &tls.Config{
			ServerName:         serverName,
			MinVersion:         tls.VersionTLS12,
			InsecureSkipVerify: true, //nolint:gosec // The chain is inspected, not trusted.
		},
	}
	conn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(host, fmt.Sprint(port)))
	if err != nil {
		return nil, fmt.Errorf("%w: connecting to %s: %w", ErrFetchFailed, addr, err)
	}
	defer conn.Close()

	certs := conn.(*tls.Conn).ConnectionState().PeerCertificates
	if len(certs) == 0 {
		return nil, fmt.Errorf("%w: %s presented no certificates", ErrFetchFailed, addr)
	}
	return certs, nil
}
