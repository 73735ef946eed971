// Copyright 2026 Jeremy Hahn
// SPDX-License-Identifier: MIT

package pinning

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jeremyhahn/go-certpin/pkg/certstore"
)

// DefaultTimeout is the client timeout used by NewHTTPClient when none is given.
const DefaultTimeout = 30 * time.Second

// Validator is implemented by *certstore.Store.
type Validator interface {
	ValidateCertificateData(commonName string, der []byte) certstore.ValidationResult
}

// Options tunes how verdicts map to handshake errors.
type Options struct {
	// AllowEmpty accepts hosts the store holds no pins for. Chain
	// verification still applies to them.
	AllowEmpty bool

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

func (o *Options) logger() *slog.Logger {
	if o == nil || o.Logger == nil {
		return slog.Default()
	}
	return o.Logger
}

func (o *Options) allowEmpty() bool {
	return o != nil && o.AllowEmpty
}

// check maps the verdict for leaf under commonName to an error.
func check(v Validator, commonName string, leaf *x509.Certificate, opts *Options) error {
	result := v.ValidateCertificateData(commonName, leaf.Raw)
	switch result {
	case certstore.ValidationTrusted:
		return nil
	case certstore.ValidationEmpty:
		if opts.allowEmpty() {
			return nil
		}
		opts.logger().Warn("no pins for host", "common_name", commonName)
		return fmt.Errorf("%w: %s", ErrEmpty, commonName)
	default:
		opts.logger().Warn("certificate pin mismatch", "common_name", commonName)
		return fmt.Errorf("%w: %s", ErrUntrusted, commonName)
	}
}

// VerifyPeerCertificate returns a tls.Config.VerifyPeerCertificate hook that
// validates the leaf certificate under its subject common name.
func VerifyPeerCertificate(v Validator, opts *Options) func(rawCerts [][]byte, _ [][]*x509.Certificate) error {
	return func(rawCerts [][]byte, _ [][]*x509.Certificate) error {
		if len(rawCerts) == 0 {
			return ErrNoCertificates
		}
		leaf, err := x509.ParseCertificate(rawCerts[0])
		if err != nil {
			return fmt.Errorf("%w: %w", ErrNoCertificates, err)
		}
		return check(v, leaf.Subject.CommonName, leaf, opts)
	}
}

// VerifyConnection returns a tls.Config.VerifyConnection hook that validates
// the leaf certificate under the SNI server name, falling back to the leaf's
// subject common name when no server name was sent. It runs after the
// standard chain verification.
func VerifyConnection(v Validator, opts *Options) func(tls.ConnectionState) error {
	return func(cs tls.ConnectionState) error {
		if len(cs.PeerCertificates) == 0 {
			return ErrNoCertificates
		}
		leaf := cs.PeerCertificates[0]
		name := cs.ServerName
		if name == "" {
			name = leaf.Subject.CommonName
		}
		return check(v, name, leaf, opts)
	}
}

// NewTLSConfig returns a clone of base, or a fresh config, with pinning
// installed. System chain verification stays in force unless base disables it.
func NewTLSConfig(v Validator, base *tls.Config, opts *Options) *tls.Config {
	var cfg *tls.Config
	if base != nil {
		cfg = base.Clone()
	} else {
		cfg = &tls.Config{}
	}
	if cfg.MinVersion == 0 {
		cfg.MinVersion = tls.VersionTLS12
	}
	cfg.VerifyConnection = VerifyConnection(v, opts)
	return cfg
}

// NewHTTPClient returns an HTTP client whose TLS connections are pinned.
func NewHTTPClient(v Validator, timeout time.Duration, opts *Options) *http.Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = NewTLSConfig(v, transport.TLSClientConfig, opts)
	return &http.Client{Transport: transport, Timeout: timeout}
}
