// Copyright 2026 Jeremy Hahn
// SPDX-License-Identifier: MIT

package distributor

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"crypto/x509/pkix"
	"io"
	"log/slog"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jeremyhahn/go-certpin/pkg/certstore"
	"github.com/jeremyhahn/go-certpin/pkg/pincrypto"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestSigner(t *testing.T) *Signer {
	t.Helper()
	key, err := pincrypto.GenerateSigningKey()
	require.NoError(t, err)
	signer, err := NewSigner(key)
	require.NoError(t, err)
	return signer
}

func leafCert(t *testing.T, commonName string) *x509.Certificate {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: commonName},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(30 * 24 * time.Hour),
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)
	cert, err := x509.ParseCertificate(der)
	require.NoError(t, err)
	return cert
}

func testFingerprint(seed string) []byte {
	sum := sha256.Sum256([]byte(seed))
	return sum[:]
}

func newTestService(t *testing.T, entries ...certstore.Entry) (*Service, *Signer) {
	t.Helper()
	signer := newTestSigner(t)
	signed := make([]certstore.Entry, 0, len(entries))
	for _, e := range entries {
		s, err := signer.SignEntry(e.CommonName, e.Fingerprint, e.Expires)
		require.NoError(t, err)
		signed = append(signed, s)
	}
	doc, err := NewDocument(signed)
	require.NoError(t, err)
	svc, err := NewService(&ServiceConfig{Signer: signer, Document: doc, Logger: discardLogger()})
	require.NoError(t, err)
	return svc, signer
}
