// Copyright 2026 Jeremy Hahn
// SPDX-License-Identifier: MIT

package main

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/miekg/dns"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"

	"github.com/jeremyhahn/go-certpin/pkg/certstore"
	"github.com/jeremyhahn/go-certpin/pkg/distributor"
	"github.com/jeremyhahn/go-certpin/pkg/pincrypto"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// testCert is a self-signed certificate written to disk.
type testCert struct {
	cert *x509.Certificate
	path string
}

func (c testCert) fingerprint() []byte {
	sum := sha256.Sum256(c.cert.Raw)
	return sum[:]
}

func (c testCert) fingerprintHex() string {
	return hex.EncodeToString(c.fingerprint())
}

// newTestCert creates a self-signed certificate for commonName and writes it
// as PEM into a temporary directory.
func newTestCert(t *testing.T, commonName string) testCert {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	template := &x509.Certificate{
		SerialNumber: big.NewInt(time.Now().UnixNano()),
		Subject:      pkix.Name{CommonName: commonName},
		DNSNames:     []string{commonName},
		NotBefore:    time.Now().Add(-time.Minute),
		NotAfter:     time.Now().Add(30 * 24 * time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	require.NoError(t, err)
	cert, err := x509.ParseCertificate(der)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), commonName+".pem")
	require.NoError(t, os.WriteFile(path, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}), 0644))
	return testCert{cert: cert, path: path}
}

// testKey is a distributor signing key written to disk.
type testKey struct {
	signer    *distributor.Signer
	path      string
	publicB64 string
}

func newTestKey(t *testing.T) testKey {
	t.Helper()
	key, err := pincrypto.GenerateSigningKey()
	require.NoError(t, err)
	data, err := pincrypto.EncodePrivateKeyPEM(key)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "signing.pem")
	require.NoError(t, os.WriteFile(path, data, 0600))

	signer, err := distributor.NewSigner(key)
	require.NoError(t, err)
	return testKey{
		signer:    signer,
		path:      path,
		publicB64: base64.StdEncoding.EncodeToString(signer.PublicKey()),
	}
}

func (k testKey) entry(t *testing.T, name string, fingerprint []byte) certstore.Entry {
	t.Helper()
	e, err := k.signer.SignEntry(name, fingerprint, time.Now().Add(24*time.Hour))
	require.NoError(t, err)
	return e
}

// writeDocument writes a signed fingerprint document and returns its path.
func writeDocument(t *testing.T, entries ...certstore.Entry) string {
	t.Helper()
	body, err := certstore.EncodePayload(entries)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "fingerprints.json")
	require.NoError(t, os.WriteFile(path, body, 0644))
	return path
}

// startDistributor serves entries signed by key over plain HTTP.
func startDistributor(t *testing.T, key testKey, entries ...certstore.Entry) string {
	t.Helper()
	doc, err := distributor.NewDocument(entries)
	require.NoError(t, err)
	svc, err := distributor.NewService(&distributor.ServiceConfig{
		Signer:   key.signer,
		Document: doc,
		Logger:   discardLogger(),
	})
	require.NoError(t, err)
	server := httptest.NewServer(svc.Router(distributor.RouterConfig{}))
	t.Cleanup(server.Close)
	return server.URL + distributor.DefaultPath
}

// useConfig installs a fresh configuration holding values and restores a
// clean one after the test.
func useConfig(t *testing.T, values map[string]any) {
	t.Helper()
	config = newConfig()
	for k, v := range values {
		config.Set(k, v)
	}
	t.Cleanup(func() { config = newConfig() })
}

// setFlags sets local flags of cmd and resets every flag of cmd after the test.
func setFlags(t *testing.T, cmd *cobra.Command, values map[string]string) {
	t.Helper()
	t.Cleanup(func() { resetFlags(cmd) })
	for name, value := range values {
		f := cmd.Flags().Lookup(name)
		require.NotNil(t, f, "flag %s", name)
		require.NoError(t, f.Value.Set(value))
		f.Changed = true
	}
}

func resetFlags(cmd *cobra.Command) {
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	})
}

// captureOutput redirects writeOutput to a temporary file for the rest of
// the test and returns a function reading what was written.
func captureOutput(t *testing.T, outFormat string) func() []byte {
	t.Helper()
	oldOutput, oldFormat := outputFile, format
	outputFile = filepath.Join(t.TempDir(), "out")
	format = outFormat
	t.Cleanup(func() {
		outputFile = oldOutput
		format = oldFormat
	})
	path := outputFile
	return func() []byte {
		data, err := os.ReadFile(path)
		require.NoError(t, err)
		return data
	}
}

func decodeJSON(t *testing.T, data []byte, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(data, v), string(data))
}

// startMockDNS answers TLSA queries for _port._tcp.host with a 3 0 1 record
// per fingerprint.
func startMockDNS(t *testing.T, host string, port uint16, fingerprints ...[]byte) string {
	t.Helper()
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)

	qname := fmt.Sprintf("_%d._tcp.%s.", port, host)
	server := &dns.Server{
		PacketConn: pc,
		Handler: dns.HandlerFunc(func(w dns.ResponseWriter, r *dns.Msg) {
			m := new(dns.Msg)
			m.SetReply(r)
			m.Authoritative = true
			for _, q := range r.Question {
				if q.Qtype != dns.TypeTLSA || q.Name != qname {
					continue
				}
				for _, fp := range fingerprints {
					m.Answer = append(m.Answer, &dns.TLSA{
						Hdr:          dns.RR_Header{Name: qname, Rrtype: dns.TypeTLSA, Class: dns.ClassINET, Ttl: 300},
						Usage:        3,
						Selector:     0,
						MatchingType: 1,
						Certificate:  hex.EncodeToString(fp),
					})
				}
			}
			_ = w.WriteMsg(m)
		}),
	}
	started := make(chan struct{})
	server.NotifyStartedFunc = func() { close(started) }
	go func() { _ = server.ActivateAndServe() }()
	<-started
	t.Cleanup(func() { _ = server.Shutdown() })
	return pc.LocalAddr().String()
}
