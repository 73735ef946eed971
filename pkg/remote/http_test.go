// Copyright 2026 Jeremy Hahn
// SPDX-License-Identifier: MIT

package remote

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeremyhahn/go-certpin/pkg/certstore"
	"github.com/jeremyhahn/go-certpin/pkg/spkipin"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func startTLSServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	server := httptest.NewTLSServer(handler)
	t.Cleanup(server.Close)
	return server
}

func newPinnedProvider(t *testing.T, server *httptest.Server) *HTTPProvider {
	t.Helper()
	p, err := NewHTTPProvider(&HTTPConfig{
		SPKIPins: []string{spkipin.ComputeSPKIPin(server.Certificate())},
		Timeout:  5 * time.Second,
		Logger:   testLogger(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { p.Close() })
	return p
}

func TestHTTPProvider_GetFingerprints(t *testing.T) {
	server := startTLSServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/v1/fingerprints", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		assert.Equal(t, "Y2hhbGxlbmdl", r.Header.Get(certstore.ChallengeHeader))
		w.Header().Set(certstore.SignatureHeader, "c2ln")
		w.Write([]byte(`{"fingerprints":[]}`))
	})
	p := newPinnedProvider(t, server)

	resp, err := p.GetFingerprints(context.Background(), &certstore.RemoteDataRequest{
		URL:     server.URL + "/v1/fingerprints",
		Headers: map[string]string{certstore.ChallengeHeader: "Y2hhbGxlbmdl"},
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, `{"fingerprints":[]}`, string(resp.Body))
	assert.Equal(t, "c2ln", resp.Headers[strings.ToLower(certstore.SignatureHeader)])
}

func TestHTTPProvider_WrongPin(t *testing.T) {
	server := startTLSServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("should not reach here"))
	})
	p, err := NewHTTPProvider(&HTTPConfig{SPKIPins: []string{strings.Repeat("00", 32)}, Logger: testLogger()})
	require.NoError(t, err)
	defer p.Close()

	_, err = p.GetFingerprints(context.Background(), &certstore.RemoteDataRequest{URL: server.URL})
	assert.ErrorIs(t, err, ErrFetchFailed)
}

func TestHTTPProvider_SystemRootsRejectTestServer(t *testing.T) {
	server := startTLSServer(t, func(w http.ResponseWriter, _ *http.Request) {})
	p, err := NewHTTPProvider(&HTTPConfig{Logger: testLogger()})
	require.NoError(t, err)
	defer p.Close()

	_, err = p.GetFingerprints(context.Background(), &certstore.RemoteDataRequest{URL: server.URL})
	assert.ErrorIs(t, err, ErrFetchFailed)
}

func TestHTTPProvider_Insecure(t *testing.T) {
	server := startTLSServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("{}"))
	})
	p, err := NewHTTPProvider(&HTTPConfig{InsecureSkipVerify: true, Logger: testLogger()})
	require.NoError(t, err)
	defer p.Close()

	resp, err := p.GetFingerprints(context.Background(), &certstore.RemoteDataRequest{URL: server.URL})
	require.NoError(t, err)
	assert.Equal(t, "{}", string(resp.Body))
}

func TestHTTPProvider_ErrorStatus(t *testing.T) {
	for _, status := range []int{http.StatusNotFound, http.StatusTooManyRequests, http.StatusBadGateway} {
		server := startTLSServer(t, func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(status)
		})
		p := newPinnedProvider(t, server)

		_, err := p.GetFingerprints(context.Background(), &certstore.RemoteDataRequest{URL: server.URL})
		assert.ErrorIs(t, err, ErrFetchFailed, "status %d", status)
	}
}

func TestHTTPProvider_ResponseTooLarge(t *testing.T) {
	server := startTLSServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Write(make([]byte, MaxResponseSize+1))
	})
	p := newPinnedProvider(t, server)

	_, err := p.GetFingerprints(context.Background(), &certstore.RemoteDataRequest{URL: server.URL})
	assert.ErrorIs(t, err, ErrResponseTooLarge)
}

func TestHTTPProvider_ContextCancelled(t *testing.T) {
	release := make(chan struct{})
	server := startTLSServer(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)
	p := newPinnedProvider(t, server)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := p.GetFingerprints(ctx, &certstore.RemoteDataRequest{URL: server.URL})
	assert.ErrorIs(t, err, ErrFetchFailed)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestNewHTTPProvider_InvalidPin(t *testing.T) {
	_, err := NewHTTPProvider(&HTTPConfig{SPKIPins: []string{"nope"}})
	assert.ErrorIs(t, err, ErrInvalidConfig)
	assert.ErrorIs(t, err, spkipin.ErrInvalidPinFormat)
}

func TestHTTPProvider_UserAgent(t *testing.T) {
	server := startTLSServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "certpin-test/1.0", r.Header.Get("User-Agent"))
	})
	p, err := NewHTTPProvider(&HTTPConfig{
		SPKIPins:  []string{spkipin.ComputeSPKIPin(server.Certificate())},
		UserAgent: "certpin-test/1.0",
		Logger:    testLogger(),
	})
	require.NoError(t, err)
	defer p.Close()

	_, err = p.GetFingerprints(context.Background(), &certstore.RemoteDataRequest{URL: server.URL})
	require.NoError(t, err)
}
