// Copyright 2026 Jeremy Hahn
// SPDX-License-Identifier: MIT

package remote

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/jeremyhahn/go-certpin/pkg/certstore"
	"github.com/jeremyhahn/go-certpin/pkg/spkipin"
)

const (
	// DefaultTimeout bounds one fetch.
	DefaultTimeout = 10 * time.Second

	// MaxResponseSize is the largest accepted body (1 MB).
	MaxResponseSize = 1 << 20
)

// HTTPConfig configures an HTTPProvider.
type HTTPConfig struct {
	// Timeout defaults to DefaultTimeout.
	Timeout time.Duration

	// SPKIPins pins the service's TLS key instead of trusting the system roots.
	SPKIPins []string

	// InsecureSkipVerify disables server verification. For test deployments only.
	InsecureSkipVerify bool

	// UserAgent is sent when set.
	UserAgent string

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// HTTPProvider fetches fingerprint documents with GET requests.
//
// The response body is returned unverified; signature checks happen in
// certstore. Reply header names are lower-cased so the store can look up
// the challenge signature without caring about the server's casing.
type HTTPProvider struct {
	client    *http.Client
	userAgent string
	logger    *slog.Logger
}

var _ certstore.RemoteDataProvider = (*HTTPProvider)(nil)

// NewHTTPProvider builds the HTTP client described by cfg. A nil cfg uses defaults.
func NewHTTPProvider(cfg *HTTPConfig) (*HTTPProvider, error) {
	if cfg == nil {
		cfg = &HTTPConfig{}
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	tlsConfig := &tls.Config{MinVersion: tls.VersionTLS12}
	switch {
	case len(cfg.SPKIPins) > 0:
		pinned, err := spkipin.NewPinnedTLSConfig(cfg.SPKIPins...)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
		}
		tlsConfig = pinned
	case cfg.InsecureSkipVerify:
		tlsConfig.InsecureSkipVerify = true //nolint:gosec // Explicit opt-in for test deployments.
		logger.Warn("TLS verification of the fingerprint service is disabled")
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = tlsConfig

	return &HTTPProvider{
		client:    &http.Client{Timeout: timeout, Transport: transport},
		userAgent: cfg.UserAgent,
		logger:    logger.With("component", "remote_http"),
	}, nil
}

// GetFingerprints implements certstore.RemoteDataProvider. Non-2xx replies
// and bodies over MaxResponseSize are errors wrapping ErrFetchFailed and
// ErrResponseTooLarge respectively.
func (p *HTTPProvider) GetFingerprints(ctx context.Context, req *certstore.RemoteDataRequest) (*certstore.RemoteDataResponse, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetchFailed, err)
	}
	httpReq.Header.Set("Accept", "application/json")
	if p.userAgent != "" {
		httpReq.Header.Set("User-Agent", p.userAgent)
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	p.logger.Debug("fetching fingerprints", "url", req.URL)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetchFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: server returned %d", ErrFetchFailed, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize+1))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetchFailed, err)
	}
	if len(body) > MaxResponseSize {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrResponseTooLarge, MaxResponseSize)
	}

	headers := make(map[string]string, len(resp.Header))
	for k := range resp.Header {
		headers[strings.ToLower(k)] = resp.Header.Get(k)
	}

	return &certstore.RemoteDataResponse{
		StatusCode: resp.StatusCode,
		Headers:    headers,
		Body:       body,
	}, nil
}

// Close releases idle connections.
func (p *HTTPProvider) Close() error {
	p.client.CloseIdleConnections()
	return nil
}
