// Copyright 2026 Jeremy Hahn
// SPDX-License-Identifier: MIT

package remote

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jeremyhahn/go-certpin/pkg/certstore"
	"github.com/jeremyhahn/go-certpin/pkg/noiseproto"
)

// NoiseConfig configures a NoiseProvider.
type NoiseConfig struct {
	// ServerAddr is the distributor's host:port.
	ServerAddr string

	// ServerStaticKey is the distributor's Curve25519 public key.
	ServerStaticKey []byte

	// Timeout defaults to DefaultTimeout.
	Timeout time.Duration

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// NoiseProvider fetches fingerprint documents over a Noise_NK session. The
// request URL is ignored; the session itself authenticates the distributor.
type NoiseProvider struct {
	client *noiseproto.Client
}

var _ certstore.RemoteDataProvider = (*NoiseProvider)(nil)

// NewNoiseProvider validates cfg and returns a provider.
func NewNoiseProvider(cfg *NoiseConfig) (*NoiseProvider, error) {
	if cfg == nil {
		return nil, ErrInvalidConfig
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	client, err := noiseproto.NewClient(&noiseproto.ClientConfig{
		ServerAddr:      cfg.ServerAddr,
		ServerStaticKey: cfg.ServerStaticKey,
		Timeout:         timeout,
		Logger:          cfg.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return &NoiseProvider{client: client}, nil
}

// GetFingerprints implements certstore.RemoteDataProvider.
func (p *NoiseProvider) GetFingerprints(ctx context.Context, req *certstore.RemoteDataRequest) (*certstore.RemoteDataResponse, error) {
	resp, err := p.client.Call(ctx, &noiseproto.Request{
		Method:  noiseproto.MethodGetFingerprints,
		Headers: req.Headers,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetchFailed, err)
	}
	if resp.Status < 200 || resp.Status > 299 {
		return nil, fmt.Errorf("%w: server returned %d: %s", ErrFetchFailed, resp.Status, resp.Error)
	}
	if len(resp.Body) > MaxResponseSize {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrResponseTooLarge, MaxResponseSize)
	}
	headers := make(map[string]string, len(resp.Headers))
	for k, v := range resp.Headers {
		headers[strings.ToLower(k)] = v
	}
	return &certstore.RemoteDataResponse{
		StatusCode: resp.Status,
		Headers:    headers,
		Body:       resp.Body,
	}, nil
}
