// Copyright 2026 Jeremy Hahn
// SPDX-License-Identifier: MIT

package noiseproto

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"
)

// DefaultTimeout bounds dialing plus one request/response exchange.
const DefaultTimeout = 10 * time.Second

// ClientConfig configures a Client.
type ClientConfig struct {
	// ServerAddr is the host:port of the server.
	ServerAddr string

	// ServerStaticKey is the server's 32-byte Curve25519 public key.
	ServerStaticKey []byte

	// Timeout defaults to DefaultTimeout.
	Timeout time.Duration

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Client sends one request per connection to a Noise server. Each call
// performs a fresh NK handshake, so no session state is shared between
// calls and a Client is safe for concurrent use.
type Client struct {
	config ClientConfig
	logger *slog.Logger
}

// NewClient validates cfg and returns a Client.
func NewClient(cfg *ClientConfig) (*Client, error) {
	if cfg == nil || cfg.ServerAddr == "" {
		return nil, fmt.Errorf("%w: server address is required", ErrInvalidConfig)
	}
	if len(cfg.ServerStaticKey) != KeySize {
		return nil, fmt.Errorf("%w: server static key must be %d bytes, got %d",
			ErrInvalidKeySize, KeySize, len(cfg.ServerStaticKey))
	}

	c := &Client{config: *cfg}
	c.config.ServerStaticKey = append([]byte(nil), cfg.ServerStaticKey...)
	if c.config.Timeout <= 0 {
		c.config.Timeout = DefaultTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	c.logger = logger.With("component", "noise_client", "server", cfg.ServerAddr)
	return c, nil
}

// Call dials the server, sends req and returns its response. The whole
// exchange, handshake included, is bounded by the configured Timeout and
// by ctx. A non-2xx Status is returned as a response, not as an error.
func (c *Client) Call(ctx context.Context, req *Request) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	conn, err := Dial(ctx, c.config.ServerAddr, c.config.ServerStaticKey, c.config.Timeout)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	// Unblock the exchange if ctx is cancelled mid-flight.
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("%w: marshal request: %w", ErrInvalidMessage, err)
	}
	deadline := deadlineFrom(ctx, c.config.Timeout)
	if err := conn.Send(payload, deadline); err != nil {
		return nil, err
	}
	raw, err := conn.Receive(deadline)
	if err != nil {
		return nil, err
	}

	var resp Response
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("%w: parse response: %w", ErrInvalidMessage, err)
	}
	c.logger.Debug("noise call complete", "method", req.Method, "status", resp.Status)
	return &resp, nil
}
