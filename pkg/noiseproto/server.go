// Copyright 2026 Jeremy Hahn
// SPDX-License-Identifier: MIT

package noiseproto

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/flynn/noise"

	"github.com/jeremyhahn/go-certpin/pkg/ratelimit"
)

const (
	// DefaultListenAddr is the default TCP address the server binds to.
	DefaultListenAddr = ":8445"

	// DefaultMaxConnections bounds concurrent sessions.
	DefaultMaxConnections = 100

	// MaxMaxConnections caps MaxConnections.
	MaxMaxConnections = 10000

	// DefaultReadTimeout is the deadline for the handshake and each request.
	DefaultReadTimeout = 10 * time.Second

	// DefaultWriteTimeout is the deadline for each response.
	DefaultWriteTimeout = 10 * time.Second
)

// Handler answers decoded requests.
type Handler interface {
	ServeNoise(ctx context.Context, req *Request, remote net.Addr) *Response
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, req *Request, remote net.Addr) *Response

// ServeNoise implements Handler.
func (f HandlerFunc) ServeNoise(ctx context.Context, req *Request, remote net.Addr) *Response {
	return f(ctx, req, remote)
}

// ServerConfig configures a Server.
type ServerConfig struct {
	// ListenAddr defaults to DefaultListenAddr.
	ListenAddr string

	// StaticKey is the server identity. Clients pin its public half. Required.
	StaticKey *noise.DHKey

	// Handler answers requests. Required.
	Handler Handler

	// MaxConnections defaults to DefaultMaxConnections and is capped at MaxMaxConnections.
	MaxConnections int

	// ReadTimeout defaults to DefaultReadTimeout.
	ReadTimeout time.Duration

	// WriteTimeout defaults to DefaultWriteTimeout.
	WriteTimeout time.Duration

	// RateLimit and RateBurst configure the per-IP connection limiter.
	// Zero values take the ratelimit package defaults.
	RateLimit float64
	RateBurst int

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Server accepts Noise_NK sessions and dispatches their requests to a Handler.
type Server struct {
	config  *ServerConfig
	logger  *slog.Logger
	limiter *ratelimit.Limiter

	mu       sync.Mutex
	listener net.Listener
	conns    map[net.Conn]struct{}
	ctx      context.Context
	cancel   context.CancelFunc
	sem      chan struct{}
	wg       sync.WaitGroup
}

// NewServer applies defaults to cfg and returns an unstarted Server.
func NewServer(cfg *ServerConfig) (*Server, error) {
	if cfg == nil || cfg.StaticKey == nil {
		return nil, fmt.Errorf("%w: static key is required", ErrInvalidConfig)
	}
	if cfg.Handler == nil {
		return nil, fmt.Errorf("%w: handler is required", ErrInvalidConfig)
	}

	c := *cfg
	if c.ListenAddr == "" {
		c.ListenAddr = DefaultListenAddr
	}
	if c.MaxConnections <= 0 {
		c.MaxConnections = DefaultMaxConnections
	}
	c.MaxConnections = min(c.MaxConnections, MaxMaxConnections)
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = DefaultReadTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = DefaultWriteTimeout
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}

	return &Server{
		config: &c,
		logger: c.Logger.With("component", "noise_server"),
	}, nil
}

// Start binds the listener and begins accepting connections.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return ErrServerAlreadyStarted
	}

	ln, err := net.Listen("tcp", s.config.ListenAddr)
	if err != nil {
		return fmt.Errorf("%w: listen %s: %w", ErrConnectionFailed, s.config.ListenAddr, err)
	}

	s.listener = ln
	s.conns = make(map[net.Conn]struct{})
	s.sem = make(chan struct{}, s.config.MaxConnections)
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.limiter = ratelimit.New(s.config.RateLimit, s.config.RateBurst, 0, 0)

	s.wg.Add(1)
	go s.acceptLoop(ln)

	s.logger.Info("noise server listening", "addr", ln.Addr().String())
	return nil
}

// Addr returns the bound address, or nil before Start.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Stop closes the listener and every open session, then waits for the
// connection goroutines to exit or ctx to end.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	if s.listener == nil {
		s.mu.Unlock()
		return ErrServerNotStarted
	}
	s.cancel()
	err := s.listener.Close()
	for c := range s.conns {
		c.Close()
	}
	s.listener = nil
	limiter := s.limiter
	s.mu.Unlock()
	limiter.Stop()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	s.logger.Info("noise server stopped")
	if err != nil && !errors.Is(err, net.ErrClosed) {
		return err
	}
	return nil
}

// acceptLoop runs until ln is closed. Connections over the rate limit or
// beyond MaxConnections are closed before the handshake.
func (s *Server) acceptLoop(ln net.Listener) {
	defer s.wg.Done()

	for {
		raw, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			s.logger.Warn("accept failed", "error", err)
			continue
		}

		remote := raw.RemoteAddr().String()
		if !s.limiter.AllowAddr(remote) {
			s.logger.Warn("connection rate limited", "remote", remote)
			raw.Close()
			continue
		}

		select {
		case s.sem <- struct{}{}:
		default:
			s.logger.Warn("max connections reached", "remote", remote, "max", s.config.MaxConnections)
			raw.Close()
			continue
		}

		s.wg.Add(1)
		go s.serve(raw)
	}
}

// serve completes the handshake on raw and answers requests until the
// client closes the session or a read times out.
func (s *Server) serve(raw net.Conn) {
	defer s.wg.Done()
	defer func() { <-s.sem }()

	if !s.track(raw) {
		raw.Close()
		return
	}
	defer s.untrack(raw)

	logger := s.logger.With("remote", raw.RemoteAddr().String())

	conn, err := Respond(raw, s.config.StaticKey, time.Now().Add(s.config.ReadTimeout))
	if err != nil {
		logger.Debug("handshake failed", "error", err)
		return
	}

	for {
		msg, err := conn.Receive(time.Now().Add(s.config.ReadTimeout))
		if err != nil {
			return
		}

		resp := s.dispatch(msg, conn.RemoteAddr())
		payload, err := json.Marshal(resp)
		if err != nil {
			logger.Error("failed to marshal response", "error", err)
			return
		}
		if err := conn.Send(payload, time.Now().Add(s.config.WriteTimeout)); err != nil {
			logger.Debug("failed to send response", "error", err)
			return
		}
	}
}

// dispatch decodes one request and runs the handler. Malformed requests get
// a 400 response instead of ending the session.
func (s *Server) dispatch(msg []byte, remote net.Addr) *Response {
	var req Request
	if err := json.Unmarshal(msg, &req); err != nil {
		return &Response{Status: http.StatusBadRequest, Error: ErrInvalidMessage.Error()}
	}
	resp := s.config.Handler.ServeNoise(s.ctx, &req, remote)
	if resp == nil {
		return &Response{Status: http.StatusInternalServerError, Error: "no response"}
	}
	return resp
}

// track registers conn for Stop. It reports false when the server is stopping.
func (s *Server) track(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return false
	}
	s.conns[conn] = struct{}{}
	return true
}

func (s *Server) untrack(conn net.Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
	conn.Close()
}
