// Copyright 2026 Jeremy Hahn
// SPDX-License-Identifier: MIT

package distributor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jeremyhahn/go-certpin/pkg/certstore"
	"github.com/jeremyhahn/go-certpin/pkg/ratelimit"
)

const (
	// DefaultPath is where the fingerprint document is served.
	DefaultPath = "/v1/fingerprints"

	// DefaultHTTPListenAddr is the default HTTPS listen address.
	DefaultHTTPListenAddr = ":8443"

	// MetricsTimeout bounds a single scrape.
	MetricsTimeout = 10 * time.Second
)

// RouterConfig configures the HTTP routes of a Service.
type RouterConfig struct {
	// Path defaults to DefaultPath.
	Path string

	// Limiter applies a per-IP rate limit when set.
	Limiter *ratelimit.Limiter

	// Gatherer exposes /metrics when set. Registerer instruments the
	// metrics handler itself and may be nil.
	Gatherer   prometheus.Gatherer
	Registerer prometheus.Registerer

	// AllowedOrigins enables CORS for browser clients when non-empty.
	AllowedOrigins []string
}

// Router returns the chi router serving s.
//
// GET <Path> serves the document and GET /healthz reports liveness. GET
// /metrics is mounted only when Gatherer is set. The rate limiter applies
// to the document route only.
func (s *Service) Router(cfg RouterConfig) http.Handler {
	path := cfg.Path
	if path == "" {
		path = DefaultPath
	}

	r := chi.NewRouter()
	if len(cfg.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: cfg.AllowedOrigins,
			AllowedMethods: []string{http.MethodGet},
			AllowedHeaders: []string{certstore.ChallengeHeader},
			ExposedHeaders: []string{certstore.SignatureHeader},
		}))
	}
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	if cfg.Gatherer != nil {
		var handler http.Handler = promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{Timeout: MetricsTimeout})
		if cfg.Registerer != nil {
			handler = promhttp.InstrumentMetricHandler(cfg.Registerer, handler)
		}
		r.Method(http.MethodGet, "/metrics", handler)
	}

	r.Group(func(r chi.Router) {
		if cfg.Limiter != nil {
			r.Use(rateLimit(cfg.Limiter, s.logger))
		}
		r.Get(path, s.serveHTTP)
	})
	return r
}

// serveHTTP adapts an HTTP request to Service.fingerprints. Only the
// challenge header is forwarded.
func (s *Service) serveHTTP(w http.ResponseWriter, req *http.Request) {
	headers := map[string]string{}
	if challenge := req.Header.Get(certstore.ChallengeHeader); challenge != "" {
		headers[certstore.ChallengeHeader] = challenge
	}

	rep := s.fingerprints("http", headers)
	if rep.status != http.StatusOK {
		http.Error(w, rep.err, rep.status)
		return
	}
	for k, v := range rep.headers {
		w.Header().Set(k, v)
	}
	w.WriteHeader(rep.status)
	if _, err := w.Write(rep.body); err != nil {
		s.logger.Debug("writing response failed", "remote", req.RemoteAddr, "error", err)
	}
}

// rateLimit rejects requests over the per-address budget with 429.
func rateLimit(limiter *ratelimit.Limiter, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.AllowAddr(r.RemoteAddr) {
				logger.Warn("rate limit exceeded", "remote", r.RemoteAddr)
				http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// HTTPServerConfig configures an HTTPServer.
type HTTPServerConfig struct {
	// ListenAddr defaults to DefaultHTTPListenAddr.
	ListenAddr string

	// Handler is typically Service.Router. Required.
	Handler http.Handler

	// CertFile and KeyFile enable TLS. Both or neither must be set.
	CertFile string
	KeyFile  string

	Logger *slog.Logger
}

// HTTPServer runs the distributor routes on a TCP listener.
type HTTPServer struct {
	cfg      HTTPServerConfig
	logger   *slog.Logger
	mu       sync.Mutex
	server   *http.Server
	listener net.Listener

	// done is closed once serveErr holds the result of Serve.
	done     chan struct{}
	serveErr error
}

// NewHTTPServer validates cfg and returns an unstarted server.
func NewHTTPServer(cfg *HTTPServerConfig) (*HTTPServer, error) {
	if cfg == nil || cfg.Handler == nil {
		return nil, fmt.Errorf("%w: handler is required", ErrInvalidConfig)
	}
	if (cfg.CertFile == "") != (cfg.KeyFile == "") {
		return nil, fmt.Errorf("%w: cert file and key file must be set together", ErrInvalidConfig)
	}
	c := *cfg
	if c.ListenAddr == "" {
		c.ListenAddr = DefaultHTTPListenAddr
	}
	logger := c.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPServer{cfg: c, logger: logger}, nil
}

// Start binds the listener and serves in the background. A server can be
// started once; later calls return ErrAlreadyStarted. Bind failures are
// reported synchronously and wrap ErrListen.
func (s *HTTPServer) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.server != nil {
		return ErrAlreadyStarted
	}

	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrListen, s.cfg.ListenAddr, err)
	}
	s.listener = ln
	s.server = &http.Server{
		Handler:           s.cfg.Handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	done := make(chan struct{})
	s.done = done

	tlsEnabled := s.cfg.CertFile != ""
	s.logger.Info("serving fingerprints", "addr", ln.Addr().String(), "tls", tlsEnabled)
	go func() {
		var err error
		if tlsEnabled {
			err = s.server.ServeTLS(ln, s.cfg.CertFile, s.cfg.KeyFile)
		} else {
			err = s.server.Serve(ln)
		}
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		s.mu.Lock()
		s.serveErr = err
		s.mu.Unlock()
		close(done)
	}()
	return nil
}

// Addr returns the bound address, or nil before Start.
func (s *HTTPServer) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Wait blocks until the server stops and returns its serve error. It may be
// called any number of times, from any goroutine.
func (s *HTTPServer) Wait() error {
	s.mu.Lock()
	done := s.done
	s.mu.Unlock()
	if done == nil {
		return nil
	}
	<-done
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.serveErr
}

// Stop shuts the server down gracefully within ctx.
func (s *HTTPServer) Stop(ctx context.Context) error {
	s.mu.Lock()
	server := s.server
	s.mu.Unlock()
	if server == nil {
		return nil
	}
	return server.Shutdown(ctx)
}
