// Copyright 2026 Jeremy Hahn
// SPDX-License-Identifier: MIT

package main

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/jeremyhahn/go-certpin/pkg/certstore"
	"github.com/jeremyhahn/go-certpin/pkg/distributor"
	"github.com/jeremyhahn/go-certpin/pkg/noiseproto"
	"github.com/jeremyhahn/go-certpin/pkg/ratelimit"
)

const (
	// serveKeyPrefix namespaces the serve flags in the configuration.
	serveKeyPrefix = "serve."

	// stopTimeout bounds graceful shutdown of both listeners.
	stopTimeout = 10 * time.Second

	// limiterStaleAge and limiterCleanup tune the HTTP per-IP limiter.
	limiterStaleAge = 5 * time.Minute
	limiterCleanup  = time.Minute
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the fingerprint distributor",
	Long: `Serve a signed fingerprint document over HTTP(S) and, optionally, over
an encrypted Noise_NK channel.

The document is read from --document (see 'certpin sign') or built at
startup by signing the certificates given with --cert. Challenge requests are
answered with a signature over the challenge and the body, so the signing
key must always be provided.

Sending SIGHUP re-reads --document and the --cert files without
interrupting clients.`,
	RunE: runServe,
}

func init() {
	flags := serveCmd.Flags()
	flags.String("key", "", "PEM ECDSA P-256 signing key (required)")
	flags.String("document", "", "signed fingerprint document to serve")
	flags.StringSlice("cert", nil, "PEM certificate to sign and serve (repeatable)")
	flags.String("listen", distributor.DefaultHTTPListenAddr, "HTTP(S) listen address")
	flags.String("path", distributor.DefaultPath, "URL path of the fingerprint document")
	flags.String("tls-cert", "", "PEM certificate for HTTPS")
	flags.String("tls-key", "", "PEM private key for HTTPS")
	flags.String("noise-listen", "", "Noise_NK listen address (empty disables Noise)")
	flags.String("noise-key-file", "certpin-noise.key", "Noise static key file (hex, generated when missing)")
	flags.Int("max-connections", noiseproto.DefaultMaxConnections, "maximum concurrent Noise connections")
	flags.Float64("rate", 10, "per-IP HTTP requests per second (0 disables limiting)")
	flags.Int("burst", 20, "per-IP HTTP burst size")
	flags.StringSlice("cors-origin", nil, "allowed CORS origin (repeatable)")
	flags.Bool("metrics", true, "expose Prometheus metrics at /metrics")
}

// serveSettings is the resolved serve configuration.
type serveSettings struct {
	KeyFile        string
	DocumentFile   string
	CertFiles      []string
	Listen         string
	Path           string
	TLSCert        string
	TLSKey         string
	NoiseListen    string
	NoiseKeyFile   string
	MaxConnections int
	Rate           float64
	Burst          int
	CORSOrigins    []string
	Metrics        bool
}

func loadServeSettings() (*serveSettings, error) {
	get := func(name string) string { return config.GetString(serveKeyPrefix + name) }
	s := &serveSettings{
		KeyFile:        get("key"),
		DocumentFile:   get("document"),
		CertFiles:      config.GetStringSlice(serveKeyPrefix + "cert"),
		Listen:         get("listen"),
		Path:           get("path"),
		TLSCert:        get("tls-cert"),
		TLSKey:         get("tls-key"),
		NoiseListen:    get("noise-listen"),
		NoiseKeyFile:   get("noise-key-file"),
		MaxConnections: config.GetInt(serveKeyPrefix + "max-connections"),
		Rate:           config.GetFloat64(serveKeyPrefix + "rate"),
		Burst:          config.GetInt(serveKeyPrefix + "burst"),
		CORSOrigins:    config.GetStringSlice(serveKeyPrefix + "cors-origin"),
		Metrics:        config.GetBool(serveKeyPrefix + "metrics"),
	}
	if s.KeyFile == "" {
		return nil, fmt.Errorf("%w: --key is required", ErrInvalidInput)
	}
	if s.DocumentFile == "" && len(s.CertFiles) == 0 {
		return nil, fmt.Errorf("%w: --document or --cert is required", ErrInvalidInput)
	}
	if (s.TLSCert == "") != (s.TLSKey == "") {
		return nil, fmt.Errorf("%w: --tls-cert and --tls-key must be given together", ErrInvalidInput)
	}
	if s.Rate < 0 || (s.Rate > 0 && s.Burst <= 0) {
		return nil, fmt.Errorf("%w: --rate must be >= 0 and --burst positive", ErrInvalidInput)
	}
	return s, nil
}

// distributorRuntime holds the servers started by serve.
type distributorRuntime struct {
	settings *serveSettings
	signer   *distributor.Signer
	service  *distributor.Service
	http     *distributor.HTTPServer
	noise    *noiseproto.Server
	limiter  *ratelimit.Limiter
	logger   *slog.Logger
}

// newDistributorRuntime loads the key and document and prepares, but does
// not start, the servers described by s.
func newDistributorRuntime(s *serveSettings, logger *slog.Logger) (*distributorRuntime, error) {
	signer, err := loadSigner(s.KeyFile)
	if err != nil {
		return nil, err
	}
	rt := &distributorRuntime{settings: s, signer: signer, logger: logger}

	entries, err := rt.loadEntries()
	if err != nil {
		return nil, err
	}
	doc, err := distributor.NewDocument(entries)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}

	routerCfg := distributor.RouterConfig{
		Path:           s.Path,
		AllowedOrigins: s.CORSOrigins,
	}
	var metrics *distributor.Metrics
	if s.Metrics {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		metrics = distributor.NewMetrics(reg, doc)
		routerCfg.Gatherer = reg
		routerCfg.Registerer = reg
	}
	if s.Rate > 0 {
		rt.limiter = ratelimit.New(s.Rate, s.Burst, limiterStaleAge, limiterCleanup)
		routerCfg.Limiter = rt.limiter
	}

	rt.service, err = distributor.NewService(&distributor.ServiceConfig{
		Signer:   signer,
		Document: doc,
		Metrics:  metrics,
		Logger:   logger,
	})
	if err != nil {
		rt.close()
		return nil, fmt.Errorf("%w: %w", ErrServerStart, err)
	}

	rt.http, err = distributor.NewHTTPServer(&distributor.HTTPServerConfig{
		ListenAddr: s.Listen,
		Handler:    rt.service.Router(routerCfg),
		CertFile:   s.TLSCert,
		KeyFile:    s.TLSKey,
		Logger:     logger,
	})
	if err != nil {
		rt.close()
		return nil, fmt.Errorf("%w: %w", ErrServerStart, err)
	}

	if s.NoiseListen != "" {
		staticKey, err := loadOrGenerateNoiseKey(s.NoiseKeyFile)
		if err != nil {
			rt.close()
			return nil, err
		}
		rt.noise, err = noiseproto.NewServer(&noiseproto.ServerConfig{
			ListenAddr:     s.NoiseListen,
			StaticKey:      staticKey,
			Handler:        rt.service.NoiseHandler(),
			MaxConnections: s.MaxConnections,
			Logger:         logger,
		})
		if err != nil {
			rt.close()
			return nil, fmt.Errorf("%w: %w", ErrServerStart, err)
		}
		logger.Info("noise transport enabled", "public_key", hex.EncodeToString(staticKey.Public))
	}

	logger.Info("distributor ready",
		"entries", doc.Len(),
		"public_key", base64.StdEncoding.EncodeToString(signer.PublicKey()))
	return rt, nil
}

// loadEntries reads the configured document and signs the configured
// certificates.
func (rt *distributorRuntime) loadEntries() ([]certstore.Entry, error) {
	var entries []certstore.Entry
	if rt.settings.DocumentFile != "" {
		data, err := os.ReadFile(rt.settings.DocumentFile)
		if err != nil {
			return nil, fmt.Errorf("%w: reading %s: %w", ErrFileOperation, rt.settings.DocumentFile, err)
		}
		if entries, err = distributor.ParseDocument(data); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrInvalidInput, rt.settings.DocumentFile, err)
		}
	}
	for _, certFile := range rt.settings.CertFiles {
		certs, err := loadCertificatesPEMFile(certFile)
		if err != nil {
			return nil, err
		}
		entry, err := rt.signer.SignCertificate(certs[0])
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrInvalidInput, certFile, err)
		}
		entries = mergeEntries(entries, []certstore.Entry{entry})
	}
	return entries, nil
}

// reload replaces the served document. The previous document stays in
// place when loading fails.
func (rt *distributorRuntime) reload() error {
	entries, err := rt.loadEntries()
	if err != nil {
		return err
	}
	if err := rt.service.Document().Set(entries); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	rt.logger.Info("fingerprint document reloaded", "entries", len(entries))
	return nil
}

// run starts the servers and blocks until ctx is done or a server fails.
// SIGHUP triggers reload.
func (rt *distributorRuntime) run(ctx context.Context) error {
	defer rt.close()

	if err := rt.http.Start(); err != nil {
		return fmt.Errorf("%w: %w", ErrServerStart, err)
	}
	if rt.noise != nil {
		if err := rt.noise.Start(); err != nil {
			stopCtx, cancel := context.WithTimeout(context.Background(), stopTimeout)
			defer cancel()
			_ = rt.http.Stop(stopCtx)
			return fmt.Errorf("%w: %w", ErrServerStart, err)
		}
	}

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := rt.http.Wait(); err != nil {
			return fmt.Errorf("%w: %w", ErrServerStart, err)
		}
		return nil
	})
	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-hup:
				if err := rt.reload(); err != nil {
					rt.logger.Error("reload failed", "error", err)
				}
			}
		}
	})
	g.Go(func() error {
		<-gctx.Done()
		rt.logger.Info("shutting down")

		stopCtx, cancel := context.WithTimeout(context.Background(), stopTimeout)
		defer cancel()

		var errs []error
		errs = append(errs, rt.http.Stop(stopCtx))
		if rt.noise != nil {
			errs = append(errs, rt.noise.Stop(stopCtx))
		}
		return errors.Join(errs...)
	})

	err := g.Wait()
	rt.logger.Info("server stopped")
	return err
}

func (rt *distributorRuntime) close() {
	if rt.limiter != nil {
		rt.limiter.Stop()
	}
}

// runServe serves until SIGINT or SIGTERM.
func runServe(cmd *cobra.Command, args []string) error {
	s, err := loadServeSettings()
	if err != nil {
		return err
	}
	rt, err := newDistributorRuntime(s, slog.Default())
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	sigCtx, sigStop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer sigStop()

	return rt.run(sigCtx)
}
