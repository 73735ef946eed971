// Copyright 2026 Jeremy Hahn
// SPDX-License-Identifier: MIT

package remote

import (
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/jeremyhahn/go-certpin/pkg/certstore"
	"github.com/jeremyhahn/go-certpin/pkg/noiseproto"
)

// NewProvider returns the provider for the scheme of rawURL:
//
//	https://pins.example.com/v1/fingerprints
//	http://127.0.0.1:8080/v1/fingerprints
//	noise://pins.example.com:8445?key=<hex server public key>
//
// The URL is only used to pick and configure the provider. The store still
// passes its ServiceURL with every request, which the HTTP provider
// fetches and the Noise provider ignores.
func NewProvider(rawURL string, opts *Options) (certstore.RemoteDataProvider, error) {
	if opts == nil {
		opts = &Options{}
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("%w: service URL %q must be absolute", ErrInvalidConfig, rawURL)
	}
	factory, ok := providerFactories[strings.ToLower(u.Scheme)]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme)
	}
	return factory(u, opts)
}

// Options configures NewProvider. Fields that do not apply to the chosen
// scheme are ignored.
type Options struct {
	// Timeout bounds one request. Zero uses the provider default.
	Timeout time.Duration

	// SPKIPins and InsecureSkipVerify apply to https only.
	SPKIPins           []string
	InsecureSkipVerify bool

	// UserAgent applies to http and https.
	UserAgent string

	Logger *slog.Logger
}

// providerFactories maps a service URL scheme to its provider.
var providerFactories = map[string]func(u *url.URL, opts *Options) (certstore.RemoteDataProvider, error){
	"https": newHTTPFromURL,
	"http":  newHTTPFromURL,
	"noise": newNoiseFromURL,
}

func newHTTPFromURL(_ *url.URL, opts *Options) (certstore.RemoteDataProvider, error) {
	return NewHTTPProvider(&HTTPConfig{
		Timeout:            opts.Timeout,
		SPKIPins:           opts.SPKIPins,
		InsecureSkipVerify: opts.InsecureSkipVerify,
		UserAgent:          opts.UserAgent,
		Logger:             opts.Logger,
	})
}

func newNoiseFromURL(u *url.URL, opts *Options) (certstore.RemoteDataProvider, error) {
	key, err := noiseproto.DecodePublicKey(u.Query().Get("key"))
	if err != nil {
		return nil, fmt.Errorf("%w: noise URL needs ?key=<hex server public key>: %w", ErrInvalidConfig, err)
	}
	return NewNoiseProvider(&NoiseConfig{
		ServerAddr:      u.Host,
		ServerStaticKey: key,
		Timeout:         opts.Timeout,
		Logger:          opts.Logger,
	})
}
