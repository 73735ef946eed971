// Copyright 2026 Jeremy Hahn
// SPDX-License-Identifier: MIT

package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/jeremyhahn/go-certpin/pkg/certstore"
)

// ErrAllEndpointsFailed is returned when every endpoint of a
// FailoverProvider failed. It wraps ErrFetchFailed.
var ErrAllEndpointsFailed = fmt.Errorf("%w: all endpoints failed", ErrFetchFailed)

// Endpoint is one location of the fingerprint service.
type Endpoint struct {
	URL      string
	Provider certstore.RemoteDataProvider
}

// AttemptError records the failure of one endpoint.
type AttemptError struct {
	URL string
	Err error
}

func (e *AttemptError) Error() string {
	return fmt.Sprintf("%s: %v", e.URL, e.Err)
}

func (e *AttemptError) Unwrap() error {
	return e.Err
}

// AggregateError collects the failure of every endpoint, in order.
type AggregateError struct {
	Attempts []*AttemptError
}

func (e *AggregateError) Error() string {
	var b strings.Builder
	b.WriteString(ErrAllEndpointsFailed.Error())
	for _, a := range e.Attempts {
		b.WriteString("; ")
		b.WriteString(a.Error())
	}
	return b.String()
}

// Unwrap exposes ErrAllEndpointsFailed and every attempt's error.
func (e *AggregateError) Unwrap() []error {
	errs := make([]error, 0, len(e.Attempts)+1)
	errs = append(errs, ErrAllEndpointsFailed)
	for _, a := range e.Attempts {
		errs = append(errs, a)
	}
	return errs
}

// FailoverConfig configures a FailoverProvider.
type FailoverConfig struct {
	// Endpoints are tried in order.
	Endpoints []Endpoint

	// AttemptTimeout bounds each endpoint. Zero leaves only the caller's deadline.
	AttemptTimeout time.Duration

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// FailoverProvider asks each endpoint in turn and returns the first
// successful reply. The request URL is replaced by the endpoint's URL, the
// challenge headers are sent unchanged.
type FailoverProvider struct {
	endpoints []Endpoint
	timeout   time.Duration
	logger    *slog.Logger
}

var _ certstore.RemoteDataProvider = (*FailoverProvider)(nil)

// NewFailoverProvider validates cfg and returns the provider.
func NewFailoverProvider(cfg *FailoverConfig) (*FailoverProvider, error) {
	if cfg == nil || len(cfg.Endpoints) == 0 {
		return nil, fmt.Errorf("%w: at least one endpoint is required", ErrInvalidConfig)
	}
	for i, ep := range cfg.Endpoints {
		if ep.URL == "" || ep.Provider == nil {
			return nil, fmt.Errorf("%w: endpoint %d needs a URL and a provider", ErrInvalidConfig, i)
		}
	}
	if cfg.AttemptTimeout < 0 {
		return nil, fmt.Errorf("%w: negative attempt timeout", ErrInvalidConfig)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &FailoverProvider{
		endpoints: append([]Endpoint(nil), cfg.Endpoints...),
		timeout:   cfg.AttemptTimeout,
		logger:    logger.With("component", "remote_failover"),
	}, nil
}

// NewFailoverFromURLs builds one provider per URL with NewProvider. Providers
// built before an error are closed.
func NewFailoverFromURLs(urls []string, opts *Options) (*FailoverProvider, error) {
	if opts == nil {
		opts = &Options{}
	}
	endpoints := make([]Endpoint, 0, len(urls))
	for _, u := range urls {
		p, err := NewProvider(u, opts)
		if err != nil {
			closeEndpoints(endpoints)
			return nil, err
		}
		endpoints = append(endpoints, Endpoint{URL: u, Provider: p})
	}
	fp, err := NewFailoverProvider(&FailoverConfig{
		Endpoints:      endpoints,
		AttemptTimeout: opts.Timeout,
		Logger:         opts.Logger,
	})
	if err != nil {
		closeEndpoints(endpoints)
		return nil, err
	}
	return fp, nil
}

// GetFingerprints implements certstore.RemoteDataProvider.
func (f *FailoverProvider) GetFingerprints(ctx context.Context, req *certstore.RemoteDataRequest) (*certstore.RemoteDataResponse, error) {
	agg := &AggregateError{}
	for _, ep := range f.endpoints {
		if err := ctx.Err(); err != nil {
			agg.Attempts = append(agg.Attempts, &AttemptError{URL: ep.URL, Err: err})
			break
		}

		resp, err := f.attempt(ctx, ep, req)
		if err == nil {
			if len(agg.Attempts) > 0 {
				f.logger.Info("fingerprint service reached after failover", "url", ep.URL, "failed", len(agg.Attempts))
			}
			return resp, nil
		}
		f.logger.Warn("fingerprint endpoint failed", "url", ep.URL, "error", err)
		agg.Attempts = append(agg.Attempts, &AttemptError{URL: ep.URL, Err: err})
	}
	return nil, agg
}

func (f *FailoverProvider) attempt(ctx context.Context, ep Endpoint, req *certstore.RemoteDataRequest) (*certstore.RemoteDataResponse, error) {
	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}
	resp, err := ep.Provider.GetFingerprints(ctx, &certstore.RemoteDataRequest{URL: ep.URL, Headers: req.Headers})
	if err != nil {
		return nil, err
	}
	if resp == nil {
		return nil, fmt.Errorf("%w: empty reply", ErrFetchFailed)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: server returned %d", ErrFetchFailed, resp.StatusCode)
	}
	return resp, nil
}

// Close closes every endpoint provider that implements io.Closer.
func (f *FailoverProvider) Close() error {
	return closeEndpoints(f.endpoints)
}

func closeEndpoints(endpoints []Endpoint) error {
	var errs []error
	for _, ep := range endpoints {
		if c, ok := ep.Provider.(io.Closer); ok {
			errs = append(errs, c.Close())
		}
	}
	return errors.Join(errs...)
}
