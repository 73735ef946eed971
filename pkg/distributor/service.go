// Copyright 2026 Jeremy Hahn
// SPDX-License-Identifier: MIT

package distributor

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/jeremyhahn/go-certpin/pkg/certstore"
)

// Service answers fingerprint requests independent of transport. The HTTP
// router and the Noise server both translate their requests into header
// maps and hand them to the same Service, so both transports serve the same
// bytes and the same challenge signatures.
type Service struct {
	signer  *Signer
	doc     *Document
	metrics *Metrics
	logger  *slog.Logger
}

// ServiceConfig configures a Service.
type ServiceConfig struct {
	// Signer signs challenge responses. Required.
	Signer *Signer

	// Document is the document being served. Required.
	Document *Document

	// Metrics is optional.
	Metrics *Metrics

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// NewService validates cfg and returns a Service.
func NewService(cfg *ServiceConfig) (*Service, error) {
	if cfg == nil || cfg.Signer == nil || cfg.Document == nil {
		return nil, fmt.Errorf("%w: signer and document are required", ErrInvalidConfig)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		signer:  cfg.Signer,
		doc:     cfg.Document,
		metrics: cfg.Metrics,
		logger:  logger,
	}, nil
}

// Document returns the served document.
func (s *Service) Document() *Document {
	return s.doc
}

// reply is a transport-neutral response. err is set instead of body for
// non-2xx statuses.
type reply struct {
	status  int
	headers map[string]string
	body    []byte
	err     string
}

// fingerprints builds the response for a fingerprint request carrying the
// given headers. Header names are matched case-insensitively.
func (s *Service) fingerprints(transport string, headers map[string]string) reply {
	r := s.answer(headers)
	s.metrics.observeRequest(transport, r.status)
	return r
}

// answer serves 503 while the document is empty. With a challenge header
// the document body is signed together with the challenge and the
// signature is returned in SignatureHeader.
func (s *Service) answer(headers map[string]string) reply {
	if s.doc.Len() == 0 {
		return reply{status: http.StatusServiceUnavailable, err: "no fingerprints available"}
	}
	body := s.doc.Body()
	r := reply{
		status:  http.StatusOK,
		headers: map[string]string{"Content-Type": "application/json"},
		body:    body,
	}

	challenge := lookupHeader(headers, certstore.ChallengeHeader)
	if challenge == "" {
		return r
	}
	sig, err := s.signer.SignChallenge(challenge, body)
	if err != nil {
		if errors.Is(err, ErrInvalidChallenge) {
			return reply{status: http.StatusBadRequest, err: "invalid challenge"}
		}
		s.logger.Error("signing challenge failed", "error", err)
		return reply{status: http.StatusInternalServerError, err: "signing failed"}
	}
	s.metrics.observeChallenge()
	r.headers[certstore.SignatureHeader] = sig
	return r
}

// lookupHeader returns the value of name in headers, ignoring case.
func lookupHeader(headers map[string]string, name string) string {
	for k, v := range headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}
