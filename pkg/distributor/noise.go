// Copyright 2026 Jeremy Hahn
// SPDX-License-Identifier: MIT

package distributor

import (
	"context"
	"net"
	"net/http"

	"github.com/jeremyhahn/go-certpin/pkg/noiseproto"
)

// NoiseHandler returns a noiseproto.Handler answering get_fingerprints with
// the same document and challenge semantics as the HTTP route.
func (s *Service) NoiseHandler() noiseproto.Handler {
	return noiseproto.HandlerFunc(func(_ context.Context, req *noiseproto.Request, remote net.Addr) *noiseproto.Response {
		if req.Method != noiseproto.MethodGetFingerprints {
			s.metrics.observeRequest("noise", http.StatusNotFound)
			return &noiseproto.Response{Status: http.StatusNotFound, Error: "unknown method " + req.Method}
		}
		rep := s.fingerprints("noise", req.Headers)
		if rep.status != http.StatusOK {
			s.logger.Debug("noise request rejected", "remote", remote, "status", rep.status)
		}
		return &noiseproto.Response{
			Status:  rep.status,
			Headers: rep.headers,
			Body:    rep.body,
			Error:   rep.err,
		}
	})
}
