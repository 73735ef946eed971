// Copyright 2026 Jeremy Hahn
// SPDX-License-Identifier: MIT

package noiseproto

// MethodGetFingerprints asks the server for its signed fingerprint document.
const MethodGetFingerprints = "get_fingerprints"

// Request is the JSON request carried over an established session.
type Request struct {
	// Method identifies the operation.
	Method string `json:"method"`

	// Headers mirror HTTP request headers, e.g. the pinning challenge.
	Headers map[string]string `json:"headers,omitempty"`
}

// Response is the JSON reply to a Request. Status follows HTTP status codes.
type Response struct {
	Status int `json:"status"`

	// Headers mirror HTTP response headers, e.g. the challenge signature.
	Headers map[string]string `json:"headers,omitempty"`

	// Body is base64 in the JSON encoding.
	Body []byte `json:"body,omitempty"`

	// Error is a short reason for non-2xx statuses.
	Error string `json:"error,omitempty"`
}
