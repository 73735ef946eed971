// Copyright 2026 Jeremy Hahn
// SPDX-License-Identifier: MIT

// Package noiseproto is an encrypted request/response transport over TCP.
// Connections use the Noise_NK_25519_ChaChaPoly_SHA256 handshake: the
// client knows the server's static Curve25519 key in advance, so a
// successful handshake authenticates the server without any PKI. Every
// message is carried in a 2-byte big-endian length-prefixed frame.
package noiseproto

import "errors"

var (
	// ErrHandshakeFailed indicates the Noise handshake did not complete.
	ErrHandshakeFailed = errors.New("noise: handshake failed")

	// ErrInvalidKeySize indicates a key with an incorrect size was provided.
	ErrInvalidKeySize = errors.New("noise: invalid key size")

	// ErrEncryptionFailed indicates a message could not be sealed.
	ErrEncryptionFailed = errors.New("noise: encryption failed")

	// ErrDecryptionFailed indicates a message was tampered with or out of order.
	ErrDecryptionFailed = errors.New("noise: decryption failed")

	// ErrInvalidMessage indicates a decrypted message is not a valid request or response.
	ErrInvalidMessage = errors.New("noise: invalid message")

	// ErrConnectionFailed indicates a transport read, write or dial failed.
	ErrConnectionFailed = errors.New("noise: connection failed")

	// ErrFrameTooLarge indicates a frame exceeds MaxFrameSize.
	ErrFrameTooLarge = errors.New("noise: frame too large")

	// ErrTimeout indicates a deadline could not be applied.
	ErrTimeout = errors.New("noise: operation timeout")

	// ErrServerAlreadyStarted indicates Start was called twice.
	ErrServerAlreadyStarted = errors.New("noise: server already started")

	// ErrServerNotStarted indicates Stop was called before Start.
	ErrServerNotStarted = errors.New("noise: server not started")

	// ErrInvalidConfig indicates a required server or client field is missing.
	ErrInvalidConfig = errors.New("noise: invalid configuration")
)
