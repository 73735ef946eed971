// Copyright 2026 Jeremy Hahn
// SPDX-License-Identifier: MIT

package certstore

import (
	"context"
	"crypto"
)

// CryptoProvider supplies the cryptographic primitives the store relies on.
type CryptoProvider interface {
	// HashSHA256 returns the SHA-256 digest of data.
	HashSHA256(data []byte) []byte

	// ImportPublicKey parses the distributor's signing public key.
	ImportPublicKey(raw []byte) (crypto.PublicKey, error)

	// VerifySignature reports whether signature is a valid signature of
	// data under key.
	VerifySignature(data, signature []byte, key crypto.PublicKey) bool

	// RandomBytes returns n cryptographically random bytes.
	RandomBytes(n int) ([]byte, error)
}

// DataStore persists the fingerprint database between runs.
type DataStore interface {
	// Load returns the bytes saved under key, or nil and no error when
	// nothing is stored.
	Load(key string) ([]byte, error)

	// Save replaces the bytes stored under key.
	Save(key string, data []byte) error

	// Remove deletes the bytes stored under key. Removing a missing key is not an error.
	Remove(key string) error
}

// RemoteDataRequest describes a single fetch against the fingerprint service.
type RemoteDataRequest struct {
	// URL is the absolute URL of the fingerprint service.
	URL string

	// Headers are additional request headers.
	Headers map[string]string
}

// RemoteDataResponse is the raw reply from the fingerprint service.
type RemoteDataResponse struct {
	// StatusCode is the HTTP-style status of the reply.
	StatusCode int

	// Headers holds response headers with lower-cased names.
	Headers map[string]string

	// Body is the response payload.
	Body []byte
}

// RemoteDataProvider fetches fingerprint documents from the distribution service.
type RemoteDataProvider interface {
	GetFingerprints(ctx context.Context, req *RemoteDataRequest) (*RemoteDataResponse, error)
}

// UpdateObserver receives the progress of an update request. Both methods
// are called exactly once per request, started before finished.
type UpdateObserver interface {
	OnUpdateStarted(updateType UpdateType)
	OnUpdateFinished(updateType UpdateType, result UpdateResult)
}

// UpdateObserverFuncs adapts plain functions to UpdateObserver. Nil fields are skipped.
type UpdateObserverFuncs struct {
	Started  func(UpdateType)
	Finished func(UpdateType, UpdateResult)
}

// OnUpdateStarted implements UpdateObserver.
func (f UpdateObserverFuncs) OnUpdateStarted(updateType UpdateType) {
	if f.Started != nil {
		f.Started(updateType)
	}
}

// OnUpdateFinished implements UpdateObserver.
func (f UpdateObserverFuncs) OnUpdateFinished(updateType UpdateType, result UpdateResult) {
	if f.Finished != nil {
		f.Finished(updateType, result)
	}
}

// ValidationObserver is notified about validation verdicts.
type ValidationObserver interface {
	OnValidationTrusted(commonName string)
	OnValidationUntrusted(commonName string)
	OnValidationEmpty(commonName string)
}

// Dispatcher runs observer callbacks. Implementations decide on which
// goroutine callbacks run but must preserve submission order.
type Dispatcher interface {
	Dispatch(fn func())
}
