// Copyright 2026 Jeremy Hahn
// SPDX-License-Identifier: MIT

package certstore

import (
	"crypto"
	"encoding/base64"
	"strconv"
	"time"
)

const (
	// ChallengeHeader carries the random challenge sent with a fetch.
	ChallengeHeader = "X-Cert-Pinning-Challenge"

	// SignatureHeader carries the signature over challenge and body.
	SignatureHeader = "X-Cert-Pinning-Signature"

	// ChallengeSize is the number of random bytes in a challenge.
	ChallengeSize = 16

	// SignatureFormatVersion identifies the canonical byte layout below.
	SignatureFormatVersion = 1
)

// SignedBytes returns the canonical bytes an entry signature covers:
//
//	commonName "&" base64(fingerprint) "&" expires-unix-seconds
//
// Server and client must agree on this layout bit for bit.
func SignedBytes(commonName string, fingerprint []byte, expires time.Time) []byte {
	buf := make([]byte, 0, len(commonName)+64)
	buf = append(buf, commonName...)
	buf = append(buf, '&')
	buf = base64.StdEncoding.AppendEncode(buf, fingerprint)
	buf = append(buf, '&')
	buf = strconv.AppendInt(buf, expires.Unix(), 10)
	return buf
}

// ChallengeSignedBytes returns the bytes covered by the response signature
// in challenge mode.
func ChallengeSignedBytes(challenge string, body []byte) []byte {
	buf := make([]byte, 0, len(challenge)+1+len(body))
	buf = append(buf, challenge...)
	buf = append(buf, '&')
	return append(buf, body...)
}

// verifyEntry checks a single entry signature. Entries are verified
// independently; the caller decides batch policy.
func verifyEntry(provider CryptoProvider, key crypto.PublicKey, e Entry) bool {
	if len(e.Signature) == 0 {
		return false
	}
	return provider.VerifySignature(e.SignedBytes(), e.Signature, key)
}

// verifyChallenge checks the response signature header against the
// challenge that was sent.
func verifyChallenge(provider CryptoProvider, key crypto.PublicKey, challenge, header string, body []byte) bool {
	if header == "" {
		return false
	}
	signature, err := base64.StdEncoding.DecodeString(header)
	if err != nil || len(signature) == 0 {
		return false
	}
	return provider.VerifySignature(ChallengeSignedBytes(challenge, body), signature, key)
}
