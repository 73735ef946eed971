// Copyright 2026 Jeremy Hahn
// SPDX-License-Identifier: MIT

package distributor

import (
	"bytes"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"sync"

	"github.com/jeremyhahn/go-certpin/pkg/certstore"
)

// Document is the signed fingerprint document currently being served.
// It is safe for concurrent use.
//
// The encoded body is computed once in Set so every request, and every
// challenge signature over it, sees the exact same bytes.
type Document struct {
	mu      sync.RWMutex
	entries []certstore.Entry
	body    []byte
}

// NewDocument returns a document serving entries.
func NewDocument(entries []certstore.Entry) (*Document, error) {
	d := &Document{}
	if err := d.Set(entries); err != nil {
		return nil, err
	}
	return d, nil
}

// Set replaces the served entries. Every entry must be structurally valid;
// entry signatures are checked by clients, not here. On error the
// previous entries keep being served.
func (d *Document) Set(entries []certstore.Entry) error {
	for _, e := range entries {
		if err := e.Validate(); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidDocument, err)
		}
	}
	body, err := certstore.EncodePayload(entries)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidDocument, err)
	}

	copied := make([]certstore.Entry, len(entries))
	copy(copied, entries)

	d.mu.Lock()
	d.entries = copied
	d.body = body
	d.mu.Unlock()
	return nil
}

// Body returns a copy of the encoded document.
func (d *Document) Body() []byte {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return bytes.Clone(d.body)
}

// Entries returns the served entries.
func (d *Document) Entries() []certstore.Entry {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]certstore.Entry, len(d.entries))
	copy(out, d.entries)
	return out
}

// Len returns the number of served entries.
func (d *Document) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.entries)
}

// ParseDocument decodes a service document as produced by Body, e.g. one
// loaded from disk by the serve command.
func ParseDocument(data []byte) ([]certstore.Entry, error) {
	var doc certstore.Payload
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidDocument, err)
	}
	entries := make([]certstore.Entry, 0, len(doc.Fingerprints))
	for _, w := range doc.Fingerprints {
		e := certstore.FromWire(w)
		if err := e.Validate(); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidDocument, err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// ParseCertificatesPEM decodes every CERTIFICATE block in data.
func ParseCertificatesPEM(data []byte) ([]*x509.Certificate, error) {
	var certs []*x509.Certificate
	for {
		var block *pem.Block
		block, data = pem.Decode(data)
		if block == nil {
			break
		}
		if block.Type != "CERTIFICATE" {
			continue
		}
		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidCertificate, err)
		}
		certs = append(certs, cert)
	}
	if len(certs) == 0 {
		return nil, fmt.Errorf("%w: no certificates found", ErrInvalidCertificate)
	}
	return certs, nil
}
