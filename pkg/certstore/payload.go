// Copyright 2026 Jeremy Hahn
// SPDX-License-Identifier: MIT

package certstore

import (
	"encoding/json"
	"fmt"
	"time"
)

// WireEntry is the JSON form of an Entry. Byte fields are standard base64
// and Expires is in unix seconds.
type WireEntry struct {
	Name        string `json:"name"`
	Fingerprint []byte `json:"fingerprint"`
	Expires     int64  `json:"expires"`
	Signature   []byte `json:"signature,omitempty"`
}

// Payload is the document served by the fingerprint service.
type Payload struct {
	Fingerprints []WireEntry `json:"fingerprints"`
}

// ToWire converts an Entry to its JSON form.
func ToWire(e Entry) WireEntry {
	return WireEntry{
		Name:        e.CommonName,
		Fingerprint: e.Fingerprint,
		Expires:     e.Expires.Unix(),
		Signature:   e.Signature,
	}
}

// FromWire converts a JSON entry back to an Entry.
func FromWire(w WireEntry) Entry {
	return Entry{
		CommonName:  w.Name,
		Fingerprint: w.Fingerprint,
		Expires:     time.Unix(w.Expires, 0),
		Signature:   w.Signature,
	}
}

// EncodePayload renders entries as a service document.
func EncodePayload(entries []Entry) ([]byte, error) {
	doc := Payload{Fingerprints: make([]WireEntry, 0, len(entries))}
	for _, e := range entries {
		doc.Fingerprints = append(doc.Fingerprints, ToWire(e))
	}
	return json.Marshal(doc)
}

// parsePayload decodes a service document. It returns UpdateInvalidData for
// malformed documents and UpdateStoreIsEmpty for an empty entry list.
func parsePayload(body []byte) ([]Entry, UpdateResult, error) {
	var doc Payload
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, UpdateInvalidData, err
	}
	if doc.Fingerprints == nil {
		return nil, UpdateInvalidData, fmt.Errorf("%w: missing fingerprints", ErrInvalidEntry)
	}
	if len(doc.Fingerprints) == 0 {
		return nil, UpdateStoreIsEmpty, nil
	}

	entries := make([]Entry, 0, len(doc.Fingerprints))
	for _, w := range doc.Fingerprints {
		e := FromWire(w)
		if err := e.Validate(); err != nil {
			return nil, UpdateInvalidData, err
		}
		entries = append(entries, e)
	}
	return entries, UpdateOK, nil
}

// ParseFallbackData parses bundled fallback entries. It accepts either a
// single entry object or a full service document. Signatures are optional.
func ParseFallbackData(data []byte) ([]Entry, error) {
	var doc struct {
		Fingerprints []WireEntry `json:"fingerprints"`
		WireEntry
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidFallbackData, err)
	}

	wire := doc.Fingerprints
	if wire == nil {
		if doc.Name == "" {
			return nil, fmt.Errorf("%w: no entries", ErrInvalidFallbackData)
		}
		wire = []WireEntry{doc.WireEntry}
	}

	entries := make([]Entry, 0, len(wire))
	for _, w := range wire {
		e := FromWire(w)
		if err := e.Validate(); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidFallbackData, err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}
