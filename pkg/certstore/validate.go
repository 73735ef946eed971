// Copyright 2026 Jeremy Hahn
// SPDX-License-Identifier: MIT

package certstore

import (
	"crypto/subtle"
	"crypto/x509"
	"slices"
)

// ValidateFingerprint decides whether fingerprint is trusted for commonName.
//
// Hosts outside a non-empty allow-list are always UNTRUSTED. Otherwise the
// verdict is EMPTY when no usable entry is pinned to the host, TRUSTED when
// one of them matches and UNTRUSTED when none does.
func (s *Store) ValidateFingerprint(commonName string, fingerprint []byte) ValidationResult {
	result := s.validate(commonName, fingerprint)
	s.cfg.Metrics.observeValidation(result)
	s.notifyValidation(commonName, result)
	return result
}

// ValidateCertificateData validates DER encoded certificate bytes for commonName.
func (s *Store) ValidateCertificateData(commonName string, der []byte) ValidationResult {
	return s.ValidateFingerprint(commonName, s.cfg.Crypto.HashSHA256(der))
}

// ValidateCertificate validates cert for its subject common name.
func (s *Store) ValidateCertificate(cert *x509.Certificate) ValidationResult {
	if cert == nil {
		return ValidationUntrusted
	}
	return s.ValidateCertificateData(cert.Subject.CommonName, cert.Raw)
}

// validate computes the verdict without side effects. Fingerprints are
// compared in constant time against every usable entry for the name.
func (s *Store) validate(commonName string, fingerprint []byte) ValidationResult {
	if !s.cfg.allowsCommonName(commonName) {
		return ValidationUntrusted
	}

	entries := s.db.Lookup(commonName, s.now())
	if len(entries) == 0 {
		return ValidationEmpty
	}
	for _, e := range entries {
		if subtle.ConstantTimeCompare(e.Fingerprint, fingerprint) == 1 {
			return ValidationTrusted
		}
	}
	return ValidationUntrusted
}

// AddValidationObserver registers observer for validation verdicts.
// Observers must be comparable, typically pointers.
func (s *Store) AddValidationObserver(observer ValidationObserver) {
	if observer == nil {
		return
	}
	s.observersMu.Lock()
	defer s.observersMu.Unlock()
	s.observers = append(s.observers, observer)
}

// RemoveValidationObserver unregisters observer.
func (s *Store) RemoveValidationObserver(observer ValidationObserver) error {
	s.observersMu.Lock()
	defer s.observersMu.Unlock()

	i := slices.Index(s.observers, observer)
	if i < 0 {
		return ErrUnknownObserver
	}
	s.observers = slices.Delete(s.observers, i, i+1)
	return nil
}

// RemoveAllValidationObservers unregisters every validation observer.
func (s *Store) RemoveAllValidationObservers() {
	s.observersMu.Lock()
	defer s.observersMu.Unlock()
	s.observers = nil
}

var validationCallbacks = map[ValidationResult]func(ValidationObserver, string){
	ValidationTrusted:   ValidationObserver.OnValidationTrusted,
	ValidationUntrusted: ValidationObserver.OnValidationUntrusted,
	ValidationEmpty:     ValidationObserver.OnValidationEmpty,
}

func (s *Store) notifyValidation(commonName string, result ValidationResult) {
	s.observersMu.RLock()
	observers := slices.Clone(s.observers)
	s.observersMu.RUnlock()

	callback, ok := validationCallbacks[result]
	if !ok || len(observers) == 0 {
		return
	}
	for _, o := range observers {
		s.cfg.Dispatcher.Dispatch(func() { callback(o, commonName) })
	}
}
