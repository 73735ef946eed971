// Copyright 2026 Jeremy Hahn
// SPDX-License-Identifier: MIT

package certstore

import (
	"context"
	"encoding/base64"
	"strings"
)

// waiter is one caller attached to an in-flight update. Exactly one of
// observer and done is set.
type waiter struct {
	updateType UpdateType
	observer   UpdateObserver
	done       chan UpdateResult
}

// flight is the single in-flight fetch. Its waiters are resolved exactly
// once when the fetch reaches a terminal result.
type flight struct {
	waiters []waiter
}

// NextUpdateType returns the update type a default-mode request would take now.
func (s *Store) NextUpdateType() UpdateType {
	return s.updateTypeFor(UpdateModeDefault)
}

// updateTypeFor maps mode to an update type. Forced requests and stores
// without usable persisted entries update directly; otherwise the update is
// silent once NextUpdate has passed and skipped before that. Fallback
// entries never count as usable data here.
func (s *Store) updateTypeFor(mode UpdateMode) UpdateType {
	if mode == UpdateModeForced {
		return UpdateTypeDirect
	}
	now := s.now()
	if s.db.validPersisted(now) == 0 {
		return UpdateTypeDirect
	}
	if !now.Before(s.db.NextUpdate()) {
		return UpdateTypeSilent
	}
	return UpdateTypeNone
}

// UpdateAsync starts an update and returns immediately. The observer is
// told the update type and later the result through the configured
// Dispatcher. A request made while another fetch is in flight joins that
// fetch instead of starting a new one.
func (s *Store) UpdateAsync(mode UpdateMode, observer UpdateObserver) {
	if observer == nil {
		observer = UpdateObserverFuncs{}
	}
	updateType := s.updateTypeFor(mode)
	s.cfg.Dispatcher.Dispatch(func() { observer.OnUpdateStarted(updateType) })
	s.begin(mode, waiter{updateType: updateType, observer: observer})
}

// Update runs an update and waits for its result. If ctx is done first the
// fetch keeps running and ctx.Err() is returned together with
// UpdateNetworkError.
func (s *Store) Update(ctx context.Context, mode UpdateMode) (UpdateType, UpdateResult, error) {
	updateType := s.updateTypeFor(mode)
	done := make(chan UpdateResult, 1)
	s.begin(mode, waiter{updateType: updateType, done: done})

	select {
	case result := <-done:
		return updateType, result, nil
	case <-ctx.Done():
		return updateType, UpdateNetworkError, ctx.Err()
	}
}

// begin attaches w to the in-flight update or starts one. UpdateTypeNone
// resolves w at once without touching the network.
func (s *Store) begin(mode UpdateMode, w waiter) {
	if w.updateType == UpdateTypeNone {
		s.logger.Debug("update not needed", "mode", mode)
		s.resolve(w, UpdateOK)
		return
	}

	s.mu.Lock()
	if s.current != nil {
		s.current.waiters = append(s.current.waiters, w)
		s.mu.Unlock()
		s.logger.Debug("joined in-flight update", "mode", mode, "type", w.updateType)
		return
	}
	f := &flight{waiters: []waiter{w}}
	s.current = f
	s.mu.Unlock()

	s.logger.Debug("starting update", "mode", mode, "type", w.updateType)
	go s.run(f)
}

// run performs the fetch for f and resolves every waiter attached to it.
func (s *Store) run(f *flight) {
	result := s.fetch()

	s.mu.Lock()
	waiters := f.waiters
	f.waiters = nil
	s.current = nil
	s.mu.Unlock()

	for _, w := range waiters {
		s.resolve(w, result)
	}
}

// resolve delivers result to a blocking caller directly and to an observer
// through the Dispatcher.
func (s *Store) resolve(w waiter, result UpdateResult) {
	s.cfg.Metrics.observeUpdate(w.updateType, result)
	if w.done != nil {
		w.done <- result
		return
	}
	observer := w.observer
	s.cfg.Dispatcher.Dispatch(func() { observer.OnUpdateFinished(w.updateType, result) })
}

// pendingWaiters returns the number of callers attached to the in-flight update.
func (s *Store) pendingWaiters() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return 0
	}
	return len(s.current.waiters)
}

// fetch requests a new document from the service and applies it. The
// request is not tied to any caller's context: a caller that gives up does
// not cancel the fetch for the other waiters.
func (s *Store) fetch() UpdateResult {
	req := &RemoteDataRequest{
		URL:     s.cfg.ServiceURL,
		Headers: map[string]string{},
	}

	var challenge string
	if s.cfg.UseChallenge {
		raw, err := s.cfg.Crypto.RandomBytes(ChallengeSize)
		if err != nil {
			s.logger.Error("failed to generate challenge", "error", err)
			return UpdateNetworkError
		}
		challenge = base64.StdEncoding.EncodeToString(raw)
		req.Headers[ChallengeHeader] = challenge
	}

	s.cfg.Metrics.observeFetch()
	resp, err := s.cfg.Remote.GetFingerprints(context.Background(), req)
	if err != nil {
		s.logger.Warn("fingerprint fetch failed", "url", s.cfg.ServiceURL, "error", err)
		return UpdateNetworkError
	}
	if resp == nil || resp.StatusCode < 200 || resp.StatusCode > 299 {
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		s.logger.Warn("fingerprint service returned an error", "url", s.cfg.ServiceURL, "status", status)
		return UpdateNetworkError
	}

	return s.apply(resp, challenge)
}

// apply verifies a service response and replaces the persisted set with
// its usable entries. Every failure leaves the database untouched.
func (s *Store) apply(resp *RemoteDataResponse, challenge string) UpdateResult {
	now := s.now()

	if s.cfg.UseChallenge {
		header := headerValue(resp.Headers, SignatureHeader)
		if !verifyChallenge(s.cfg.Crypto, s.publicKey, challenge, header, resp.Body) {
			s.logger.Error("invalid response signature", "header", SignatureHeader)
			return UpdateInvalidSignature
		}
	}

	entries, result, err := parsePayload(resp.Body)
	if result != UpdateOK {
		if err != nil {
			s.logger.Error("failed to parse fingerprint document", "error", err)
		} else {
			s.logger.Warn("fingerprint document is empty")
		}
		return result
	}

	// A whole-body signature already covers every entry in challenge mode.
	if !s.cfg.UseChallenge {
		for _, e := range entries {
			if !verifyEntry(s.cfg.Crypto, s.publicKey, e) {
				s.logger.Error("invalid entry signature", "common_name", e.CommonName)
				return UpdateInvalidSignature
			}
		}
	}

	usable := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if e.IsExpired(now) {
			continue
		}
		if !s.cfg.allowsCommonName(e.CommonName) {
			s.logger.Warn("document pins an unexpected common name; it will not be trusted",
				"common_name", e.CommonName)
		}
		usable = append(usable, e)
	}
	if len(usable) == 0 {
		s.logger.Warn("no usable entries after update")
		return UpdateStoreIsEmpty
	}

	usable = normalizeEntries(usable)
	nextUpdate := s.scheduler.nextUpdate(usable, now)
	if err := s.db.Replace(usable, nextUpdate); err != nil {
		s.logger.Error("failed to persist fingerprint database", "error", err)
		return UpdateNetworkError
	}

	s.cfg.Metrics.setEntries(len(usable))
	s.logger.Info("fingerprint database updated", "entries", len(usable), "next_update", nextUpdate)
	return UpdateOK
}

// headerValue looks up name case-insensitively.
func headerValue(headers map[string]string, name string) string {
	if v, ok := headers[strings.ToLower(name)]; ok {
		return v
	}
	for k, v := range headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}
