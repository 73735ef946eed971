// Copyright 2026 Jeremy Hahn
// SPDX-License-Identifier: MIT

package certstore

import (
	"math"
	"time"
)

// noExpiryHorizon stands in for the nearest expiry when there are no entries.
const noExpiryHorizon = 10 * 365 * 24 * time.Hour

// scheduler computes when the next silent update is due.
type scheduler struct {
	periodic   time.Duration
	threshold  time.Duration
	multiplier float64
}

// nextUpdate returns the time of the next silent update for a sorted,
// deduplicated entry set. Only the newest entry per common name counts:
// once a replacement certificate is pinned there is no reason to poll
// more often for the old one.
func (s scheduler) nextUpdate(entries []Entry, now time.Time) time.Time {
	nearest := now.Add(noExpiryHorizon)
	seen := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		if _, ok := seen[e.CommonName]; ok {
			continue
		}
		seen[e.CommonName] = struct{}{}
		if e.Expires.Before(nearest) {
			nearest = e.Expires
		}
	}

	interval := nearest.Sub(now)
	switch {
	case interval <= 0:
		interval = 0
	case interval < s.threshold:
		interval = time.Duration(math.Round(float64(interval) * s.multiplier))
	}
	return now.Add(min(interval, s.periodic))
}
