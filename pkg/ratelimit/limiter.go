// Copyright 2026 Jeremy Hahn
// SPDX-License-Identifier: MIT

// Package ratelimit provides a per-client token bucket limiter shared by the
// distributor's HTTP and Noise front ends.
package ratelimit

import (
	"net"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	// DefaultRate is the token refill rate in requests per second per client.
	DefaultRate = 10.0

	// DefaultBurst is the bucket size.
	DefaultBurst = 20

	// DefaultStaleAge is how long an idle client keeps its bucket.
	DefaultStaleAge = 10 * time.Minute

	// DefaultCleanupInterval is how often idle buckets are evicted.
	DefaultCleanupInterval = time.Minute
)

// bucket is the token bucket of one client.
type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Limiter keys token buckets by client address and evicts idle buckets in
// the background. Call Stop to release the cleanup goroutine.
type Limiter struct {
	mu       sync.Mutex
	buckets  map[string]*bucket
	rate     rate.Limit
	burst    int
	staleAge time.Duration
	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// New creates a Limiter. Non-positive arguments take the package defaults.
func New(r float64, burst int, staleAge, cleanupInterval time.Duration) *Limiter {
	if r <= 0 {
		r = DefaultRate
	}
	if burst <= 0 {
		burst = DefaultBurst
	}
	if staleAge <= 0 {
		staleAge = DefaultStaleAge
	}
	if cleanupInterval <= 0 {
		cleanupInterval = DefaultCleanupInterval
	}

	l := &Limiter{
		buckets:  make(map[string]*bucket),
		rate:     rate.Limit(r),
		burst:    burst,
		staleAge: staleAge,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
	go l.cleanup(cleanupInterval)
	return l
}

// Allow reports whether a request from key may proceed.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(l.rate, l.burst)}
		l.buckets[key] = b
	}
	b.lastSeen = time.Now()
	return b.limiter.Allow()
}

// AllowAddr is Allow keyed by the host part of a "host:port" address.
func (l *Limiter) AllowAddr(addr string) bool {
	return l.Allow(HostKey(addr))
}

// Len returns the number of tracked clients.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

// Stop halts the cleanup goroutine and waits for it to exit. It is safe to
// call more than once.
func (l *Limiter) Stop() {
	l.stopOnce.Do(func() { close(l.stopCh) })
	<-l.doneCh
}

// cleanup evicts idle buckets every interval until Stop.
func (l *Limiter) cleanup(interval time.Duration) {
	defer close(l.doneCh)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-l.stopCh:
			return
		case <-ticker.C:
			l.evict(time.Now())
		}
	}
}

func (l *Limiter) evict(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for key, b := range l.buckets {
		if now.Sub(b.lastSeen) > l.staleAge {
			delete(l.buckets, key)
		}
	}
}

// HostKey strips the port from addr. Addresses without a port are returned as is.
func HostKey(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}
