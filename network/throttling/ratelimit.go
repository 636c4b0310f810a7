// Copyright (C) 2019-2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package throttling implements the per-IP rate limiter and connection
// admission guard used by the transport (spec component C6).
package throttling

import (
	"sync"
	"time"
)

// DefaultRateLimitPerMinute is the sliding-window cap: 60 messages per
// 60-second window per IP, per spec.md §4.6.
const DefaultRateLimitPerMinute = 60

// RateLimiter enforces a sliding 60-second window of at most N messages
// per IP. Exceeding the limit drops the message, not the connection.
type RateLimiter struct {
	mu        sync.Mutex
	limit     int
	window    time.Duration
	hits      map[string][]time.Time
	nowFunc   func() time.Time
}

func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		limit:   limit,
		window:  window,
		hits:    make(map[string][]time.Time),
		nowFunc: time.Now,
	}
}

// Allow records one hit for ip and reports whether it is within the
// window's limit.
func (r *RateLimiter) Allow(ip string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.nowFunc()
	cutoff := now.Add(-r.window)

	hits := r.hits[ip]
	kept := hits[:0]
	for _, t := range hits {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}

	if len(kept) >= r.limit {
		r.hits[ip] = kept
		return false
	}

	kept = append(kept, now)
	r.hits[ip] = kept
	return true
}
