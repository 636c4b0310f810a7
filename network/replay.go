// Copyright (C) 2019-2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package network

import (
	"sync"
	"time"
)

// ReplayCache rejects a nonce it has already seen within the freshness
// window, and evicts older entries on every insert so it stays bounded
// under attack (spec.md §9).
type ReplayCache struct {
	mu      sync.Mutex
	window  time.Duration
	seen    map[string]time.Time
	nowFunc func() time.Time
}

func NewReplayCache(window time.Duration) *ReplayCache {
	return &ReplayCache{
		window:  window,
		seen:    make(map[string]time.Time),
		nowFunc: time.Now,
	}
}

// CheckAndInsert returns false if nonce was already seen within the
// window (a replay); otherwise it records nonce at the current time and
// returns true. Either way, stale entries are evicted first.
func (c *ReplayCache) CheckAndInsert(nonce string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.nowFunc()
	c.evictLocked(now)

	if _, ok := c.seen[nonce]; ok {
		return false
	}
	c.seen[nonce] = now
	return true
}

func (c *ReplayCache) evictLocked(now time.Time) {
	for nonce, seenAt := range c.seen {
		if now.Sub(seenAt) > c.window {
			delete(c.seen, nonce)
		}
	}
}

func (c *ReplayCache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.seen)
}
