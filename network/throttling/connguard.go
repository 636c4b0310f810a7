// Copyright (C) 2019-2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package throttling

import (
	"sync"

	"github.com/musictopeople/ocm-go/ocmerr"
)

// DefaultMaxConnectionsPerIP is the per-IP concurrent connection cap from
// spec.md §4.6.
const DefaultMaxConnectionsPerIP = 5

// ConnectionTracker admits at most N concurrent connections per IP.
type ConnectionTracker struct {
	mu     sync.Mutex
	max    int
	counts map[string]int
}

func NewConnectionTracker(max int) *ConnectionTracker {
	return &ConnectionTracker{max: max, counts: make(map[string]int)}
}

// ConnectionGuard releases its IP's slot exactly once, on whichever exit
// path the caller takes -- the "scoped resource cleanup" contract from
// spec.md §9.
type ConnectionGuard struct {
	tracker  *ConnectionTracker
	ip       string
	released bool
}

// Acquire admits one more connection from ip, or refuses with a
// Network-kind error if the per-IP cap is already reached.
func (t *ConnectionTracker) Acquire(ip string) (*ConnectionGuard, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.counts[ip] >= t.max {
		return nil, ocmerr.Newf(ocmerr.Network, "throttling: connection cap reached for %s", ip)
	}
	t.counts[ip]++
	return &ConnectionGuard{tracker: t, ip: ip}, nil
}

// Release decrements the IP's connection count. Safe to call more than
// once; only the first call has an effect.
func (g *ConnectionGuard) Release() {
	if g == nil || g.released {
		return
	}
	g.released = true
	g.tracker.mu.Lock()
	defer g.tracker.mu.Unlock()
	if g.tracker.counts[g.ip] > 0 {
		g.tracker.counts[g.ip]--
	}
}

func (t *ConnectionTracker) Count(ip string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.counts[ip]
}
