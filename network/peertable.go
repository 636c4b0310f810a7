// Copyright (C) 2019-2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package network

import (
	"sync"
	"time"

	"github.com/musictopeople/ocm-go/ids"
)

// PeerInfo is what is known about a remote peer, populated by handshake,
// discovery beacons, and refreshed by Ping.
type PeerInfo struct {
	PeerID   string
	Address  string
	Port     uint16
	LastSeen time.Time
	DID      *ids.DID
}

// PeerTable is the shared, independently-locked map of known peers
// (spec.md §9: "Transport holds references to ... the peer table").
type PeerTable struct {
	mu    sync.RWMutex
	peers map[string]*PeerInfo
}

func NewPeerTable() *PeerTable {
	return &PeerTable{peers: make(map[string]*PeerInfo)}
}

// Upsert inserts or updates the entry for peerID.
func (t *PeerTable) Upsert(info *PeerInfo) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.peers[info.PeerID] = info
}

func (t *PeerTable) Get(peerID string) (*PeerInfo, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	p, ok := t.peers[peerID]
	return p, ok
}

// Touch refreshes last_seen for peerID if present, matching Ping handling.
func (t *PeerTable) Touch(peerID string, now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if p, ok := t.peers[peerID]; ok {
		p.LastSeen = now
	}
}

func (t *PeerTable) All() []*PeerInfo {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]*PeerInfo, 0, len(t.peers))
	for _, p := range t.peers {
		out = append(out, p)
	}
	return out
}

// EvictIdle removes peers whose LastSeen is older than maxIdle, so long-
// lived peer tables don't grow unbounded (spec.md §3: "implementations
// should expire idle peers").
func (t *PeerTable) EvictIdle(now time.Time, maxIdle time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for id, p := range t.peers {
		if now.Sub(p.LastSeen) > maxIdle {
			delete(t.peers, id)
		}
	}
}
