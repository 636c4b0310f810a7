// Copyright (C) 2019-2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package network

import (
	"encoding/json"
	"net"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/musictopeople/ocm-go/crdt"
	"github.com/musictopeople/ocm-go/ids"
	"github.com/musictopeople/ocm-go/memory"
)

// HandshakePayload is the Handshake message body (spec.md §4.6 step 1).
type HandshakePayload struct {
	PeerID  uuid.UUID `json:"peer_id"`
	DID     ids.DID   `json:"did"`
	Address string    `json:"address"`
	Port    uint16    `json:"port"`
}

// MemorySyncPayload carries one CRDT-wrapped memory for reconciliation.
type MemorySyncPayload struct {
	Base  *memory.SignedMemory    `json:"base"`
	Clock *crdt.VectorClock       `json:"clock"`
	Ops   []*crdt.MemoryOperation `json:"ops"`
}

// MemoryRequestPayload asks a peer for a DID's most recent memories.
type MemoryRequestPayload struct {
	DID   ids.DID `json:"did"`
	Limit int     `json:"limit"`
}

// defaultMemoryRequestLimit is the "last 10" literal from spec.md §4.6,
// applied when a request omits or zeroes Limit (DESIGN.md Open Question).
const defaultMemoryRequestLimit = 10

// PeerDiscoveryPayload shares this node's known peers with the recipient.
type PeerDiscoveryPayload struct {
	Peers []PeerInfo `json:"peers"`
}

// HandleConnection runs one connection's lifetime: admission, then a
// read loop that validates, authenticates, and dispatches every frame
// until the peer disconnects or sends something unreadable.
func (t *Transport) HandleConnection(conn net.Conn) {
	defer conn.Close()

	ip := remoteIP(conn)
	guard, err := t.conns.Acquire(ip)
	if err != nil {
		t.metrics.inboundConnRateLimited.Inc()
		return
	}
	defer guard.Release()
	t.metrics.inboundConnAllowed.Inc()

	for {
		msg, err := ReadFrame(conn)
		if err != nil {
			return
		}

		if !t.limiter.Allow(ip) {
			continue
		}
		if err := ValidateEnvelope(msg, time.Now().UTC()); err != nil {
			t.metrics.envelopeRejected.Inc()
			t.log.Debug("rejected envelope", zap.Error(err))
			continue
		}
		if !VerifyMessageAuthentication(t.SharedSecret, msg) {
			t.metrics.authFailures.Inc()
			continue
		}
		if !t.replay.CheckAndInsert(msg.Nonce) {
			t.metrics.replaysRejected.Inc()
			continue
		}

		t.dispatch(conn, msg)
	}
}

func (t *Transport) dispatch(conn net.Conn, msg *NetworkMessage) {
	switch msg.MessageType {
	case Handshake:
		t.handleHandshake(msg)
	case MemorySync:
		t.handleMemorySync(msg)
	case MemoryRequest:
		t.handleMemoryRequest(conn, msg)
	case PeerDiscovery:
		t.handlePeerDiscovery(msg)
	case Ping:
		t.handlePing(conn, msg)
	case Pong:
		t.Peers.Touch(msg.FromPeer.String(), time.Now().UTC())
	case SyncRequest, SyncResponse:
		if t.syncHandler != nil {
			t.syncHandler.HandleSyncMessage(conn, msg)
		}
	default:
		t.log.Debug("unknown message type", zap.String("type", string(msg.MessageType)))
	}
}

func (t *Transport) handleHandshake(msg *NetworkMessage) {
	var p HandshakePayload
	if err := json.Unmarshal([]byte(msg.Payload), &p); err != nil {
		t.log.Debug("malformed handshake payload", zap.Error(err))
		return
	}
	did := p.DID
	t.Peers.Upsert(&PeerInfo{
		PeerID:   p.PeerID.String(),
		Address:  p.Address,
		Port:     p.Port,
		LastSeen: time.Now().UTC(),
		DID:      &did,
	})
	t.metrics.connected.Inc()
}

func (t *Transport) handleMemorySync(msg *NetworkMessage) {
	var p MemorySyncPayload
	if err := json.Unmarshal([]byte(msg.Payload), &p); err != nil {
		t.log.Debug("malformed memory_sync payload", zap.Error(err))
		return
	}
	if p.Base == nil || !p.Base.VerifyHash() {
		t.log.Debug("memory_sync content_hash mismatch, dropping")
		return
	}

	incoming := crdt.Rehydrate(p.Base, p.Clock, p.Ops, nil)
	if _, err := t.Manager.MergeMemory(p.Base.ID, incoming); err != nil {
		t.log.Debug("merge failed", zap.Error(err))
		return
	}

	merged := t.Manager.Get(p.Base.ID)
	if merged == nil {
		return
	}
	if err := t.Store.PutMemory(merged.Base); err != nil {
		t.log.Debug("persist merged memory failed", zap.Error(err))
	}
}

// handleMemoryRequest replies on the same connection with one MemorySync
// message per matching memory, newest first, capped at Limit (or the
// "last 10" default).
func (t *Transport) handleMemoryRequest(conn net.Conn, msg *NetworkMessage) {
	var p MemoryRequestPayload
	if err := json.Unmarshal([]byte(msg.Payload), &p); err != nil {
		t.log.Debug("malformed memory_request payload", zap.Error(err))
		return
	}
	limit := p.Limit
	if limit <= 0 {
		limit = defaultMemoryRequestLimit
	}

	memories, err := t.Store.ListMemoriesByDID(p.DID)
	if err != nil {
		t.log.Debug("list memories for memory_request failed", zap.Error(err))
		return
	}
	if len(memories) > limit {
		memories = memories[:limit]
	}

	for _, m := range memories {
		tracked := t.Manager.Track(m)
		payload := MemorySyncPayload{Base: tracked.Base, Clock: tracked.Clock, Ops: tracked.Ops}
		body, err := json.Marshal(payload)
		if err != nil {
			continue
		}
		if err := t.Send(conn, MemorySync, string(body)); err != nil {
			return
		}
	}
}

func (t *Transport) handlePeerDiscovery(msg *NetworkMessage) {
	var p PeerDiscoveryPayload
	if err := json.Unmarshal([]byte(msg.Payload), &p); err != nil {
		t.log.Debug("malformed peer_discovery payload", zap.Error(err))
		return
	}
	for i := range p.Peers {
		peer := p.Peers[i]
		if peer.PeerID == t.LocalPeerID.String() {
			continue
		}
		t.Peers.Upsert(&peer)
	}
}

func (t *Transport) handlePing(conn net.Conn, msg *NetworkMessage) {
	t.Peers.Touch(msg.FromPeer.String(), time.Now().UTC())
	if err := t.Send(conn, Pong, ""); err != nil {
		t.log.Debug("failed to send pong", zap.Error(err))
	}
}
