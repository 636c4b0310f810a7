// Copyright (C) 2019-2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package sync

import (
	"encoding/json"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/musictopeople/ocm-go/crdt"
	"github.com/musictopeople/ocm-go/memory"
	"github.com/musictopeople/ocm-go/network"
	"github.com/musictopeople/ocm-go/ocmerr"
	"github.com/musictopeople/ocm-go/store"
	"github.com/musictopeople/ocm-go/utils/logging"
)

// Orchestrator drives pairwise hash-diff synchronization between this
// node and its peers (spec.md §4.8). Its per-peer bookkeeping --
// last_sync_per_peer and sync_in_progress -- is guarded by its own
// mutex, independent of the CRDT manager's and the transport's locks,
// per the lock-order discipline in spec.md §9.
type Orchestrator struct {
	transport *network.Transport
	store     store.Store
	manager   *crdt.Manager
	strategy  crdt.ConflictStrategyKind
	log       logging.Logger

	mu              sync.Mutex
	lastSyncPerPeer map[string]time.Time
	inProgress      map[string]struct{}
	pending         map[string]*syncGuard
}

func NewOrchestrator(transport *network.Transport, st store.Store, manager *crdt.Manager, strategy crdt.ConflictStrategyKind, log logging.Logger) *Orchestrator {
	if log == nil {
		log = logging.NoLog
	}
	o := &Orchestrator{
		transport:       transport,
		store:           st,
		manager:         manager,
		strategy:        strategy,
		log:             log.Named("sync"),
		lastSyncPerPeer: make(map[string]time.Time),
		inProgress:      make(map[string]struct{}),
	}
	transport.SetSyncHandler(o)
	return o
}

// syncGuard releases peerID's in-progress flag exactly once, on whatever
// exit path sync_with_peer takes -- the scoped-cleanup contract of
// spec.md §9.
type syncGuard struct {
	o        *Orchestrator
	peerID   string
	released bool
}

func (g *syncGuard) release() {
	if g == nil || g.released {
		return
	}
	g.released = true
	g.o.mu.Lock()
	delete(g.o.inProgress, g.peerID)
	g.o.mu.Unlock()
}

// tryAcquire returns (guard, true) if peerID wasn't already syncing, or
// (nil, false) if it was -- sync_with_peer's at-most-one-concurrent rule.
func (o *Orchestrator) tryAcquire(peerID string) (*syncGuard, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, busy := o.inProgress[peerID]; busy {
		return nil, false
	}
	o.inProgress[peerID] = struct{}{}
	return &syncGuard{o: o, peerID: peerID}, true
}

// SyncWithPeer performs sync_with_peer(p): build and send a SyncRequest
// over conn, guarded so only one sync per peerID runs at a time. It does
// not block for the response -- that arrives asynchronously through
// HandleSyncMessage on conn's read loop.
func (o *Orchestrator) SyncWithPeer(conn net.Conn, peerID string) error {
	guard, acquired := o.tryAcquire(peerID)
	if !acquired {
		return nil
	}

	memories, err := o.store.ListMemories()
	if err != nil {
		guard.release()
		return ocmerr.Wrap(ocmerr.Storage, err, "sync: list memories")
	}

	o.mu.Lock()
	lastSync, hasPrior := o.lastSyncPerPeer[peerID]
	o.mu.Unlock()

	var lastSyncPtr *time.Time
	known := make([]string, 0, len(memories))
	for _, m := range memories {
		if !hasPrior || m.Timestamp.After(lastSync) {
			known = append(known, m.ContentHash)
		}
	}
	if hasPrior {
		lastSyncPtr = &lastSync
	}

	req := RequestPayload{
		RequestingPeer:    o.transport.LocalPeerID,
		LastSyncTimestamp: lastSyncPtr,
		KnownMemoryHashes: known,
	}
	body, err := json.Marshal(req)
	if err != nil {
		guard.release()
		return ocmerr.Wrap(ocmerr.Network, err, "sync: marshal sync_request")
	}

	// The response completes this sync asynchronously; the guard is
	// released from HandleSyncMessage once handle_sync_response finishes,
	// not here. If the send itself fails, release now since no response
	// will ever arrive to do it.
	o.mu.Lock()
	o.pendingGuards()[peerID] = guard
	o.mu.Unlock()

	if err := o.transport.Send(conn, network.SyncRequest, string(body)); err != nil {
		guard.release()
		o.mu.Lock()
		delete(o.pendingGuards(), peerID)
		o.mu.Unlock()
		return ocmerr.Wrap(ocmerr.Network, err, "sync: send sync_request")
	}
	return nil
}

// HandleSyncMessage implements network.SyncHandler, routing SyncRequest
// and SyncResponse frames to their handlers.
func (o *Orchestrator) HandleSyncMessage(conn net.Conn, msg *network.NetworkMessage) {
	switch msg.MessageType {
	case network.SyncRequest:
		o.handleSyncRequest(conn, msg)
	case network.SyncResponse:
		o.handleSyncResponse(conn, msg)
	}
}

// handleSyncRequest implements handle_sync_request(req, from): reply
// with memories the requester is missing, plus the hashes the requester
// claims to have that this node doesn't.
func (o *Orchestrator) handleSyncRequest(conn net.Conn, msg *network.NetworkMessage) {
	var req RequestPayload
	if err := json.Unmarshal([]byte(msg.Payload), &req); err != nil {
		o.log.Debug("malformed sync_request payload", zap.Error(err))
		return
	}

	memories, err := o.store.ListMemories()
	if err != nil {
		o.log.Debug("list memories for sync_request failed", zap.Error(err))
		return
	}

	known := make(map[string]struct{}, len(req.KnownMemoryHashes))
	for _, h := range req.KnownMemoryHashes {
		known[h] = struct{}{}
	}
	localHashes := make(map[string]struct{}, len(memories))

	var toSend []*memory.SignedMemory
	for _, m := range memories {
		localHashes[m.ContentHash] = struct{}{}
		if req.LastSyncTimestamp != nil && !m.Timestamp.After(*req.LastSyncTimestamp) {
			continue
		}
		if _, have := known[m.ContentHash]; have {
			continue
		}
		toSend = append(toSend, m)
	}

	var missing []string
	for h := range known {
		if _, have := localHashes[h]; !have {
			missing = append(missing, h)
		}
	}

	resp := ResponsePayload{Memories: toSend, MissingHashes: missing}
	body, err := json.Marshal(resp)
	if err != nil {
		o.log.Debug("marshal sync_response failed", zap.Error(err))
		return
	}
	if err := o.transport.Send(conn, network.SyncResponse, string(body)); err != nil {
		o.log.Debug("send sync_response failed", zap.Error(err))
	}
}

// handleSyncResponse implements handle_sync_response(resp): merge every
// inbound memory through the CRDT layer, persist non-conflicting merges,
// and send back anything the peer reported missing.
func (o *Orchestrator) handleSyncResponse(conn net.Conn, msg *network.NetworkMessage) {
	var resp ResponsePayload
	if err := json.Unmarshal([]byte(msg.Payload), &resp); err != nil {
		o.log.Debug("malformed sync_response payload", zap.Error(err))
		return
	}

	peerID := msg.FromPeer.String()
	defer func() {
		o.mu.Lock()
		o.lastSyncPerPeer[peerID] = time.Now().UTC()
		guard := o.pendingGuards()[peerID]
		delete(o.pendingGuards(), peerID)
		o.mu.Unlock()
		guard.release()
	}()

	for _, m := range resp.Memories {
		if m == nil || !m.VerifyHash() {
			o.log.Debug("sync_response memory content_hash mismatch, discarding")
			continue
		}

		incoming := crdt.NewCrdtMemory(m, o.strategy)
		conflicts, err := o.manager.MergeMemory(m.ID, incoming)
		if err != nil {
			o.log.Debug("merge_memory failed", zap.Error(err))
			continue
		}
		if len(conflicts) > 0 {
			continue
		}

		merged := o.manager.Get(m.ID)
		if merged == nil {
			continue
		}
		if err := o.store.PutMemory(merged.Base); err != nil {
			o.log.Debug("persist merged memory failed", zap.Error(err))
		}
	}

	for _, hash := range resp.MissingHashes {
		m := o.findByHash(hash)
		if m == nil {
			continue
		}
		tracked := o.manager.Track(m)
		payload := network.MemorySyncPayload{Base: tracked.Base, Clock: tracked.Clock, Ops: tracked.Ops}
		body, err := json.Marshal(payload)
		if err != nil {
			continue
		}
		if err := o.transport.Send(conn, network.MemorySync, string(body)); err != nil {
			o.log.Debug("send missing memory failed", zap.String("hash", hash), zap.Error(err))
			return
		}
	}
}

// Statistics reports this node's peer-synchronization activity: how many
// peers it has exchanged memories with, how many syncs are in flight right
// now, and how the CRDT-tracked memory set is doing on conflicts.
type Statistics struct {
	TotalPeersSynced     int
	ActiveSyncOperations int
	TotalMemories        int
	CRDTMemories         int
	UnresolvedConflicts  int
	LastSyncTimes        map[string]time.Time
}

func (o *Orchestrator) Statistics() (Statistics, error) {
	memories, err := o.store.ListMemories()
	if err != nil {
		return Statistics{}, ocmerr.Wrap(ocmerr.Storage, err, "sync: list memories for statistics")
	}
	conflicts, err := o.DetectConflicts()
	if err != nil {
		return Statistics{}, err
	}

	o.mu.Lock()
	lastSync := make(map[string]time.Time, len(o.lastSyncPerPeer))
	for peer, t := range o.lastSyncPerPeer {
		lastSync[peer] = t
	}
	totalPeers := len(o.lastSyncPerPeer)
	activeSyncs := len(o.inProgress)
	o.mu.Unlock()

	return Statistics{
		TotalPeersSynced:     totalPeers,
		ActiveSyncOperations: activeSyncs,
		TotalMemories:        len(memories),
		CRDTMemories:         o.manager.TrackedCount(),
		UnresolvedConflicts:  len(conflicts),
		LastSyncTimes:        lastSync,
	}, nil
}

func (o *Orchestrator) findByHash(hash string) *memory.SignedMemory {
	memories, err := o.store.ListMemories()
	if err != nil {
		return nil
	}
	for _, m := range memories {
		if m.ContentHash == hash {
			return m
		}
	}
	return nil
}

// pendingGuards lazily initializes the sync-response guard-release map.
// Kept separate from inProgress so a failed send can clean up its own
// entry without racing a response that arrives concurrently.
func (o *Orchestrator) pendingGuards() map[string]*syncGuard {
	if o.pending == nil {
		o.pending = make(map[string]*syncGuard)
	}
	return o.pending
}
