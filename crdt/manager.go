// Copyright (C) 2019-2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package crdt

import (
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/musictopeople/ocm-go/memory"
	"github.com/musictopeople/ocm-go/ocmerr"
)

// Manager owns every tracked memory's CrdtMemory behind a single mutex, as
// called for by spec.md §5 ("CRDT manager: independent mutex").
type Manager struct {
	mu       sync.Mutex
	localID  string
	strategy ConflictStrategyKind
	memories map[uuid.UUID]*CrdtMemory
}

func NewManager(localPeerID string, strategy ConflictStrategyKind) *Manager {
	return &Manager{
		localID:  localPeerID,
		strategy: strategy,
		memories: make(map[uuid.UUID]*CrdtMemory),
	}
}

// Track registers base for CRDT tracking if it isn't already tracked, and
// returns its CrdtMemory either way.
func (m *Manager) Track(base *memory.SignedMemory) *CrdtMemory {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.memories[base.ID]; ok {
		return existing
	}
	cm := NewCrdtMemory(base, m.strategy)
	m.memories[base.ID] = cm
	return cm
}

// Get returns the tracked CrdtMemory for id, or nil if untracked.
func (m *Manager) Get(id uuid.UUID) *CrdtMemory {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.memories[id]
}

// ApplyOperation routes op to the tracked memory for memoryID.
func (m *Manager) ApplyOperation(memoryID uuid.UUID, op *MemoryOperation) error {
	m.mu.Lock()
	cm, ok := m.memories[memoryID]
	m.mu.Unlock()
	if !ok {
		return ocmerr.New(ocmerr.NotFound, "crdt: memory not tracked")
	}
	return cm.ApplyOperation(op, m.localID)
}

// MergeMemory merges incoming into the tracked CrdtMemory for its id,
// registering incoming as the tracked copy if this is the first time the
// manager has seen that memory id.
func (m *Manager) MergeMemory(id uuid.UUID, incoming *CrdtMemory) ([]*ConflictInfo, error) {
	m.mu.Lock()
	local, ok := m.memories[id]
	if !ok {
		m.memories[id] = incoming
		m.mu.Unlock()
		return nil, nil
	}
	m.mu.Unlock()

	return local.MergeWith(incoming, m.localID)
}

// TrackedCount returns the number of memories currently under CRDT tracking.
func (m *Manager) TrackedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.memories)
}

// GetConflictSummary groups stored memories by (did, memory_type) and
// reports adjacent pairs (sorted by timestamp) whose content_hash differs,
// per spec.md §4.8 detect_conflicts.
func GetConflictSummary(memories []*memory.SignedMemory) []*ConflictInfo {
	groups := make(map[string][]*memory.SignedMemory)
	for _, mm := range memories {
		key := mm.DID.String() + "|" + mm.MemoryType
		groups[key] = append(groups[key], mm)
	}

	var out []*ConflictInfo
	for _, group := range groups {
		sortByTimestamp(group)
		for i := 1; i < len(group); i++ {
			prev, cur := group[i-1], group[i]
			if prev.ContentHash != cur.ContentHash {
				out = append(out, &ConflictInfo{
					FieldPath: "",
					Reason:    ContentMismatch,
				})
			}
		}
	}
	return out
}

func sortByTimestamp(memories []*memory.SignedMemory) {
	sort.Slice(memories, func(i, j int) bool {
		return memories[i].Timestamp.Before(memories[j].Timestamp)
	})
}
