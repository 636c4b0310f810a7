// Copyright (C) 2019-2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package crdt

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/musictopeople/ocm-go/memory"
	"github.com/musictopeople/ocm-go/ocmerr"
)

// MergeMetadata tracks provenance of a memory's CRDT merges.
type MergeMetadata struct {
	MergedFrom               []string // sorted, deduplicated peer ids
	ConflictResolutionStrategy ConflictStrategyKind
	LastMergeTimestamp        time.Time
}

func (m *MergeMetadata) addMergedFrom(peer string) {
	for _, p := range m.MergedFrom {
		if p == peer {
			return
		}
	}
	m.MergedFrom = append(m.MergedFrom, peer)
	sort.Strings(m.MergedFrom)
}

// CrdtMemory wraps a SignedMemory with the vector clock and operation log
// that let peers reconcile concurrent edits. base_memory is rewritten as a
// unit (memory_data/content_hash/updated_on) after every applied
// operation; it is never signed again here -- see DESIGN.md's Open
// Question decision on re-signing.
type CrdtMemory struct {
	Base     *memory.SignedMemory
	Clock    *VectorClock
	Ops      []*MemoryOperation
	opIndex  map[uuid.UUID]struct{}
	Metadata *MergeMetadata

	strategy ConflictStrategyKind
	signedAt string // content_hash at construction time, to derive Signed()
}

// NewCrdtMemory wraps base for CRDT tracking under the given conflict
// resolution strategy.
func NewCrdtMemory(base *memory.SignedMemory, strategy ConflictStrategyKind) *CrdtMemory {
	return &CrdtMemory{
		Base:    base,
		Clock:   NewVectorClock(),
		Ops:     nil,
		opIndex: make(map[uuid.UUID]struct{}),
		Metadata: &MergeMetadata{
			ConflictResolutionStrategy: strategy,
		},
		strategy: strategy,
		signedAt: base.ContentHash,
	}
}

// Rehydrate reconstructs a CrdtMemory from its persisted form (base memory,
// clock and operation log), rebuilding the operation_index, which is never
// part of the serialized form (spec.md §9).
func Rehydrate(base *memory.SignedMemory, clock *VectorClock, ops []*MemoryOperation, meta *MergeMetadata) *CrdtMemory {
	if clock == nil {
		clock = NewVectorClock()
	}
	if meta == nil {
		meta = &MergeMetadata{ConflictResolutionStrategy: LastWriterWins}
	}
	idx := make(map[uuid.UUID]struct{}, len(ops))
	for _, op := range ops {
		idx[op.OperationID] = struct{}{}
	}
	// base already reflects ops, so a non-empty log means the signature no
	// longer covers memory_data.
	signedAt := base.ContentHash
	if len(ops) > 0 {
		signedAt = ""
	}
	return &CrdtMemory{
		Base:     base,
		Clock:    clock,
		Ops:      ops,
		opIndex:  idx,
		Metadata: meta,
		strategy: meta.ConflictResolutionStrategy,
		signedAt: signedAt,
	}
}

// Signed reports whether Base's signature still covers the current
// content_hash -- false once any CRDT operation has mutated memory_data,
// per the Open Question decision recorded in DESIGN.md.
func (c *CrdtMemory) Signed() bool {
	return c.Base.ContentHash == c.signedAt
}

// HasOperation is the O(1) dedupe check backing apply_operation's
// idempotence.
func (c *CrdtMemory) HasOperation(id uuid.UUID) bool {
	_, ok := c.opIndex[id]
	return ok
}

// ApplyOperation applies op to the wrapped memory, exactly once: a repeat
// delivery of the same operation id is a no-op. localPeer's clock slot is
// incremented after the join with op's clock, matching spec.md §4.5.
func (c *CrdtMemory) ApplyOperation(op *MemoryOperation, localPeer string) error {
	if c.HasOperation(op.OperationID) {
		return nil
	}

	c.Clock.Update(op.VectorClock)
	c.Clock.Increment(localPeer)

	if err := c.mutate(op); err != nil {
		return err
	}

	c.opIndex[op.OperationID] = struct{}{}
	c.Ops = append(c.Ops, op)
	return nil
}

// mutate applies op's effect to Base.MemoryData and rewrites
// content_hash/updated_on as a unit.
func (c *CrdtMemory) mutate(op *MemoryOperation) error {
	obj, err := decodeObject(c.Base.MemoryData)
	if err != nil {
		return err
	}

	switch op.OperationType {
	case Set:
		v, err := decodeValue(op.Value)
		if err != nil {
			return ocmerr.Wrap(ocmerr.CrdtInvalidData, err, "crdt: decode Set value")
		}
		if err := navigateSet(obj, op.FieldPath, v); err != nil {
			return err
		}
	case Delete:
		if err := navigateDelete(obj, op.FieldPath); err != nil {
			return err
		}
	case Append:
		v, err := decodeValue(op.Value)
		if err != nil {
			return ocmerr.Wrap(ocmerr.CrdtInvalidData, err, "crdt: decode Append value")
		}
		if err := navigateAppend(obj, op.FieldPath, v); err != nil {
			return err
		}
	case Merge:
		v, err := decodeValue(op.Value)
		if err != nil {
			return ocmerr.Wrap(ocmerr.CrdtInvalidData, err, "crdt: decode Merge value")
		}
		if err := navigateMerge(obj, op.FieldPath, v); err != nil {
			return err
		}
	default:
		return ocmerr.Newf(ocmerr.CrdtOperationFailed, "crdt: unknown operation type %q", op.OperationType)
	}

	data, err := encodeObject(obj)
	if err != nil {
		return err
	}
	c.Base.MemoryData = data
	c.Base.ContentHash = memory.HashContent(data)
	c.Base.UpdatedOn = time.Now().UTC()
	return nil
}

// MergeWith reconciles other into c for localPeer, applying every new
// operation whose field doesn't conflict, and resolving or recording
// conflicts per the configured strategy when clocks are Concurrent.
func (c *CrdtMemory) MergeWith(other *CrdtMemory, localPeer string) ([]*ConflictInfo, error) {
	var conflicts []*ConflictInfo

	switch c.Clock.Compare(other.Clock) {
	case Less:
		for _, op := range other.Ops {
			if c.HasOperation(op.OperationID) {
				continue
			}
			if err := c.ApplyOperation(op, localPeer); err != nil {
				return conflicts, err
			}
		}
	case Greater, Equal:
		// nothing to do: c already dominates or matches other.
	case Concurrent:
		for _, op := range other.Ops {
			if c.HasOperation(op.OperationID) {
				continue
			}
			conflicting := c.conflictingLocalOps(op)
			applied, conflict := resolveConcurrent(c.strategy, op, conflicting)
			if conflict != nil {
				conflicts = append(conflicts, conflict)
				continue
			}
			if applied {
				if err := c.ApplyOperation(op, localPeer); err != nil {
					return conflicts, err
				}
			}
		}
	}

	c.Metadata.addMergedFrom(other.peerHint())
	for _, p := range other.Metadata.MergedFrom {
		c.Metadata.addMergedFrom(p)
	}
	c.Metadata.LastMergeTimestamp = time.Now().UTC()
	return conflicts, nil
}

// peerHint is a best-effort peer label for merge_metadata.merged_from when
// the caller didn't already record one -- the originating memory's author
// DID, the closest stable identifier available on a bare CrdtMemory.
func (c *CrdtMemory) peerHint() string {
	return c.Base.DID.String()
}

// conflictingLocalOps returns every locally-applied operation sharing
// op's field_path with a different value.
func (c *CrdtMemory) conflictingLocalOps(op *MemoryOperation) []*MemoryOperation {
	var out []*MemoryOperation
	for _, local := range c.Ops {
		if local.FieldPath != op.FieldPath {
			continue
		}
		if string(local.Value) != string(op.Value) {
			out = append(out, local)
		}
	}
	return out
}
