// Copyright (C) 2019-2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package sync

import (
	"github.com/google/uuid"

	"github.com/musictopeople/ocm-go/crdt"
	"github.com/musictopeople/ocm-go/ocmerr"
)

// UpdateMemoryField implements update_memory_field(id, path, value):
// build a Set operation under a freshly-incremented vector clock, apply
// it locally, and persist the result (spec.md §4.8).
func (o *Orchestrator) UpdateMemoryField(id uuid.UUID, path string, value interface{}) error {
	cm := o.manager.Get(id)
	if cm == nil {
		return ocmerr.New(ocmerr.NotFound, "sync: memory not tracked")
	}

	// ApplyOperation below performs the single clock increment for
	// localPeer after joining with this snapshot -- don't increment here
	// too, or localPeer's counter advances twice for one edit.
	op, err := crdt.NewOperation(crdt.Set, path, value, cm.Clock.Clone())
	if err != nil {
		return ocmerr.Wrap(ocmerr.CrdtInvalidData, err, "sync: build set operation")
	}
	if err := o.manager.ApplyOperation(id, op); err != nil {
		return err
	}

	return o.store.PutMemory(cm.Base)
}

// DetectConflicts implements detect_conflicts(): group every stored
// memory by (did, memory_type) and report adjacent, timestamp-sorted
// pairs whose content_hash differs.
func (o *Orchestrator) DetectConflicts() ([]*crdt.ConflictInfo, error) {
	memories, err := o.store.ListMemories()
	if err != nil {
		return nil, ocmerr.Wrap(ocmerr.Storage, err, "sync: list memories for detect_conflicts")
	}
	return crdt.GetConflictSummary(memories), nil
}
