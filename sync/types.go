// Copyright (C) 2019-2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package sync implements the pairwise hash-diff sync orchestrator
// (spec component C8): which memories to exchange, merging inbound
// memories through the CRDT layer, and per-peer progress tracking.
package sync

import (
	"time"

	"github.com/google/uuid"

	"github.com/musictopeople/ocm-go/memory"
)

// RequestPayload is the wire form of a SyncRequest frame.
type RequestPayload struct {
	RequestingPeer    uuid.UUID  `json:"requesting_peer"`
	LastSyncTimestamp *time.Time `json:"last_sync_timestamp,omitempty"`
	KnownMemoryHashes []string   `json:"known_memory_hashes"`
}

// ResponsePayload is the wire form of a SyncResponse frame.
type ResponsePayload struct {
	Memories      []*memory.SignedMemory `json:"memories"`
	MissingHashes []string               `json:"missing_hashes"`
}
