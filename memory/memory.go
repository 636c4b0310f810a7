// Copyright (C) 2019-2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package memory implements the signed memory record (spec component C2):
// content hashing and the deterministic signing payload every peer must
// reproduce byte-for-byte.
package memory

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/musictopeople/ocm-go/ids"
)

// SignedMemory is a typed JSON record authored and signed by a DID.
type SignedMemory struct {
	ID          uuid.UUID `json:"id"`
	DID         ids.DID   `json:"did"`
	MemoryType  string    `json:"memory_type"`
	MemoryData  string    `json:"memory_data"`
	ContentHash string    `json:"content_hash"`
	Signature   string    `json:"signature"`
	Timestamp   time.Time `json:"timestamp"`
	UpdatedOn   time.Time `json:"updated_on"`
}

// New builds a SignedMemory with a freshly computed content hash and
// timestamps, ready to be handed to crypto.SignMemory. The signature field
// is left empty until signed.
func New(did ids.DID, memoryType, memoryData string) *SignedMemory {
	now := time.Now().UTC()
	return &SignedMemory{
		ID:          uuid.New(),
		DID:         did,
		MemoryType:  memoryType,
		MemoryData:  memoryData,
		ContentHash: HashContent(memoryData),
		Timestamp:   now,
		UpdatedOn:   now,
	}
}

// HashContent computes hex(SHA256(data)), the content_hash invariant.
func HashContent(data string) string {
	sum := sha256.Sum256([]byte(data))
	return hex.EncodeToString(sum[:])
}

// VerifyHash reports whether m.ContentHash matches a recomputation from
// m.MemoryData. Callers must check this before trusting the signature --
// spec.md's sign-and-verify scenario requires the hash mismatch to surface
// before the signature is even checked.
func (m *SignedMemory) VerifyHash() bool {
	return m.ContentHash == HashContent(m.MemoryData)
}

// signingPayload is the fixed-key-order structure signed over. Field order
// matters: every peer must serialize identically for signatures to verify
// cross-implementation.
type signingPayload struct {
	DID         ids.DID   `json:"did"`
	MemoryType  string    `json:"memory_type"`
	ContentHash string    `json:"content_hash"`
	Timestamp   time.Time `json:"timestamp"`
}

// SigningPayload returns the deterministic JSON byte serialization of
// {did, memory_type, content_hash, timestamp} that the Ed25519 signature
// covers.
func (m *SignedMemory) SigningPayload() []byte {
	// encoding/json's struct-field order is source order, which is fixed
	// here, giving every peer the identical byte output the spec requires.
	b, err := json.Marshal(signingPayload{
		DID:         m.DID,
		MemoryType:  m.MemoryType,
		ContentHash: m.ContentHash,
		Timestamp:   m.Timestamp,
	})
	if err != nil {
		// signingPayload has no cyclic or unmarshalable fields; this would
		// indicate a programmer error, not a runtime condition.
		panic("memory: signing payload marshal failed: " + err.Error())
	}
	return b
}
