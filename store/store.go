// Copyright (C) 2019-2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package store implements durable keyed persistence for memories, claim
// tokens and proxy records (spec component C3).
package store

import (
	"github.com/google/uuid"

	"github.com/musictopeople/ocm-go/claim"
	"github.com/musictopeople/ocm-go/ids"
	"github.com/musictopeople/ocm-go/memory"
)

// Store is the durable persistence surface shared by every component that
// reads or writes memories, claim tokens, or proxy records. Not-found reads
// return (nil, nil), never an error; callers distinguish absence from
// failure by the nil return.
type Store interface {
	PutMemory(m *memory.SignedMemory) error
	GetMemory(id uuid.UUID) (*memory.SignedMemory, error)
	ListMemories() ([]*memory.SignedMemory, error)
	// ListMemoriesByDID returns the DID's memories ordered by Timestamp
	// descending.
	ListMemoriesByDID(did ids.DID) ([]*memory.SignedMemory, error)

	PutClaimToken(t *claim.ClaimToken) error
	GetClaimTokenByToken(token string) (*claim.ClaimToken, error)
	UpdateClaimToken(t *claim.ClaimToken) error
	ListTokensByOrg(did ids.DID) ([]*claim.ClaimToken, error)

	PutProxy(p *claim.ProxyMemory) error
	ListProxiesByOrg(did ids.DID) ([]*claim.ProxyMemory, error)
	// SearchProxiesByName matches ProxyForName against pattern as a
	// wildcard-escaped substring search (spec.md §4.3: \, %, _ are escaped
	// before being wrapped with %...% semantics).
	SearchProxiesByName(did ids.DID, pattern string) ([]*claim.ProxyMemory, error)

	// CreateProxyRecordAtomic persists a signed memory, a proxy record and
	// a claim token as one durable unit (spec.md §9 open question,
	// resolved in DESIGN.md: wrap the three writes in a single batch).
	CreateProxyRecordAtomic(m *memory.SignedMemory, p *claim.ProxyMemory, t *claim.ClaimToken) error

	Close() error
}
