// Copyright (C) 2019-2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package claim

import (
	"time"

	"github.com/google/uuid"

	"github.com/musictopeople/ocm-go/crypto"
	"github.com/musictopeople/ocm-go/ids"
	"github.com/musictopeople/ocm-go/memory"
)

// Store is the subset of store.Store the claim engine needs. Declared
// locally to avoid an import cycle between claim and store (store.Store
// itself references claim.ClaimToken / claim.ProxyMemory).
type Store interface {
	GetClaimTokenByToken(token string) (*ClaimToken, error)
	UpdateClaimToken(t *ClaimToken) error
	GetMemory(id uuid.UUID) (*memory.SignedMemory, error)
	PutMemory(m *memory.SignedMemory) error
	CreateProxyRecordAtomic(m *memory.SignedMemory, p *ProxyMemory, t *ClaimToken) error
	ListTokensByOrg(did ids.DID) ([]*ClaimToken, error)
	ListProxiesByOrg(did ids.DID) ([]*ProxyMemory, error)
}

// Engine implements the proxy-and-claim workflow (spec component C4).
type Engine struct {
	store Store
	clock func() time.Time
}

func NewEngine(s Store) *Engine {
	return &Engine{store: s, clock: time.Now}
}

// CreateProxyRecord builds a signed memory authored by orgDID on behalf of
// an unregistered subject, persists it together with a 30-day claim token
// and the proxy record, and returns both.
func (e *Engine) CreateProxyRecord(orgKeys *crypto.KeyPair, name, info, subjectData string) (*ProxyMemory, *ClaimToken, error) {
	m := memory.New(orgKeys.DID, "proxy_individual", subjectData)
	crypto.SignMemory(orgKeys, m)

	token, err := NewClaimToken(m.ID, orgKeys.DID, DefaultTTL)
	if err != nil {
		return nil, nil, err
	}

	proxy := &ProxyMemory{
		ID:               uuid.New(),
		ProxyForName:     name,
		ProxyForInfo:     info,
		OrganizationDID:  orgKeys.DID,
		MemoryData:       subjectData,
		CreatedTimestamp: e.clock().UTC(),
		ClaimTokenID:     &token.ID,
	}

	if err := e.store.CreateProxyRecordAtomic(m, proxy, token); err != nil {
		return nil, nil, err
	}
	return proxy, token, nil
}

// ClaimProxyRecord transfers authorship of the proxy memory referenced by
// tokenString to claimerKeys' DID, producing a freshly signed memory. The
// original organization-authored memory is retained as an evidentiary
// record.
func (e *Engine) ClaimProxyRecord(tokenString string, claimerKeys *crypto.KeyPair) (*memory.SignedMemory, error) {
	token, err := e.store.GetClaimTokenByToken(tokenString)
	if err != nil {
		return nil, err
	}
	if token == nil {
		return nil, ErrTokenNotFound
	}

	now := e.clock().UTC()
	if err := token.Claim(claimerKeys.DID, now); err != nil {
		return nil, err
	}

	original, err := e.store.GetMemory(token.MemoryID)
	if err != nil {
		return nil, err
	}
	if original == nil {
		return nil, ErrTokenNotFound
	}

	claimed := memory.New(claimerKeys.DID, "individual", original.MemoryData)
	crypto.SignMemory(claimerKeys, claimed)

	if err := e.store.PutMemory(claimed); err != nil {
		return nil, err
	}
	if err := e.store.UpdateClaimToken(token); err != nil {
		return nil, err
	}
	return claimed, nil
}

// ClaimStatistics reports how an organization's issued claim tokens have
// resolved, alongside the number of proxy records it has created.
type ClaimStatistics struct {
	TotalProxyRecords  int
	TotalTokensCreated int
	TokensClaimed      int
	TokensExpired      int
	TokensActive       int
}

// ClaimRate returns the percentage of issued tokens that have been claimed,
// or 0 when no tokens have been created.
func (s ClaimStatistics) ClaimRate() float64 {
	if s.TotalTokensCreated == 0 {
		return 0
	}
	return float64(s.TokensClaimed) / float64(s.TotalTokensCreated) * 100
}

// Statistics reports proxy-and-claim activity for orgDID.
func (e *Engine) Statistics(orgDID ids.DID) (ClaimStatistics, error) {
	tokens, err := e.store.ListTokensByOrg(orgDID)
	if err != nil {
		return ClaimStatistics{}, err
	}
	proxies, err := e.store.ListProxiesByOrg(orgDID)
	if err != nil {
		return ClaimStatistics{}, err
	}

	now := e.clock().UTC()
	var claimed, expired int
	for _, t := range tokens {
		switch {
		case t.ClaimedByDID != nil:
			claimed++
		case !now.Before(t.ExpiryTimestamp):
			expired++
		}
	}

	return ClaimStatistics{
		TotalProxyRecords:  len(proxies),
		TotalTokensCreated: len(tokens),
		TokensClaimed:      claimed,
		TokensExpired:      expired,
		TokensActive:       len(tokens) - claimed - expired,
	}, nil
}
