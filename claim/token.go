// Copyright (C) 2019-2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package claim implements the proxy-and-claim workflow (spec component
// C4): an organization authors a memory on behalf of an unregistered
// subject, issues a one-time claim token, and a later claimant transfers
// authorship to themselves.
package claim

import (
	"crypto/rand"
	"encoding/base32"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/musictopeople/ocm-go/ids"
	"github.com/musictopeople/ocm-go/ocmerr"
)

const (
	tokenPrefix    = "OCM-"
	tokenCodeChars = 16
	DefaultTTL     = 30 * 24 * time.Hour
)

var tokenBase32 = base32.NewEncoding("ABCDEFGHIJKLMNOPQRSTUVWXYZ234567").WithPadding(base32.NoPadding)

var (
	ErrTokenNotFound  = ocmerr.New(ocmerr.NotFound, "claim: token not found")
	ErrExpired        = ocmerr.New(ocmerr.Validation, "claim: token expired")
	ErrAlreadyClaimed = ocmerr.New(ocmerr.AlreadyExists, "claim: token already claimed")
)

// ClaimToken is an opaque, time-bounded code that transfers authorship of a
// ProxyMemory to a claimant. Claims are single-shot.
type ClaimToken struct {
	ID                uuid.UUID  `json:"id"`
	Token             string     `json:"token"`
	MemoryID          uuid.UUID  `json:"memory_id"`
	OrganizationDID   ids.DID    `json:"organization_did"`
	ExpiryTimestamp   time.Time  `json:"expiry_timestamp"`
	CreatedTimestamp  time.Time  `json:"created_timestamp"`
	UpdatedOn         time.Time  `json:"updated_on"`
	ClaimedByDID      *ids.DID   `json:"claimed_by_did,omitempty"`
	ClaimedTimestamp  *time.Time `json:"claimed_timestamp,omitempty"`
}

// newTokenCode returns "OCM-" + the first 16 chars of the unpadded base32
// encoding of 16 random bytes.
func newTokenCode() (string, error) {
	raw := make([]byte, 16)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("claim: generate token code: %w", err)
	}
	encoded := tokenBase32.EncodeToString(raw)
	if len(encoded) < tokenCodeChars {
		return "", fmt.Errorf("claim: encoded token shorter than expected")
	}
	return tokenPrefix + encoded[:tokenCodeChars], nil
}

// NewClaimToken builds a claim token for memoryID, authored by orgDID, that
// expires after ttl.
func NewClaimToken(memoryID uuid.UUID, orgDID ids.DID, ttl time.Duration) (*ClaimToken, error) {
	code, err := newTokenCode()
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	return &ClaimToken{
		ID:               uuid.New(),
		Token:            code,
		MemoryID:         memoryID,
		OrganizationDID:  orgDID,
		ExpiryTimestamp:  now.Add(ttl),
		CreatedTimestamp: now,
		UpdatedOn:        now,
	}, nil
}

// Claimable reports whether t can still be claimed: not expired and not
// already claimed.
func (t *ClaimToken) Claimable(now time.Time) bool {
	return t.ClaimedByDID == nil && now.Before(t.ExpiryTimestamp)
}

// Claim transitions t to claimed by claimerDID, rejecting the transition if
// the token is expired or already claimed. The transition is single-shot.
func (t *ClaimToken) Claim(claimerDID ids.DID, now time.Time) error {
	if t.ClaimedByDID != nil {
		return ErrAlreadyClaimed
	}
	if !now.Before(t.ExpiryTimestamp) {
		return ErrExpired
	}
	t.ClaimedByDID = &claimerDID
	claimedAt := now
	t.ClaimedTimestamp = &claimedAt
	t.UpdatedOn = now
	return nil
}
