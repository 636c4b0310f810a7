// Copyright (C) 2019-2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package network

import (
	"encoding/base64"
	"time"

	"github.com/google/uuid"

	"github.com/musictopeople/ocm-go/ocmerr"
)

// MaxMessageAge is the oldest a message's timestamp may be before it is
// rejected as stale.
const MaxMessageAge = 5 * time.Minute

// ValidateEnvelope checks the structural and freshness requirements of
// spec.md §4.6 steps 4 and 6, independent of HMAC authentication.
func ValidateEnvelope(msg *NetworkMessage, now time.Time) error {
	if msg.FromPeer == uuid.Nil {
		return ocmerr.New(ocmerr.Validation, "network: from_peer must be a UUID")
	}
	if msg.Timestamp.IsZero() {
		return ocmerr.New(ocmerr.Validation, "network: unparseable timestamp")
	}
	if _, err := base64.StdEncoding.DecodeString(msg.Nonce); err != nil {
		return ocmerr.Wrap(ocmerr.Validation, err, "network: nonce is not base64")
	}
	if _, err := base64.StdEncoding.DecodeString(msg.HMAC); err != nil {
		return ocmerr.Wrap(ocmerr.Validation, err, "network: hmac is not base64")
	}
	if len(msg.Payload) > MaxMessageSize {
		return ocmerr.New(ocmerr.Validation, "network: payload exceeds max message size")
	}

	age := now.Sub(msg.Timestamp)
	if age < 0 {
		age = -age
	}
	if age > MaxMessageAge {
		return ocmerr.New(ocmerr.Validation, "network: message timestamp outside freshness window")
	}
	return nil
}
