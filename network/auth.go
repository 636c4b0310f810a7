// Copyright (C) 2019-2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package network

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/musictopeople/ocm-go/ocmerr"
)

// DevSharedSecret is what NewTransport falls back to, without logging, when
// its Config carries no shared secret. config.Validate rejects an empty
// secret, so a node built from a validated config never uses it.
// Production deployments must provision their own (spec.md §9).
const DevSharedSecret = "ocm-dev-shared-secret-do-not-use-in-production"

// authInput builds the literal "type:payload:from_peer:timestamp:nonce"
// string the HMAC covers, with type serialized the same way it appears on
// the wire (its JSON string form).
func authInput(msg *NetworkMessage) string {
	return fmt.Sprintf("%q:%s:%s:%s:%s",
		string(msg.MessageType),
		msg.Payload,
		msg.FromPeer.String(),
		msg.Timestamp.Format(time.RFC3339),
		msg.Nonce,
	)
}

func computeHMAC(secret string, msg *NetworkMessage) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(authInput(msg)))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// NewNonce returns the base64 encoding of 16 random bytes.
func NewNonce() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", ocmerr.Wrap(ocmerr.Crypto, err, "network: generate nonce")
	}
	return base64.StdEncoding.EncodeToString(b), nil
}

// NewMessage builds and authenticates an outbound envelope.
func NewMessage(secret string, msgType MessageType, payload string, fromPeer uuid.UUID) (*NetworkMessage, error) {
	nonce, err := NewNonce()
	if err != nil {
		return nil, err
	}
	msg := &NetworkMessage{
		MessageType: msgType,
		Payload:     payload,
		FromPeer:    fromPeer,
		Timestamp:   time.Now().UTC(),
		Nonce:       nonce,
	}
	msg.HMAC = computeHMAC(secret, msg)
	return msg, nil
}

// VerifyMessageAuthentication recomputes the HMAC over msg's fields and
// compares it to msg.HMAC in constant time. Mutating any of type, payload,
// from_peer, timestamp or nonce invalidates the signature.
func VerifyMessageAuthentication(secret string, msg *NetworkMessage) bool {
	expected := computeHMAC(secret, msg)
	given, err := base64.StdEncoding.DecodeString(msg.HMAC)
	if err != nil {
		return false
	}
	expectedBytes, err := base64.StdEncoding.DecodeString(expected)
	if err != nil {
		return false
	}
	return hmac.Equal(expectedBytes, given)
}
